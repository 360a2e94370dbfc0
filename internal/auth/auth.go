package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"prime_pips/internal/logging"
	"prime_pips/internal/models"
	"prime_pips/internal/store"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// HashCost is the bcrypt cost for new password hashes.
var HashCost = bcrypt.DefaultCost

const MinPasswordLength = 8

// WelcomeBonus is credited in USDC to every new account.
var WelcomeBonus = decimal.NewFromInt(100)

func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), HashCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func VerifyPassword(password, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NormalizeEmail validates an address and lower-cases it.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email %q", models.ErrInvalidInput, email)
	}
	return email, nil
}

// Session is the cached view of a logged-in user.
type Session struct {
	Token    string      `json:"token"`
	User     models.User `json:"user"`
	IssuedAt time.Time   `json:"issuedAt"`
}

// Credentials of a built-in account.
type Credentials struct {
	Email    string
	Password string
}

type Config struct {
	SessionTTL time.Duration
	Admin      Credentials
	Demo       Credentials
}

type builtin struct {
	creds Credentials
	user  models.User
}

type Service struct {
	users    *store.Collection[models.User]
	sessions *cache.Cache
	builtins []builtin
	log      *zap.Logger
	now      func() time.Time
}

func NewService(users *store.Collection[models.User], cfg Config, log *zap.Logger) *Service {
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	s := &Service{
		users:    users,
		sessions: cache.New(ttl, ttl/2),
		log:      logging.OrNop(log),
		now:      time.Now,
	}

	if cfg.Admin.Email != "" {
		s.builtins = append(s.builtins, builtin{
			creds: cfg.Admin,
			user: models.User{
				ID:        "admin-001",
				Email:     strings.ToLower(cfg.Admin.Email),
				FirstName: "Admin",
				LastName:  "User",
				Role:      models.RoleAdmin,
				Status:    models.StatusActive,
				Tier:      1,
				Wallets: models.Wallets{
					"USDC": decimal.NewFromInt(10000),
					"BTC":  decimal.NewFromInt(1),
					"ETH":  decimal.NewFromInt(10),
				},
			},
		})
	}
	if cfg.Demo.Email != "" {
		s.builtins = append(s.builtins, builtin{
			creds: cfg.Demo,
			user: models.User{
				ID:        "user-001",
				Email:     strings.ToLower(cfg.Demo.Email),
				FirstName: "Demo",
				LastName:  "User",
				Role:      models.RoleUser,
				Status:    models.StatusActive,
				Tier:      1,
				Wallets: models.Wallets{
					"USDC": WelcomeBonus,
					"BTC":  decimal.Zero,
					"ETH":  decimal.Zero,
				},
			},
		})
	}
	return s
}

// Login checks the built-in accounts first, then the users bin.
// A built-in account accepts its configured password only until it is seeded;
// after that the stored hash is the only credential.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}

	for _, b := range s.builtins {
		if email != b.user.Email {
			continue
		}
		if stored, ok := findUser(users, b.user.ID); ok {
			if !VerifyPassword(password, stored.PasswordHash) {
				return nil, s.rejected(email)
			}
			return s.open(stored)
		}
		if subtle.ConstantTimeCompare([]byte(password), []byte(b.creds.Password)) != 1 {
			return nil, s.rejected(email)
		}
		u, err := s.ensureBuiltin(ctx, b)
		if err != nil {
			return nil, err
		}
		return s.open(u)
	}

	for _, u := range users {
		if !strings.EqualFold(u.Email, email) {
			continue
		}
		if !VerifyPassword(password, u.PasswordHash) {
			break
		}
		return s.open(u)
	}
	return nil, s.rejected(email)
}

func (s *Service) rejected(email string) error {
	s.log.Info("🔒 Login rejected", zap.String("email", email))
	return fmt.Errorf("%w: invalid email or password", models.ErrUnauthorized)
}

func findUser(users []models.User, id string) (models.User, bool) {
	for _, u := range users {
		if u.ID == id {
			return u, true
		}
	}
	return models.User{}, false
}

// ensureBuiltin returns the stored copy of a built-in account, creating it on first login.
func (s *Service) ensureBuiltin(ctx context.Context, b builtin) (models.User, error) {
	var out models.User
	_, err := s.users.Update(ctx, func(users []models.User) ([]models.User, error) {
		if u, ok := findUser(users, b.user.ID); ok {
			out = u
			return users, nil
		}
		if err := EmailTaken(users, b.user.ID, b.user.Email); err != nil {
			return nil, err
		}
		hash, err := HashPassword(b.creds.Password)
		if err != nil {
			return nil, err
		}
		out = b.user
		out.Wallets = b.user.Wallets.Clone()
		out.PasswordHash = hash
		out.CreatedAt = s.now().UTC()
		s.log.Info("👤 Seeded built-in account", zap.String("id", out.ID))
		return append(users, out), nil
	})
	return out, err
}

// CheckEmail rejects an email held by another stored user or reserved by a
// built-in account other than selfID.
func (s *Service) CheckEmail(users []models.User, selfID, email string) error {
	for _, b := range s.builtins {
		if b.user.ID != selfID && strings.EqualFold(b.user.Email, email) {
			return fmt.Errorf("%w: email already in use", models.ErrConflict)
		}
	}
	return EmailTaken(users, selfID, email)
}

// EmailTaken reports a conflict if a stored user other than selfID owns email.
func EmailTaken(users []models.User, selfID, email string) error {
	for _, u := range users {
		if u.ID != selfID && strings.EqualFold(u.Email, email) {
			return fmt.Errorf("%w: email already in use", models.ErrConflict)
		}
	}
	return nil
}

func (s *Service) open(u models.User) (*Session, error) {
	if u.EffectiveStatus() == models.StatusSuspended {
		return nil, fmt.Errorf("%w: account suspended", models.ErrForbidden)
	}
	sess := &Session{
		Token:    uuid.NewString(),
		User:     u.Public(),
		IssuedAt: s.now().UTC(),
	}
	s.sessions.SetDefault(sess.Token, sess)
	s.log.Info("✅ User logged in", zap.String("user", u.ID), zap.String("role", string(u.Role)))
	return sess, nil
}

type RegisterInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Register persists a new user with the welcome bonus and logs them in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	email, err := NormalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	first, last := strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName)
	if first == "" || last == "" {
		return nil, fmt.Errorf("%w: first and last name are required", models.ErrInvalidInput)
	}
	if len(in.Password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", models.ErrInvalidInput, MinPasswordLength)
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	u := models.User{
		ID:           "user-" + uuid.NewString(),
		Email:        email,
		FirstName:    first,
		LastName:     last,
		Role:         models.RoleUser,
		Status:       models.StatusActive,
		Tier:         1,
		Wallets:      models.Wallets{"USDC": WelcomeBonus, "BTC": decimal.Zero, "ETH": decimal.Zero},
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}

	_, err = s.users.Update(ctx, func(users []models.User) ([]models.User, error) {
		if err := s.CheckEmail(users, "", email); err != nil {
			return nil, err
		}
		return append(users, u), nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("🆕 User registered", zap.String("user", u.ID))
	return s.open(u)
}

// Lookup returns the session for token, if it is still live.
func (s *Service) Lookup(token string) (*Session, bool) {
	v, ok := s.sessions.Get(token)
	if !ok {
		return nil, false
	}
	sess := *v.(*Session)
	return &sess, true
}

func (s *Service) Logout(token string) {
	s.sessions.Delete(token)
}

// Refresh reloads the session's user from the users bin.
func (s *Service) Refresh(ctx context.Context, token string) (*Session, error) {
	sess, ok := s.Lookup(token)
	if !ok {
		return nil, fmt.Errorf("%w: session expired", models.ErrUnauthorized)
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.ID == sess.User.ID {
			s.SyncUser(u)
			if fresh, ok := s.Lookup(token); ok {
				return fresh, nil
			}
			return nil, fmt.Errorf("%w: account suspended", models.ErrForbidden)
		}
	}
	s.DropUser(sess.User.ID)
	return nil, fmt.Errorf("%w: account no longer exists", models.ErrUnauthorized)
}

// SyncUser pushes a changed user into its live sessions. Suspended users are logged out.
func (s *Service) SyncUser(u models.User) {
	for token, item := range s.sessions.Items() {
		sess := item.Object.(*Session)
		if sess.User.ID != u.ID {
			continue
		}
		if u.EffectiveStatus() == models.StatusSuspended {
			s.sessions.Delete(token)
			continue
		}
		remaining := time.Until(time.Unix(0, item.Expiration))
		if remaining <= 0 {
			s.sessions.Delete(token)
			continue
		}
		updated := *sess
		updated.User = u.Public()
		s.sessions.Set(token, &updated, remaining)
	}
}

// DropUser ends every session of a user.
func (s *Service) DropUser(userID string) {
	for token, item := range s.sessions.Items() {
		if item.Object.(*Session).User.ID == userID {
			s.sessions.Delete(token)
		}
	}
}

type ProfileInput struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (models.User, error) {
	email, err := NormalizeEmail(in.Email)
	if err != nil {
		return models.User{}, err
	}
	first, last := strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName)
	if first == "" || last == "" {
		return models.User{}, fmt.Errorf("%w: first and last name are required", models.ErrInvalidInput)
	}

	var out models.User
	_, err = s.users.Update(ctx, func(users []models.User) ([]models.User, error) {
		idx := -1
		for i, u := range users {
			if u.ID == userID {
				idx = i
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("%w: user %s", models.ErrNotFound, userID)
		}
		if err := s.CheckEmail(users, userID, email); err != nil {
			return nil, err
		}
		users[idx].FirstName = first
		users[idx].LastName = last
		users[idx].Email = email
		out = users[idx]
		return users, nil
	})
	if err != nil {
		return models.User{}, err
	}
	s.SyncUser(out)
	return out.Public(), nil
}

type PasswordInput struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (s *Service) ChangePassword(ctx context.Context, userID string, in PasswordInput) error {
	if in.NewPassword != in.ConfirmPassword {
		return fmt.Errorf("%w: new passwords do not match", models.ErrInvalidInput)
	}
	if len(in.NewPassword) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", models.ErrInvalidInput, MinPasswordLength)
	}
	hash, err := HashPassword(in.NewPassword)
	if err != nil {
		return err
	}

	_, err = s.users.Update(ctx, func(users []models.User) ([]models.User, error) {
		for i, u := range users {
			if u.ID != userID {
				continue
			}
			if !VerifyPassword(in.CurrentPassword, u.PasswordHash) {
				return nil, fmt.Errorf("%w: current password is incorrect", models.ErrUnauthorized)
			}
			users[i].PasswordHash = hash
			return users, nil
		}
		return nil, fmt.Errorf("%w: user %s", models.ErrNotFound, userID)
	})
	if err == nil {
		s.log.Info("🔑 Password changed", zap.String("user", userID))
	}
	return err
}
