// Package users backs the admin panel's user management.
package users

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"prime_pips/internal/auth"
	"prime_pips/internal/logging"
	"prime_pips/internal/models"
	"prime_pips/internal/notify"
	"prime_pips/internal/store"
	"prime_pips/internal/wallet"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type CreateInput struct {
	Email     string           `json:"email"`
	FirstName string           `json:"firstName"`
	LastName  string           `json:"lastName"`
	Password  string           `json:"password"`
	Role      models.Role      `json:"role"`
	Balance   *decimal.Decimal `json:"balance"`
}

// Patch holds the admin-editable fields. Nil fields are left unchanged.
type Patch struct {
	Email     *string            `json:"email"`
	FirstName *string            `json:"firstName"`
	LastName  *string            `json:"lastName"`
	Role      *models.Role       `json:"role"`
	Status    *models.UserStatus `json:"status"`
	Tier      *int               `json:"tier"`
	Balance   *decimal.Decimal   `json:"balance"`
}

type Stats struct {
	Total     int             `json:"total"`
	Active    int             `json:"active"`
	Suspended int             `json:"suspended"`
	Admins    int             `json:"admins"`
	TotalUSD  decimal.Decimal `json:"totalUsd"`
}

// Overview is everything the admin panel renders on load.
type Overview struct {
	Users         []models.User         `json:"users"`
	Stats         Stats                 `json:"stats"`
	Notifications []models.Notification `json:"notifications"`
	Notify        notify.Stats          `json:"notificationStats"`
}

// EmailPolicy decides whether a user may hold an email. auth.Service also
// reserves the built-in account emails.
type EmailPolicy interface {
	CheckEmail(users []models.User, selfID, email string) error
}

type Service struct {
	users  *store.Collection[models.User]
	notes  *store.Collection[models.Notification]
	emails EmailPolicy
	log    *zap.Logger
	now    func() time.Time

	onChanged func(models.User)
	onDeleted func(string)
}

func NewService(users *store.Collection[models.User], notes *store.Collection[models.Notification], emails EmailPolicy, log *zap.Logger) *Service {
	return &Service{users: users, notes: notes, emails: emails, log: logging.OrNop(log), now: time.Now}
}

func (s *Service) checkEmail(all []models.User, selfID, email string) error {
	if s.emails == nil {
		return auth.EmailTaken(all, selfID, email)
	}
	return s.emails.CheckEmail(all, selfID, email)
}

// SetCallbacks registers hooks fired after a user is changed or deleted.
func (s *Service) SetCallbacks(onChanged func(models.User), onDeleted func(userID string)) {
	s.onChanged = onChanged
	s.onDeleted = onDeleted
}

// List returns every user without password hashes, oldest first.
func (s *Service) List(ctx context.Context) ([]models.User, error) {
	all, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	return public(all), nil
}

func (s *Service) Get(ctx context.Context, id string) (models.User, error) {
	all, err := s.users.List(ctx)
	if err != nil {
		return models.User{}, err
	}
	for _, u := range all {
		if u.ID == id {
			return u.Public(), nil
		}
	}
	return models.User{}, fmt.Errorf("%w: user %s", models.ErrNotFound, id)
}

func (s *Service) Create(ctx context.Context, in CreateInput) (models.User, error) {
	email, err := auth.NormalizeEmail(in.Email)
	if err != nil {
		return models.User{}, err
	}
	first, last := strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName)
	if first == "" {
		return models.User{}, fmt.Errorf("%w: first name is required", models.ErrInvalidInput)
	}
	role := in.Role
	if role == "" {
		role = models.RoleUser
	}
	if role != models.RoleUser && role != models.RoleAdmin {
		return models.User{}, fmt.Errorf("%w: unknown role %q", models.ErrInvalidInput, role)
	}
	balance := auth.WelcomeBonus
	if in.Balance != nil {
		if in.Balance.IsNegative() {
			return models.User{}, fmt.Errorf("%w: balance cannot be negative", models.ErrInvalidInput)
		}
		balance = *in.Balance
	}

	u := models.User{
		ID:        "user-" + uuid.NewString(),
		Email:     email,
		FirstName: first,
		LastName:  last,
		Role:      role,
		Status:    models.StatusActive,
		Tier:      1,
		Wallets:   models.Wallets{"USDC": balance, "BTC": decimal.Zero, "ETH": decimal.Zero},
		CreatedAt: s.now().UTC(),
	}
	if in.Password != "" {
		if len(in.Password) < auth.MinPasswordLength {
			return models.User{}, fmt.Errorf("%w: password must be at least %d characters", models.ErrInvalidInput, auth.MinPasswordLength)
		}
		if u.PasswordHash, err = auth.HashPassword(in.Password); err != nil {
			return models.User{}, err
		}
	}

	if _, err := s.users.Update(ctx, func(all []models.User) ([]models.User, error) {
		if err := s.checkEmail(all, "", email); err != nil {
			return nil, err
		}
		return append(all, u), nil
	}); err != nil {
		return models.User{}, err
	}
	s.log.Info("👤 User created by admin", zap.String("user", u.ID), zap.String("role", string(role)))
	return u.Public(), nil
}

func (s *Service) Update(ctx context.Context, id string, p Patch) (models.User, error) {
	var email string
	if p.Email != nil {
		var err error
		if email, err = auth.NormalizeEmail(*p.Email); err != nil {
			return models.User{}, err
		}
	}
	if p.Role != nil && *p.Role != models.RoleUser && *p.Role != models.RoleAdmin {
		return models.User{}, fmt.Errorf("%w: unknown role %q", models.ErrInvalidInput, *p.Role)
	}
	if p.Status != nil {
		if err := validStatus(*p.Status); err != nil {
			return models.User{}, err
		}
	}
	if p.Tier != nil && (*p.Tier < 1 || *p.Tier > wallet.MaxTier) {
		return models.User{}, fmt.Errorf("%w: tier must be between 1 and %d", models.ErrInvalidInput, wallet.MaxTier)
	}
	if p.Balance != nil && p.Balance.IsNegative() {
		return models.User{}, fmt.Errorf("%w: balance cannot be negative", models.ErrInvalidInput)
	}

	return s.modify(ctx, id, func(all []models.User, i int) error {
		u := &all[i]
		if p.Email != nil {
			if err := s.checkEmail(all, u.ID, email); err != nil {
				return err
			}
			u.Email = email
		}
		if p.FirstName != nil {
			u.FirstName = strings.TrimSpace(*p.FirstName)
		}
		if p.LastName != nil {
			u.LastName = strings.TrimSpace(*p.LastName)
		}
		if p.Role != nil {
			u.Role = *p.Role
		}
		if p.Status != nil {
			u.Status = *p.Status
		}
		if p.Tier != nil {
			u.Tier = *p.Tier
		}
		if p.Balance != nil {
			u.Wallets = u.Wallets.Clone()
			u.Wallets["USDC"] = *p.Balance
		}
		return nil
	})
}

func (s *Service) SetStatus(ctx context.Context, id string, status models.UserStatus) (models.User, error) {
	if err := validStatus(status); err != nil {
		return models.User{}, err
	}
	u, err := s.modify(ctx, id, func(all []models.User, i int) error {
		all[i].Status = status
		return nil
	})
	if err == nil {
		s.log.Info("🚦 User status changed", zap.String("user", id), zap.String("status", string(status)))
	}
	return u, err
}

func (s *Service) Delete(ctx context.Context, id string) error {
	_, err := s.users.Update(ctx, func(all []models.User) ([]models.User, error) {
		for i, u := range all {
			if u.ID == id {
				return append(all[:i], all[i+1:]...), nil
			}
		}
		return nil, fmt.Errorf("%w: user %s", models.ErrNotFound, id)
	})
	if err != nil {
		return err
	}
	s.log.Info("🗑️ User deleted", zap.String("user", id))
	if s.onDeleted != nil {
		s.onDeleted(id)
	}
	return nil
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	all, err := s.users.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	return summarize(all), nil
}

// Overview loads users and notifications concurrently.
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	var (
		users []models.User
		notes []models.Notification
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		users, err = s.users.List(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		notes, err = s.notes.List(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(notes, func(i, j int) bool { return notes[i].CreatedAt.After(notes[j].CreatedAt) })
	return &Overview{
		Users:         public(users),
		Stats:         summarize(users),
		Notifications: notes,
		Notify:        notify.Summarize(notes),
	}, nil
}

func (s *Service) modify(ctx context.Context, id string, fn func(all []models.User, i int) error) (models.User, error) {
	var out models.User
	_, err := s.users.Update(ctx, func(all []models.User) ([]models.User, error) {
		for i := range all {
			if all[i].ID != id {
				continue
			}
			if err := fn(all, i); err != nil {
				return nil, err
			}
			out = all[i]
			return all, nil
		}
		return nil, fmt.Errorf("%w: user %s", models.ErrNotFound, id)
	})
	if err != nil {
		return models.User{}, err
	}
	if s.onChanged != nil {
		s.onChanged(out)
	}
	return out.Public(), nil
}

func summarize(all []models.User) Stats {
	st := Stats{Total: len(all), TotalUSD: decimal.Zero}
	for _, u := range all {
		if u.EffectiveStatus() == models.StatusSuspended {
			st.Suspended++
		} else {
			st.Active++
		}
		if u.IsAdmin() {
			st.Admins++
		}
		st.TotalUSD = st.TotalUSD.Add(u.Wallets.Balance("USDC"))
	}
	return st
}

func public(all []models.User) []models.User {
	out := make([]models.User, len(all))
	for i, u := range all {
		out[i] = u.Public()
	}
	return out
}

func validStatus(st models.UserStatus) error {
	if st != models.StatusActive && st != models.StatusSuspended {
		return fmt.Errorf("%w: unknown status %q", models.ErrInvalidInput, st)
	}
	return nil
}
