package auth

import (
	"context"
	"testing"
	"time"

	"prime_pips/internal/models"
	"prime_pips/internal/store"
	"prime_pips/internal/store/storetest"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	HashCost = bcrypt.MinCost
}

func newService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st, _ := storetest.New(t)
	svc := NewService(st.Users, Config{
		SessionTTL: time.Hour,
		Admin:      Credentials{Email: "admin@primepips.com", Password: "admin123"},
		Demo:       Credentials{Email: "demo@primepips.com", Password: "demo123"},
	}, zaptest.NewLogger(t))
	return svc, st
}

func TestBuiltinLoginSeedsUser(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	sess, err := svc.Login(ctx, " Admin@PrimePips.com ", "admin123")
	require.NoError(t, err)
	assert.Equal(t, "admin-001", sess.User.ID)
	assert.True(t, sess.User.IsAdmin())
	assert.Empty(t, sess.User.PasswordHash)
	assert.True(t, sess.User.Wallets.Balance("USDC").Equal(decimal.NewFromInt(10000)))

	users, err := st.Users.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.NotEmpty(t, users[0].PasswordHash)

	_, err = svc.Login(ctx, "admin@primepips.com", "admin123")
	require.NoError(t, err)
	users, _ = st.Users.List(ctx)
	assert.Len(t, users, 1, "second login does not duplicate")
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Login(context.Background(), "demo@primepips.com", "nope")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = svc.Login(context.Background(), "ghost@example.com", "whatever1")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestRegisterThenLogin(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	sess, err := svc.Register(ctx, RegisterInput{
		Email: "Jane@Example.com", Password: "longenough", FirstName: "Jane", LastName: "Doe",
	})
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", sess.User.Email)
	assert.Equal(t, 1, sess.User.Tier)
	assert.True(t, sess.User.Wallets.Balance("USDC").Equal(WelcomeBonus))

	users, _ := st.Users.List(ctx)
	require.Len(t, users, 1)

	again, err := svc.Login(ctx, "jane@example.com", "longenough")
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, again.User.ID)
	assert.NotEqual(t, sess.Token, again.Token)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	cases := map[string]RegisterInput{
		"bad email":      {Email: "not-an-email", Password: "longenough", FirstName: "A", LastName: "B"},
		"short password": {Email: "a@b.co", Password: "short", FirstName: "A", LastName: "B"},
		"missing name":   {Email: "a@b.co", Password: "longenough", FirstName: " ", LastName: "B"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Register(ctx, in)
			assert.ErrorIs(t, err, models.ErrInvalidInput)
		})
	}

	_, err := svc.Register(ctx, RegisterInput{Email: "demo@primepips.com", Password: "longenough", FirstName: "A", LastName: "B"})
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = svc.Register(ctx, RegisterInput{Email: "x@y.io", Password: "longenough", FirstName: "A", LastName: "B"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, RegisterInput{Email: "X@Y.io", Password: "longenough", FirstName: "C", LastName: "D"})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestLogoutAndLookup(t *testing.T) {
	svc, _ := newService(t)

	sess, err := svc.Login(context.Background(), "demo@primepips.com", "demo123")
	require.NoError(t, err)

	got, ok := svc.Lookup(sess.Token)
	require.True(t, ok)
	assert.Equal(t, "user-001", got.User.ID)

	svc.Logout(sess.Token)
	_, ok = svc.Lookup(sess.Token)
	assert.False(t, ok)
}

func TestSuspendedUserLoggedOut(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	sess, err := svc.Login(ctx, "demo@primepips.com", "demo123")
	require.NoError(t, err)

	updated, err := st.Users.Update(ctx, func(us []models.User) ([]models.User, error) {
		us[0].Status = models.StatusSuspended
		return us, nil
	})
	require.NoError(t, err)

	svc.SyncUser(updated[0])
	_, ok := svc.Lookup(sess.Token)
	assert.False(t, ok)

	_, err = svc.Login(ctx, "demo@primepips.com", "demo123")
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestRefreshPicksUpChanges(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	sess, err := svc.Login(ctx, "demo@primepips.com", "demo123")
	require.NoError(t, err)

	_, err = st.Users.Update(ctx, func(us []models.User) ([]models.User, error) {
		us[0].Wallets["USDC"] = decimal.NewFromInt(250)
		return us, nil
	})
	require.NoError(t, err)

	fresh, err := svc.Refresh(ctx, sess.Token)
	require.NoError(t, err)
	assert.True(t, fresh.User.Wallets.Balance("USDC").Equal(decimal.NewFromInt(250)))

	require.NoError(t, st.Users.Replace(ctx, nil))
	_, err = svc.Refresh(ctx, sess.Token)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestUpdateProfileAndPassword(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	sess, err := svc.Register(ctx, RegisterInput{Email: "p@q.io", Password: "firstpass", FirstName: "P", LastName: "Q"})
	require.NoError(t, err)

	u, err := svc.UpdateProfile(ctx, sess.User.ID, ProfileInput{FirstName: "Pat", LastName: "Quinn", Email: "pat@q.io"})
	require.NoError(t, err)
	assert.Equal(t, "Pat", u.FirstName)

	live, _ := svc.Lookup(sess.Token)
	assert.Equal(t, "pat@q.io", live.User.Email)

	err = svc.ChangePassword(ctx, sess.User.ID, PasswordInput{CurrentPassword: "firstpass", NewPassword: "secondpass", ConfirmPassword: "different"})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	err = svc.ChangePassword(ctx, sess.User.ID, PasswordInput{CurrentPassword: "wrong", NewPassword: "secondpass", ConfirmPassword: "secondpass"})
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	require.NoError(t, svc.ChangePassword(ctx, sess.User.ID, PasswordInput{CurrentPassword: "firstpass", NewPassword: "secondpass", ConfirmPassword: "secondpass"}))
	_, err = svc.Login(ctx, "pat@q.io", "secondpass")
	assert.NoError(t, err)
}

func TestBuiltinPasswordCanBeRotated(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	sess, err := svc.Login(ctx, "admin@primepips.com", "admin123")
	require.NoError(t, err)
	require.NoError(t, svc.ChangePassword(ctx, sess.User.ID, PasswordInput{
		CurrentPassword: "admin123", NewPassword: "brand-new-secret", ConfirmPassword: "brand-new-secret",
	}))

	_, err = svc.Login(ctx, "admin@primepips.com", "admin123")
	assert.ErrorIs(t, err, models.ErrUnauthorized, "configured password no longer works")

	again, err := svc.Login(ctx, "admin@primepips.com", "brand-new-secret")
	require.NoError(t, err)
	assert.Equal(t, "admin-001", again.User.ID)
}

func TestBuiltinEmailsAreReserved(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Email: "DEMO@primepips.com", Password: "longenough", FirstName: "E", LastName: "V"})
	assert.ErrorIs(t, err, models.ErrConflict)

	eve, err := svc.Register(ctx, RegisterInput{Email: "eve@x.com", Password: "longenough", FirstName: "Eve", LastName: "V"})
	require.NoError(t, err)
	_, err = svc.UpdateProfile(ctx, eve.User.ID, ProfileInput{FirstName: "Eve", LastName: "V", Email: "demo@primepips.com"})
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = svc.Login(ctx, "demo@primepips.com", "demo123")
	require.NoError(t, err)

	users, err := st.Users.List(ctx)
	require.NoError(t, err)
	demos := 0
	for _, u := range users {
		if u.Email == "demo@primepips.com" {
			demos++
		}
	}
	assert.Equal(t, 1, demos)
}

func TestBuiltinSeedRefusesTakenEmail(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	require.NoError(t, st.Users.Replace(ctx, []models.User{
		{ID: "user-x", Email: "demo@primepips.com", FirstName: "Squatter", Status: models.StatusActive},
	}))

	_, err := svc.Login(ctx, "demo@primepips.com", "demo123")
	assert.ErrorIs(t, err, models.ErrConflict)

	users, _ := st.Users.List(ctx)
	assert.Len(t, users, 1)
}

func TestBuiltinKeepsOwnEmailOnProfileUpdate(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	sess, err := svc.Login(ctx, "demo@primepips.com", "demo123")
	require.NoError(t, err)
	u, err := svc.UpdateProfile(ctx, sess.User.ID, ProfileInput{FirstName: "Demo", LastName: "Trader", Email: "demo@primepips.com"})
	require.NoError(t, err)
	assert.Equal(t, "Trader", u.LastName)
}
