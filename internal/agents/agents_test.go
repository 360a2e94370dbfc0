package agents

import (
	"context"
	"testing"
	"time"

	"prime_pips/internal/models"
	"prime_pips/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var applicant = models.User{ID: "u1", Email: "alice@example.com"}

func validForm() Form {
	return Form{
		FullName:    " Alice Agent ",
		Occupation:  "Trader",
		Email:       "alice@example.com",
		PhoneNumber: "+234 800 000 0000",
		Country:     "Nigeria",
		ActiveHours: "9am-5pm",
	}
}

func newService(t *testing.T) *Service {
	st, _ := storetest.New(t)
	svc := NewService(st.Applications, zaptest.NewLogger(t))
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return svc
}

func TestSubmit(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	var hooked string
	svc.OnSubmit(func(a models.AgentApplication) { hooked = a.ID })

	app, err := svc.Submit(ctx, applicant, validForm())
	require.NoError(t, err)
	assert.Equal(t, "Alice Agent", app.FullName)
	assert.Equal(t, models.ReviewPending, app.Status)
	assert.Equal(t, "alice@example.com", app.UserEmail)
	assert.Nil(t, app.ReviewedAt)
	assert.Equal(t, app.ID, hooked)

	mine, err := svc.ListFor(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestSubmitMissingFields(t *testing.T) {
	svc := newService(t)

	form := validForm()
	form.Occupation = "  "
	form.Country = ""
	_, err := svc.Submit(context.Background(), applicant, form)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	assert.ErrorContains(t, err, "country, occupation")
}

func TestReview(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	first, err := svc.Submit(ctx, applicant, validForm())
	require.NoError(t, err)
	second, err := svc.Submit(ctx, applicant, validForm())
	require.NoError(t, err)

	approved, err := svc.Review(ctx, first.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewApproved, approved.Status)
	require.NotNil(t, approved.ReviewedAt)

	rejected, err := svc.Review(ctx, second.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewRejected, rejected.Status)

	_, err = svc.Review(ctx, first.ID, false)
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = svc.Review(ctx, "app-missing", true)
	assert.ErrorIs(t, err, models.ErrNotFound)

	agents, err := svc.Approved(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, first.ID, agents[0].ID)

	pending, err := svc.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "newest first")
}
