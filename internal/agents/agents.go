// Package agents runs the "become an agent" application workflow.
package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"prime_pips/internal/logging"
	"prime_pips/internal/models"
	"prime_pips/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Form is what an applicant fills in.
type Form struct {
	FullName       string `json:"fullName"`
	Gender         string `json:"gender"`
	Occupation     string `json:"occupation"`
	ActiveHours    string `json:"activeHours"`
	Location       string `json:"location"`
	Country        string `json:"country"`
	PhoneNumber    string `json:"phoneNumber"`
	WhatsappNumber string `json:"whatsappNumber"`
	Email          string `json:"email"`
	Experience     string `json:"experience"`
	Motivation     string `json:"motivation"`
}

func (f Form) trimmed() Form {
	return Form{
		FullName:       strings.TrimSpace(f.FullName),
		Gender:         strings.TrimSpace(f.Gender),
		Occupation:     strings.TrimSpace(f.Occupation),
		ActiveHours:    strings.TrimSpace(f.ActiveHours),
		Location:       strings.TrimSpace(f.Location),
		Country:        strings.TrimSpace(f.Country),
		PhoneNumber:    strings.TrimSpace(f.PhoneNumber),
		WhatsappNumber: strings.TrimSpace(f.WhatsappNumber),
		Email:          strings.TrimSpace(f.Email),
		Experience:     strings.TrimSpace(f.Experience),
		Motivation:     strings.TrimSpace(f.Motivation),
	}
}

func (f Form) validate() error {
	var missing []string
	for name, v := range map[string]string{
		"fullName":    f.FullName,
		"occupation":  f.Occupation,
		"email":       f.Email,
		"phoneNumber": f.PhoneNumber,
		"country":     f.Country,
	} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: missing %s", models.ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}

type Service struct {
	apps     *store.Collection[models.AgentApplication]
	log      *zap.Logger
	now      func() time.Time
	onSubmit func(models.AgentApplication)
}

func NewService(apps *store.Collection[models.AgentApplication], log *zap.Logger) *Service {
	return &Service{apps: apps, log: logging.OrNop(log), now: time.Now}
}

// OnSubmit registers a hook fired after each new application is stored.
func (s *Service) OnSubmit(fn func(models.AgentApplication)) {
	s.onSubmit = fn
}

func (s *Service) Submit(ctx context.Context, applicant models.User, form Form) (*models.AgentApplication, error) {
	form = form.trimmed()
	if err := form.validate(); err != nil {
		return nil, err
	}

	app := models.AgentApplication{
		ID:             "app-" + uuid.NewString(),
		UserID:         applicant.ID,
		UserEmail:      applicant.Email,
		FullName:       form.FullName,
		Gender:         form.Gender,
		Occupation:     form.Occupation,
		ActiveHours:    form.ActiveHours,
		Location:       form.Location,
		Country:        form.Country,
		PhoneNumber:    form.PhoneNumber,
		WhatsappNumber: form.WhatsappNumber,
		Email:          form.Email,
		Experience:     form.Experience,
		Motivation:     form.Motivation,
		Status:         models.ReviewPending,
		SubmittedAt:    s.now().UTC(),
	}

	_, err := s.apps.Update(ctx, func(apps []models.AgentApplication) ([]models.AgentApplication, error) {
		return append(apps, app), nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("📝 Agent application submitted", zap.String("id", app.ID), zap.String("user", app.UserID))
	if s.onSubmit != nil {
		s.onSubmit(app)
	}
	return &app, nil
}

// List returns every application, newest first.
func (s *Service) List(ctx context.Context) ([]models.AgentApplication, error) {
	return s.filter(ctx, func(models.AgentApplication) bool { return true })
}

func (s *Service) ListFor(ctx context.Context, userID string) ([]models.AgentApplication, error) {
	return s.filter(ctx, func(a models.AgentApplication) bool { return a.UserID == userID })
}

func (s *Service) Pending(ctx context.Context) ([]models.AgentApplication, error) {
	return s.filter(ctx, func(a models.AgentApplication) bool { return a.Status == models.ReviewPending })
}

// Approved lists the platform's agents.
func (s *Service) Approved(ctx context.Context) ([]models.AgentApplication, error) {
	return s.filter(ctx, func(a models.AgentApplication) bool { return a.Status == models.ReviewApproved })
}

func (s *Service) filter(ctx context.Context, keep func(models.AgentApplication) bool) ([]models.AgentApplication, error) {
	apps, err := s.apps.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.AgentApplication, 0, len(apps))
	for _, a := range apps {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out, nil
}

// Review approves or rejects a pending application.
func (s *Service) Review(ctx context.Context, id string, approve bool) (*models.AgentApplication, error) {
	status := models.ReviewRejected
	if approve {
		status = models.ReviewApproved
	}

	var out models.AgentApplication
	_, err := s.apps.Update(ctx, func(apps []models.AgentApplication) ([]models.AgentApplication, error) {
		for i := range apps {
			if apps[i].ID != id {
				continue
			}
			if apps[i].Status != models.ReviewPending {
				return nil, fmt.Errorf("%w: application already %s", models.ErrConflict, apps[i].Status)
			}
			now := s.now().UTC()
			apps[i].Status = status
			apps[i].ReviewedAt = &now
			out = apps[i]
			return apps, nil
		}
		return nil, fmt.Errorf("%w: application %s", models.ErrNotFound, id)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("🧾 Agent application reviewed", zap.String("id", id), zap.String("status", string(status)))
	return &out, nil
}
