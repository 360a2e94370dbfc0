// Package notify stores admin-authored platform notifications.
package notify

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

type Input struct {
	Message     string                  `json:"message"`
	Type        models.NotificationType `json:"type"`
	Priority    models.Priority         `json:"priority"`
	TargetUsers []string                `json:"targetUsers"`
}

type Stats struct {
	Total    int `json:"total"`
	Public   int `json:"public"`
	Specific int `json:"specific"`
	High     int `json:"highPriority"`
}

type Service struct {
	notes    *store.Collection[models.Notification]
	log      *zap.Logger
	now      func() time.Time
	onCreate func(models.Notification)
}

func NewService(notes *store.Collection[models.Notification], log *zap.Logger) *Service {
	return &Service{notes: notes, log: logging.OrNop(log), now: time.Now}
}

// OnCreate registers a hook fired after a notification is stored.
func (s *Service) OnCreate(fn func(models.Notification)) {
	s.onCreate = fn
}

func (s *Service) Create(ctx context.Context, actor models.User, in Input) (*models.Notification, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: admin only", models.ErrForbidden)
	}
	msg := strings.TrimSpace(in.Message)
	if msg == "" {
		return nil, fmt.Errorf("%w: message is required", models.ErrInvalidInput)
	}
	if in.Type == "" {
		in.Type = models.NotificationPublic
	}
	if in.Priority == "" {
		in.Priority = models.PriorityNormal
	}
	if in.Priority != models.PriorityNormal && in.Priority != models.PriorityHigh {
		return nil, fmt.Errorf("%w: unknown priority %q", models.ErrInvalidInput, in.Priority)
	}

	var targets []string
	switch in.Type {
	case models.NotificationPublic:
	case models.NotificationSpecific:
		for _, id := range in.TargetUsers {
			if id = strings.TrimSpace(id); id != "" {
				targets = append(targets, id)
			}
		}
		if len(targets) == 0 {
			return nil, fmt.Errorf("%w: select at least one user", models.ErrInvalidInput)
		}
	default:
		return nil, fmt.Errorf("%w: unknown notification type %q", models.ErrInvalidInput, in.Type)
	}

	n := models.Notification{
		ID:          "notif-" + uuid.NewString(),
		Message:     msg,
		Type:        in.Type,
		Priority:    in.Priority,
		TargetUsers: targets,
		CreatedBy:   actor.ID,
		CreatedAt:   s.now().UTC(),
	}
	if _, err := s.notes.Update(ctx, func(all []models.Notification) ([]models.Notification, error) {
		return append(all, n), nil
	}); err != nil {
		return nil, err
	}

	s.log.Info("📣 Notification created", zap.String("id", n.ID), zap.String("type", string(n.Type)), zap.Int("targets", len(targets)))
	if s.onCreate != nil {
		s.onCreate(n)
	}
	return &n, nil
}

func (s *Service) Delete(ctx context.Context, actor models.User, id string) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("%w: admin only", models.ErrForbidden)
	}
	_, err := s.notes.Update(ctx, func(all []models.Notification) ([]models.Notification, error) {
		for i, n := range all {
			if n.ID == id {
				return append(all[:i], all[i+1:]...), nil
			}
		}
		return nil, fmt.Errorf("%w: notification %s", models.ErrNotFound, id)
	})
	return err
}

// Visible returns what viewer may see, newest first.
func (s *Service) Visible(ctx context.Context, viewer models.User) ([]models.Notification, error) {
	all, err := s.notes.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Notification, 0, len(all))
	for _, n := range all {
		if viewer.IsAdmin() || n.VisibleTo(viewer.ID) {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// MarkRead sets the stored isRead flag. The flag is shared by every reader of the notification.
func (s *Service) MarkRead(ctx context.Context, viewer models.User, id string) error {
	_, err := s.notes.Update(ctx, func(all []models.Notification) ([]models.Notification, error) {
		for i := range all {
			if all[i].ID != id {
				continue
			}
			if !viewer.IsAdmin() && !all[i].VisibleTo(viewer.ID) {
				break
			}
			all[i].IsRead = true
			return all, nil
		}
		return nil, fmt.Errorf("%w: notification %s", models.ErrNotFound, id)
	})
	return err
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	all, err := s.notes.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Summarize(all), nil
}

func Summarize(all []models.Notification) Stats {
	st := Stats{Total: len(all)}
	for _, n := range all {
		switch n.Type {
		case models.NotificationPublic:
			st.Public++
		case models.NotificationSpecific:
			st.Specific++
		}
		if n.Priority == models.PriorityHigh {
			st.High++
		}
	}
	return st
}
