// Package messages keeps each user's support inbox.
package messages

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

const day = 24 * time.Hour

type welcome struct {
	sender  string
	subject string
	content string
	age     time.Duration
	read    bool
	typ     models.MessageType
}

// Seeded into an inbox the first time it is opened.
var welcomes = []welcome{
	{
		sender:  "Support Team",
		subject: "Welcome to Prime Pips Exchange!",
		content: "Welcome to Prime Pips Exchange! We're excited to have you on board. Your account has been successfully created with a $100 USDC welcome bonus. If you have any questions, feel free to reach out to our support team.",
		age:     day,
		typ:     models.MessageSystem,
	},
	{
		sender:  "Security Team",
		subject: "Account Security Notice",
		content: "For your security, we recommend enabling two-factor authentication (2FA) on your account. This adds an extra layer of protection to keep your funds safe.",
		age:     2 * day,
		read:    true,
		typ:     models.MessageSecurity,
	},
	{
		sender:  "Trading Team",
		subject: "New Trading Pairs Available",
		content: "We've added new trading pairs to our platform! You can now trade SOL/USDT, ADA/USDT, and many more. Check out the trading room to explore these new opportunities.",
		age:     3 * day,
		read:    true,
		typ:     models.MessageAnnouncement,
	},
}

// Entry is a message as the inbox shows it, with its relative age.
type Entry struct {
	models.Message
	Age string `json:"age"`
}

type Inbox struct {
	Messages []Entry `json:"messages"`
	Unread   int     `json:"unread"`
}

type Service struct {
	msgs *store.Collection[models.Message]
	log  *zap.Logger
	now  func() time.Time
}

func NewService(msgs *store.Collection[models.Message], log *zap.Logger) *Service {
	return &Service{msgs: msgs, log: logging.OrNop(log), now: time.Now}
}

// Inbox returns the user's messages, newest first, seeding the welcome set on first access.
func (s *Service) Inbox(ctx context.Context, user models.User) (*Inbox, error) {
	all, err := s.msgs.List(ctx)
	if err != nil {
		return nil, err
	}
	if !hasAny(all, user.ID) {
		all, err = s.msgs.Update(ctx, func(current []models.Message) ([]models.Message, error) {
			if hasAny(current, user.ID) {
				return current, nil
			}
			return append(current, s.seed(user.ID)...), nil
		})
		if err != nil {
			return nil, err
		}
		s.log.Debug("📬 Inbox seeded", zap.String("user", user.ID))
	}

	now := s.now()
	box := &Inbox{Messages: []Entry{}}
	for _, m := range all {
		if m.UserID != user.ID {
			continue
		}
		box.Messages = append(box.Messages, Entry{Message: m, Age: Age(m.Timestamp, now)})
		if !m.Read {
			box.Unread++
		}
	}
	sort.SliceStable(box.Messages, func(i, j int) bool {
		return box.Messages[i].Timestamp.After(box.Messages[j].Timestamp)
	})
	return box, nil
}

func (s *Service) seed(userID string) []models.Message {
	now := s.now().UTC()
	out := make([]models.Message, 0, len(welcomes))
	for _, w := range welcomes {
		out = append(out, models.Message{
			ID:        "msg-" + uuid.NewString(),
			UserID:    userID,
			Sender:    w.sender,
			Subject:   w.subject,
			Content:   w.content,
			Timestamp: now.Add(-w.age),
			Read:      w.read,
			Type:      w.typ,
		})
	}
	return out
}

// Open marks a message read and returns it.
func (s *Service) Open(ctx context.Context, user models.User, id string) (*models.Message, error) {
	var out models.Message
	_, err := s.msgs.Update(ctx, func(all []models.Message) ([]models.Message, error) {
		for i := range all {
			if all[i].ID == id && all[i].UserID == user.ID {
				all[i].Read = true
				out = all[i]
				return all, nil
			}
		}
		return nil, fmt.Errorf("%w: message %s", models.ErrNotFound, id)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Send files a support request from the user. A user writing before ever
// opening the inbox still gets the welcome set.
func (s *Service) Send(ctx context.Context, user models.User, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: message is empty", models.ErrInvalidInput)
	}
	m := models.Message{
		ID:        "msg-" + uuid.NewString(),
		UserID:    user.ID,
		Sender:    strings.TrimSpace(user.FirstName + " " + user.LastName),
		Subject:   "Support Request",
		Content:   content,
		Timestamp: s.now().UTC(),
		Read:      true,
		Type:      models.MessageUser,
	}
	if _, err := s.msgs.Update(ctx, func(all []models.Message) ([]models.Message, error) {
		if !hasAny(all, user.ID) {
			all = append(all, s.seed(user.ID)...)
		}
		return append(all, m), nil
	}); err != nil {
		return nil, err
	}
	s.log.Info("✉️ Support request sent", zap.String("user", user.ID), zap.String("id", m.ID))
	return &m, nil
}

// Age renders how long ago t was, in whole days or hours.
func Age(t, now time.Time) string {
	d := now.Sub(t)
	hours := int(d / time.Hour)
	days := hours / 24
	switch {
	case days > 0:
		return plural(days, "day")
	case hours > 0:
		return plural(hours, "hour")
	default:
		return "Just now"
	}
}

func plural(n int, unit string) string {
	if n > 1 {
		unit += "s"
	}
	return fmt.Sprintf("%d %s ago", n, unit)
}

func hasAny(all []models.Message, userID string) bool {
	for _, m := range all {
		if m.UserID == userID {
			return true
		}
	}
	return false
}
