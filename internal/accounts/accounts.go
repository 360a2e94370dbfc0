// Package accounts manages the bank account details users submit for settlement.
package accounts

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
	AccountNumber string `json:"accountNumber"`
	BankUserName  string `json:"bankUserName"`
	BankName      string `json:"bankName"`
}

func (in Input) normalize() (Input, error) {
	in = Input{
		AccountNumber: strings.TrimSpace(in.AccountNumber),
		BankUserName:  strings.TrimSpace(in.BankUserName),
		BankName:      strings.TrimSpace(in.BankName),
	}
	if in.AccountNumber == "" || in.BankUserName == "" || in.BankName == "" {
		return in, fmt.Errorf("%w: account number, account name and bank name are required", models.ErrInvalidInput)
	}
	return in, nil
}

type Service struct {
	accounts *store.Collection[models.AccountDetail]
	log      *zap.Logger
	now      func() time.Time
}

func NewService(accounts *store.Collection[models.AccountDetail], log *zap.Logger) *Service {
	return &Service{accounts: accounts, log: logging.OrNop(log), now: time.Now}
}

// Create stores a new account. Accounts added by an admin skip review.
func (s *Service) Create(ctx context.Context, actor models.User, in Input) (*models.AccountDetail, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}
	acc := models.AccountDetail{
		ID:            "acc-" + uuid.NewString(),
		AccountNumber: in.AccountNumber,
		BankUserName:  in.BankUserName,
		BankName:      in.BankName,
		Status:        models.ReviewPending,
		CreatedBy:     actor.ID,
		CreatedAt:     s.now().UTC(),
	}
	if actor.IsAdmin() {
		acc.Status = models.ReviewApproved
		approved := acc.CreatedAt
		acc.ApprovedAt = &approved
	}

	if _, err := s.accounts.Update(ctx, func(all []models.AccountDetail) ([]models.AccountDetail, error) {
		return append(all, acc), nil
	}); err != nil {
		return nil, err
	}
	s.log.Info("🏦 Account details added", zap.String("id", acc.ID), zap.String("by", actor.ID), zap.String("status", string(acc.Status)))
	return &acc, nil
}

func (s *Service) Update(ctx context.Context, actor models.User, id string, in Input) (*models.AccountDetail, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}
	return s.modify(ctx, id, func(acc *models.AccountDetail) error {
		if err := canEdit(actor, *acc); err != nil {
			return err
		}
		now := s.now().UTC()
		acc.AccountNumber = in.AccountNumber
		acc.BankUserName = in.BankUserName
		acc.BankName = in.BankName
		acc.UpdatedAt = &now
		return nil
	})
}

func (s *Service) Delete(ctx context.Context, actor models.User, id string) error {
	_, err := s.accounts.Update(ctx, func(all []models.AccountDetail) ([]models.AccountDetail, error) {
		for i, acc := range all {
			if acc.ID != id {
				continue
			}
			if err := canEdit(actor, acc); err != nil {
				return nil, err
			}
			return append(all[:i], all[i+1:]...), nil
		}
		return nil, fmt.Errorf("%w: account %s", models.ErrNotFound, id)
	})
	if err == nil {
		s.log.Info("🗑️ Account details deleted", zap.String("id", id), zap.String("by", actor.ID))
	}
	return err
}

func (s *Service) Approve(ctx context.Context, actor models.User, id string) (*models.AccountDetail, error) {
	return s.review(ctx, actor, id, models.ReviewApproved)
}

func (s *Service) Reject(ctx context.Context, actor models.User, id string) (*models.AccountDetail, error) {
	return s.review(ctx, actor, id, models.ReviewRejected)
}

func (s *Service) review(ctx context.Context, actor models.User, id string, status models.ReviewStatus) (*models.AccountDetail, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: admin only", models.ErrForbidden)
	}
	return s.modify(ctx, id, func(acc *models.AccountDetail) error {
		acc.Status = status
		if status == models.ReviewApproved {
			now := s.now().UTC()
			acc.ApprovedAt = &now
		}
		return nil
	})
}

// List returns every account to admins and the actor's own accounts to everyone else.
func (s *Service) List(ctx context.Context, actor models.User) ([]models.AccountDetail, error) {
	return s.filter(ctx, func(a models.AccountDetail) bool {
		return actor.IsAdmin() || a.CreatedBy == actor.ID
	})
}

// Approved lists the accounts users may deposit to.
func (s *Service) Approved(ctx context.Context) ([]models.AccountDetail, error) {
	return s.filter(ctx, func(a models.AccountDetail) bool { return a.Status == models.ReviewApproved })
}

func (s *Service) filter(ctx context.Context, keep func(models.AccountDetail) bool) ([]models.AccountDetail, error) {
	all, err := s.accounts.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.AccountDetail, 0, len(all))
	for _, a := range all {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Service) modify(ctx context.Context, id string, fn func(*models.AccountDetail) error) (*models.AccountDetail, error) {
	var out models.AccountDetail
	_, err := s.accounts.Update(ctx, func(all []models.AccountDetail) ([]models.AccountDetail, error) {
		for i := range all {
			if all[i].ID != id {
				continue
			}
			if err := fn(&all[i]); err != nil {
				return nil, err
			}
			out = all[i]
			return all, nil
		}
		return nil, fmt.Errorf("%w: account %s", models.ErrNotFound, id)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func canEdit(actor models.User, acc models.AccountDetail) error {
	if actor.IsAdmin() || acc.CreatedBy == actor.ID {
		return nil
	}
	return fmt.Errorf("%w: not your account", models.ErrForbidden)
}
