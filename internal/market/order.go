package market

import (
	"fmt"
	"strings"
	"time"

	"prime_pips/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type OrderInput struct {
	Pair   string          `json:"pair"`
	Side   Side            `json:"side"`
	Amount decimal.Decimal `json:"amount"`
	Price  decimal.Decimal `json:"price"`
}

// Order is an executed paper trade. Balances are never touched.
type Order struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Pair      string          `json:"pair"`
	Side      Side            `json:"side"`
	Amount    decimal.Decimal `json:"amount"`
	Price     decimal.Decimal `json:"price"`
	Total     decimal.Decimal `json:"total"`
	Summary   string          `json:"summary"`
	CreatedAt time.Time       `json:"createdAt"`
}

func (f *Feed) PlaceOrder(user models.User, in OrderInput) (*Order, error) {
	side := Side(strings.ToLower(strings.TrimSpace(string(in.Side))))
	if in.Pair == "" || side == "" || in.Amount.IsZero() || in.Price.IsZero() {
		return nil, fmt.Errorf("%w: please fill in all fields", models.ErrInvalidInput)
	}
	if !in.Amount.IsPositive() || !in.Price.IsPositive() {
		return nil, fmt.Errorf("%w: amount and price must be positive", models.ErrInvalidInput)
	}
	if side != SideBuy && side != SideSell {
		return nil, fmt.Errorf("%w: unknown side %q", models.ErrInvalidInput, in.Side)
	}
	t, ok := f.ticker(strings.TrimSpace(in.Pair))
	if !ok {
		return nil, fmt.Errorf("%w: unknown pair %q", models.ErrInvalidInput, in.Pair)
	}

	total := in.Amount.Mul(in.Price)
	o := &Order{
		ID:        "ord-" + uuid.NewString(),
		UserID:    user.ID,
		Pair:      t.Pair,
		Side:      side,
		Amount:    in.Amount,
		Price:     in.Price,
		Total:     total,
		CreatedAt: time.Now().UTC(),
	}
	o.Summary = fmt.Sprintf("%s order for %s %s at $%s (Total: $%s)",
		strings.ToUpper(string(side)), in.Amount, t.Base, in.Price, total.StringFixed(2))

	f.log.Info("🧮 Trade executed", zap.String("user", user.ID), zap.String("pair", t.Pair),
		zap.String("side", string(side)), zap.String("total", total.StringFixed(2)))
	return o, nil
}
