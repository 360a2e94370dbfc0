package wallet

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
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var depositMethods = map[string]bool{"card": true, "bank": true, "crypto": true}

// transferable lists the wallets that can be withdrawn or sent to another user.
var transferable = map[string]bool{"USDC": true, "BTC": true, "ETH": true}

type Service struct {
	users  *store.Collection[models.User]
	txs    *store.Collection[models.Transaction]
	prices PriceSource
	log    *zap.Logger
	now    func() time.Time

	onWithdrawal  func(models.User, models.Transaction)
	onUserChanged func(models.User)
}

func NewService(users *store.Collection[models.User], txs *store.Collection[models.Transaction], prices PriceSource, log *zap.Logger) *Service {
	return &Service{
		users:  users,
		txs:    txs,
		prices: prices,
		log:    logging.OrNop(log),
		now:    time.Now,
	}
}

// SetCallbacks registers hooks fired after a withdrawal request or any balance change.
func (s *Service) SetCallbacks(onWithdrawal func(models.User, models.Transaction), onUserChanged func(models.User)) {
	s.onWithdrawal = onWithdrawal
	s.onUserChanged = onUserChanged
}

type Holding struct {
	Code     string          `json:"code"`
	Symbol   string          `json:"symbol"`
	Name     string          `json:"name"`
	Icon     string          `json:"icon"`
	Balance  decimal.Decimal `json:"balance"`
	Price    decimal.Decimal `json:"price"`
	USDValue decimal.Decimal `json:"usdValue"`
}

type Portfolio struct {
	UserID   string          `json:"userId"`
	Holdings []Holding       `json:"holdings"`
	Total    decimal.Decimal `json:"total"`
	Tier     Tier            `json:"tier"`
	Limits   Limits          `json:"limits"`
}

// Portfolio values every wallet of the user in USD and fills in how much of
// today's display limits the user has used.
func (s *Service) Portfolio(ctx context.Context, userID string) (*Portfolio, error) {
	var (
		u   models.User
		txs []models.Transaction
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		u, err = s.findUser(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		txs, err = s.txs.List(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	p := &Portfolio{
		UserID: u.ID,
		Total:  decimal.Zero,
		Tier:   TierFor(u.Tier),
		Limits: DisplayLimits(),
	}
	for _, a := range assets {
		bal := u.Wallets.Balance(a.Code)
		price := s.price(a)
		value := bal.Mul(price).Round(2)
		p.Holdings = append(p.Holdings, Holding{
			Code:     a.Code,
			Symbol:   a.Symbol,
			Name:     a.Name,
			Icon:     a.Icon,
			Balance:  bal,
			Price:    price,
			USDValue: value,
		})
		p.Total = p.Total.Add(value)
	}
	p.Limits.DepositUsedToday, p.Limits.WithdrawnUsedToday = s.usedToday(txs, u.ID)
	return p, nil
}

// usedToday sums the user's deposits and withdrawals since UTC midnight, in USD.
func (s *Service) usedToday(txs []models.Transaction, userID string) (deposited, withdrawn decimal.Decimal) {
	midnight := s.now().UTC().Truncate(24 * time.Hour)
	deposited, withdrawn = decimal.Zero, decimal.Zero
	for _, tx := range txs {
		if tx.UserID != userID || tx.CreatedAt.Before(midnight) {
			continue
		}
		usd := tx.Amount
		if a, ok := assetByCode(tx.Currency); ok {
			usd = tx.Amount.Mul(s.price(a))
		}
		switch tx.Type {
		case models.TxDeposit:
			deposited = deposited.Add(usd)
		case models.TxWithdrawal:
			withdrawn = withdrawn.Add(usd)
		}
	}
	return deposited.Round(2), withdrawn.Round(2)
}

func (s *Service) price(a Asset) decimal.Decimal {
	if s.prices != nil && a.Symbol != "USD" && a.Symbol != "USDC" {
		if q, ok := s.prices.Quote(a.Symbol); ok && q.IsPositive() {
			return q
		}
	}
	return a.Reference
}

// Deposit simulates a card, bank or crypto payment that lands in the USD wallet.
func (s *Service) Deposit(ctx context.Context, userID string, amount decimal.Decimal, method string) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: please enter a valid amount", models.ErrInvalidInput)
	}
	method = strings.ToLower(strings.TrimSpace(method))
	if method == "" {
		method = "card"
	}
	if !depositMethods[method] {
		return nil, fmt.Errorf("%w: unsupported payment method %q", models.ErrInvalidInput, method)
	}

	u, err := s.mutateUsers(ctx, func(users []models.User) ([]models.User, error) {
		i, err := indexOf(users, userID)
		if err != nil {
			return nil, err
		}
		users[i].Wallets = users[i].Wallets.Clone()
		users[i].Wallets["USDC"] = users[i].Wallets.Balance("USDC").Add(amount)
		return users, nil
	}, userID)
	if err != nil {
		return nil, err
	}

	tx := s.newTx(u.ID, models.TxDeposit, "USDC", amount, decimal.Zero)
	tx.Method = method
	tx.Status = models.TxCompleted
	if err := s.record(ctx, tx); err != nil {
		return nil, err
	}
	s.log.Info("💰 Deposit completed", zap.String("user", u.ID), zap.String("amount", amount.String()), zap.String("method", method))
	return &tx, nil
}

// Withdraw debits the requested amount and files a pending withdrawal net of the network fee.
func (s *Service) Withdraw(ctx context.Context, userID, currency string, amount decimal.Decimal, method, address string) (*models.Transaction, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	rule, ok := withdrawalRules[currency]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported currency %q", models.ErrInvalidInput, currency)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: please enter a valid amount", models.ErrInvalidInput)
	}
	if amount.LessThan(rule.min) {
		return nil, fmt.Errorf("%w: minimum withdrawal is %s %s", models.ErrInvalidInput, rule.min, currency)
	}
	address = strings.TrimSpace(address)
	method = strings.ToLower(strings.TrimSpace(method))
	if method == "" {
		method = "bank"
	}
	if method == "crypto" && address == "" {
		return nil, fmt.Errorf("%w: a %s address is required", models.ErrInvalidInput, currency)
	}

	u, err := s.mutateUsers(ctx, func(users []models.User) ([]models.User, error) {
		i, err := indexOf(users, userID)
		if err != nil {
			return nil, err
		}
		bal := users[i].Wallets.Balance(currency)
		if amount.GreaterThan(bal) {
			return nil, fmt.Errorf("%w: insufficient balance: %s %s available", models.ErrInvalidInput, bal, currency)
		}
		users[i].Wallets = users[i].Wallets.Clone()
		users[i].Wallets[currency] = bal.Sub(amount)
		return users, nil
	}, userID)
	if err != nil {
		return nil, err
	}

	tx := s.newTx(u.ID, models.TxWithdrawal, currency, amount, rule.fee)
	tx.Method = method
	tx.Address = address
	tx.Status = models.TxPending
	if err := s.record(ctx, tx); err != nil {
		return nil, err
	}
	s.log.Info("🏧 Withdrawal requested", zap.String("user", u.ID), zap.String("amount", amount.String()), zap.String("currency", currency))
	if s.onWithdrawal != nil {
		s.onWithdrawal(u, tx)
	}
	return &tx, nil
}

// Transfer moves funds between two users instantly and without fees.
// Recipient is an email address or a user id.
func (s *Service) Transfer(ctx context.Context, fromID, recipient, currency string, amount decimal.Decimal) (*models.Transaction, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	recipient = strings.TrimSpace(recipient)
	if !transferable[currency] {
		return nil, fmt.Errorf("%w: unsupported currency %q", models.ErrInvalidInput, currency)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: please enter a valid amount", models.ErrInvalidInput)
	}
	if recipient == "" {
		return nil, fmt.Errorf("%w: please enter a recipient", models.ErrInvalidInput)
	}

	var sender, receiver models.User
	_, err := s.users.Update(ctx, func(users []models.User) ([]models.User, error) {
		si, err := indexOf(users, fromID)
		if err != nil {
			return nil, err
		}
		ri := -1
		for i, u := range users {
			if u.ID == recipient || strings.EqualFold(u.Email, recipient) {
				ri = i
				break
			}
		}
		if ri < 0 {
			return nil, fmt.Errorf("%w: recipient %s", models.ErrNotFound, recipient)
		}
		if ri == si {
			return nil, fmt.Errorf("%w: cannot transfer to yourself", models.ErrInvalidInput)
		}
		if users[ri].EffectiveStatus() == models.StatusSuspended {
			return nil, fmt.Errorf("%w: recipient account is suspended", models.ErrForbidden)
		}

		bal := users[si].Wallets.Balance(currency)
		if amount.GreaterThan(bal) {
			return nil, fmt.Errorf("%w: insufficient balance: %s %s available", models.ErrInvalidInput, bal, currency)
		}
		users[si].Wallets = users[si].Wallets.Clone()
		users[si].Wallets[currency] = bal.Sub(amount)
		users[ri].Wallets = users[ri].Wallets.Clone()
		users[ri].Wallets[currency] = users[ri].Wallets.Balance(currency).Add(amount)

		sender, receiver = users[si], users[ri]
		return users, nil
	})
	if err != nil {
		return nil, err
	}
	s.changed(sender)
	s.changed(receiver)

	out := s.newTx(sender.ID, models.TxTransferOut, currency, amount, decimal.Zero)
	out.Counterparty = receiver.Email
	out.Status = models.TxCompleted
	in := s.newTx(receiver.ID, models.TxTransferIn, currency, amount, decimal.Zero)
	in.Counterparty = sender.Email
	in.Status = models.TxCompleted
	in.CreatedAt = out.CreatedAt

	if err := s.record(ctx, out, in); err != nil {
		return nil, err
	}
	s.log.Info("🔁 Transfer completed",
		zap.String("from", sender.ID), zap.String("to", receiver.ID),
		zap.String("amount", amount.String()), zap.String("currency", currency))
	return &out, nil
}

// History returns the user's transactions, newest first. An empty type matches all.
func (s *Service) History(ctx context.Context, userID string, typ models.TransactionType) ([]models.Transaction, error) {
	all, err := s.txs.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Transaction, 0)
	for _, tx := range all {
		if tx.UserID != userID {
			continue
		}
		if typ != "" && tx.Type != typ {
			continue
		}
		out = append(out, tx)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Service) findUser(ctx context.Context, userID string) (models.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return models.User{}, err
	}
	i, err := indexOf(users, userID)
	if err != nil {
		return models.User{}, err
	}
	return users[i], nil
}

// mutateUsers applies fn to the users bin and returns the stored copy of userID.
func (s *Service) mutateUsers(ctx context.Context, fn func([]models.User) ([]models.User, error), userID string) (models.User, error) {
	users, err := s.users.Update(ctx, fn)
	if err != nil {
		return models.User{}, err
	}
	i, err := indexOf(users, userID)
	if err != nil {
		return models.User{}, err
	}
	s.changed(users[i])
	return users[i], nil
}

func (s *Service) changed(u models.User) {
	if s.onUserChanged != nil {
		s.onUserChanged(u)
	}
}

// record appends transactions. Balances were already written, so a failure here
// leaves the balance change without a history entry.
func (s *Service) record(ctx context.Context, txs ...models.Transaction) error {
	_, err := s.txs.Update(ctx, func(all []models.Transaction) ([]models.Transaction, error) {
		return append(all, txs...), nil
	})
	if err != nil {
		s.log.Error("⚠️ Failed to record transaction", zap.Error(err))
		return fmt.Errorf("record transaction: %w", err)
	}
	return nil
}

func (s *Service) newTx(userID string, typ models.TransactionType, currency string, amount, fee decimal.Decimal) models.Transaction {
	return models.Transaction{
		ID:        "tx-" + uuid.NewString(),
		UserID:    userID,
		Type:      typ,
		Currency:  currency,
		Amount:    amount,
		Fee:       fee,
		Net:       amount.Sub(fee),
		CreatedAt: s.now().UTC(),
	}
}

func indexOf(users []models.User, id string) (int, error) {
	for i, u := range users {
		if u.ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: user %s", models.ErrNotFound, id)
}
