package telegram

import (
	"testing"
	"time"

	"prime_pips/internal/models"
	"prime_pips/internal/users"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatStats(t *testing.T) {
	msg := formatStats(users.Stats{
		Total: 12, Active: 10, Suspended: 2, Admins: 1,
		TotalUSD: decimal.RequireFromString("15234.5"),
	}, 90*time.Minute, time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC))

	assert.Contains(t, msg, "👥 Users: 12")
	assert.Contains(t, msg, "⛔ Suspended: 2")
	assert.Contains(t, msg, "$15234.50")
	assert.Contains(t, msg, "1h 30m")
	assert.Contains(t, msg, "09:30:00")
}

func TestFormatApplicationEscapesMarkdown(t *testing.T) {
	msg := formatApplication(models.AgentApplication{
		FullName:    "john_doe *star*",
		Occupation:  "Trader",
		Country:     "Kenya",
		PhoneNumber: "+254 700 000000",
		Email:       "john_doe@example.com",
		Status:      models.ReviewPending,
		SubmittedAt: time.Date(2026, 2, 3, 4, 5, 0, 0, time.UTC),
	})

	assert.Contains(t, msg, `john\_doe \*star\*`)
	assert.Contains(t, msg, "⏳ pending")
	assert.Contains(t, msg, "🌍 Kenya\n")
	assert.NotContains(t, msg, "WhatsApp")
	assert.Contains(t, msg, "2026-02-03 04:05")
}

func TestFormatWithdrawal(t *testing.T) {
	msg := formatWithdrawal(
		models.User{FirstName: "Alice", LastName: "Smith", Email: "alice@example.com"},
		models.Transaction{
			Currency: "BTC",
			Amount:   decimal.RequireFromString("0.01"),
			Fee:      decimal.RequireFromString("0.0005"),
			Net:      decimal.RequireFromString("0.0095"),
			Method:   "crypto",
			Address:  "bc1qxyz",
		})

	assert.Contains(t, msg, "Alice Smith")
	assert.Contains(t, msg, "💰 0.01 BTC")
	assert.Contains(t, msg, "📤 Net: 0.0095 BTC")
	assert.Contains(t, msg, "crypto → bc1qxyz")
}

func TestReviewMarkup(t *testing.T) {
	m := reviewMarkup("app-1")
	require.Len(t, m.InlineKeyboard, 1)
	require.Len(t, m.InlineKeyboard[0], 2)
	assert.Equal(t, "approve_app", m.InlineKeyboard[0][0].Unique)
	assert.Equal(t, "app-1", m.InlineKeyboard[0][0].Data)
	assert.Equal(t, "reject_app", m.InlineKeyboard[0][1].Unique)
}

func TestNilBotIsSafe(t *testing.T) {
	var b *Bot
	assert.NotPanics(t, func() {
		b.NotifyApplication(models.AgentApplication{ID: "app-1"})
		b.NotifyWithdrawal(models.User{}, models.Transaction{})
		b.Start()
		b.Stop()
	})
}
