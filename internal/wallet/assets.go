package wallet

import "github.com/shopspring/decimal"

// Asset describes one wallet slot. Code is the key inside User.Wallets.
type Asset struct {
	Code      string          `json:"code"`
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name"`
	Icon      string          `json:"icon"`
	Reference decimal.Decimal `json:"referencePrice"` // USD price used when no live quote exists
}

// The "USDC" wallet holds the account's dollar balance and is displayed as USD.
// The token balance lives under USDC_TOKEN.
var assets = []Asset{
	{"USDC", "USD", "US Dollar", "💵", decimal.NewFromInt(1)},
	{"BTC", "BTC", "Bitcoin", "₿", decimal.NewFromInt(65000)},
	{"ETH", "ETH", "Ethereum", "Ξ", decimal.NewFromInt(3200)},
	{"BCH", "BCH", "Bitcoin Cash", "🪙", decimal.NewFromInt(400)},
	{"BNB", "BNB", "Binance Coin", "🟡", decimal.NewFromInt(600)},
	{"USDC_TOKEN", "USDC", "USD Coin", "🔵", decimal.NewFromInt(1)},
}

func Assets() []Asset {
	out := make([]Asset, len(assets))
	copy(out, assets)
	return out
}

func assetByCode(code string) (Asset, bool) {
	for _, a := range assets {
		if a.Code == code {
			return a, true
		}
	}
	return Asset{}, false
}

// PriceSource quotes an asset in USD. Symbol is the trading symbol, e.g. "BTC".
type PriceSource interface {
	Quote(symbol string) (decimal.Decimal, bool)
}

type withdrawalRule struct {
	min decimal.Decimal
	fee decimal.Decimal
}

var withdrawalRules = map[string]withdrawalRule{
	"USDC": {decimal.NewFromInt(10), decimal.RequireFromString("0.50")},
	"BTC":  {decimal.RequireFromString("0.001"), decimal.RequireFromString("0.0005")},
	"ETH":  {decimal.RequireFromString("0.01"), decimal.RequireFromString("0.002")},
}
