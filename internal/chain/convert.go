package chain

import (
	"math/big"

	"github.com/shopspring/decimal"
	"github.com/trustlend/trustlend/internal/settings"
)

const ethDecimals = 6

var usdPerETH = decimal.NewFromInt(settings.USDToETHRate)

// USDToETH converts a USD amount to ETH at the fixed rate, rounded to six
// decimal places.
func USDToETH(usd float64) decimal.Decimal {
	return decimal.NewFromFloat(usd).Div(usdPerETH).Round(ethDecimals)
}

// ToWei converts an ETH amount to wei.
func ToWei(eth decimal.Decimal) *big.Int {
	return eth.Shift(18).Truncate(0).BigInt()
}
