package purchases

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// requestTotal sums qty * estimated price over the lines, rounded to
// two places.
func requestTotal(lines []RequestLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Qty.Mul(line.EstUnitPrice))
	}
	return total.Round(2)
}

// priceLine fills the computed amounts on an order line: net after
// discount, tax at the group rate, gross. Amounts round half-up to
// two places per line so the header totals are exact sums.
func priceLine(line OrderLine, taxRate decimal.Decimal) OrderLine {
	gross := line.Qty.Mul(line.UnitPrice)
	if line.DiscountPct.IsPositive() {
		gross = gross.Mul(hundred.Sub(line.DiscountPct)).Div(hundred)
	}
	line.Net = gross.Round(2)
	line.Tax = line.Net.Mul(taxRate).Div(hundred).Round(2)
	line.Gross = line.Net.Add(line.Tax)
	return line
}

// orderTotals sums priced lines into header totals.
func orderTotals(lines []OrderLine) (net, tax, gross decimal.Decimal) {
	net, tax, gross = decimal.Zero, decimal.Zero, decimal.Zero
	for _, line := range lines {
		net = net.Add(line.Net)
		tax = tax.Add(line.Tax)
		gross = gross.Add(line.Gross)
	}
	return net, tax, gross
}

// variance is received minus ordered.
func variance(line DeliveryLine) decimal.Decimal {
	return line.ReceivedQty.Sub(line.OrderedQty)
}
