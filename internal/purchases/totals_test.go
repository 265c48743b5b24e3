package purchases

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestPriceLineAppliesDiscountBeforeTax(t *testing.T) {
	line := priceLine(OrderLine{
		Qty:         d("3"),
		UnitPrice:   d("10.50"),
		DiscountPct: d("10"),
	}, d("20"))

	require.True(t, line.Net.Equal(d("28.35")), "net %s", line.Net)
	require.True(t, line.Tax.Equal(d("5.67")), "tax %s", line.Tax)
	require.True(t, line.Gross.Equal(d("34.02")), "gross %s", line.Gross)
}

func TestPriceLineRoundsHalfCents(t *testing.T) {
	line := priceLine(OrderLine{
		Qty:       d("1"),
		UnitPrice: d("0.125"),
	}, d("20"))

	require.True(t, line.Net.Equal(d("0.13")), "net %s", line.Net)
	require.True(t, line.Tax.Equal(d("0.03")), "tax %s", line.Tax)
	require.True(t, line.Gross.Equal(d("0.16")), "gross %s", line.Gross)
}

func TestOrderTotalsSumRoundedLines(t *testing.T) {
	lines := []OrderLine{
		priceLine(OrderLine{Qty: d("2"), UnitPrice: d("1.005")}, d("20")),
		priceLine(OrderLine{Qty: d("1"), UnitPrice: d("99.99")}, d("9")),
	}
	net, tax, gross := orderTotals(lines)

	require.True(t, net.Equal(lines[0].Net.Add(lines[1].Net)))
	require.True(t, tax.Equal(lines[0].Tax.Add(lines[1].Tax)))
	require.True(t, gross.Equal(net.Add(tax)))
}

func TestRequestTotalUsesEstimatedPrices(t *testing.T) {
	total := requestTotal([]RequestLine{
		{Qty: d("10"), EstUnitPrice: d("2.333")},
		{Qty: d("1"), EstUnitPrice: d("0.50")},
	})
	require.True(t, total.Equal(d("23.83")), "total %s", total)
}

func TestVarianceIsReceivedMinusOrdered(t *testing.T) {
	line := DeliveryLine{OrderedQty: d("10"), ReceivedQty: d("8.5")}
	require.True(t, variance(line).Equal(d("-1.5")))
}
