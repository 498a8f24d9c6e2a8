package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestRoundPriceDown(t *testing.T) {
	assert.True(t, RoundPriceDown(d("10.12345"), 2).Equal(d("10.12")))
}

func TestRoundPriceUp(t *testing.T) {
	assert.True(t, RoundPriceUp(d("10.12345"), 2).Equal(d("10.13")))
	assert.True(t, RoundPriceUp(d("10.12"), 2).Equal(d("10.12")))
}

func TestRoundToTickBuySell(t *testing.T) {
	tick := d("0.5")
	assert.True(t, RoundToTick(d("10.7"), tick, SideBuy).Equal(d("10.5")))
	assert.True(t, RoundToTick(d("10.7"), tick, SideSell).Equal(d("11.0")))
}

func TestClamp(t *testing.T) {
	assert.True(t, Clamp(d("5"), d("1"), d("3")).Equal(d("3")))
	assert.True(t, Clamp(d("0"), d("1"), d("3")).Equal(d("1")))
	assert.True(t, Clamp(d("2"), d("1"), d("3")).Equal(d("2")))
}

func TestBasisPoints(t *testing.T) {
	assert.True(t, BasisPoints(25).Equal(d("0.0025")))
}
