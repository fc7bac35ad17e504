package domain

import (
	"github.com/shopspring/decimal"
)

const satsPerBtc = 100_000_000

var (
	centsPerUsd = decimal.NewFromInt(100)
	satsPerBtcD = decimal.NewFromInt(satsPerBtc)
)

// UsdCents is a non-negative USD amount in cents.
type UsdCents int64

// NewUsdCents validates that v is non-negative.
func NewUsdCents(v int64) (UsdCents, error) {
	if v < 0 {
		return 0, ErrNegativeAmount
	}
	return UsdCents(v), nil
}

// UsdCentsFromUsd converts a USD decimal to cents, rounding away from zero.
func UsdCentsFromUsd(usd decimal.Decimal) (UsdCents, error) {
	cents := usd.Mul(centsPerUsd).RoundUp(0)
	if cents.IsNegative() {
		return 0, ErrNegativeAmount
	}
	return UsdCents(cents.IntPart()), nil
}

// ToUsd returns the amount as a USD decimal.
func (c UsdCents) ToUsd() decimal.Decimal {
	return decimal.NewFromInt(int64(c)).Div(centsPerUsd)
}

func (c UsdCents) Add(o UsdCents) UsdCents { return c + o }

// Sub subtracts o from c, failing instead of going negative.
func (c UsdCents) Sub(o UsdCents) (UsdCents, error) {
	if o > c {
		return 0, ErrNegativeAmount
	}
	return c - o, nil
}

func (c UsdCents) IsZero() bool { return c == 0 }

// MinUsdCents returns the smaller of a and b.
func MinUsdCents(a, b UsdCents) UsdCents {
	if a < b {
		return a
	}
	return b
}

// Satoshis is a non-negative BTC amount in satoshis.
type Satoshis int64

// NewSatoshis validates that v is non-negative.
func NewSatoshis(v int64) (Satoshis, error) {
	if v < 0 {
		return 0, ErrNegativeAmount
	}
	return Satoshis(v), nil
}

// SatoshisFromBtc converts a BTC decimal to satoshis, rounding away from zero.
func SatoshisFromBtc(btc decimal.Decimal) (Satoshis, error) {
	sats := btc.Mul(satsPerBtcD).RoundUp(0)
	if sats.IsNegative() {
		return 0, ErrNegativeAmount
	}
	return Satoshis(sats.IntPart()), nil
}

// ToBtc returns the amount as a BTC decimal.
func (s Satoshis) ToBtc() decimal.Decimal {
	return decimal.NewFromInt(int64(s)).Div(satsPerBtcD)
}

func (s Satoshis) IsZero() bool { return s == 0 }

// Sub returns the signed difference s - o.
func (s Satoshis) Sub(o Satoshis) SignedSatoshis {
	return SignedSatoshis(s) - SignedSatoshis(o)
}

// SignedSatoshis is a signed satoshi delta. It exists only for collateral
// diffing; convert back to Satoshis via Abs immediately after use.
type SignedSatoshis int64

func (s SignedSatoshis) IsNegative() bool { return s < 0 }
func (s SignedSatoshis) IsZero() bool     { return s == 0 }

// Abs returns the magnitude of the delta.
func (s SignedSatoshis) Abs() Satoshis {
	if s < 0 {
		return Satoshis(-s)
	}
	return Satoshis(s)
}

// PriceOfOneBTC is the BTC/USD price in cents per whole bitcoin.
type PriceOfOneBTC UsdCents

// NewPriceOfOneBTC validates that v is non-negative.
func NewPriceOfOneBTC(v int64) (PriceOfOneBTC, error) {
	cents, err := NewUsdCents(v)
	if err != nil {
		return 0, err
	}
	return PriceOfOneBTC(cents), nil
}

// CentsFromSats values sats at this price, rounding toward zero so collateral
// is never overvalued.
func (p PriceOfOneBTC) CentsFromSats(sats Satoshis) UsdCents {
	cents := decimal.NewFromInt(int64(p)).
		Mul(decimal.NewFromInt(int64(sats))).
		Div(satsPerBtcD).
		RoundDown(0)
	return UsdCents(cents.IntPart())
}
