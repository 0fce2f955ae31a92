package dtype

import (
	"math/big"

	"github.com/crustylabs/crustydb/internal/dberr"
)

// Decimal is a fixed-point number: value == Mantissa / 10^Scale. This is a
// deliberate departure from the teacher's internal/storage/decimal.go,
// which promotes everything to *big.Rat — spec.md §3 calls for a literal
// 64-bit-mantissa/32-bit-scale wire encoding, so there is no bignum type to
// store. math/big is used below only as scratch space to avoid int64
// overflow during intermediate multiply/divide steps; the stored and
// returned representation is always the fixed-width Decimal.
type Decimal struct {
	Mantissa int64
	Scale    int32
}

func pow10(n int32) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// rescale converts m at fromScale into the equivalent mantissa at toScale.
func rescale(m int64, fromScale, toScale int32) *big.Int {
	bm := big.NewInt(m)
	if toScale == fromScale {
		return bm
	}
	if toScale > fromScale {
		return new(big.Int).Mul(bm, pow10(toScale-fromScale))
	}
	return new(big.Int).Div(bm, pow10(fromScale-toScale))
}

func maxScale(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}

// DecimalAdd returns a+b, reconciled to the larger of the two scales.
func DecimalAdd(a, b Decimal) (Decimal, error) {
	s := maxScale(a.Scale, b.Scale)
	sum := new(big.Int).Add(rescale(a.Mantissa, a.Scale, s), rescale(b.Mantissa, b.Scale, s))
	return fromBig(sum, s)
}

// DecimalSub returns a-b, reconciled to the larger of the two scales.
func DecimalSub(a, b Decimal) (Decimal, error) {
	s := maxScale(a.Scale, b.Scale)
	diff := new(big.Int).Sub(rescale(a.Mantissa, a.Scale, s), rescale(b.Mantissa, b.Scale, s))
	return fromBig(diff, s)
}

// DecimalMul returns a*b with result scale = max(a.Scale, b.Scale), per
// spec.md §4.5's literal rule (not the scale-sum a general decimal
// multiply would use).
func DecimalMul(a, b Decimal) (Decimal, error) {
	s := maxScale(a.Scale, b.Scale)
	ra := rescale(a.Mantissa, a.Scale, s)
	rb := rescale(b.Mantissa, b.Scale, s)
	prod := new(big.Int).Mul(ra, rb)
	prod.Div(prod, pow10(s))
	return fromBig(prod, s)
}

// DecimalDiv returns a/b with the quotient carrying max(a.Scale, b.Scale)
// fractional digits. Division by zero is a failure.
func DecimalDiv(a, b Decimal) (Decimal, error) {
	if b.Mantissa == 0 {
		return Decimal{}, dberr.New(dberr.KindExecution, "division by zero")
	}
	s := maxScale(a.Scale, b.Scale)
	ra := rescale(a.Mantissa, a.Scale, s)
	rb := rescale(b.Mantissa, b.Scale, s)
	numerator := new(big.Int).Mul(ra, pow10(s))
	quotient := new(big.Int).Quo(numerator, rb)
	return fromBig(quotient, s)
}

// DecimalCompare orders a and b, reconciling scales first.
func DecimalCompare(a, b Decimal) int {
	s := maxScale(a.Scale, b.Scale)
	ra := rescale(a.Mantissa, a.Scale, s)
	rb := rescale(b.Mantissa, b.Scale, s)
	return ra.Cmp(rb)
}

// IntToDecimal promotes an integer to a decimal at the given target scale,
// matching spec.md's "integer with decimal promotes to decimal with the
// decimal's scale" rule.
func IntToDecimal(i int64, targetScale int32) Decimal {
	m := rescale(i, 0, targetScale)
	return Decimal{Mantissa: m.Int64(), Scale: targetScale}
}

// DecimalRescale converts d to an equivalent Decimal at targetScale,
// used to align a parsed literal's inferred scale with its destination
// column's declared scale on INSERT.
func DecimalRescale(d Decimal, targetScale int32) (Decimal, error) {
	return fromBig(rescale(d.Mantissa, d.Scale, targetScale), targetScale)
}

func fromBig(v *big.Int, scale int32) (Decimal, error) {
	if !v.IsInt64() {
		return Decimal{}, dberr.New(dberr.KindExecution, "decimal overflow")
	}
	return Decimal{Mantissa: v.Int64(), Scale: scale}, nil
}
