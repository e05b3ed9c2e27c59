// Package decimal provides a fixed-point decimal type used anywhere the
// blockchain needs deterministic arithmetic over monetary values. Floats
// are never used: two nodes running the same binary on different hardware
// must derive the exact same hash, and IEEE-754 does not guarantee that
// across platforms the way fixed-point big.Int math does.
package decimal

import (
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"
)

// scale is the number of implied decimal digits carried by every Decimal.
// A value's unscaled big.Int is the value multiplied by 10^scale.
const scale = 18

var pow10 = new(big.Int).Exp(big.NewInt(10), big.NewInt(scale), nil)

// Decimal is an arbitrary precision, base-10 fixed-point number. The zero
// value is a valid representation of 0.
type Decimal struct {
	unscaled *big.Int
}

// Zero returns the additive identity.
func Zero() Decimal {
	return Decimal{unscaled: new(big.Int)}
}

// FromInt64 builds a Decimal representing a whole number.
func FromInt64(v int64) Decimal {
	return Decimal{unscaled: new(big.Int).Mul(big.NewInt(v), pow10)}
}

// Parse reads a canonical or non-canonical decimal string such as "1.50",
// "0", or "-3.2" and returns the corresponding Decimal.
func Parse(s string) (Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Decimal{}, fmt.Errorf("decimal: empty string")
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	intPart, fracPart, hasFrac := strings.Cut(s, ".")
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) > scale {
		return Decimal{}, fmt.Errorf("decimal: %q exceeds %d digits of precision", s, scale)
	}
	if hasFrac {
		fracPart = fracPart + strings.Repeat("0", scale-len(fracPart))
	} else {
		fracPart = strings.Repeat("0", scale)
	}

	unscaled, ok := new(big.Int).SetString(intPart+fracPart, 10)
	if !ok {
		return Decimal{}, fmt.Errorf("decimal: invalid number %q", s)
	}
	if neg {
		unscaled.Neg(unscaled)
	}

	return Decimal{unscaled: unscaled}, nil
}

// MustParse is Parse but panics on error. Intended for literals in tests
// and genesis configuration, never for untrusted input.
func MustParse(s string) Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Decimal) bigOrZero() *big.Int {
	if d.unscaled == nil {
		return new(big.Int)
	}
	return d.unscaled
}

// Add returns d + other.
func (d Decimal) Add(other Decimal) Decimal {
	return Decimal{unscaled: new(big.Int).Add(d.bigOrZero(), other.bigOrZero())}
}

// Sub returns d - other.
func (d Decimal) Sub(other Decimal) Decimal {
	return Decimal{unscaled: new(big.Int).Sub(d.bigOrZero(), other.bigOrZero())}
}

// MulFrac returns d * (num/den), truncating toward zero. Used for
// percentage operations such as the supermajority threshold.
func (d Decimal) MulFrac(num, den int64) Decimal {
	v := new(big.Int).Mul(d.bigOrZero(), big.NewInt(num))
	v.Quo(v, big.NewInt(den))
	return Decimal{unscaled: v}
}

// Mul returns d * other, truncating toward zero. Used for percentage
// operations expressed as a configured Decimal rather than a fixed
// integer fraction, such as the slash penalty rate.
func (d Decimal) Mul(other Decimal) Decimal {
	v := new(big.Int).Mul(d.bigOrZero(), other.bigOrZero())
	v.Quo(v, pow10)
	return Decimal{unscaled: v}
}

// Cmp returns -1, 0 or +1 comparing d to other, matching big.Int.Cmp.
func (d Decimal) Cmp(other Decimal) int {
	return d.bigOrZero().Cmp(other.bigOrZero())
}

// GreaterThan reports whether d > other.
func (d Decimal) GreaterThan(other Decimal) bool {
	return d.Cmp(other) > 0
}

// GreaterOrEqual reports whether d >= other.
func (d Decimal) GreaterOrEqual(other Decimal) bool {
	return d.Cmp(other) >= 0
}

// IsZero reports whether d is exactly zero.
func (d Decimal) IsZero() bool {
	return d.bigOrZero().Sign() == 0
}

// IsNegative reports whether d is strictly less than zero.
func (d Decimal) IsNegative() bool {
	return d.bigOrZero().Sign() < 0
}

// String renders the canonical form of d: no trailing fractional zeros, no
// trailing decimal point, and a leading "-" for negative values. This is
// the representation hashed by the codec, so it must be identical on every
// node for the same value.
func (d Decimal) String() string {
	u := d.bigOrZero()

	neg := u.Sign() < 0
	abs := new(big.Int).Abs(u)

	digits := abs.String()
	if len(digits) <= scale {
		digits = strings.Repeat("0", scale-len(digits)+1) + digits
	}

	intPart := digits[:len(digits)-scale]
	fracPart := strings.TrimRight(digits[len(digits)-scale:], "0")

	out := intPart
	if fracPart != "" {
		out += "." + fracPart
	}
	if neg && out != "0" {
		out = "-" + out
	}

	return out
}

// MarshalText implements encoding.TextMarshaler so Decimal can be embedded
// directly in JSON request/response payloads as a canonical string.
func (d Decimal) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Decimal) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// EncodeRLP implements rlp.Encoder, writing the canonical decimal string as
// an RLP string item. This is what makes Decimal-typed fields (Value, Fee,
// StakeAmount) hash deterministically instead of depending on in-memory
// big.Int representation.
func (d Decimal) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, []byte(d.String()))
}

// DecodeRLP implements rlp.Decoder.
func (d *Decimal) DecodeRLP(s *rlp.Stream) error {
	var b []byte
	if err := s.Decode(&b); err != nil {
		return err
	}
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}
