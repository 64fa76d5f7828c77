// Package felt implements the field element used for every on-chain value the
// controller handles: addresses, entrypoint selectors, calldata, nonces and
// signatures.
//
// A Felt is an element of the Stark field, P = 2^251 + 17*2^192 + 1. It wraps
// gnark-crypto's fp.Element, so values are always reduced and two Felts holding
// the same value compare equal with == and can be used as map keys.
package felt

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Prime is the modulus of the field.
var Prime = fp.Modulus()

// Felt is a Stark field element.
type Felt fp.Element

var (
	// Zero is the additive identity.
	Zero = Felt{}
	// One is the multiplicative identity.
	One = FromUint64(1)
)

var (
	// ErrOutOfRange is returned when a value is negative or not below Prime.
	ErrOutOfRange = errors.New("value out of field range")
	// ErrInvalidShortString is returned for strings that cannot be packed into one felt.
	ErrInvalidShortString = errors.New("invalid short string")
)

// ConversionError reports a failed conversion into a Felt.
type ConversionError struct {
	Input string
	Err   error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("felt conversion of %q failed: %v", e.Input, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// FromElement wraps a field element.
func FromElement(e fp.Element) Felt {
	return Felt(e)
}

// FromUint64 converts a uint64 into a Felt.
func FromUint64(v uint64) Felt {
	return Felt(fp.NewElement(v))
}

// FromBig converts a big integer into a Felt, rejecting values outside [0, Prime).
func FromBig(v *big.Int) (Felt, error) {
	if v == nil || v.Sign() < 0 || v.Cmp(Prime) >= 0 {
		return Zero, &ConversionError{Input: fmt.Sprint(v), Err: ErrOutOfRange}
	}
	var e fp.Element
	e.SetBigInt(v)
	return Felt(e), nil
}

// FromBytes interprets b as a big-endian integer.
func FromBytes(b []byte) (Felt, error) {
	if len(b) > fp.Bytes {
		return Zero, &ConversionError{Input: hexutil.Encode(b), Err: ErrOutOfRange}
	}
	var buf [fp.Bytes]byte
	copy(buf[fp.Bytes-len(b):], b)
	e, err := fp.BigEndian.Element(&buf)
	if err != nil {
		return Zero, &ConversionError{Input: hexutil.Encode(b), Err: ErrOutOfRange}
	}
	return Felt(e), nil
}

// FromHex parses a hex string with or without the 0x prefix. Leading zeros are accepted.
func FromHex(s string) (Felt, error) {
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if digits == "" {
		return Zero, &ConversionError{Input: s, Err: errors.New("empty hex string")}
	}
	v, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return Zero, &ConversionError{Input: s, Err: errors.New("invalid hex digits")}
	}
	f, err := FromBig(v)
	if err != nil {
		return Zero, &ConversionError{Input: s, Err: ErrOutOfRange}
	}
	return f, nil
}

// FromString parses a 0x-prefixed hex string or a decimal string.
func FromString(s string) (Felt, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return FromHex(s)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Zero, &ConversionError{Input: s, Err: errors.New("expected 0x hex or decimal")}
	}
	f, err := FromBig(v)
	if err != nil {
		return Zero, &ConversionError{Input: s, Err: ErrOutOfRange}
	}
	return f, nil
}

// MustFromHex is FromHex for constants; it panics on invalid input.
func MustFromHex(s string) Felt {
	f, err := FromHex(s)
	if err != nil {
		panic(err)
	}
	return f
}

// ShortString packs an ASCII string of at most 31 characters into a Felt.
func ShortString(s string) (Felt, error) {
	if len(s) > 31 {
		return Zero, &ConversionError{Input: s, Err: fmt.Errorf("%w: longer than 31 characters", ErrInvalidShortString)}
	}
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7f {
			return Zero, &ConversionError{Input: s, Err: fmt.Errorf("%w: non-ASCII character", ErrInvalidShortString)}
		}
	}
	return FromBytes([]byte(s))
}

// MustShortString is ShortString for constants.
func MustShortString(s string) Felt {
	f, err := ShortString(s)
	if err != nil {
		panic(err)
	}
	return f
}

// Element returns the underlying field element.
func (f Felt) Element() fp.Element {
	return fp.Element(f)
}

// Big returns the value as a new big integer.
func (f Felt) Big() *big.Int {
	e := fp.Element(f)
	return e.BigInt(new(big.Int))
}

// Bytes returns the 32-byte big-endian encoding.
func (f Felt) Bytes() []byte {
	e := fp.Element(f)
	b := e.Bytes()
	return b[:]
}

// Uint64 returns the value as a uint64 and whether it fits.
func (f Felt) Uint64() (uint64, bool) {
	e := fp.Element(f)
	if !e.IsUint64() {
		return 0, false
	}
	return e.Uint64(), true
}

// IsZero reports whether f is zero.
func (f Felt) IsZero() bool {
	return f == Zero
}

// Cmp compares f and g as integers.
func (f Felt) Cmp(g Felt) int {
	a, b := fp.Element(f), fp.Element(g)
	return a.Cmp(&b)
}

// String returns the minimal 0x-prefixed hex form.
func (f Felt) String() string {
	return hexutil.EncodeBig(f.Big())
}

// MarshalText implements encoding.TextMarshaler.
func (f Felt) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Felt) UnmarshalText(text []byte) error {
	v, err := FromString(string(text))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

var u128Mask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// SplitU256 splits a 256-bit integer into its low and high 128-bit halves.
func SplitU256(v *big.Int) (low, high Felt) {
	var lo, hi fp.Element
	lo.SetBigInt(new(big.Int).And(v, u128Mask))
	hi.SetBigInt(new(big.Int).Rsh(v, 128))
	return Felt(lo), Felt(hi)
}

// JoinU256 is the inverse of SplitU256.
func JoinU256(low, high Felt) *big.Int {
	v := high.Big()
	v.Lsh(v, 128)
	return v.Or(v, low.Big())
}
