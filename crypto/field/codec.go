// Package field converts order material (tickers, sides, amounts, addresses,
// salts) into canonical elements of the BN254 scalar field. Every conversion
// is pure and total over well-formed input; the encodings are protocol
// constants shared with the proving circuit.
package field

import (
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

// Element is a BN254 scalar field element.
type Element = fr.Element

// MicrosPerUSDC is the fixed-point scale of USDC amounts (6 decimals).
const MicrosPerUSDC = 1_000_000

// AddressLength is the byte length of a decoded base58 account address.
const AddressLength = 32

// ErrBadInput is returned for syntactically malformed input.
var ErrBadInput = errors.New("bad input")

// FromTicker packs the UTF-8 bytes of a market ticker MSB-first into a big
// integer and reduces it into the field.
func FromTicker(ticker string) (Element, error) {
	var e Element
	if ticker == "" {
		return e, errors.Wrap(ErrBadInput, "empty ticker")
	}
	v := new(big.Int).SetBytes([]byte(ticker))
	e.SetBigInt(v)
	return e, nil
}

// FromSide encodes YES as 1 and NO as 0.
func FromSide(yes bool) Element {
	var e Element
	if yes {
		e.SetOne()
	}
	return e
}

// FromAmountMicros encodes a micro-USDC amount.
func FromAmountMicros(micros uint64) Element {
	var e Element
	e.SetUint64(micros)
	return e
}

// FromAddress decodes a base58 account address to its fixed 32-byte
// big-endian integer representation reduced into the field.
func FromAddress(addr string) (Element, error) {
	var e Element
	raw, err := base58.Decode(addr)
	if err != nil {
		return e, errors.Wrapf(ErrBadInput, "address %q is not base58", addr)
	}
	if len(raw) != AddressLength {
		return e, errors.Wrapf(ErrBadInput, "address %q decodes to %d bytes, want %d", addr, len(raw), AddressLength)
	}
	e.SetBytes(raw)
	return e, nil
}

// ValidAddress reports whether addr is a syntactically valid base58 account
// address.
func ValidAddress(addr string) bool {
	_, err := FromAddress(addr)
	return err == nil
}

// FromSalt parses a client-supplied salt. Decimal strings and 0x-prefixed hex
// strings are accepted; the value is reduced into the field.
func FromSalt(s string) (Element, error) {
	var e Element
	s = strings.TrimSpace(s)
	if s == "" {
		return e, errors.Wrap(ErrBadInput, "empty salt")
	}
	base := 10
	digits := s
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		digits = s[2:]
	}
	v, ok := new(big.Int).SetString(digits, base)
	if !ok || v.Sign() < 0 {
		return e, errors.Wrapf(ErrBadInput, "salt %q is not a non-negative integer", s)
	}
	e.SetBigInt(v)
	return e, nil
}

// RandomSalt draws a uniformly random field element from crypto/rand.
func RandomSalt() (Element, error) {
	var e Element
	if _, err := e.SetRandom(); err != nil {
		return e, errors.Wrap(err, "could not sample salt")
	}
	return e, nil
}

// ParseAmount parses a positive decimal USDC amount with at most 6 fractional
// digits into micro-units.
func ParseAmount(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.Wrap(ErrBadInput, "empty amount")
	}
	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" && frac == "" {
		return 0, errors.Wrapf(ErrBadInput, "amount %q is not a decimal", s)
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 6 {
		return 0, errors.Wrapf(ErrBadInput, "amount %q has more than 6 decimal places", s)
	}
	if !isDigits(whole) || (frac != "" && !isDigits(frac)) {
		return 0, errors.Wrapf(ErrBadInput, "amount %q is not a decimal", s)
	}
	// Right-pad the fractional part to micro-units.
	for len(frac) < 6 {
		frac += "0"
	}
	v, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok || !v.IsUint64() {
		return 0, errors.Wrapf(ErrBadInput, "amount %q out of range", s)
	}
	micros := v.Uint64()
	if micros == 0 {
		return 0, errors.Wrapf(ErrBadInput, "amount %q is not positive", s)
	}
	return micros, nil
}

// FormatAmount renders micro-units as a decimal USDC string with 6 places.
func FormatAmount(micros uint64) string {
	whole := micros / MicrosPerUSDC
	frac := micros % MicrosPerUSDC
	return strings.TrimRight(strings.TrimRight(
		bigUint(whole)+"."+padFrac(frac), "0"), ".")
}

func bigUint(v uint64) string {
	return new(big.Int).SetUint64(v).String()
}

func padFrac(v uint64) string {
	s := new(big.Int).SetUint64(v).String()
	for len(s) < 6 {
		s = "0" + s
	}
	return s
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Hex renders an element as a 0x-prefixed 32-byte big-endian hex string.
func Hex(e Element) string {
	b := e.Bytes()
	return "0x" + hex.EncodeToString(b[:])
}

// FromHex parses an element previously rendered with Hex.
func FromHex(s string) (Element, error) {
	var e Element
	if !strings.HasPrefix(s, "0x") || len(s) != 2+2*fr.Bytes {
		return e, errors.Wrapf(ErrBadInput, "malformed element %q", s)
	}
	raw, err := hex.DecodeString(s[2:])
	if err != nil {
		return e, errors.Wrapf(ErrBadInput, "malformed element %q", s)
	}
	e.SetBytes(raw)
	return e, nil
}
