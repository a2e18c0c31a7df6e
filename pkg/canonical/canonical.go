// Package canonical produces the deterministic byte form that document
// checksums are computed over.
//
// Wire contract:
//   - object keys sorted ascending by UTF-8 byte order, at every depth,
//     including objects nested inside arrays
//   - array element order is preserved
//   - no insignificant whitespace; separators are ',' and ':'
//   - strings escape only '"', '\\' and control characters below 0x20
//     (\b \f \n \r \t short forms, \u00xx otherwise); all other code points
//     are emitted as raw UTF-8
//   - numbers use the ECMAScript shortest round-trip form (1, 1.5, 1e+21),
//     except that integers below 1e21 keep every digit of their source text
//   - the checksum is SHA3-256 over those bytes, rendered as lowercase hex
package canonical

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"math"
	"math/big"
	"slices"
	"strconv"
	"unicode/utf8"
)

var errNotFinite = errors.New("number is not finite")

// EncodeJSON re-encodes raw JSON text into canonical form.
func EncodeJSON(input []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(input))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("invalid JSON: trailing data")
	}

	var e encoder
	if err := e.value(value); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

// Encode returns the canonical form of an in-memory value. Values outside the
// JSON data model go through encoding/json first.
func Encode(v any) ([]byte, error) {
	switch raw := v.(type) {
	case json.RawMessage:
		return EncodeJSON(raw)
	case []byte:
		return EncodeJSON(raw)
	}
	var e encoder
	if err := e.value(v); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

type encoder struct {
	bytes.Buffer
}

func (e *encoder) value(v any) error {
	switch x := v.(type) {
	case nil:
		e.WriteString("null")
	case bool:
		e.WriteString(strconv.FormatBool(x))
	case string:
		e.str(x)
	case json.Number:
		return e.numberText(x.String())
	case map[string]any:
		return e.object(x)
	case []any:
		return e.array(x)
	default:
		if text, ok := integerText(v); ok {
			e.WriteString(text)
			return nil
		}
		if f, ok := asFloat(v); ok {
			return e.number(f)
		}
		// typed containers ([]string, map[string]string, structs) take
		// the encoding/json detour
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("unsupported JSON type %T: %w", v, err)
		}
		out, err := EncodeJSON(b)
		if err != nil {
			return err
		}
		e.Write(out)
	}
	return nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

func integerText(v any) (string, bool) {
	switch n := v.(type) {
	case int:
		return strconv.FormatInt(int64(n), 10), true
	case int8:
		return strconv.FormatInt(int64(n), 10), true
	case int16:
		return strconv.FormatInt(int64(n), 10), true
	case int32:
		return strconv.FormatInt(int64(n), 10), true
	case int64:
		return strconv.FormatInt(n, 10), true
	case uint:
		return strconv.FormatUint(uint64(n), 10), true
	case uint8:
		return strconv.FormatUint(uint64(n), 10), true
	case uint16:
		return strconv.FormatUint(uint64(n), 10), true
	case uint32:
		return strconv.FormatUint(uint64(n), 10), true
	case uint64:
		return strconv.FormatUint(n, 10), true
	}
	return "", false
}

// exactIntegerLimit is where ECMAScript switches integers to exponent form.
var exactIntegerLimit = new(big.Float).SetFloat64(1e21)

// numberText writes a decoded JSON number. Integral values below 1e21 keep
// every digit; anything else takes the float64 spelling.
func (e *encoder) numberText(text string) error {
	exact, _, err := big.ParseFloat(text, 10, 256, big.ToNearestEven)
	if err != nil {
		return fmt.Errorf("invalid JSON number %q: %w", text, err)
	}
	if exact.IsInt() && new(big.Float).Abs(exact).Cmp(exactIntegerLimit) < 0 {
		i, _ := exact.Int(nil)
		e.WriteString(i.String())
		return nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return fmt.Errorf("invalid JSON number %q: %w", text, err)
	}
	return e.number(f)
}

func (e *encoder) object(obj map[string]any) error {
	e.WriteByte('{')
	for i, k := range slices.Sorted(maps.Keys(obj)) {
		if i > 0 {
			e.WriteByte(',')
		}
		e.str(k)
		e.WriteByte(':')
		if err := e.value(obj[k]); err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
	}
	e.WriteByte('}')
	return nil
}

func (e *encoder) array(items []any) error {
	e.WriteByte('[')
	for i, item := range items {
		if i > 0 {
			e.WriteByte(',')
		}
		if err := e.value(item); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}
	e.WriteByte(']')
	return nil
}

var shortEscapes = map[byte]string{
	'"':  `\"`,
	'\\': `\\`,
	'\b': `\b`,
	'\f': `\f`,
	'\n': `\n`,
	'\r': `\r`,
	'\t': `\t`,
}

const hexDigits = "0123456789abcdef"

// str writes s as a JSON string. Invalid UTF-8 is replaced with U+FFFD.
func (e *encoder) str(s string) {
	e.WriteByte('"')
	for i := 0; i < len(s); {
		c := s[i]
		if c >= utf8.RuneSelf {
			r, size := utf8.DecodeRuneInString(s[i:])
			e.WriteRune(r)
			i += size
			continue
		}
		if esc, ok := shortEscapes[c]; ok {
			e.WriteString(esc)
		} else if c < 0x20 {
			e.WriteString(`\u00`)
			e.WriteByte(hexDigits[c>>4])
			e.WriteByte(hexDigits[c&0xf])
		} else {
			e.WriteByte(c)
		}
		i++
	}
	e.WriteByte('"')
}

// number writes f in the ECMAScript Number.prototype.toString form.
func (e *encoder) number(f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return errNotFinite
	}
	if f == 0 {
		e.WriteByte('0')
		return nil
	}
	if f < 0 {
		e.WriteByte('-')
		f = -f
	}

	// shortest round-trip digits d1d2...dn and decimal exponent n such that
	// f = 0.d1d2...dn * 10^n
	sci := strconv.AppendFloat(nil, f, 'e', -1, 64)
	mark := bytes.IndexByte(sci, 'e')
	exp, err := strconv.Atoi(string(sci[mark+1:]))
	if err != nil {
		return fmt.Errorf("format %v: %w", f, err)
	}
	digits := make([]byte, 0, mark)
	for _, c := range sci[:mark] {
		if c != '.' {
			digits = append(digits, c)
		}
	}
	n := exp + 1
	k := len(digits)

	switch {
	case k <= n && n <= 21:
		e.Write(digits)
		for ; k < n; k++ {
			e.WriteByte('0')
		}
	case 0 < n && n <= 21:
		e.Write(digits[:n])
		e.WriteByte('.')
		e.Write(digits[n:])
	case -6 < n && n <= 0:
		e.WriteString("0.")
		for i := n; i < 0; i++ {
			e.WriteByte('0')
		}
		e.Write(digits)
	default:
		e.WriteByte(digits[0])
		if k > 1 {
			e.WriteByte('.')
			e.Write(digits[1:])
		}
		e.WriteByte('e')
		if n-1 > 0 {
			e.WriteByte('+')
		}
		e.WriteString(strconv.Itoa(n - 1))
	}
	return nil
}
