package prefs

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/erlorenz/go-prefs/internal/casing"
)

// Type tags the logical type of a preference value. The zero Type never
// names a value; EncodeError and DecodeError use it for key transforms.
type Type uint8

const (
	TypeString Type = iota + 1
	TypeInt
	TypeInt64
	TypeFloat
	TypeBool
	TypeStringSet
)

var typeNames = [...]string{
	TypeString:    "string",
	TypeInt:       "int",
	TypeInt64:     "int64",
	TypeFloat:     "float",
	TypeBool:      "bool",
	TypeStringSet: "string-set",
}

// Types lists every value type in declaration order.
func Types() []Type {
	return []Type{TypeString, TypeInt, TypeInt64, TypeFloat, TypeBool, TypeStringSet}
}

func (t Type) String() string {
	if t.valid() {
		return typeNames[t]
	}
	if t == 0 {
		return "key"
	}
	return "Type(" + strconv.Itoa(int(t)) + ")"
}

func (t Type) valid() bool {
	return t >= TypeString && t <= TypeStringSet
}

// ParseType is the inverse of Type.String. It is case-insensitive and also
// accepts Go-style names such as "StringSet" and underscores.
func ParseType(s string) (Type, error) {
	name := casing.ToKebab(strings.TrimSpace(s))
	for _, t := range Types() {
		if typeNames[t] == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("prefs: unknown type %q", s)
}

// format renders v as the canonical text for t. It returns ErrTypeMismatch
// when the Go type of v does not fit t.
func (t Type) format(v any) (string, error) {
	switch t {
	case TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case TypeInt:
		var n int64
		switch x := v.(type) {
		case int:
			n = int64(x)
		case int32:
			n = int64(x)
		default:
			return "", mismatch(t, v)
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return "", fmt.Errorf("value %d overflows int32", n)
		}
		return strconv.FormatInt(n, 10), nil
	case TypeInt64:
		switch x := v.(type) {
		case int64:
			return strconv.FormatInt(x, 10), nil
		case int:
			return strconv.FormatInt(int64(x), 10), nil
		}
	case TypeFloat:
		switch x := v.(type) {
		case float32:
			return strconv.FormatFloat(float64(x), 'g', -1, 32), nil
		case float64:
			return strconv.FormatFloat(float64(float32(x)), 'g', -1, 32), nil
		}
	case TypeBool:
		if b, ok := v.(bool); ok {
			return strconv.FormatBool(b), nil
		}
	case TypeStringSet:
		return "", fmt.Errorf("string sets have no scalar form")
	}
	return "", mismatch(t, v)
}

// parse converts canonical text back to the Go value for t.
func (t Type) parse(s string) (any, error) {
	switch t {
	case TypeString:
		return s, nil
	case TypeInt:
		n, err := strconv.ParseInt(s, 10, 32)
		return int(n), err
	case TypeInt64:
		return strconv.ParseInt(s, 10, 64)
	case TypeFloat:
		f, err := strconv.ParseFloat(s, 32)
		return float32(f), err
	case TypeBool:
		return strconv.ParseBool(s)
	}
	return nil, fmt.Errorf("no scalar form for %s", t)
}

// accepts reports whether v can serve as a default for t.
func (t Type) accepts(v any) bool {
	switch v.(type) {
	case string:
		return t == TypeString
	case int:
		return t == TypeInt
	case int64:
		return t == TypeInt64
	case float32:
		return t == TypeFloat
	case bool:
		return t == TypeBool
	case []string:
		return t == TypeStringSet
	}
	return false
}

func mismatch(t Type, v any) error {
	return fmt.Errorf("%w: %T for %s", ErrTypeMismatch, v, t)
}

// normalizeSet sorts and deduplicates set elements.
func normalizeSet(set []string) []string {
	out := slices.Clone(set)
	slices.Sort(out)
	return slices.Compact(out)
}

func packSet(elems []string) (string, error) {
	if elems == nil {
		elems = []string{}
	}
	b, err := json.Marshal(elems)
	return string(b), err
}

func unpackSet(s string) ([]string, error) {
	var elems []string
	if err := json.Unmarshal([]byte(s), &elems); err != nil {
		return nil, fmt.Errorf("not a string set: %w", err)
	}
	if elems == nil {
		return nil, fmt.Errorf("not a string set: null")
	}
	return elems, nil
}
