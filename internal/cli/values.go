package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/erlorenz/go-prefs/prefs"
)

// typeList names every value type for help texts.
func typeList() string {
	names := make([]string, 0, len(prefs.Types()))
	for _, t := range prefs.Types() {
		names = append(names, t.String())
	}
	return strings.Join(names, ", ")
}

// parseValue converts command line text to the Go value prefs stores for t.
// A string set takes any number of args; every other type takes one.
func parseValue(t prefs.Type, args []string) (any, error) {
	if t == prefs.TypeStringSet {
		return args, nil
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("a %s value takes exactly one argument, got %d", t, len(args))
	}

	s := args[0]
	switch t {
	case prefs.TypeString:
		return s, nil
	case prefs.TypeInt:
		return strconv.Atoi(s)
	case prefs.TypeInt64:
		return strconv.ParseInt(s, 10, 64)
	case prefs.TypeFloat:
		f, err := strconv.ParseFloat(s, 32)
		return float32(f), err
	case prefs.TypeBool:
		return strconv.ParseBool(s)
	}
	return nil, fmt.Errorf("unsupported type %s", t)
}

// splitDefault turns a --default flag into parseValue arguments. String
// set defaults are comma separated.
func splitDefault(t prefs.Type, s string) []string {
	if t != prefs.TypeStringSet {
		return []string{s}
	}
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}

// formatValue renders a decoded value for text output.
func formatValue(v any) string {
	if set, ok := v.([]string); ok {
		return strings.Join(set, ",")
	}
	return fmt.Sprint(v)
}
