package condition

import (
	"math"
	"strconv"
	"strings"
)

type undefinedValue struct{}

// Undefined is the value of a dotted lookup that does not resolve, and of
// the literal "undefined". It compares loosely equal to nil only.
var Undefined = undefinedValue{} //nolint:gochecknoglobals

type operand struct {
	literal any
	ref     string
	isRef   bool
}

func parseOperand(token string) operand {
	if len(token) >= 2 {
		first, last := token[0], token[len(token)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return operand{literal: token[1 : len(token)-1]}
		}
	}

	if n, ok := parseNumber(token); ok {
		return operand{literal: n}
	}

	switch token {
	case "true":
		return operand{literal: true}
	case "false":
		return operand{literal: false}
	case "null":
		return operand{literal: nil}
	case "undefined":
		return operand{literal: Undefined}
	}

	return operand{ref: token, isRef: true}
}

func (o operand) resolve(data map[string]any) any {
	if !o.isRef {
		return o.literal
	}

	if value, ok := Lookup(data, o.ref); ok {
		return normalize(value)
	}

	if strings.Contains(o.ref, ".") {
		return Undefined
	}

	return o.ref
}

// normalize folds Go numeric types into float64 so comparisons behave the
// same regardless of how the event data was built.
func normalize(value any) any {
	switch v := value.(type) {
	case int:
		return float64(v)
	case int8:
		return float64(v)
	case int16:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case uint:
		return float64(v)
	case uint8:
		return float64(v)
	case uint16:
		return float64(v)
	case uint32:
		return float64(v)
	case uint64:
		return float64(v)
	case float32:
		return float64(v)
	default:
		return value
	}
}

func truthy(value any) bool {
	switch v := normalize(value).(type) {
	case nil, undefinedValue:
		return false
	case bool:
		return v
	case float64:
		return v != 0 && !math.IsNaN(v)
	case string:
		return v != ""
	default:
		return true
	}
}

func strictEqual(l, r any) bool {
	l, r = normalize(l), normalize(r)

	switch lv := l.(type) {
	case nil:
		return r == nil
	case undefinedValue:
		_, ok := r.(undefinedValue)

		return ok
	case float64:
		rv, ok := r.(float64)

		return ok && lv == rv
	case string:
		rv, ok := r.(string)

		return ok && lv == rv
	case bool:
		rv, ok := r.(bool)

		return ok && lv == rv
	default:
		return false
	}
}

func isNullish(value any) bool {
	switch value.(type) {
	case nil, undefinedValue:
		return true
	default:
		return false
	}
}

func looseEqual(l, r any) bool {
	l, r = normalize(l), normalize(r)

	if isNullish(l) || isNullish(r) {
		return isNullish(l) && isNullish(r)
	}

	if strictEqual(l, r) {
		return true
	}

	_, lString := l.(string)
	_, rString := r.(string)

	if lString && rString {
		return false
	}

	ln, lok := toNumber(l)
	rn, rok := toNumber(r)

	return lok && rok && ln == rn
}

func ordered(op string, l, r any) bool {
	l, r = normalize(l), normalize(r)

	ls, lString := l.(string)
	rs, rString := r.(string)

	if lString && rString {
		switch op {
		case ">":
			return ls > rs
		case "<":
			return ls < rs
		case ">=":
			return ls >= rs
		default:
			return ls <= rs
		}
	}

	ln, lok := toNumber(l)
	rn, rok := toNumber(r)

	if !lok || !rok {
		return false
	}

	switch op {
	case ">":
		return ln > rn
	case "<":
		return ln < rn
	case ">=":
		return ln >= rn
	default:
		return ln <= rn
	}
}

func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case nil:
		return 0, true
	case bool:
		if v {
			return 1, true
		}

		return 0, true
	case float64:
		return v, !math.IsNaN(v)
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, true
		}

		return parseNumber(trimmed)
	default:
		return 0, false
	}
}

// parseNumber reads a decimal literal. Tokens such as "inf" or "NaN" that
// strconv accepts are names, not numbers.
func parseNumber(s string) (float64, bool) {
	digits := strings.TrimLeft(s, "+-")
	if len(s)-len(digits) > 1 || digits == "" {
		return 0, false
	}

	if c := digits[0]; (c < '0' || c > '9') && c != '.' {
		return 0, false
	}

	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}

	return n, true
}
