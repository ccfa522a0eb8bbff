package store

import (
	"bytes"
	"cmp"
	"fmt"
	"strings"
)

// Value kinds in sort order. Missing fields sort first.
const (
	kindNull = iota
	kindNumber
	kindBool
	kindString
	kindBytes
	kindOther
)

func kindOf(v any) int {
	switch v.(type) {
	case nil:
		return kindNull
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return kindNumber
	case bool:
		return kindBool
	case string, ID:
		return kindString
	case []byte:
		return kindBytes
	}
	return kindOther
}

// toFloat converts a numeric value to float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toString(v any) string {
	if id, ok := v.(ID); ok {
		return string(id)
	}
	s, _ := v.(string)
	return s
}

// Compare orders two field values. Values of different kinds are ordered by
// kind: null, numbers, booleans, strings, bytes, then anything else.
// Numbers compare by value regardless of their Go type.
func Compare(a, b any) int {
	ka, kb := kindOf(a), kindOf(b)
	if ka != kb {
		return cmp.Compare(ka, kb)
	}
	switch ka {
	case kindNull:
		return 0
	case kindNumber:
		fa, _ := toFloat(a)
		fb, _ := toFloat(b)
		return cmp.Compare(fa, fb)
	case kindBool:
		switch ba, bb := a.(bool), b.(bool); {
		case ba == bb:
			return 0
		case !ba:
			return -1
		}
		return 1
	case kindString:
		return strings.Compare(toString(a), toString(b))
	case kindBytes:
		return bytes.Compare(a.([]byte), b.([]byte))
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// Equal reports whether two field values are equal under Compare.
func Equal(a, b any) bool {
	return Compare(a, b) == 0
}
