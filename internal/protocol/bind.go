package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BindParam converts one decoded JSON parameter value (as produced by
// ParseRequest's json.Number-aware decoder) into the value database/sql
// should bind it as, per spec §4.3's parameter binding rules:
//
//	null             -> NULL
//	true / false     -> INTEGER 1 / 0
//	integer literal  -> INTEGER if it fits signed 64-bit, else NULL
//	float literal    -> REAL
//	string           -> TEXT
//	array / object   -> TEXT containing its compact JSON serialization
func BindParam(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case json.Number:
		return bindNumber(val)
	case string:
		return val, nil
	case []interface{}, map[string]interface{}:
		b, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("protocol: serialize container parameter: %w", err)
		}
		return string(b), nil
	default:
		return nil, fmt.Errorf("protocol: unsupported parameter type %T", v)
	}
}

func bindNumber(n json.Number) (interface{}, error) {
	s := n.String()
	if strings.ContainsAny(s, ".eE") {
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("protocol: invalid numeric parameter %q: %w", s, err)
		}
		return f, nil
	}

	i, err := n.Int64()
	if err != nil {
		// An integer literal that does not fit in signed 64-bit — binds
		// as NULL per spec rather than silently losing precision.
		return nil, nil
	}
	return i, nil
}

// BindParams converts an ordered parameter list in one pass.
func BindParams(params []interface{}) ([]interface{}, error) {
	bound := make([]interface{}, len(params))
	for i, p := range params {
		v, err := BindParam(p)
		if err != nil {
			return nil, fmt.Errorf("protocol: parameter %d: %w", i, err)
		}
		bound[i] = v
	}
	return bound, nil
}
