package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ErrMalformedPayload is returned when a request body is not a flat mapping
// of scalar values.
var ErrMalformedPayload = errors.New("malformed payload")

// DecodeJSON decodes one JSON document from r, keeping numbers exact.
// Trailing data after the document is rejected.
func DecodeJSON(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after JSON object", ErrMalformedPayload)
	}
	return v, nil
}

// ParsePayload flattens a decoded payload into named feature values.
//
// Accepted values are numbers, numeric strings, booleans (1 or 0) and null,
// which becomes NaN and is treated by the model as missing. Anything else,
// including nested objects and arrays, is rejected. Offending keys are
// reported in sorted order.
func ParsePayload(payload any) (map[string]float64, error) {
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a JSON object, got %s", ErrMalformedPayload, describe(payload))
	}

	out := make(map[string]float64, len(obj))
	var bad []string
	for key, raw := range obj {
		v, err := scalar(raw)
		if err != nil {
			bad = append(bad, fmt.Sprintf("%q %v", key, err))
			continue
		}
		out[key] = v
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		return nil, fmt.Errorf("%w: %s", ErrMalformedPayload, strings.Join(bad, "; "))
	}
	return out, nil
}

func scalar(v any) (float64, error) {
	switch x := v.(type) {
	case nil:
		return math.NaN(), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, errors.New("is not a representable number")
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("is not numeric (%q)", x)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("must be a scalar, got %s", describe(v))
	}
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, json.Number:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
