package inspection

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ValueKind discriminates the variants of a response value.
type ValueKind int

const (
	// KindNone indicates no value has been recorded.
	KindNone ValueKind = iota
	// KindScalar is a plain text/pass-fail/number-as-text value.
	KindScalar
	// KindChoice is a set of selected option labels.
	KindChoice
	// KindMeasurement is a numeric amount with a unit.
	KindMeasurement
)

// Value is the tagged-union form of a response value. The remote
// system stores one string column per response; composite variants
// are JSON-encoded into it on the way out and decoded exactly once on
// the way in, so consumers never re-parse ad hoc.
type Value struct {
	Kind    ValueKind `json:"kind"`
	Scalar  string    `json:"scalar,omitempty"`
	Choices []string  `json:"choices,omitempty"`
	Amount  float64   `json:"amount,omitempty"`
	Unit    string    `json:"unit,omitempty"`
}

// ScalarValue builds a scalar value. An empty string yields KindNone.
func ScalarValue(s string) Value {
	if s == "" {
		return Value{}
	}
	return Value{Kind: KindScalar, Scalar: s}
}

// ChoiceValue builds a choice-set value. An empty set yields KindNone.
func ChoiceValue(choices ...string) Value {
	if len(choices) == 0 {
		return Value{}
	}
	return Value{Kind: KindChoice, Choices: choices}
}

// MeasurementValue builds a measurement value.
func MeasurementValue(amount float64, unit string) Value {
	return Value{Kind: KindMeasurement, Amount: amount, Unit: unit}
}

// IsZero returns true if no value has been recorded.
func (v Value) IsZero() bool {
	return v.Kind == KindNone
}

// Equal compares two values for semantic equality.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindNone:
		return true
	case KindScalar:
		return v.Scalar == other.Scalar
	case KindChoice:
		if len(v.Choices) != len(other.Choices) {
			return false
		}
		for i := range v.Choices {
			if v.Choices[i] != other.Choices[i] {
				return false
			}
		}
		return true
	case KindMeasurement:
		return v.Amount == other.Amount && v.Unit == other.Unit
	}
	return false
}

// measurementWire is the JSON shape of a measurement in the remote's
// single string column.
type measurementWire struct {
	Amount float64 `json:"amount"`
	Unit   string  `json:"unit"`
}

// Encode serializes the value into the remote's single string column.
// KindNone encodes to the empty string.
func (v Value) Encode() (string, error) {
	switch v.Kind {
	case KindNone:
		return "", nil
	case KindScalar:
		return v.Scalar, nil
	case KindChoice:
		data, err := json.Marshal(v.Choices)
		if err != nil {
			return "", fmt.Errorf("failed to encode choice value: %w", err)
		}
		return string(data), nil
	case KindMeasurement:
		data, err := json.Marshal(measurementWire{Amount: v.Amount, Unit: v.Unit})
		if err != nil {
			return "", fmt.Errorf("failed to encode measurement value: %w", err)
		}
		return string(data), nil
	}
	return "", fmt.Errorf("unknown value kind %d", v.Kind)
}

// MustEncode is Encode for values already validated by construction.
// The constructors above cannot produce an unencodable value.
func (v Value) MustEncode() string {
	s, err := v.Encode()
	if err != nil {
		panic(err)
	}
	return s
}

// DecodeValue parses the remote's string column back into a Value,
// guided by the template item type. Unrecognized item types fall back
// to scalar, preserving the raw string.
func DecodeValue(itemType, raw string) Value {
	if raw == "" {
		return Value{}
	}

	switch strings.ToLower(itemType) {
	case "choice", "multiple_choice", "checkbox":
		var choices []string
		if err := json.Unmarshal([]byte(raw), &choices); err == nil {
			return ChoiceValue(choices...)
		}
		// A single bare option was stored unencoded.
		return ChoiceValue(raw)

	case "measurement", "number_with_unit":
		var m measurementWire
		if err := json.Unmarshal([]byte(raw), &m); err == nil && m.Unit != "" {
			return MeasurementValue(m.Amount, m.Unit)
		}
		return ScalarValue(raw)

	default:
		return ScalarValue(raw)
	}
}
