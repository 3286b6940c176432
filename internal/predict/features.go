// Package predict turns a submitted clinical form into a risk assessment.
package predict

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FeatureOrder is the column order the classifier was trained on.
var FeatureOrder = [NumFeatures]string{
	"age", "sex", "cp", "trestbps", "chol",
	"fbs", "restecg", "thalach", "exang",
	"oldpeak", "slope", "ca", "thal",
}

const NumFeatures = 13

type Vector [NumFeatures]float64

// FieldError names the first feature that could not be read as a number.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Reason
}

// ParseFeatures extracts the features from a decoded JSON object in
// FeatureOrder. Numbers, numeric strings and booleans are accepted.
func ParseFeatures(payload map[string]any) (Vector, error) {
	var v Vector
	for i, name := range FeatureOrder {
		raw, ok := payload[name]
		if !ok {
			return Vector{}, &FieldError{Field: name, Reason: "is required"}
		}
		f, err := toFloat(raw)
		if err != nil {
			return Vector{}, &FieldError{Field: name, Reason: err.Error()}
		}
		v[i] = f
	}
	return v, nil
}

func toFloat(raw any) (float64, error) {
	var f float64
	switch x := raw.(type) {
	case nil:
		return 0, fmt.Errorf("must not be null")
	case float64:
		f = x
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("must be a number")
		}
		f = parsed
	default:
		return 0, fmt.Errorf("must be a number")
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("must be a finite number")
	}
	return f, nil
}
