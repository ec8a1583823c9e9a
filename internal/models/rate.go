package models

import (
	"encoding/json"
	"fmt"
	"math"
)

// UndefinedPlaceholder is what presentation shows for a rate with a zero denominator.
const UndefinedPlaceholder = "n/a"

// Rate is a fraction of two counts. Defined is false when the denominator was zero.
type Rate struct {
	Value   float64
	Defined bool
}

// RateOf divides num by den; den == 0 yields an undefined rate.
func RateOf(num, den int) Rate {
	if den == 0 {
		return Rate{}
	}
	return Rate{Value: float64(num) / float64(den), Defined: true}
}

// Float returns the value, NaN when undefined.
func (r Rate) Float() float64 {
	if !r.Defined {
		return math.NaN()
	}
	return r.Value
}

// Percent formats the rate with one decimal, or the placeholder.
func (r Rate) Percent() string {
	if !r.Defined {
		return UndefinedPlaceholder
	}
	return fmt.Sprintf("%.1f%%", r.Value*100)
}

func (r Rate) MarshalJSON() ([]byte, error) {
	if !r.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(r.Value)
}

func (r *Rate) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*r = Rate{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*r = Rate{Value: v, Defined: true}
	return nil
}
