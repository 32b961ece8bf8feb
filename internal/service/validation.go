package service

import (
	"strings"

	"github.com/mmynk/estimator/internal/apperr"
)

// violations collects field-level validation messages.
type violations map[string]string

func (v violations) err() error {
	if len(v) == 0 {
		return nil
	}
	return apperr.Validation(v)
}

func (v violations) required(field, value string) {
	if strings.TrimSpace(value) == "" {
		v[field] = "required"
	}
}

func (v violations) nonNegative(field string, val float64) {
	if val < 0 {
		v[field] = "must not be negative"
	}
}

func (v violations) nonNegativePtr(field string, val *float64) {
	if val != nil {
		v.nonNegative(field, *val)
	}
}

func (v violations) positive(field string, val float64) {
	if val <= 0 {
		v[field] = "must be positive"
	}
}

func (v violations) inRange(field string, val, lo, hi float64) {
	if val < lo || val > hi {
		v[field] = "out of range"
	}
}

// merge copies other into v with every field prefixed.
func (v violations) merge(prefix string, other violations) {
	for field, msg := range other {
		v[prefix+"."+field] = msg
	}
}
