package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type requestValidator struct {
	validate *validator.Validate
}

func newRequestValidator() *requestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &requestValidator{validate: v}
}

// Struct returns the failing fields, or nil when s is valid.
func (v *requestValidator) Struct(s any) []FieldError {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Message: err.Error()}}
	}

	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		msg := fe.Error()
		switch fe.Tag() {
		case "required":
			msg = fmt.Sprintf("%s is required", fe.Field())
		case "uuid":
			msg = fmt.Sprintf("%s must be a valid UUID", fe.Field())
		case "max":
			msg = fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
		}
		out = append(out, FieldError{Field: fe.Field(), Message: msg})
	}
	return out
}

var localLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// parseDateTime accepts RFC3339 or a local clinic time without offset.
func parseDateTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("date_time %q is not ISO-8601 (2006-01-02T15:04 or RFC3339)", s)
}

// parseRangeBound parses a from/to query value. A bare date means the start
// of that day in the clinic; endOfDay moves it to the start of the next day.
func parseRangeBound(s string, loc *time.Location, endOfDay bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if d, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		if endOfDay {
			d = d.AddDate(0, 0, 1)
		}
		return &d, nil
	}
	t, err := parseDateTime(s, loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
