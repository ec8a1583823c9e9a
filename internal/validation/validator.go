package validation

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const dateLayout = "2006-01-02"

type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New()

	// report errors under the query/json name rather than the Go field name
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"query", "json"} {
			name := strings.Split(f.Tag.Get(tag), ",")[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})

	v.RegisterValidation("date", func(fl validator.FieldLevel) bool {
		value, ok := fl.Field().Interface().(string)
		if !ok {
			return false
		}
		_, err := time.Parse(dateLayout, value)
		return err == nil
	})

	// notbefore=Field: a date string must not be earlier than the sibling date.
	v.RegisterValidation("notbefore", func(fl validator.FieldLevel) bool {
		value, ok := fl.Field().Interface().(string)
		if !ok {
			return false
		}
		other := fl.Parent().FieldByName(fl.Param())
		if !other.IsValid() || other.Kind() != reflect.String || other.String() == "" || value == "" {
			return true
		}
		to, err1 := time.Parse(dateLayout, value)
		from, err2 := time.Parse(dateLayout, other.String())
		if err1 != nil || err2 != nil {
			return true
		}
		return !to.Before(from)
	})

	return &Validator{v: v}
}

func (v *Validator) Struct(s interface{}) error {
	return v.v.Struct(s)
}

func (v *Validator) ValidationErrors(err error) validator.ValidationErrors {
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return ve
	}
	return nil
}

// Details flattens validation errors into field -> failed rule.
func (v *Validator) Details(err error) map[string]string {
	ve := v.ValidationErrors(err)
	if len(ve) == 0 {
		return nil
	}
	out := make(map[string]string, len(ve))
	for _, fe := range ve {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		out[fe.Field()] = rule
	}
	return out
}
