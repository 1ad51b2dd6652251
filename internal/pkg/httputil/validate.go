package httputil

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator wraps the go-playground validator. Field names in messages are
// taken from json tags so clients see the names they sent.
type Validator struct {
	v *validator.Validate
}

// NewValidator creates a Validator with json tag names registered.
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

// Struct validates a struct based on validation tags.
func (val *Validator) Struct(s any) error {
	return val.v.Struct(s)
}

// Var validates a single variable against a tag.
func (val *Validator) Var(field any, tag string) error {
	return val.v.Var(field, tag)
}

var defaultValidator = NewValidator()

// ValidationMessage turns validator errors into one client-facing sentence.
// Missing fields are listed together; the first other failure is named.
func ValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	var missing []string
	var invalid string
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
		} else if invalid == "" {
			invalid = fe.Field()
		}
	}
	if len(missing) > 0 {
		return "Missing required fields: " + strings.Join(missing, ", ")
	}
	return "Invalid value for field: " + invalid
}

// DecodeAndValidate decodes the JSON body into dst and runs struct
// validation. Returns false after writing a 400 when either step fails.
func DecodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !Decode(w, r, dst) {
		return false
	}
	if err := defaultValidator.Struct(dst); err != nil {
		BadRequest(w, ValidationMessage(err))
		return false
	}
	return true
}
