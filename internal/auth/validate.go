package auth

import (
	stderrors "errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

const passwordSymbols = "!@#$%^&*"

var mobilePattern = regexp.MustCompile(`^[0-9]{10}$`)

// fieldMessages maps "<field>.<tag>" to the message shown next to the input.
var fieldMessages = map[string]string{
	"name.min":          "Name must be at least 3 characters",
	"name.required":     "Name must be at least 3 characters",
	"email.email":       "Invalid email address",
	"email.required":    "Invalid email address",
	"mobile.mobile":     "Mobile number must be 10 digits",
	"password.required": "Minimum 3 characters",
	"password.min":      "Minimum 3 characters",
	"password.max":      "Maximum 6 characters",
	"password.password": "Must include a capital letter, number, and special symbol",
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})

	// Registration fails only on programmer error, the tags are fixed.
	must(v.RegisterValidation("mobile", func(fl validator.FieldLevel) bool {
		return mobilePattern.MatchString(fl.Field().String())
	}))
	must(v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return strongPassword(fl.Field().String())
	}))

	return v
}

// strongPassword requires an uppercase letter, a digit and one of passwordSymbols.
func strongPassword(p string) bool {
	var upper, digit, symbol bool
	for _, r := range p {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(passwordSymbols, r):
			symbol = true
		}
	}
	return upper && digit && symbol
}

// fieldErrors turns a validation failure into one message per field.
func fieldErrors(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return nil
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		if _, ok := fields[fe.Field()]; ok {
			continue
		}

		msg, ok := fieldMessages[fe.Field()+"."+fe.Tag()]
		if !ok {
			msg = "Invalid " + fe.Field()
		}
		fields[fe.Field()] = msg
	}

	return fields
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
