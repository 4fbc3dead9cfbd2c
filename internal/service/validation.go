package service

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

const specialCharacters = `!@#$%^&*(),.?":{}|<>`

var personNamePattern = regexp.MustCompile(`^[\p{L}\s'-]+$`)

const (
	msgPasswordTooShortAndPlain = "Password must be at least 8 characters long and contain at least one special character."
	msgPasswordTooShort         = "Password must be at least 8 characters long."
	msgPasswordNoSpecial        = "Password must contain at least one special character."
	msgPasswordsDoNotMatch      = "Passwords do not match"
	msgEmailInvalid             = "Please enter a valid email address."
	msgEmailTaken               = "An account is already registered with this email address"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return passwordProblem(fl.Field().String()) == ""
	})
	_ = v.RegisterValidation("personname", func(fl validator.FieldLevel) bool {
		name := strings.TrimSpace(fl.Field().String())
		n := utf8.RuneCountInString(name)
		return n >= 2 && n <= 50 && personNamePattern.MatchString(name)
	})
	return v
}

// passwordProblem devuelve "" si la contraseña cumple la política.
func passwordProblem(password string) string {
	short := utf8.RuneCountInString(password) < 8
	plain := !strings.ContainsAny(password, specialCharacters)
	switch {
	case short && plain:
		return msgPasswordTooShortAndPlain
	case short:
		return msgPasswordTooShort
	case plain:
		return msgPasswordNoSpecial
	default:
		return ""
	}
}

// validateInput traduce los errores de validator a un AuthError con mensajes
// por campo.
func validateInput(input any) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		if _, seen := fields[fe.Field()]; seen {
			continue
		}
		fields[fe.Field()] = fieldMessage(fe)
	}
	return newFieldError(fields)
}

func fieldMessage(fe validator.FieldError) string {
	label := fieldLabel(fe.Field())
	switch fe.Tag() {
	case "required":
		return label + " is required."
	case "email":
		return msgEmailInvalid
	case "password":
		if s, ok := fe.Value().(string); ok {
			if msg := passwordProblem(s); msg != "" {
				return msg
			}
		}
		return msgPasswordTooShortAndPlain
	case "eqfield":
		return msgPasswordsDoNotMatch
	case "personname":
		return label + " must be 2-50 characters and contain only letters, spaces, hyphens, and apostrophes."
	case "len", "numeric":
		return label + " must be a 6-digit code."
	default:
		return label + " is invalid."
	}
}

func fieldLabel(field string) string {
	switch field {
	case "firstName":
		return "First name"
	case "lastName":
		return "Last name"
	case "email":
		return "Email"
	case "password":
		return "Password"
	case "confirmPassword":
		return "Password confirmation"
	case "currentPassword":
		return "Current password"
	case "code":
		return "Code"
	default:
		return field
	}
}
