package validator

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	playground "github.com/go-playground/validator/v10"
)

var (
	ErrInvalidPIN           = errors.New("pin must be at least 6 digits with no digit repeated three times in a row")
	ErrInvalidHolderCode    = errors.New("invalid holder code")
	ErrInvalidAccountNumber = errors.New("invalid account number")
	ErrInvalidTaxCode       = errors.New("invalid tax code")
)

const minPINLength = 6

var (
	holderCodeRegex    = regexp.MustCompile(`^CT[0-9]{6}$`)
	accountNumberRegex = regexp.MustCompile(`^IT123456[0-9]{6}$`)
	taxCodeRegex       = regexp.MustCompile(`^[A-Z0-9]{11,16}$`)
)

var structs = newStructValidator()

func newStructValidator() *playground.Validate {
	v := playground.New(playground.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("pin", func(fl playground.FieldLevel) bool {
		return ValidatePIN(fl.Field().String()) == nil
	})
	_ = v.RegisterValidation("holder_code", func(fl playground.FieldLevel) bool {
		return holderCodeRegex.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("account_number", func(fl playground.FieldLevel) bool {
		return accountNumberRegex.MatchString(fl.Field().String())
	})
	return v
}

// Struct validates request DTOs using their `validate` tags.
func Struct(value any) error {
	return structs.Struct(value)
}

// FieldErrors flattens a validation failure into field -> failed rule.
func FieldErrors(err error) map[string]string {
	var verrs playground.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[strings.ToLower(fe.Field())] = fe.Tag()
	}
	return fields
}

func ValidatePIN(pin string) error {
	if len(pin) < minPINLength {
		return ErrInvalidPIN
	}
	run := 0
	var prev rune
	for i, r := range pin {
		if r < '0' || r > '9' {
			return ErrInvalidPIN
		}
		if i > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		if run >= 3 {
			return ErrInvalidPIN
		}
		prev = r
	}
	return nil
}

func ValidateHolderCode(code string) error {
	if !holderCodeRegex.MatchString(code) {
		return ErrInvalidHolderCode
	}
	return nil
}

func ValidateAccountNumber(number string) error {
	if !accountNumberRegex.MatchString(number) {
		return ErrInvalidAccountNumber
	}
	return nil
}

func ValidateTaxCode(code string) error {
	if !taxCodeRegex.MatchString(strings.ToUpper(strings.TrimSpace(code))) {
		return ErrInvalidTaxCode
	}
	return nil
}
