package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// zidPattern matches an institutional id: "z" followed by seven digits.
var zidPattern = regexp.MustCompile(`^[zZ][0-9]{7}$`)

// v is the package-level singleton validator. It is initialised once at
// package load time. Any custom type registrations must be made during init()
// before the first call to Struct.
var v = validator.New()

func init() {
	_ = v.RegisterValidation("zid", func(fl validator.FieldLevel) bool {
		return zidPattern.MatchString(strings.TrimSpace(fl.Field().String()))
	})
}

// Struct validates the given struct using its validate tags.
// Returns a human-readable error string or nil.
func Struct(s interface{}) error {
	if err := v.Struct(s); err != nil {
		ve, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		var msgs []string
		for _, fe := range ve {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed '%s'", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}
	return nil
}

// Email normalises an address for storage and lookup.
func Email(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// InstitutionalID normalises an institutional id for storage and lookup.
func InstitutionalID(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
