// Package validation holds the shared struct validator and input checks for
// felts, origins and fee parameters.
package validation

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/better-wallet/controller/pkg/felt"
)

var validate = validator.New()

func init() {
	if err := validate.RegisterValidation("felt", isFelt); err != nil {
		panic(err)
	}
	if err := validate.RegisterValidation("entrypoint", isEntrypoint); err != nil {
		panic(err)
	}
	if err := validate.RegisterValidation("origin", isOrigin); err != nil {
		panic(err)
	}
}

// Struct validates v against its `validate` tags and joins every field error.
func Struct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	errs := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		errs = append(errs, fmt.Errorf("%s: failed %q validation", fe.Namespace(), fe.Tag()))
	}
	return errors.Join(errs...)
}

// isFelt accepts hex or decimal strings below the field prime
func isFelt(fl validator.FieldLevel) bool {
	_, err := felt.FromString(fl.Field().String())
	return err == nil
}

// isEntrypoint accepts a Cairo entrypoint name or a hex selector
func isEntrypoint(fl validator.FieldLevel) bool {
	return ValidateEntrypoint(fl.Field().String()) == nil
}

func isOrigin(fl validator.FieldLevel) bool {
	return ValidateOrigin(fl.Field().String()) == nil
}

// ValidateFeltHex validates a 0x-prefixed field element
func ValidateFeltHex(s string) error {
	if s == "" {
		return fmt.Errorf("value cannot be empty")
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return fmt.Errorf("invalid felt %q: must be 0x-prefixed hex", s)
	}
	if _, err := felt.FromHex(s); err != nil {
		return err
	}
	return nil
}

// ValidateAddress validates a contract address. The zero address is rejected.
func ValidateAddress(s string) error {
	if err := ValidateFeltHex(s); err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}
	if felt.MustFromHex(s).IsZero() {
		return fmt.Errorf("address cannot be zero")
	}
	return nil
}

// ValidateEntrypoint validates an entrypoint name (printable ASCII, no
// spaces) or a 0x-prefixed selector.
func ValidateEntrypoint(s string) error {
	if s == "" {
		return fmt.Errorf("entrypoint cannot be empty")
	}
	if strings.HasPrefix(s, "0x") {
		return ValidateFeltHex(s)
	}
	for _, r := range s {
		if r <= ' ' || r > '~' {
			return fmt.Errorf("invalid entrypoint %q", s)
		}
	}
	return nil
}

// ValidateOrigin validates a requesting origin such as https://app.example.
func ValidateOrigin(origin string) error {
	if origin == "" {
		return fmt.Errorf("origin cannot be empty")
	}

	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid origin %q: must include scheme and host", origin)
	}
	return nil
}

// ValidateFeeMultiplier validates a fee estimate multiplier
func ValidateFeeMultiplier(m float64) error {
	if math.IsNaN(m) || math.IsInf(m, 0) {
		return fmt.Errorf("fee multiplier must be finite")
	}
	if m <= 0 {
		return fmt.Errorf("fee multiplier must be positive")
	}
	return nil
}

// ValidateExpiry rejects session expiries that are not after now (unix seconds).
func ValidateExpiry(expiresAt, now uint64) error {
	if expiresAt == 0 {
		return fmt.Errorf("expiry cannot be zero")
	}
	if expiresAt <= now {
		return fmt.Errorf("expiry %d is not in the future", expiresAt)
	}
	return nil
}
