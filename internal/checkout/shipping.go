package checkout

import (
	"regexp"
	"strings"

	"storefront/internal/model"
)

var (
	postalCodePattern = regexp.MustCompile(`^[0-9]{5}$`)
	emailPattern      = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phoneDigits       = regexp.MustCompile(`[0-9]`)
)

// NormalizeShipping trims surrounding whitespace from every field.
func NormalizeShipping(addr model.ShippingAddress) model.ShippingAddress {
	return model.ShippingAddress{
		FirstName:  strings.TrimSpace(addr.FirstName),
		LastName:   strings.TrimSpace(addr.LastName),
		Email:      strings.TrimSpace(addr.Email),
		Phone:      strings.TrimSpace(addr.Phone),
		Street:     strings.TrimSpace(addr.Street),
		Apartment:  strings.TrimSpace(addr.Apartment),
		City:       strings.TrimSpace(addr.City),
		State:      strings.TrimSpace(addr.State),
		PostalCode: strings.TrimSpace(addr.PostalCode),
		Country:    strings.TrimSpace(addr.Country),
	}
}

// ValidateShipping checks the required shipping fields and returns a
// *model.ValidationError naming every field that failed.
func ValidateShipping(addr model.ShippingAddress) error {
	fields := make(map[string]string)

	required := map[string]string{
		"firstName": addr.FirstName,
		"lastName":  addr.LastName,
		"email":     addr.Email,
		"phone":     addr.Phone,
		"street":    addr.Street,
		"city":      addr.City,
		"country":   addr.Country,
	}
	for name, value := range required {
		if strings.TrimSpace(value) == "" {
			fields[name] = "is required"
		}
	}

	if _, missing := fields["email"]; !missing && !emailPattern.MatchString(strings.TrimSpace(addr.Email)) {
		fields["email"] = "must be a valid email address"
	}
	if _, missing := fields["phone"]; !missing && len(phoneDigits.FindAllString(addr.Phone, -1)) < 7 {
		fields["phone"] = "must contain at least 7 digits"
	}
	if !postalCodePattern.MatchString(strings.TrimSpace(addr.PostalCode)) {
		fields["postalCode"] = "must be 5 digits"
	}

	if len(fields) > 0 {
		return &model.ValidationError{Fields: fields}
	}
	return nil
}
