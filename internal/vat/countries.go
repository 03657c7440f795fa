package vat

import (
	"slices"

	"github.com/dukerupert/vies/internal/domain"
)

// euCountries is the member list VIES lookups are accepted for. GB and the
// non-ISO PO are kept as published; do not prune them.
var euCountries = [...]string{
	"AT", "BE", "BG", "CY", "CZ", "DE", "DK", "EE", "ES", "FI",
	"FR", "GB", "GR", "HR", "HU", "IE", "IT", "LT", "LU", "LV",
	"MT", "NL", "PO", "PT", "RO", "SE", "SI", "SK",
}

// countriesNoData lists member states that do not provide data through VIES.
var countriesNoData = [...]string{"DE"}

// EUCountries returns a copy of the accepted country codes.
func EUCountries() []string {
	return slices.Clone(euCountries[:])
}

// CountriesNoData returns a copy of the member states without VIES data.
func CountriesNoData() []string {
	return slices.Clone(countriesNoData[:])
}

// ValidateCountry reports whether VIES can be queried for countryCode.
// Matching is exact and case-sensitive.
func ValidateCountry(countryCode string) error {
	const op = "vat.validate_country"

	if !slices.Contains(euCountries[:], countryCode) {
		return domain.Op(ErrInvalidCountry, op)
	}
	if slices.Contains(countriesNoData[:], countryCode) {
		return domain.Op(ErrNoDataCountry, op)
	}
	return nil
}
