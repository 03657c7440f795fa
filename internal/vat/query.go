package vat

// Query is a validated VIES lookup. The zero value is not a valid Query;
// build one with NewQuery.
type Query struct {
	countryCode string
	vatNumber   string
}

// NewQuery validates countryCode and returns an immutable Query.
// The VAT number is stored as given.
func NewQuery(countryCode, vatNumber string) (Query, error) {
	if err := ValidateCountry(countryCode); err != nil {
		return Query{}, err
	}

	return Query{
		countryCode: countryCode,
		vatNumber:   vatNumber,
	}, nil
}

// CountryCode returns the two-letter member state code.
func (q Query) CountryCode() string {
	return q.countryCode
}

// VATNumber returns the VAT number without its country prefix.
func (q Query) VATNumber() string {
	return q.vatNumber
}
