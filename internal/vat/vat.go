// Package vat checks EU VAT identification numbers against the European
// Commission's VIES checkVatService and normalizes its SOAP answer.
//
// A lookup runs in three steps: the country code is validated when the
// Query is built, the SOAP envelope is rendered from the Query, and the
// response is stripped of namespace prefixes and mapped onto a Record.
//
// Transport failures are not errors by default: Get returns a nil Record and
// a nil error when VIES cannot be reached. Callers that need to tell "down"
// apart from "no answer" set Config.Strict to receive ErrTransport instead.
package vat

import "context"

// Verifier looks up a single VAT number.
// Implementations: Client, MockVerifier
type Verifier interface {
	// Get returns the normalized VIES record for q.
	// A nil Record with a nil error means the service could not be reached.
	Get(ctx context.Context, q Query) (*Record, error)
}

// Record is the normalized result of a successful VIES lookup.
// Nil pointer fields are absent in the service response.
type Record struct {
	CountryCode string  `json:"country_code"`
	VATNumber   string  `json:"vat_number"`
	RequestDate string  `json:"request_date,omitempty"`
	Valid       bool    `json:"valid"`
	CompanyName *string `json:"company_name"`
	Address     *string `json:"address"`
	Postcode    *string `json:"postcode"`
	City        *string `json:"city"`
}
