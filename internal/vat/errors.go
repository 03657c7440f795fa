package vat

import (
	"fmt"

	"github.com/dukerupert/vies/internal/domain"
)

// Sentinel errors. Returned errors may be tagged with an operation; compare
// with errors.Is rather than ==.
var (
	// ErrInvalidCountry is returned when the country code is not an EU member.
	ErrInvalidCountry = &domain.Error{
		Code:    domain.EUNPROCESSABLE,
		Message: "The country code does not belong to European Union",
	}

	// ErrNoDataCountry is returned for member states whose registry does not
	// share data through VIES.
	ErrNoDataCountry = &domain.Error{
		Code:    domain.EUNPROCESSABLE,
		Message: "The country code does not provide data to European Union",
	}

	// ErrInvalidVATNumber is returned when VIES answers with valid != "true".
	ErrInvalidVATNumber = &domain.Error{
		Code:    domain.EUNPROCESSABLE,
		Message: "The provided VAT number is invalid",
	}

	// ErrMalformedResponse is returned when the response body is not a
	// parseable SOAP envelope.
	ErrMalformedResponse = &domain.Error{
		Code:    domain.EINTERNAL,
		Message: "The VAT service returned a malformed response",
	}

	// ErrServiceFault is returned when VIES answers with a SOAP fault such as
	// MS_UNAVAILABLE. The wrapped *Fault carries the fault details.
	ErrServiceFault = &domain.Error{
		Code:    domain.EUNAVAILABLE,
		Message: "The VAT service could not process the request",
	}

	// ErrTransport is returned in strict mode when VIES cannot be reached.
	ErrTransport = &domain.Error{
		Code:    domain.EUNAVAILABLE,
		Message: "The VAT service is unreachable",
	}
)

// Fault is a SOAP fault reported by VIES.
type Fault struct {
	Code   string
	String string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("soap fault %s: %s", f.Code, f.String)
}
