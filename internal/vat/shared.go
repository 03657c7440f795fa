package vat

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// SharedVerifier collapses concurrent lookups of the same query into a
// single call to the wrapped Verifier. VIES answers MS_MAX_CONCURRENT_REQ
// when one number is checked in parallel, which autocomplete widgets do.
type SharedVerifier struct {
	next  Verifier
	group singleflight.Group
}

// NewSharedVerifier wraps next.
func NewSharedVerifier(next Verifier) *SharedVerifier {
	return &SharedVerifier{next: next}
}

// Get returns the result of the in-flight lookup for q, starting one if
// none is running. The shared call is detached from the first caller's
// cancellation; the wrapped client's timeout still bounds it.
func (s *SharedVerifier) Get(ctx context.Context, q Query) (*Record, error) {
	key := q.countryCode + "/" + q.vatNumber

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.next.Get(context.WithoutCancel(ctx), q)
	})
	if err != nil {
		return nil, err
	}

	rec, _ := v.(*Record)
	if rec == nil {
		return nil, nil
	}

	return rec.clone(), nil
}

// clone returns a deep copy of r, so each caller may modify its record.
func (r *Record) clone() *Record {
	out := *r
	out.CompanyName = cloneString(r.CompanyName)
	out.Address = cloneString(r.Address)
	out.Postcode = cloneString(r.Postcode)
	out.City = cloneString(r.City)
	return &out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
