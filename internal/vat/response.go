package vat

import (
	"encoding/xml"
	"regexp"
	"strings"

	"github.com/dukerupert/vies/internal/domain"
)

// companyNamePlaceholder is what VIES returns when it has no trader name.
const companyNamePlaceholder = "---"

// namespacePrefix matches a prefixed start or end tag such as <ns2:name> or
// </soap:Body>.
var namespacePrefix = regexp.MustCompile(`(</?)(\w+):([^>]*>)`)

// StripNamespaces drops the namespace prefix from every tag name in raw,
// keeping the opening "<" or "</" and the rest of the tag. Attribute values
// and text content are left untouched.
func StripNamespaces(raw string) string {
	return namespacePrefix.ReplaceAllString(raw, "${1}${3}")
}

type fieldKind int

const (
	fieldEmpty fieldKind = iota
	fieldText
)

// field is a checkVatResponse child. An element carrying character data and
// no child elements is text; a self-closing, empty or nested element is empty.
type field struct {
	kind fieldKind
	text string
}

func (f *field) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var (
		text   strings.Builder
		nested bool
	)

	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case xml.CharData:
			text.Write(t)
		case xml.StartElement:
			nested = true
			if err := d.Skip(); err != nil {
				return err
			}
		case xml.EndElement:
			if nested || text.Len() == 0 {
				*f = field{kind: fieldEmpty}
			} else {
				*f = field{kind: fieldText, text: text.String()}
			}
			return nil
		}
	}
}

// Text returns the element text. ok is false for missing or empty elements.
func (f *field) Text() (text string, ok bool) {
	if f == nil || f.kind != fieldText {
		return "", false
	}
	return f.text, true
}

func (f *field) String() string {
	s, _ := f.Text()
	return s
}

type envelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Response *checkVatResponse `xml:"checkVatResponse"`
		Fault    *soapFault        `xml:"Fault"`
	} `xml:"Body"`
}

type checkVatResponse struct {
	CountryCode *field `xml:"countryCode"`
	VATNumber   *field `xml:"vatNumber"`
	RequestDate *field `xml:"requestDate"`
	Valid       *field `xml:"valid"`
	Name        *field `xml:"name"`
	Address     *field `xml:"address"`
}

type soapFault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
}

// ParseResponse maps a raw checkVatService response onto a Record.
//
// The validity flag is checked first: anything other than the text "true"
// yields ErrInvalidVATNumber and no other field is read. Country code and VAT
// number are echoed from the response, not from the query.
func ParseResponse(raw []byte) (*Record, error) {
	const op = "vat.parse"

	var env envelope
	if err := xml.Unmarshal([]byte(StripNamespaces(string(raw))), &env); err != nil {
		return nil, domain.Internal(err, op, ErrMalformedResponse.Message)
	}

	if f := env.Body.Fault; f != nil && env.Body.Response == nil {
		return nil, domain.Unavailable(&Fault{Code: f.Code, String: f.String}, op, ErrServiceFault.Message)
	}

	resp := env.Body.Response
	if resp == nil {
		resp = &checkVatResponse{}
	}

	if valid, ok := resp.Valid.Text(); !ok || valid != "true" {
		return nil, domain.Op(ErrInvalidVATNumber, op)
	}

	rec := &Record{
		CountryCode: resp.CountryCode.String(),
		VATNumber:   resp.VATNumber.String(),
		RequestDate: resp.RequestDate.String(),
		Valid:       true,
	}

	if name, ok := resp.Name.Text(); ok && name != companyNamePlaceholder {
		rec.CompanyName = &name
	}

	if addr, ok := resp.Address.Text(); ok {
		rec.Address, rec.Postcode, rec.City = splitAddress(addr)
	}

	return rec, nil
}

// splitAddress breaks a VIES address block into street, postcode and city.
// Newlines become spaces and the text is split on single spaces: the last
// token is the city, the one before it the postcode, and the rest the street.
// The street is empty, not nil, when only a postcode and city are present.
// Missing positions are returned as nil.
func splitAddress(raw string) (address, postcode, city *string) {
	flat := strings.TrimSpace(strings.ReplaceAll(raw, "\n", " "))
	if flat == "" {
		return nil, nil, nil
	}

	tokens := strings.Split(flat, " ")
	n := len(tokens)

	c := tokens[n-1]
	city = &c

	if n >= 2 {
		p := tokens[n-2]
		postcode = &p

		rest := strings.Join(tokens[:n-2], " ")
		address = &rest
	}

	return address, postcode, city
}
