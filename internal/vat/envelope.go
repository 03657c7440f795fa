package vat

import (
	"encoding/xml"
	"fmt"
	"strings"
)

const (
	soapEnvelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"
	checkVatTypeNS = "urn:ec.europa.eu:taxud:vies:services:checkVat:types"
	checkVatImplNS = "urn:ec.europa.eu:taxud:vies:services:checkVat"
)

// envelopeTemplate is the checkVat request body. Placeholders are filled
// with XML-escaped text only.
const envelopeTemplate = `<soap:Envelope xmlns:soap="` + soapEnvelopeNS + `"
    xmlns:tns1="` + checkVatTypeNS + `"
    xmlns:impl="` + checkVatImplNS + `">
    <soap:Header>
    </soap:Header>
    <soap:Body>
        <tns1:checkVat xmlns:tns1="` + checkVatTypeNS + `" xmlns="` + checkVatTypeNS + `">
        <tns1:countryCode>%s</tns1:countryCode>
        <tns1:vatNumber>%s</tns1:vatNumber></tns1:checkVat>
    </soap:Body>
</soap:Envelope>`

// BuildEnvelope renders the SOAP 1.1 checkVat request for q.
func BuildEnvelope(q Query) string {
	return fmt.Sprintf(envelopeTemplate, escapeText(q.countryCode), escapeText(q.vatNumber))
}

func escapeText(s string) string {
	var b strings.Builder
	// Writes to a strings.Builder cannot fail.
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
