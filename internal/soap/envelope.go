// Package soap writes request envelopes and reads response envelopes for the
// Exchange Web Services endpoint.
package soap

import (
	"encoding/xml"
	"fmt"
	"io"
)

// XML namespaces used on the wire.
const (
	NamespaceSOAP11   = "http://schemas.xmlsoap.org/soap/envelope/"
	NamespaceSOAP12   = "http://www.w3.org/2003/05/soap-envelope"
	NamespaceMessages = "http://schemas.microsoft.com/exchange/services/2006/messages"
	NamespaceTypes    = "http://schemas.microsoft.com/exchange/services/2006/types"
	NamespaceErrors   = "http://schemas.microsoft.com/exchange/services/2006/errors"
)

// DefaultServerVersion is sent in RequestServerVersion when none is configured.
const DefaultServerVersion = "Exchange2010_SP2"

// WriteEnvelope writes a SOAP 1.1 envelope whose body is produced by body.
// The body writer may use the "m" and "t" prefixes, which are declared on the
// envelope.
func WriteEnvelope(w io.Writer, serverVersion string, body func(io.Writer) error) error {
	if serverVersion == "" {
		serverVersion = DefaultServerVersion
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w,
		`<soap:Envelope xmlns:soap=%q xmlns:m=%q xmlns:t=%q>`,
		NamespaceSOAP11, NamespaceMessages, NamespaceTypes); err != nil {
		return err
	}
	if _, err := io.WriteString(w, `<soap:Header><t:RequestServerVersion Version="`); err != nil {
		return err
	}
	if err := xml.EscapeText(w, []byte(serverVersion)); err != nil {
		return err
	}
	if _, err := io.WriteString(w, `"/></soap:Header><soap:Body>`); err != nil {
		return err
	}
	if body != nil {
		if err := body(w); err != nil {
			return fmt.Errorf("writing envelope body: %w", err)
		}
	}
	_, err := io.WriteString(w, `</soap:Body></soap:Envelope>`)
	return err
}
