package soap

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nhle/ews-client/internal/ewserr"
)

// ErrMalformedEnvelope is returned when the document is well-formed XML but
// not a SOAP envelope with a body.
var ErrMalformedEnvelope = errors.New("malformed SOAP envelope")

// Reader reads a SOAP response envelope.
type Reader struct {
	dec *xml.Decoder
}

// NewReader returns a Reader decoding from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: xml.NewDecoder(r)}
}

// Decoder exposes the underlying decoder, positioned wherever the last
// Reader call left it.
func (r *Reader) Decoder() *xml.Decoder { return r.dec }

// ReadBody skips the envelope and header and returns the first element
// inside the body. A SOAP fault is returned as a *ewserr.ServiceResponseError.
func (r *Reader) ReadBody() (xml.StartElement, error) {
	inEnvelope, inBody := false, false
	for {
		tok, err := r.dec.Token()
		if err == io.EOF {
			return xml.StartElement{}, fmt.Errorf("%w: no body element", ErrMalformedEnvelope)
		}
		if err != nil {
			return xml.StartElement{}, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case !inEnvelope:
				if t.Name.Local != "Envelope" || !isSOAPNamespace(t.Name.Space) {
					return xml.StartElement{}, fmt.Errorf("%w: unexpected root element %s", ErrMalformedEnvelope, t.Name.Local)
				}
				inEnvelope = true
			case !inBody && t.Name.Local == "Body" && isSOAPNamespace(t.Name.Space):
				inBody = true
			case !inBody:
				if err := r.dec.Skip(); err != nil {
					return xml.StartElement{}, err
				}
			case t.Name.Local == "Fault" && isSOAPNamespace(t.Name.Space):
				return xml.StartElement{}, r.readFault(t)
			default:
				return t.Copy(), nil
			}
		case xml.EndElement:
			if inBody {
				return xml.StartElement{}, fmt.Errorf("%w: empty body", ErrMalformedEnvelope)
			}
		}
	}
}

// Decode decodes the element started by start into v.
func (r *Reader) Decode(v any, start *xml.StartElement) error {
	return r.dec.DecodeElement(v, start)
}

func isSOAPNamespace(ns string) bool {
	return ns == NamespaceSOAP11 || ns == NamespaceSOAP12
}

type fault struct {
	Code   string      `xml:"faultcode"`
	String string      `xml:"faultstring"`
	Detail faultDetail `xml:"detail"`

	// SOAP 1.2 shape.
	Code12   string      `xml:"Code>Value"`
	Reason12 string      `xml:"Reason>Text"`
	Detail12 faultDetail `xml:"Detail"`
}

type faultDetail struct {
	ResponseCode string     `xml:"ResponseCode"`
	Message      string     `xml:"Message"`
	MessageXML   messageXML `xml:"MessageXml"`
}

func (r *Reader) readFault(start xml.StartElement) error {
	var f fault
	if err := r.dec.DecodeElement(&f, &start); err != nil {
		return err
	}

	detail := f.Detail
	if detail.ResponseCode == "" && detail.Message == "" {
		detail = f.Detail12
	}
	code := f.Code
	if code == "" {
		code = f.Code12
	}
	text := f.String
	if text == "" {
		text = f.Reason12
	}

	sre := &ewserr.ServiceResponseError{
		Code:        ewserr.ServiceError(detail.ResponseCode),
		MessageText: detail.Message,
		Details:     detail.MessageXML.values(),
	}
	if sre.Code == "" {
		// Faults raised before the request reached the service layer carry
		// no EWS response code.
		sre.Code = ewserr.ErrorInternalServerError
		if i := strings.IndexByte(code, ':'); i >= 0 {
			code = code[i+1:]
		}
		sre.Details[faultCodeDetail] = code
	}
	if sre.MessageText == "" {
		sre.MessageText = text
	}
	return sre
}

const faultCodeDetail = "FaultCode"

// messageXML collects the children of a MessageXml element. Each child is
// either a named <Value Name="key"> element or an element whose local name
// is the key.
type messageXML struct {
	Items []messageXMLItem `xml:",any"`
}

type messageXMLItem struct {
	XMLName xml.Name
	Name    string `xml:"Name,attr"`
	Value   string `xml:",chardata"`
}

func (m messageXML) values() map[string]string {
	values := make(map[string]string, len(m.Items))
	for _, item := range m.Items {
		key := item.XMLName.Local
		if key == "Value" && item.Name != "" {
			key = item.Name
		}
		values[key] = strings.TrimSpace(item.Value)
	}
	return values
}
