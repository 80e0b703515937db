package soap

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nhle/ews-client/internal/ewserr"
)

// ResponseClass is the outcome reported for a single response message.
type ResponseClass string

const (
	ResponseSuccess ResponseClass = "Success"
	ResponseWarning ResponseClass = "Warning"
	ResponseError   ResponseClass = "Error"
)

// ResponseMessage is one entry of a ResponseMessages collection.
type ResponseMessage struct {
	XMLName            xml.Name
	Class              ResponseClass       `xml:"ResponseClass,attr"`
	MessageText        string              `xml:"MessageText"`
	ResponseCode       ewserr.ServiceError `xml:"ResponseCode"`
	DescriptiveLinkKey int                 `xml:"DescriptiveLinkKey"`
	MessageXML         messageXML          `xml:"MessageXml"`
}

// Details returns the MessageXml values keyed by name.
func (m *ResponseMessage) Details() map[string]string {
	return m.MessageXML.values()
}

// Err returns the service failure the message reports, or nil for
// successful and warning messages.
func (m *ResponseMessage) Err() error {
	if m.Class != ResponseError {
		return nil
	}
	return &ewserr.ServiceResponseError{
		Code:        m.ResponseCode,
		MessageText: m.MessageText,
		Details:     m.Details(),
	}
}

// Result is a decoded operation response.
type Result struct {
	// Operation is the local name of the response element, for example
	// GetFolderResponse.
	Operation string
	Messages  []ResponseMessage
}

// FirstError returns the first failure reported by any message.
func (r *Result) FirstError() error {
	for i := range r.Messages {
		if err := r.Messages[i].Err(); err != nil {
			return err
		}
	}
	return nil
}

type responseMessages struct {
	Messages []ResponseMessage `xml:",any"`
}

type operationResponse struct {
	ResponseMessages responseMessages `xml:"ResponseMessages"`
}

// ReadResult decodes the body element as a response carrying a
// ResponseMessages collection.
func ReadResult(r *Reader) (*Result, error) {
	start, err := r.ReadBody()
	if err != nil {
		return nil, err
	}

	var resp operationResponse
	if err := r.Decode(&resp, &start); err != nil {
		return nil, err
	}
	return &Result{
		Operation: start.Name.Local,
		Messages:  resp.ResponseMessages.Messages,
	}, nil
}

var errEmptyBody = errors.New("empty operation body")

// RawOperation sends a caller-supplied body element verbatim inside the
// envelope and decodes the generic ResponseMessages collection.
type RawOperation struct {
	Operation     string
	Body          []byte
	ServerVersion string

	// ThrowOnError makes ReadResponse return the first failed message as
	// an error alongside the result.
	ThrowOnError bool
}

func (o *RawOperation) Name() string { return o.Operation }

// Validate checks that the operation is named and its body is well-formed XML.
func (o *RawOperation) Validate() error {
	if strings.TrimSpace(o.Operation) == "" {
		return errors.New("operation name is required")
	}
	if len(bytes.TrimSpace(o.Body)) == 0 {
		return errEmptyBody
	}

	dec := xml.NewDecoder(bytes.NewReader(o.Body))
	roots := 0
	depth := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%s body: %w", o.Operation, err)
		}
		switch tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				roots++
			}
			depth++
		case xml.EndElement:
			depth--
		}
	}
	if roots != 1 {
		return fmt.Errorf("%s body: expected one root element, found %d", o.Operation, roots)
	}
	return nil
}

// WriteBody writes the full envelope.
func (o *RawOperation) WriteBody(w io.Writer) error {
	return WriteEnvelope(w, o.ServerVersion, func(w io.Writer) error {
		_, err := w.Write(o.Body)
		return err
	})
}

func (o *RawOperation) ReadResponse(r *Reader) (*Result, error) {
	result, err := ReadResult(r)
	if err != nil {
		return nil, err
	}
	if o.ThrowOnError {
		if err := result.FirstError(); err != nil {
			return result, err
		}
	}
	return result, nil
}
