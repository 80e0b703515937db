// Package convert converts untyped wire values into typed property values.
//
// Every Entry is bound to one declared Kind and optionally marked as an
// array. Scalar values are represented by a fixed Go type per Kind:
//
//	Boolean   bool
//	ByteArray []byte
//	Short     int16
//	Int       int32
//	Long      int64
//	Float     float32
//	Double    float64
//	Date      time.Time
//	UUID      uuid.UUID
//	String    string
//
// Array values are slices of those types.
package convert

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/nhle/ews-client/internal/ewserr"
)

// Sentinel causes for conversion failures. Each is wrapped in an
// *ewserr.Error so callers can match either the kind or the exact cause.
var (
	ErrIncompatibleArrayType   = errors.New("incompatible type for array")
	ErrArrayNotSingleDimension = errors.New("array must have a single dimension")
	ErrArrayEmpty              = errors.New("array must have at least one element")
	ErrValueNotConvertible     = errors.New("value cannot be converted")
	ErrMalformedValue          = errors.New("malformed wire value")
)

// ParseFunc parses a single wire string. For array entries it is called once
// per element.
type ParseFunc func(s string) (any, error)

// FormatFunc renders a single value in its wire form.
type FormatFunc func(v any) string

// Entry converts values for one declared type.
type Entry struct {
	kind     Kind
	isArray  bool
	parse    ParseFunc
	toString FormatFunc
}

// Option customizes an Entry.
type Option func(*Entry)

// AsArray marks the entry as holding a single-dimension array of its kind.
func AsArray() Option {
	return func(e *Entry) { e.isArray = true }
}

// WithParse overrides the string parser.
func WithParse(fn ParseFunc) Option {
	return func(e *Entry) { e.parse = fn }
}

// WithFormat overrides the string formatter.
func WithFormat(fn FormatFunc) Option {
	return func(e *Entry) { e.toString = fn }
}

// NewEntry returns an Entry for kind. It panics when kind has no default
// value, since that can only be a programming error.
func NewEntry(kind Kind, opts ...Option) *Entry {
	if _, ok := defaultValues[kind]; !ok {
		panic(fmt.Sprintf("convert: no default value entry for type %s", kind))
	}

	e := &Entry{
		kind:     kind,
		parse:    func(s string) (any, error) { return parseKind(kind, s) },
		toString: formatKind,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Kind returns the declared type.
func (e *Entry) Kind() Kind { return e.kind }

// IsArray reports whether the entry holds array values.
func (e *Entry) IsArray() bool { return e.isArray }

// DefaultValue returns the process-wide default for the entry's kind.
func (e *Entry) DefaultValue() any {
	v, _ := DefaultValue(e.kind)
	return v
}

// ChangeType returns value as a value of the entry's type.
//
// A scalar value that already has the exact type is returned unchanged.
// Numeric, Boolean and Date entries also accept other scalars, which are
// rendered as strings and parsed. An array value must be a non-empty,
// single-dimension slice whose elements exactly match the declared type; it
// is never coerced.
func (e *Entry) ChangeType(value any) (any, error) {
	if e.isArray {
		if err := e.validateArray(value); err != nil {
			return nil, err
		}
		return value, nil
	}

	if isKind(e.kind, value) {
		return value, nil
	}

	switch e.kind {
	case Short, Int, Long, Float, Double, Boolean, Date:
		s, ok := value.(string)
		if !ok {
			s = fmt.Sprint(value)
		}
		v, err := parseKind(e.kind, s)
		if err == nil {
			return v, nil
		}
		return nil, e.notConvertible(value, err)
	}

	return nil, e.notConvertible(value, nil)
}

func (e *Entry) notConvertible(value any, cause error) error {
	err := ErrValueNotConvertible
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrValueNotConvertible, cause)
	}
	return ewserr.Wrap(ewserr.KindTypeConversion, err,
		"The value '%v' of type %T can't be converted to a value of type %s.", value, value, e.kind)
}

// ConvertToValue parses s with the entry's parser.
func (e *Entry) ConvertToValue(s string) (any, error) {
	v, err := e.parse(s)
	if err != nil {
		return nil, ewserr.Wrap(ewserr.KindTypeConversion,
			fmt.Errorf("%w: %w", ErrMalformedValue, err),
			"The value '%s' couldn't be converted to type %s.", s, e.kind)
	}
	return v, nil
}

// ConvertToValueOrDefault returns the kind's default when s is nil or
// empty, and ConvertToValue(*s) otherwise.
func (e *Entry) ConvertToValueOrDefault(s *string) (any, error) {
	if s == nil || *s == "" {
		return e.DefaultValue(), nil
	}
	return e.ConvertToValue(*s)
}

// ConvertToValueOrDefaultString is ConvertToValueOrDefault for callers that
// model an absent value as the empty string.
func (e *Entry) ConvertToValueOrDefaultString(s string) (any, error) {
	return e.ConvertToValueOrDefault(&s)
}

// ConvertToArray parses each element of values and returns a typed slice.
func (e *Entry) ConvertToArray(values []string) (any, error) {
	if len(values) == 0 {
		return nil, ewserr.Wrap(ewserr.KindArrayValidation, ErrArrayEmpty,
			"Array of type %s must have at least one element.", e.kind)
	}

	parsed := make([]any, 0, len(values))
	for _, s := range values {
		v, err := e.ConvertToValue(s)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, v)
	}

	out, err := e.typedSlice(parsed)
	if err != nil {
		return nil, ewserr.Wrap(ewserr.KindTypeConversion, err,
			"Values can't be collected into an array of type %s.", e.kind)
	}
	return out, nil
}

// ConvertToString renders v in its wire form.
func (e *Entry) ConvertToString(v any) string {
	return e.toString(v)
}

func (e *Entry) validateArray(value any) error {
	if value == nil {
		return e.incompatibleArray(value)
	}

	// Rank is measured relative to the element type, so [][]byte is a
	// single-dimension array for ByteArray entries.
	rank := sliceRank(reflect.TypeOf(value))
	if e.kind == ByteArray {
		rank--
	}

	switch {
	case rank < 1:
		return e.incompatibleArray(value)
	case rank > 1:
		return ewserr.Wrap(ewserr.KindArrayValidation, ErrArrayNotSingleDimension,
			"Array value has more than one dimension.")
	case reflect.ValueOf(value).Len() == 0:
		return ewserr.Wrap(ewserr.KindArrayValidation, ErrArrayEmpty,
			"Array must have at least one element.")
	case !isArrayOf(e.kind, value):
		return e.incompatibleArray(value)
	}
	return nil
}

func (e *Entry) incompatibleArray(value any) error {
	return ewserr.Wrap(ewserr.KindArrayValidation, ErrIncompatibleArrayType,
		"Type %T can't be used as an array of type %s.", value, e.kind)
}

// sliceRank counts the nesting depth of slice types.
func sliceRank(t reflect.Type) int {
	rank := 0
	for t != nil && t.Kind() == reflect.Slice {
		rank++
		t = t.Elem()
	}
	return rank
}
