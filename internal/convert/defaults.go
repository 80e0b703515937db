package convert

import (
	"time"

	"github.com/google/uuid"
)

// defaultValues maps every supported kind to the value used when the wire
// data is absent. It is built once and never modified.
var defaultValues = map[Kind]any{
	Boolean:   false,
	ByteArray: nil,
	Short:     int16(0),
	Int:       int32(0),
	Long:      int64(0),
	Float:     float32(0),
	Double:    float64(0),
	Date:      time.Date(1, time.January, 1, 12, 0, 0, 0, time.UTC),
	UUID:      uuid.Nil,
	String:    nil,
}

// DefaultValue returns the default for k. ByteArray and String default to
// nil (absent). ok is false when k is not a supported kind.
func DefaultValue(k Kind) (v any, ok bool) {
	v, ok = defaultValues[k]
	return v, ok
}
