package convert

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// typedSlice turns parsed element values into a slice of the entry's Go type.
func (e *Entry) typedSlice(values []any) (any, error) {
	switch e.kind {
	case Boolean:
		return collect[bool](values)
	case ByteArray:
		return collect[[]byte](values)
	case Short:
		return collect[int16](values)
	case Int:
		return collect[int32](values)
	case Long:
		return collect[int64](values)
	case Float:
		return collect[float32](values)
	case Double:
		return collect[float64](values)
	case Date:
		return collect[time.Time](values)
	case UUID:
		return collect[uuid.UUID](values)
	case String:
		return collect[string](values)
	}
	return nil, fmt.Errorf("no slice type for kind %s", e.kind)
}

func collect[T any](values []any) ([]T, error) {
	out := make([]T, len(values))
	for i, v := range values {
		typed, ok := v.(T)
		if !ok {
			var zero T
			return nil, fmt.Errorf("element %d: got %T, want %T", i, v, zero)
		}
		out[i] = typed
	}
	return out, nil
}
