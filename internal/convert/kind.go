package convert

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind is a declared value type for a wire property.
type Kind int

// Supported declared types. The zero Kind is not a valid type.
const (
	Boolean Kind = iota + 1
	ByteArray
	Short
	Int
	Long
	Float
	Double
	Date
	UUID
	String
)

var kindNames = map[Kind]string{
	Boolean:   "Boolean",
	ByteArray: "ByteArray",
	Short:     "Short",
	Int:       "Int",
	Long:      "Long",
	Float:     "Float",
	Double:    "Double",
	Date:      "Date",
	UUID:      "UUID",
	String:    "String",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// dateLayouts are tried in order when parsing a Date value.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// wireDateLayout is the format dates are written in.
const wireDateLayout = "2006-01-02T15:04:05Z"

// isKind reports whether v's dynamic type is exactly the Go type of k.
func isKind(k Kind, v any) bool {
	switch v.(type) {
	case bool:
		return k == Boolean
	case []byte:
		return k == ByteArray
	case int16:
		return k == Short
	case int32:
		return k == Int
	case int64:
		return k == Long
	case float32:
		return k == Float
	case float64:
		return k == Double
	case time.Time:
		return k == Date
	case uuid.UUID:
		return k == UUID
	case string:
		return k == String
	}
	return false
}

// isArrayOf reports whether v is a slice whose elements are exactly the Go
// type of k.
func isArrayOf(k Kind, v any) bool {
	switch v.(type) {
	case []bool:
		return k == Boolean
	case [][]byte:
		return k == ByteArray
	case []int16:
		return k == Short
	case []int32:
		return k == Int
	case []int64:
		return k == Long
	case []float32:
		return k == Float
	case []float64:
		return k == Double
	case []time.Time:
		return k == Date
	case []uuid.UUID:
		return k == UUID
	case []string:
		return k == String
	}
	return false
}

// parseKind parses s into the Go representation of k.
func parseKind(k Kind, s string) (any, error) {
	switch k {
	case Boolean:
		return strconv.ParseBool(strings.TrimSpace(s))
	case ByteArray:
		return base64.StdEncoding.DecodeString(s)
	case Short:
		v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 16)
		return int16(v), err
	case Int:
		v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
		return int32(v), err
	case Long:
		return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	case Float:
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
		return float32(v), err
	case Double:
		return strconv.ParseFloat(strings.TrimSpace(s), 64)
	case Date:
		return parseDate(strings.TrimSpace(s))
	case UUID:
		return uuid.Parse(strings.TrimSpace(s))
	case String:
		return s, nil
	}
	return nil, fmt.Errorf("no parser for kind %s", k)
}

func parseDate(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// formatKind renders v in its wire form. Values of an unexpected type fall
// back to fmt formatting.
func formatKind(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(x)
	case []byte:
		return base64.StdEncoding.EncodeToString(x)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case time.Time:
		return x.UTC().Format(wireDateLayout)
	case uuid.UUID:
		return x.String()
	case string:
		return x
	}
	return fmt.Sprint(v)
}
