package convert

import (
	"fmt"
	"strings"
	"time"

	"github.com/nhle/ews-client/internal/ewserr"
)

// MapiType names an extended property type as it appears on the wire.
type MapiType string

const (
	MapiApplicationTime      MapiType = "ApplicationTime"
	MapiApplicationTimeArray MapiType = "ApplicationTimeArray"
	MapiBinary               MapiType = "Binary"
	MapiBinaryArray          MapiType = "BinaryArray"
	MapiBoolean              MapiType = "Boolean"
	MapiCLSID                MapiType = "CLSID"
	MapiCLSIDArray           MapiType = "CLSIDArray"
	MapiCurrency             MapiType = "Currency"
	MapiCurrencyArray        MapiType = "CurrencyArray"
	MapiDouble               MapiType = "Double"
	MapiDoubleArray          MapiType = "DoubleArray"
	MapiError                MapiType = "Error"
	MapiFloat                MapiType = "Float"
	MapiFloatArray           MapiType = "FloatArray"
	MapiInteger              MapiType = "Integer"
	MapiIntegerArray         MapiType = "IntegerArray"
	MapiLong                 MapiType = "Long"
	MapiLongArray            MapiType = "LongArray"
	MapiNull                 MapiType = "Null"
	MapiObject               MapiType = "Object"
	MapiObjectArray          MapiType = "ObjectArray"
	MapiShort                MapiType = "Short"
	MapiShortArray           MapiType = "ShortArray"
	MapiSystemTime           MapiType = "SystemTime"
	MapiSystemTimeArray      MapiType = "SystemTimeArray"
	MapiString               MapiType = "String"
	MapiStringArray          MapiType = "StringArray"
)

// mapiEntries is built once at init and read-only afterwards.
var mapiEntries = buildMapiEntries()

func buildMapiEntries() map[MapiType]*Entry {
	systemTime := []Option{
		WithParse(func(s string) (any, error) {
			t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
			if err != nil {
				return nil, err
			}
			return t.UTC(), nil
		}),
	}

	m := map[MapiType]*Entry{
		MapiApplicationTime: NewEntry(Double),
		MapiBinary:          NewEntry(ByteArray),
		MapiBoolean:         NewEntry(Boolean),
		MapiCLSID:           NewEntry(UUID),
		MapiCurrency:        NewEntry(Long),
		MapiDouble:          NewEntry(Double),
		MapiFloat:           NewEntry(Float),
		MapiInteger:         NewEntry(Int),
		MapiLong:            NewEntry(Long),
		MapiShort:           NewEntry(Short),
		MapiSystemTime:      NewEntry(Date, systemTime...),
		MapiString:          NewEntry(String),
	}

	m[MapiApplicationTimeArray] = NewEntry(Double, AsArray())
	m[MapiBinaryArray] = NewEntry(ByteArray, AsArray())
	m[MapiCLSIDArray] = NewEntry(UUID, AsArray())
	m[MapiCurrencyArray] = NewEntry(Long, AsArray())
	m[MapiDoubleArray] = NewEntry(Double, AsArray())
	m[MapiFloatArray] = NewEntry(Float, AsArray())
	m[MapiIntegerArray] = NewEntry(Int, AsArray())
	m[MapiLongArray] = NewEntry(Long, AsArray())
	m[MapiShortArray] = NewEntry(Short, AsArray())
	m[MapiSystemTimeArray] = NewEntry(Date, append(systemTime, AsArray())...)
	m[MapiStringArray] = NewEntry(String, AsArray())

	return m
}

// Lookup returns the entry for a MAPI property type. Error, Null, Object and
// ObjectArray have no value representation and yield ewserr.ErrNotSupported.
func Lookup(t MapiType) (*Entry, error) {
	if e, ok := mapiEntries[t]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("MAPI property type %q: %w", t, ewserr.ErrNotSupported)
}
