// Package trace emits request and response traces to a pluggable listener.
package trace

import (
	"fmt"
	"strings"
)

// Flag selects which parts of an exchange are traced.
type Flag uint

const (
	RequestHTTPHeaders Flag = 1 << iota
	Request
	ResponseHTTPHeaders
	Response

	None Flag = 0
	All       = RequestHTTPHeaders | Request | ResponseHTTPHeaders | Response
)

var flagLabels = []struct {
	flag  Flag
	label string
	name  string
}{
	{RequestHTTPHeaders, "EwsRequestHttpHeaders", "request_headers"},
	{Request, "EwsRequest", "request"},
	{ResponseHTTPHeaders, "EwsResponseHttpHeaders", "response_headers"},
	{Response, "EwsResponse", "response"},
}

// Has reports whether every bit of other is set in f.
func (f Flag) Has(other Flag) bool {
	return other != None && f&other == other
}

// String returns the trace type label, such as EwsRequest. Combined flags
// are joined with "|".
func (f Flag) String() string {
	if f == None {
		return "None"
	}
	var labels []string
	for _, fl := range flagLabels {
		if f&fl.flag != 0 {
			labels = append(labels, fl.label)
		}
	}
	return strings.Join(labels, "|")
}

// ParseFlags parses configuration names (request_headers, request,
// response_headers, response, all, none) into a flag set.
func ParseFlags(names []string) (Flag, error) {
	var f Flag
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		switch name {
		case "", "none":
			continue
		case "all":
			f |= All
			continue
		}

		found := false
		for _, fl := range flagLabels {
			if name == fl.name || name == strings.ToLower(fl.label) {
				f |= fl.flag
				found = true
				break
			}
		}
		if !found {
			return None, fmt.Errorf("unknown trace flag %q", name)
		}
	}
	return f, nil
}
