package exampleapp

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/morezero/idl-bridge/pkg/idl"
)

// problems maps a field path to what is wrong with it.
type problems map[string]string

func (p problems) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %s", k, p[k])
	}
	return strings.Join(parts, "; ")
}

func validateInner(s *idl.Struct) problems {
	p := problems{}
	if s == nil {
		p["val"] = "This field is required."
		return p
	}
	switch v := s.Get("val"); {
	case v == nil:
		p["val"] = "This field is required."
	case !inRange(v, math.MinInt16, math.MaxInt16):
		p["val"] = fmt.Sprintf("Value must be an integer between %d and %d.", math.MinInt16, math.MaxInt16)
	}
	return p
}

func validateContained(s *idl.Struct) problems {
	p := problems{}
	if s == nil {
		return p
	}
	if inner, ok := s.Get("innerStruct").(*idl.Struct); ok {
		for k, msg := range validateInner(inner) {
			p["innerStruct."+k] = msg
		}
	}
	if v := s.Get("some_string"); v != nil {
		if _, ok := v.(string); !ok {
			p["some_string"] = "Value must be a string."
		}
	}
	return p
}

func inRange(v any, lo, hi int64) bool {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	default:
		return false
	}
	return f == math.Trunc(f) && f >= float64(lo) && f <= float64(hi)
}
