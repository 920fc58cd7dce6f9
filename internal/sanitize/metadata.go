package sanitize

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

const (
	// EmptySequence replaces sequences without elements.
	EmptySequence = "none"

	// SequenceSeparator joins the elements of a flattened sequence.
	SequenceSeparator = ", "
)

// Metadata converts a metadata mapping into one that only holds scalar values.
//
// Rules applied per value:
//   - string, integer, finite float and bool values pass through unchanged
//   - NaN and infinite floats become "NaN", "+Inf" or "-Inf"
//   - slices and arrays become their elements' string forms joined with ", "
//     (an empty sequence becomes "none")
//   - nil values, including typed nils, drop the key
//   - anything else is converted with its fmt string form
//
// The input is never modified and the result is never nil. Applying Metadata
// to its own output returns an equal mapping.
func Metadata(metadata map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		if isNil(v) {
			continue
		}
		if s, ok := nonFinite(v); ok {
			out[k] = s
			continue
		}
		if isScalar(v) {
			out[k] = v
			continue
		}
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Slice, reflect.Array:
			if _, isBytes := v.([]byte); isBytes {
				out[k] = string(v.([]byte))
				continue
			}
			out[k] = joinSequence(rv)
		default:
			out[k] = fmt.Sprintf("%v", v)
		}
	}
	return out
}

// MetadataToStrings sanitizes metadata and renders every value as a string.
// Backends that only index string metadata use this form.
func MetadataToStrings(metadata map[string]interface{}) map[string]string {
	clean := Metadata(metadata)
	out := make(map[string]string, len(clean))
	for k, v := range clean {
		out[k] = scalarString(v)
	}
	return out
}

func isScalar(v interface{}) bool {
	switch v.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}

// nonFinite reports the string form of a NaN or infinite float, which JSON
// and most backends cannot store as a number.
func nonFinite(v interface{}) (string, bool) {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	default:
		return "", false
	}
	if !math.IsNaN(f) && !math.IsInf(f, 0) {
		return "", false
	}
	return strconv.FormatFloat(f, 'g', -1, 64), true
}

func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func joinSequence(rv reflect.Value) string {
	if rv.Len() == 0 {
		return EmptySequence
	}
	parts := make([]string, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		parts[i] = scalarString(rv.Index(i).Interface())
	}
	return strings.Join(parts, SequenceSeparator)
}

// scalarString renders a single element. Booleans use the capitalized form
// existing collections were written with.
func scalarString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "True"
		}
		return "False"
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}
