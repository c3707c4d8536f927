// Package conv collects tiny helper functions that are not part of the public
// API but aid internal conversions, notably coercing JSON-RPC message
// identifiers into plain integers.
package conv

import (
	"encoding/json"
	"strconv"
)

// AsInt attempts to coerce the supplied value into an int, returning false
// when the value is absent or not an integral number. JSON decoding yields
// float64 (or json.Number) for numeric ids, and some peers echo ids back as
// strings.
func AsInt(value interface{}) (int, bool) {
	switch actual := value.(type) {
	case int:
		return actual, true
	case int32:
		return int(actual), true
	case int64:
		return int(actual), true
	case uint64:
		return int(actual), true
	case float64:
		result := int(actual)
		if float64(result) != actual {
			return 0, false
		}
		return result, true
	case json.Number:
		result, err := actual.Int64()
		if err != nil {
			return 0, false
		}
		return int(result), true
	case string:
		result, err := strconv.Atoi(actual)
		if err != nil {
			return 0, false
		}
		return result, true
	}
	return 0, false
}
