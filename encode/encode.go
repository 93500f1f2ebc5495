package encode

import (
	"encoding/json"
	"io"
)

// JSON returns the compact JSON encoding of v
func JSON(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// JSONIndented encodes a value into a writer with a single space indentation
func JSONIndented(v interface{}, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", " ")

	return encoder.Encode(v)
}
