package core

import (
	jsoniter "github.com/json-iterator/go"
)

// JSONCodec is the codec used for every value that crosses the engine
// boundary.
var JSONCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// JsEscape returns s as a double-quoted JavaScript string literal.
func JsEscape(s string) string {
	b, err := JSONCodec.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}
