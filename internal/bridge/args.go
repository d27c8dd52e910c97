package bridge

import (
	"fmt"
	"reflect"

	"github.com/cryguy/jshost/internal/core"
	jsoniter "github.com/json-iterator/go"
)

// Args are the JSON-encoded arguments of one script call. Missing and
// undefined arguments are JSON null.
type Args []jsoniter.RawMessage

// Len returns the number of arguments passed.
func (a Args) Len() int { return len(a) }

// Decode unmarshals argument i into v. A missing argument decodes as null.
// A value of the wrong shape fails with "argument <i>: expected <type>".
func (a Args) Decode(i int, v any) error {
	raw := []byte("null")
	if i < len(a) {
		raw = a[i]
	}
	if err := core.JSONCodec.Unmarshal(raw, v); err != nil {
		t := reflect.TypeOf(v)
		if t != nil && t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		return fmt.Errorf("argument %d: expected %v, got %s", i, t, raw)
	}
	return nil
}
