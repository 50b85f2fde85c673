package survey

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"

	"github.com/mbolis/intake-survey/model"
	"github.com/pkg/errors"
)

// textMirrorLimit caps, in characters, the text copy of a structured answer.
const textMirrorLimit = 1000

// encodeValue splits a local value into the two answer columns. Lists, maps
// and structs are stored structurally with a truncated text mirror; anything
// else is stored as text with no structured value.
func encodeValue(v any) (text string, structured json.RawMessage, err error) {
	if isStructured(v) {
		b, err := json.Marshal(v)
		if err != nil {
			return "", nil, errors.Wrap(err, "encode_answer")
		}
		return truncate(string(b), textMirrorLimit), json.RawMessage(b), nil
	}
	return stringify(v), nil, nil
}

func isStructured(v any) bool {
	if v == nil {
		return false
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct:
		return true
	}
	return false
}

func stringify(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(v)
}

func truncate(s string, limit int) string {
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

// decodeAnswer returns the local value stored in a: the structured value when
// present, else the text, else "".
func decodeAnswer(a *model.Answer) any {
	if a == nil {
		return ""
	}
	if len(a.JSON) > 0 && string(a.JSON) != "null" {
		var v any
		if err := json.Unmarshal(a.JSON, &v); err == nil {
			return v
		}
	}
	if a.Text != nil {
		return *a.Text
	}
	return ""
}
