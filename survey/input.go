package survey

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mbolis/intake-survey/model"
	"github.com/pkg/errors"
)

// inputKind normalizes local values for one model.InputKind.
type inputKind interface {
	// normalize converts an edited value to the kind's local representation.
	normalize(q model.Question, v any) (any, error)
	// empty is the local value of an unanswered question.
	empty() any
	// multiline kinds keep Enter for themselves instead of advancing.
	multiline() bool
}

var inputKinds = map[model.InputKind]inputKind{
	model.InputText:     textInput{multi: true},
	model.InputNumber:   numberInput{},
	model.InputDate:     dateInput{},
	model.InputSelect:   choiceInput{},
	model.InputRadio:    choiceInput{},
	model.InputCheckbox: checkboxInput{},
}

func kindOf(q model.Question) inputKind {
	if k, ok := inputKinds[q.Kind]; ok {
		return k
	}
	// unknown kinds render as a plain single-line input
	return textInput{}
}

func invalid(q model.Question, format string, args ...any) error {
	return errors.WithMessagef(ErrInvalidValue, "question %s: "+format, append([]any{q.ID}, args...)...)
}

type textInput struct{ multi bool }

func (textInput) normalize(q model.Question, v any) (any, error) {
	switch v := v.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case float64, int, int64, bool, json.Number:
		return fmt.Sprint(v), nil
	}
	return nil, invalid(q, "expected text, got %T", v)
}
func (textInput) empty() any        { return "" }
func (t textInput) multiline() bool { return t.multi }

// numberInput holds float64 values, or "" while the field is blank.
type numberInput struct{}

func (numberInput) normalize(q model.Question, v any) (any, error) {
	switch v := v.(type) {
	case nil:
		return "", nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, invalid(q, "not a number: %q", v)
		}
		return f, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return "", nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, invalid(q, "not a number: %q", v)
		}
		return f, nil
	}
	return nil, invalid(q, "expected a number, got %T", v)
}
func (numberInput) empty() any      { return "" }
func (numberInput) multiline() bool { return false }

const dateLayout = "2006-01-02"

type dateInput struct{}

func (dateInput) normalize(q model.Question, v any) (any, error) {
	switch v := v.(type) {
	case nil:
		return "", nil
	case string:
		if v == "" {
			return "", nil
		}
		if _, err := time.Parse(dateLayout, v); err != nil {
			return nil, invalid(q, "not a date: %q", v)
		}
		return v, nil
	}
	return nil, invalid(q, "expected a date, got %T", v)
}
func (dateInput) empty() any      { return "" }
func (dateInput) multiline() bool { return false }

// choiceInput is a single pick among the options (select and radio).
type choiceInput struct{}

func (choiceInput) normalize(q model.Question, v any) (any, error) {
	switch v := v.(type) {
	case nil:
		return "", nil
	case string:
		if v == "" || hasOption(q, v) {
			return v, nil
		}
		return nil, invalid(q, "unknown option %q", v)
	}
	return nil, invalid(q, "expected an option value, got %T", v)
}
func (choiceInput) empty() any      { return "" }
func (choiceInput) multiline() bool { return false }

// checkboxInput is the only set-valued kind: a de-duplicated list of option
// values in the order they were picked.
type checkboxInput struct{}

func (checkboxInput) normalize(q model.Question, v any) (any, error) {
	var items []any
	switch v := v.(type) {
	case nil:
		return []string{}, nil
	case string:
		if v == "" {
			return []string{}, nil
		}
		items = []any{v}
	case []string:
		items = make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
	case []any:
		items = v
	default:
		return nil, invalid(q, "expected a list of options, got %T", v)
	}

	set := make([]string, 0, len(items))
	seen := map[string]bool{}
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, invalid(q, "expected option values, got %T", item)
		}
		if len(q.Options) > 0 && !hasOption(q, s) {
			return nil, invalid(q, "unknown option %q", s)
		}
		if !seen[s] {
			seen[s] = true
			set = append(set, s)
		}
	}
	return set, nil
}
func (checkboxInput) empty() any      { return []string{} }
func (checkboxInput) multiline() bool { return false }

func hasOption(q model.Question, value string) bool {
	for _, o := range q.Options {
		if o.Value == value {
			return true
		}
	}
	return false
}

// toggle adds or removes option from a checkbox set.
func toggle(set []string, option string, checked bool) []string {
	out := make([]string, 0, len(set)+1)
	for _, s := range set {
		if s != option {
			out = append(out, s)
		}
	}
	if checked {
		out = append(out, option)
	}
	return out
}
