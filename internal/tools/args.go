package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/laraib28/todo-k8s/internal/llm"
	"github.com/laraib28/todo-k8s/internal/tasks"
)

// argError reports an argument that does not match the tool schema. Its
// text is returned to the model so it can correct the call.
type argError struct {
	msg string
}

func (e *argError) Error() string { return e.msg }

func badArg(format string, a ...any) error {
	return &argError{msg: fmt.Sprintf(format, a...)}
}

// args wraps the decoded argument object of one tool call.
type args map[string]any

// present reports whether key was supplied with a non-null value.
func (a args) present(key string) bool {
	v, ok := a[key]
	return ok && v != nil
}

// integer reads an integral number. Models sometimes send numbers as
// strings, and decoders may hand over float64 or json.Number.
func (a args) integer(key string, required bool) (int64, bool, error) {
	if !a.present(key) {
		if required {
			return 0, false, badArg("%s is required", key)
		}
		return 0, false, nil
	}

	var f float64
	switch v := a[key].(type) {
	case float64:
		f = v
	case int:
		return int64(v), true, nil
	case int64:
		return v, true, nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true, nil
		}
		parsed, err := v.Float64()
		if err != nil {
			return 0, false, badArg("%s must be an integer", key)
		}
		f = parsed
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, false, badArg("%s must be an integer", key)
		}
		return n, true, nil
	default:
		return 0, false, badArg("%s must be an integer", key)
	}

	if f != math.Trunc(f) || math.IsInf(f, 0) || f >= 1<<63 || f < math.MinInt64 {
		return 0, false, badArg("%s must be an integer", key)
	}
	return int64(f), true, nil
}

func (a args) str(key string, required bool) (string, bool, error) {
	if !a.present(key) {
		if required {
			return "", false, badArg("%s is required", key)
		}
		return "", false, nil
	}
	s, ok := a[key].(string)
	if !ok {
		return "", false, badArg("%s must be a string", key)
	}
	return s, true, nil
}

func (a args) boolean(key string, required bool) (*bool, error) {
	if !a.present(key) {
		if required {
			return nil, badArg("%s is required", key)
		}
		return nil, nil
	}
	switch v := a[key].(type) {
	case bool:
		return &v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil, badArg("%s must be a boolean", key)
		}
		return &b, nil
	default:
		return nil, badArg("%s must be a boolean", key)
	}
}

// priority reads an optional priority. An unknown value is reported with
// the given message so create and update keep their distinct wording.
func (a args) priority(invalidMsg string) (tasks.Priority, bool, error) {
	s, ok, err := a.str("priority", false)
	if err != nil || !ok {
		return "", false, err
	}
	p, err := tasks.ParsePriority(s)
	if err != nil {
		return "", false, &argError{msg: invalidMsg}
	}
	return p, true, nil
}

// rawArguments returns the undecodable argument text, if the provider
// could not parse the model's output.
func (a args) rawArguments() (string, bool) {
	if len(a) != 1 {
		return "", false
	}
	raw, ok := a[llm.RawArgumentsKey].(string)
	return raw, ok
}
