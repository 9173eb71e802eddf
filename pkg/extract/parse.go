package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const flagKey = "docFlag"

// ErrDocTypeMismatch means the model reported that the document is not of the
// selected type.
var ErrDocTypeMismatch = errors.New("document does not match the selected type")

// Record is a parsed model reply. Values is only populated when Matches is
// true.
type Record struct {
	Type    DocType
	Matches bool
	Values  map[string]any
}

// ParseError is returned when a model reply cannot be turned into a record.
type ParseError struct {
	Type DocType
	Raw  string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("could not parse %s reply: %v", e.Type, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parse decodes a model reply for a structured template. The doc flag is read
// before anything else; when it is false the record is returned empty along
// with ErrDocTypeMismatch. Otherwise the reply must match the template's
// schema exactly.
func Parse(t *Template, raw string) (*Record, error) {
	if t.FreeForm() {
		return nil, fmt.Errorf("%s replies are plain text", t.Type)
	}

	fail := func(err error) (*Record, error) {
		return nil, &ParseError{Type: t.Type, Raw: raw, Err: err}
	}

	body, ok := jsonObject(raw)
	if !ok {
		return fail(errors.New("no JSON object in reply"))
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fail(err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return fail(errors.New("reply is not a JSON object"))
	}

	flag, ok := obj[flagKey]
	if !ok {
		return fail(fmt.Errorf("reply has no %s", flagKey))
	}
	matches, err := docFlag(flag)
	if err != nil {
		return fail(err)
	}
	if !matches {
		return &Record{Type: t.Type}, fmt.Errorf("%w: %s", ErrDocTypeMismatch, t.Type)
	}

	if err := t.schema.Validate(v); err != nil {
		return fail(err)
	}

	delete(obj, flagKey)
	return &Record{Type: t.Type, Matches: true, Values: obj}, nil
}

func docFlag(v any) (bool, error) {
	switch f := v.(type) {
	case bool:
		return f, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "true", "yes", "1":
			return true, nil
		case "false", "no", "0":
			return false, nil
		}
	case json.Number:
		switch f.String() {
		case "1":
			return true, nil
		case "0":
			return false, nil
		}
	}
	return false, fmt.Errorf("%s has unexpected value %v", flagKey, v)
}

// jsonObject cuts the outermost object out of a reply, dropping markdown
// fences and any prose around it.
func jsonObject(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return "", false
	}
	return s[start : end+1], true
}
