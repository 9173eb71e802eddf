// Package render lays out an extracted record as the read-only form shown to
// the user.
package render

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/xhad/docbot/pkg/extract"
)

// FieldView is one labelled row of the form. Scalar fields carry one input
// per value; list fields carry one group of rows per entry.
type FieldView struct {
	Key    string
	Label  string
	Values []string
	Groups [][]FieldView
}

func (f FieldView) IsGroup() bool {
	return f.Groups != nil
}

// Form returns the rows for record in template order. A record whose doc
// flag is false is never read; ErrDocTypeMismatch is returned instead.
func Form(t *extract.Template, record *extract.Record) ([]FieldView, error) {
	if record == nil || !record.Matches {
		return nil, extract.ErrDocTypeMismatch
	}
	return fields(t.Fields, record.Values), nil
}

func fields(defs []extract.Field, values map[string]any) []FieldView {
	views := make([]FieldView, 0, len(defs))
	for _, f := range defs {
		view := FieldView{Key: f.Key, Label: f.Label}
		if f.IsList() {
			view.Groups = [][]FieldView{}
			items, _ := values[f.Key].([]any)
			for _, item := range items {
				entry, ok := item.(map[string]any)
				if !ok {
					continue
				}
				view.Groups = append(view.Groups, fields(f.Items, entry))
			}
		} else {
			view.Values = SplitValues(scalar(values[f.Key]))
		}
		views = append(views, view)
	}
	return views
}

// SplitValues splits s on every comma and trims the pieces, so n commas
// always give n+1 inputs even when some of them are empty.
func SplitValues(s string) []string {
	parts := strings.Split(s, ",")
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
	}
	return parts
}

func scalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
