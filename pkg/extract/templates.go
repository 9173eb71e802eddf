// Package extract turns a loaded document into a structured record (or a
// free-form answer) by retrieving relevant chunks and prompting a model with
// one of a fixed set of templates.
package extract

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed prompts/*.txt
var prompts embed.FS

// DocType is the value of the document-type selector.
type DocType string

const (
	Resume        DocType = "Resume"
	BillOfLoading DocType = "Bill of loading"
	Procurement   DocType = "Procurement"
	AskYourPDF    DocType = "Ask your pdf"
)

// DefaultOverlap is the number of characters shared by consecutive chunks.
const DefaultOverlap = 200

var ErrUnknownDocType = errors.New("unknown document type")

// Field describes one key of an extracted record. Fields with Items hold a
// list of objects made of those items.
type Field struct {
	Key   string
	Label string
	Items []Field
}

func (f Field) IsList() bool {
	return len(f.Items) > 0
}

// Template is the prompt and record shape for one document type. A template
// without a prompt is free-form: the user's question is sent as is and the
// reply is plain text.
type Template struct {
	Type         DocType
	Prompt       string
	ChunkSize    int
	ChunkOverlap int
	Fields       []Field

	schema *jsonschema.Schema
}

func (t *Template) FreeForm() bool {
	return t.Prompt == ""
}

// Query returns the text used both for similarity search and as the model
// question.
func (t *Template) Query(question string) string {
	if t.FreeForm() {
		return question
	}
	return t.Prompt
}

var (
	order     = []DocType{Resume, BillOfLoading, Procurement, AskYourPDF}
	templates = map[DocType]*Template{}
)

func init() {
	for _, t := range []*Template{
		{
			Type:         Resume,
			Prompt:       mustPrompt("resume.txt"),
			ChunkSize:    1000,
			ChunkOverlap: DefaultOverlap,
			Fields: []Field{
				{Key: "name", Label: "Name"},
				{Key: "email", Label: "Email"},
				{Key: "phone", Label: "Phone"},
				{Key: "location", Label: "Location"},
				{Key: "skills", Label: "Skills"},
				{Key: "languages", Label: "Languages"},
				{Key: "education", Label: "Education", Items: []Field{
					{Key: "institution", Label: "Institution"},
					{Key: "degree", Label: "Degree"},
					{Key: "year", Label: "Year"},
				}},
				{Key: "experience", Label: "Experience", Items: []Field{
					{Key: "company", Label: "Company"},
					{Key: "title", Label: "Title"},
					{Key: "period", Label: "Period"},
					{Key: "summary", Label: "Summary"},
				}},
			},
		},
		{
			Type:         BillOfLoading,
			Prompt:       mustPrompt("bill_of_loading.txt"),
			ChunkSize:    1250,
			ChunkOverlap: DefaultOverlap,
			Fields: []Field{
				{Key: "billNumber", Label: "Bill of lading number"},
				{Key: "shipper", Label: "Shipper"},
				{Key: "consignee", Label: "Consignee"},
				{Key: "notifyParty", Label: "Notify party"},
				{Key: "carrier", Label: "Carrier"},
				{Key: "vessel", Label: "Vessel"},
				{Key: "portOfLoading", Label: "Port of loading"},
				{Key: "portOfDischarge", Label: "Port of discharge"},
				{Key: "shipmentDate", Label: "Shipment date"},
				{Key: "containers", Label: "Containers"},
				{Key: "items", Label: "Items", Items: []Field{
					{Key: "description", Label: "Description"},
					{Key: "quantity", Label: "Quantity"},
					{Key: "weight", Label: "Weight"},
				}},
			},
		},
		{
			Type:         Procurement,
			Prompt:       mustPrompt("procurement.txt"),
			ChunkSize:    1250,
			ChunkOverlap: DefaultOverlap,
			Fields: []Field{
				{Key: "quoteNumber", Label: "Quote number"},
				{Key: "vendor", Label: "Vendor"},
				{Key: "vendorAddress", Label: "Vendor address"},
				{Key: "customer", Label: "Customer"},
				{Key: "quoteDate", Label: "Quote date"},
				{Key: "validUntil", Label: "Valid until"},
				{Key: "currency", Label: "Currency"},
				{Key: "paymentTerms", Label: "Payment terms"},
				{Key: "total", Label: "Total"},
				{Key: "lineItems", Label: "Line items", Items: []Field{
					{Key: "description", Label: "Description"},
					{Key: "quantity", Label: "Quantity"},
					{Key: "unitPrice", Label: "Unit price"},
					{Key: "amount", Label: "Amount"},
				}},
			},
		},
		{
			Type:         AskYourPDF,
			ChunkSize:    1000,
			ChunkOverlap: DefaultOverlap,
		},
	} {
		if !t.FreeForm() {
			t.schema = mustCompile(t)
		}
		templates[t.Type] = t
	}
}

// Lookup returns the template registered for a selector value.
func Lookup(docType DocType) (*Template, error) {
	t, ok := templates[docType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDocType, docType)
	}
	return t, nil
}

// Types lists the selector values in display order.
func Types() []DocType {
	out := make([]DocType, len(order))
	copy(out, order)
	return out
}

func mustPrompt(name string) string {
	b, err := prompts.ReadFile("prompts/" + name)
	if err != nil {
		panic(fmt.Sprintf("missing prompt %s: %v", name, err))
	}
	return string(b)
}

func mustCompile(t *Template) *jsonschema.Schema {
	b, err := json.Marshal(recordSchema(t.Fields))
	if err != nil {
		panic(fmt.Sprintf("marshal schema for %s: %v", t.Type, err))
	}

	url := "https://docbot.local/schemas/" + strings.ReplaceAll(strings.ToLower(string(t.Type)), " ", "_") + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(b)); err != nil {
		panic(fmt.Sprintf("add schema for %s: %v", t.Type, err))
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("compile schema for %s: %v", t.Type, err))
	}
	return schema
}

// recordSchema requires every top level key and rejects unknown ones. Scalar
// values may be strings or numbers; list entries tolerate missing keys.
func recordSchema(fields []Field) map[string]any {
	props := map[string]any{
		flagKey: map[string]any{"type": []string{"boolean", "string", "number"}},
	}
	required := []string{flagKey}
	for _, f := range fields {
		props[f.Key] = fieldSchema(f)
		required = append(required, f.Key)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func fieldSchema(f Field) map[string]any {
	if !f.IsList() {
		return map[string]any{"type": []string{"string", "number", "null"}}
	}
	items := map[string]any{}
	for _, item := range f.Items {
		items[item.Key] = fieldSchema(item)
	}
	return map[string]any{
		"type": "array",
		"items": map[string]any{
			"type":       "object",
			"properties": items,
		},
	}
}
