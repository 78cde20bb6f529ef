package completion

import (
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SummaryPayload is the structured summary the model is asked to return.
type SummaryPayload struct {
	Summary      string   `json:"summary"`
	DocumentType string   `json:"document_type,omitempty"`
	KeyPoints    []string `json:"key_points,omitempty"`
	Parties      []string `json:"parties,omitempty"`
}

const summarySchemaJSON = `{
	"type": "object",
	"required": ["summary"],
	"properties": {
		"summary": {"type": "string", "minLength": 1},
		"document_type": {"type": "string"},
		"key_points": {"type": "array", "items": {"type": "string"}},
		"parties": {"type": "array", "items": {"type": "string"}}
	}
}`

var summarySchema = jsonschema.MustCompileString("summary.json", summarySchemaJSON)

// decodeSummaryPayload parses the model's summary JSON and validates it
// against the embedded schema. Fenced or prose-wrapped payloads are
// sanitized first; content that still fails validation is reported so the
// caller can degrade to a plain-text summary.
func decodeSummaryPayload(content string) (SummaryPayload, error) {
	var empty SummaryPayload
	var raw any
	if err := DecodeJSON(content, &raw); err != nil {
		return empty, fmt.Errorf("summary payload: %w", err)
	}
	if err := summarySchema.Validate(raw); err != nil {
		return empty, fmt.Errorf("summary payload does not match schema: %w", err)
	}
	var payload SummaryPayload
	if err := DecodeJSON(content, &payload); err != nil {
		return empty, fmt.Errorf("summary payload: %w", err)
	}
	if strings.TrimSpace(payload.Summary) == "" {
		return empty, errors.New("summary payload: blank summary")
	}
	return payload, nil
}
