package api

import "encoding/json"

// ProcessedField extracts a string field from processed data JSON.
func ProcessedField(dataJSON, field, fallback string) string {
	if dataJSON == "" {
		return fallback
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(dataJSON), &data); err != nil {
		return fallback
	}
	value, ok := data[field].(string)
	if !ok || value == "" {
		return fallback
	}
	return value
}

// ProcessedTitle extracts the derived document title from processed data.
func ProcessedTitle(dataJSON string) string {
	return ProcessedField(dataJSON, "title", "Unknown")
}

// ProcessedSummary extracts the stored summary from processed data.
func ProcessedSummary(dataJSON string) string {
	return ProcessedField(dataJSON, "summary", "")
}

// ProcessedDocumentType extracts the classified document type from processed data.
func ProcessedDocumentType(dataJSON string) string {
	return ProcessedField(dataJSON, "document_type", "")
}

// EntryView flattens an entry plus its processed data for display surfaces.
type EntryView struct {
	Entry
	Title        string
	Summary      string
	DocumentType string
	Method       string
	Cached       bool
	Placeholder  bool
	Pages        int
}

// ViewEntry parses the processed data once and pairs it with the entry for rendering.
func ViewEntry(entry Entry) EntryView {
	fields := parseProcessedFields(string(entry.ProcessedData))
	return EntryView{
		Entry:        entry,
		Title:        fields.title,
		Summary:      fields.summary,
		DocumentType: fields.documentType,
		Method:       fields.method,
		Cached:       fields.cached,
		Placeholder:  fields.placeholder,
		Pages:        fields.pages,
	}
}

// processedFields holds commonly displayed processed-data values from a single JSON parse.
type processedFields struct {
	title        string
	summary      string
	documentType string
	method       string
	cached       bool
	placeholder  bool
	pages        int
}

// parseProcessedFields extracts all common display fields with a single JSON parse.
func parseProcessedFields(dataJSON string) processedFields {
	fields := processedFields{title: "Unknown"}
	if dataJSON == "" {
		return fields
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(dataJSON), &raw); err != nil {
		return fields
	}

	str := func(key, fallback string) string {
		if v, ok := raw[key].(string); ok && v != "" {
			return v
		}
		return fallback
	}
	boolean := func(key string) bool {
		v, _ := raw[key].(bool)
		return v
	}

	fields.title = str("title", "Unknown")
	fields.summary = str("summary", "")
	fields.documentType = str("document_type", "")
	fields.method = str("method", "")
	fields.cached = boolean("cached")
	fields.placeholder = boolean("placeholder")
	if pages, ok := raw["pages"].(float64); ok {
		fields.pages = int(pages)
	}
	return fields
}
