package completion

import "strings"

// summarySystemPrompt captures the instructions sent to the configured model
// when summarizing an extracted contract document. Update this text centrally
// so every call stays in sync.
const summarySystemPrompt = `You are a government contracting analyst. Summarize the contract document you are given.

You must respond ONLY with a JSON object like:
{"summary": "two or three paragraphs", "document_type": "solicitation", "key_points": ["fact"], "parties": ["organization"]}

Rules:

- "summary" is required: two or three plain-text paragraphs covering scope, obligations, pricing, and deadlines.

- "document_type" is one short label, for example solicitation, amendment, statement of work, or pricing sheet.

- "key_points" lists the handful of facts a reviewer must not miss.

- "parties" names the organizations involved when the document states them.

- Do not invent facts that are not in the document. Omit a field rather than guessing.`

// maxPromptChars bounds how much extracted text rides along in one request.
const maxPromptChars = 60000

func buildSummaryUserPrompt(req SummaryRequest) string {
	var b strings.Builder
	b.WriteString("Contract: ")
	b.WriteString(strings.TrimSpace(req.ContractID))
	b.WriteString("\nFilename: ")
	b.WriteString(strings.TrimSpace(req.Filename))
	b.WriteString("\n\nDocument text (first ~60k chars):\n")
	text := req.Text
	if len(text) > maxPromptChars {
		text = text[:maxPromptChars]
	}
	b.WriteString(text)
	return b.String()
}
