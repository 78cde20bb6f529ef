// Package extraction pulls text out of canonical documents.
//
// Plain-text files are read directly with a size cap. PDFs go through
// pdftotext first; when the per-page character density falls below the
// scanned-document threshold the extractor falls back to the OCR pool and
// keeps whichever path recovered more text. Extracted text is normalized
// before it reaches summarization: control characters are dropped, trailing
// whitespace trimmed, and blank-line runs collapsed.
package extraction
