// Package recognition provides OCR for scanned documents.
//
// This package handles:
//   - Rasterizing a PDF into one PNG per page (pdftoppm)
//   - Running tesseract over each page with bounded parallelism
//   - Assembling per-page results into page-ordered text
//
// Page recognitions run through a worker pool created per call and released
// unconditionally, so repeated calls never accumulate workers. Failures are
// isolated per page: a page that exhausts its retry allowance contributes no
// text but never cancels its siblings, and the call only fails when every
// page fails.
//
// Configuration options (binaries, language, DPI, pool size) are passed via
// Config.
package recognition
