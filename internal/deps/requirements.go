package deps

import "docket/internal/config"

// Requirements builds the standard dependency list for the configured
// toolchain. Tesseract and pdftoppm are optional because a deployment that
// only handles born-digital documents never invokes OCR.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "LibreOffice",
			Command:     cfg.Conversion.SofficeBinary,
			Description: "Converts Office documents to PDF",
		},
		{
			Name:        "pdftotext",
			Command:     cfg.Extraction.PdftotextBinary,
			Description: "Extracts embedded text from PDFs",
		},
		{
			Name:        "pdftoppm",
			Command:     cfg.Recognition.PdftoppmBinary,
			Description: "Rasterizes PDF pages for OCR",
			Optional:    true,
		},
		{
			Name:        "Tesseract",
			Command:     cfg.Recognition.TesseractBinary,
			Description: "Recognizes text on scanned pages",
			Optional:    true,
		},
	}
}

// Check runs CheckBinaries over the standard requirement list.
func Check(cfg *config.Config) []Status {
	return CheckBinaries(Requirements(cfg))
}
