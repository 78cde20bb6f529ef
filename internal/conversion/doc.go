// Package conversion materializes queue entries as canonical documents.
//
// A Source names a document by URL or local path. Convert fetches remote
// sources with a size-capped streaming download, classifies the format from
// the filename or Content-Type, and either passes PDFs and plain text
// through or runs office formats (.doc/.docx/.rtf/.odt) through soffice in a
// throwaway work dir. Converter processes are globally bounded by a shared
// permit pool, so at most the configured number run at once regardless of
// how many batches are in flight.
//
// soffice startup failures (locked user profile, missing runtime) are
// recognized by a fixed marker set and retried with capped exponential
// backoff; every other failure, including missing or empty output, fails the
// document immediately. Converted documents land in the staging documents
// area; work dirs are removed on every exit path.
package conversion
