// Package extract provides plain-text extraction from uploaded document formats.
//
// Supported formats are a closed set dispatched through a function table, so
// adding a format is a single registration in the table below.
package extract

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format identifies a supported document format.
type Format string

const (
	FormatPDF         Format = "pdf"
	FormatDoc         Format = "doc"  // legacy Word (OLE compound file)
	FormatDocx        Format = "docx" // OOXML Word
	FormatXlsx        Format = "xlsx"
	FormatText        Format = "txt"
	FormatMarkdown    Format = "md"
	FormatUnsupported Format = ""
)

// extractFunc turns a full byte buffer into plain text.
type extractFunc func(content []byte) (string, error)

// formatTable maps every supported format to its extraction function.
// Exhaustive over the Format constants above (minus FormatUnsupported).
var formatTable = map[Format]extractFunc{
	FormatPDF:      extractPDF,
	FormatDoc:      extractDoc,
	FormatDocx:     extractDocx,
	FormatXlsx:     extractXlsx,
	FormatText:     extractPlain,
	FormatMarkdown: extractPlain,
}

// mimeFormats maps declared MIME types to formats.
var mimeFormats = map[string]Format{
	"application/pdf":    FormatPDF,
	"application/msword": FormatDoc,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": FormatDocx,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       FormatXlsx,
	"text/plain":    FormatText,
	"text/markdown": FormatMarkdown,
}

// extFormats maps file extensions to formats, for sources without a MIME type
// (e.g. the watch directory).
var extFormats = map[string]Format{
	".pdf":  FormatPDF,
	".doc":  FormatDoc,
	".docx": FormatDocx,
	".xlsx": FormatXlsx,
	".txt":  FormatText,
	".md":   FormatMarkdown,
}

// FormatForMime returns the format for a declared MIME type, or FormatUnsupported.
// Parameters after ";" (charset etc.) are ignored.
func FormatForMime(mimeType string) Format {
	base := strings.TrimSpace(strings.ToLower(mimeType))
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	return mimeFormats[base]
}

// FormatForPath returns the format for a file path by extension, or FormatUnsupported.
func FormatForPath(path string) Format {
	return extFormats[strings.ToLower(filepath.Ext(path))]
}

// Supported reports whether the declared MIME type maps to a known format.
func Supported(mimeType string) bool {
	return FormatForMime(mimeType) != FormatUnsupported
}

// Error wraps an extraction failure with its format.
type Error struct {
	Format Format
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Format, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Extract returns the plain text of content for the given format.
// The whole buffer is consumed; files are fully received before extraction.
func Extract(format Format, content []byte) (string, error) {
	fn, ok := formatTable[format]
	if !ok {
		return "", &Error{Format: format, Err: fmt.Errorf("unsupported format %q", format)}
	}
	text, err := fn(content)
	if err != nil {
		return "", &Error{Format: format, Err: err}
	}
	return text, nil
}
