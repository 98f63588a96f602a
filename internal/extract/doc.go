package extract

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/richardlehane/mscfb"
)

// minRun is the shortest character run kept from a WordDocument stream scan.
const minRun = 4

// extractDoc extracts text from a legacy Word (.doc) OLE compound file.
// The WordDocument stream is scanned for printable runs in both the
// single-byte and UTF-16LE encodings the format interleaves. Layout fidelity
// is not a goal; the output is best-effort searchable text.
func extractDoc(content []byte) (string, error) {
	r, err := mscfb.New(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("not an OLE compound file: %w", err)
	}
	for {
		entry, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("walk OLE entries: %w", err)
		}
		if entry.Name != "WordDocument" {
			continue
		}
		stream, err := io.ReadAll(entry)
		if err != nil {
			return "", fmt.Errorf("read WordDocument stream: %w", err)
		}
		return scanTextRuns(stream), nil
	}
	return "", fmt.Errorf("WordDocument stream not found")
}

// scanTextRuns collects printable character runs from raw stream bytes,
// treating 2-byte sequences with a zero high byte as UTF-16LE.
func scanTextRuns(data []byte) string {
	var out strings.Builder
	var run []rune

	flush := func() {
		if len(run) >= minRun {
			if out.Len() > 0 {
				out.WriteByte(' ')
			}
			out.WriteString(strings.TrimSpace(string(run)))
		}
		run = run[:0]
	}

	for i := 0; i < len(data); i++ {
		c := data[i]
		// UTF-16LE printable char
		if i+1 < len(data) && data[i+1] == 0 && printable(rune(c)) {
			run = append(run, rune(c))
			i++
			continue
		}
		if printable(rune(c)) {
			run = append(run, rune(c))
			continue
		}
		flush()
	}
	flush()
	return strings.TrimSpace(out.String())
}

func printable(r rune) bool {
	return r == ' ' || r == '\t' || unicode.IsPrint(r)
}
