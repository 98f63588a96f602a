package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"

// wtTag matches <w:t>text</w:t> including variants with attributes
// (e.g. <w:t xml:space="preserve">).
var wtTag = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)

// overridePart extracts the main-document PartName from [Content_Types].xml,
// in either attribute order.
var overridePart = []*regexp.Regexp{
	regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"`),
	regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"[^>]+PartName="([^"]+)"`),
}

// extractDocx extracts text from .docx bytes. A docx is a zip whose main body
// lives at word/document.xml (or wherever [Content_Types].xml points). All
// <w:t> text nodes are collected so content survives arbitrary run attributes.
func extractDocx(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("not a zip archive: %w", err)
	}

	docPath := mainDocumentPath(zr)
	docXML, err := readZipFile(zr, docPath)
	if err != nil {
		return "", err
	}

	parts := wtTag.FindAllStringSubmatch(string(docXML), -1)
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strings.TrimSpace(p[1]))
	}
	return strings.TrimSpace(b.String()), nil
}

func mainDocumentPath(zr *zip.Reader) string {
	data, err := readZipFile(zr, "[Content_Types].xml")
	if err == nil {
		for _, re := range overridePart {
			if m := re.FindStringSubmatch(string(data)); len(m) > 1 {
				return strings.TrimPrefix(m[1], "/")
			}
		}
	}
	return "word/document.xml"
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%s not found in archive", name)
}
