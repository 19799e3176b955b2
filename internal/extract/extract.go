// Package extract converts uploaded document bytes into plain text for
// generation. PDF documents are parsed page by page; anything else is
// treated as UTF-8 text.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// ErrNoText is returned when the document yields no extractable text.
// The pipeline treats it as a fatal validation failure.
var ErrNoText = errors.New("no text content found in document")

var pdfMagic = []byte("%PDF-")

// Text extracts plain text from the document bytes.
func Text(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrNoText
	}

	if bytes.HasPrefix(data, pdfMagic) {
		return pdfText(data)
	}

	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: document is neither a PDF nor valid UTF-8 text", ErrNoText)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

// pdfText extracts the text of every page, joined by newlines.
func pdfText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to parse PDF: %w", err)
	}

	var builder strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			// A single unparseable page should not lose the rest of the
			// document.
			continue
		}
		builder.WriteString(content)
		builder.WriteString("\n")
	}

	text := strings.TrimSpace(builder.String())
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}
