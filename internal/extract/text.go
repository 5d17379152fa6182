// Package extract turns downloaded order documents into structured entity
// records: names, identifiers, addresses, and a sentiment label per entity.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"

	"github.com/regscan/crawler/internal/crawl"
)

// maxTextLength bounds how much document text is analyzed.
const maxTextLength = 100000

var pdfMagic = []byte("%PDF")

// DocumentText extracts plain text from document bytes. PDF content is read
// page by page; anything else is treated as HTML with a raw-text fallback.
func DocumentText(content []byte) (string, error) {
	if len(content) == 0 {
		return "", crawl.E(crawl.KindExtraction, "extract.text", fmt.Errorf("empty document"))
	}
	if bytes.HasPrefix(content, pdfMagic) {
		text, err := pdfText(content)
		if err != nil {
			return "", crawl.E(crawl.KindExtraction, "extract.text", err)
		}
		return text, nil
	}

	if text, err := htmlText(content); err == nil && text != "" {
		return text, nil
	}
	return string(content), nil
}

func pdfText(content []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "", fmt.Errorf("pdf has no extractable text")
	}
	return text, nil
}

func htmlText(content []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	main := doc.Find("main, #main-content, .content, article, .order-content").First()
	if main.Length() > 0 {
		return strings.TrimSpace(main.Text()), nil
	}
	return strings.TrimSpace(doc.Find("body").Text()), nil
}

// truncate caps the analysis input at maxTextLength bytes, backing up to a
// rune boundary so the tail stays valid UTF-8.
func truncate(text string) string {
	if len(text) <= maxTextLength {
		return text
	}
	cut := maxTextLength
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
