package pipeline

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	pdf "github.com/ledongthuc/pdf"
)

// ExtractHTMLText strips markup and returns the visible text with newline
// separators between nodes. Unparseable input yields an empty string; a
// corrupt part must never abort the rest of the message.
func ExtractHTMLText(src string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		fmt.Printf("html extraction failed size=%d: %v\n", len(src), err)
		return ""
	}
	doc.Find("script,style").Remove()

	var lines []string
	body := doc.Find("body")
	if body.Length() > 0 {
		collectText(body, &lines)
	} else {
		collectText(doc.Selection, &lines)
	}
	return strings.Join(lines, "\n")
}

func collectText(sel *goquery.Selection, lines *[]string) {
	sel.Contents().Each(func(_ int, node *goquery.Selection) {
		if goquery.NodeName(node) == "#text" {
			if text := strings.TrimSpace(node.Text()); text != "" {
				*lines = append(*lines, text)
			}
			return
		}
		collectText(node, lines)
	})
}

// ExtractPDFText concatenates per-page text with newline separators.
// A corrupt document degrades to whatever pages were readable.
func ExtractPDFText(content []byte) (out string) {
	// The pdf package panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("pdf extraction panic size=%d: %v\n", len(content), r)
			out = ""
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		fmt.Printf("pdf extraction failed size=%d: %v\n", len(content), err)
		return ""
	}

	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			fmt.Printf("pdf page %d unreadable: %v\n", i, err)
			continue
		}
		pages = append(pages, text)
	}
	return strings.TrimSpace(strings.Join(pages, "\n"))
}
