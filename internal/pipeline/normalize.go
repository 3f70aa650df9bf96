package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/jhillyerd/enmime"

	"triage/internal"
)

// OCRReader turns image bytes into recognized text.
type OCRReader interface {
	RecognizeText(ctx context.Context, image []byte) (string, error)
}

// Normalizer converts one raw message payload into a CanonicalRecord.
// Extraction hooks are fields so tests can substitute the PDF and HTML
// backends without fixture documents.
type Normalizer struct {
	ocr      OCRReader
	pdfText  func(content []byte) string
	htmlText func(src string) string
}

func NewNormalizer(ocr OCRReader) *Normalizer {
	return &Normalizer{
		ocr:      ocr,
		pdfText:  ExtractPDFText,
		htmlText: ExtractHTMLText,
	}
}

// Normalize parses one raw message. An error means the envelope is
// unusable and the message should be skipped by the caller; it is not a
// transport failure and not worth a retry with the same payload.
func (n *Normalizer) Normalize(ctx context.Context, raw []byte) (*internal.CanonicalRecord, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}

	subject := strings.TrimSpace(env.GetHeader("Subject"))
	sender := strings.TrimSpace(env.GetHeader("From"))
	date := strings.TrimSpace(env.GetHeader("Date"))
	if subject == "" || sender == "" || date == "" {
		return nil, fmt.Errorf("missing envelope fields: subject=%t sender=%t date=%t",
			subject != "", sender != "", date != "")
	}
	receivedAt, err := mail.ParseDate(date)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", date, err)
	}

	record := &internal.CanonicalRecord{
		Subject:     subject,
		Sender:      sender,
		Recipients:  recipientList(env),
		ReceivedAt:  receivedAt.UTC(),
		Attachments: []internal.Attachment{},
	}

	// Plain text wins over HTML-derived text when both are present.
	body := env.Text
	if strings.TrimSpace(body) == "" && env.HTML != "" {
		body = n.htmlText(env.HTML)
	}
	record.Body = strings.TrimSpace(body)

	for _, att := range env.Attachments {
		name := strings.TrimSpace(att.FileName)
		lower := strings.ToLower(name)
		switch {
		case strings.HasSuffix(lower, ".pdf"):
			record.Attachments = append(record.Attachments, internal.Attachment{
				Name:    name,
				Content: n.pdfText(att.Content),
			})
		case strings.HasSuffix(lower, ".png"),
			strings.HasSuffix(lower, ".jpg"),
			strings.HasSuffix(lower, ".jpeg"):
			text := n.imageText(ctx, att.Content)
			if strings.TrimSpace(text) != "" {
				record.Attachments = append(record.Attachments, internal.Attachment{
					Name:    name,
					Content: text,
				})
			}
		}
		// Every other attachment kind is ignored.
	}

	return record, nil
}

func (n *Normalizer) imageText(ctx context.Context, content []byte) string {
	if n.ocr == nil {
		return ""
	}
	text, err := n.ocr.RecognizeText(ctx, content)
	if err != nil {
		fmt.Printf("ocr extraction failed size=%d: %v\n", len(content), err)
		return ""
	}
	return text
}

func recipientList(env *enmime.Envelope) []string {
	out := []string{}
	for _, header := range []string{"To", "Cc"} {
		addrs, err := env.AddressList(header)
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			out = append(out, addr.Address)
		}
	}
	return out
}
