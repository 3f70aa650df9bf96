package internal

import "time"

// Attachment is one extracted attachment: the original filename plus the
// plain text pulled out of it (PDF page text or OCR output).
type Attachment struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// CanonicalRecord is the normalized, format-independent representation of
// one ingested message. Immutable once produced by the normalizer.
type CanonicalRecord struct {
	Subject     string
	Sender      string
	Recipients  []string
	Body        string
	Attachments []Attachment
	ReceivedAt  time.Time
}

type AttachmentRef struct {
	Filename    string `json:"filename"`
	Description string `json:"description"`
}

type Keywords struct {
	RequestTypeKeywords    map[string]string `json:"request_type_keywords"`
	SubRequestTypeKeywords map[string]string `json:"sub_request_type_keywords"`
	NotRelevantKeywords    map[string]string `json:"not_relevant_keywords"`
}

// Confidence scores are in [0,1].
type Confidence struct {
	RequestType    float64 `json:"request_type_confidence"`
	SubRequestType float64 `json:"sub_request_type_confidence"`
	Assignment     float64 `json:"assignment_confidence"`
}

type RequestDetail struct {
	Intent                  string          `json:"intent"`
	RequestType             string          `json:"request_type"`
	SubRequestType          string          `json:"sub_request_type"`
	CustomerName            string          `json:"customer_name"`
	EmailAddress            string          `json:"email_address"`
	AccountUserID           string          `json:"account_user_id"`
	Urgency                 string          `json:"urgency"`
	DetailedDescription     string          `json:"detailed_description"`
	Impact                  string          `json:"impact"`
	StepsTaken              string          `json:"steps_taken"`
	Attachments             []AttachmentRef `json:"attachments"`
	Keywords                Keywords        `json:"keywords"`
	SuggestedAssignee       string          `json:"suggested_assignee"`
	AssignmentJustification string          `json:"assignment_justification"`
	Confidence              Confidence      `json:"confidence"`
}

// ClassificationResult is what the intent service returns for one record.
// A failed remote call yields the sentinel form (MainIntent "ERROR") with
// the same shape, so downstream code never sees a partial result.
type ClassificationResult struct {
	MainIntent     string          `json:"main_intent"`
	RequestDetails []RequestDetail `json:"request_details"`
}

type EmbeddingMeta struct {
	TextLength     int  `json:"text_length"`
	HasAttachments bool `json:"has_attachments"`
	NumRecipients  int  `json:"num_recipients"`
}

// EmailDocument is the terminal, stored entity: canonical record plus
// classification, embedding and duplicate flags. A nil Embedding means the
// provider failed and duplicate detection was skipped for this record.
type EmailDocument struct {
	ID             string          `json:"id,omitempty"`
	Subject        string          `json:"subject"`
	Sender         string          `json:"sender"`
	Recipients     []string        `json:"recipients"`
	Body           string          `json:"body"`
	Attachments    []Attachment    `json:"attachments"`
	MainIntent     string          `json:"main_intent"`
	RequestDetails []RequestDetail `json:"request_details"`
	Embedding      []float64       `json:"embedding,omitempty"`
	EmbeddingModel string          `json:"embedding_model,omitempty"`
	EmbeddingMeta  *EmbeddingMeta  `json:"embedding_metadata,omitempty"`
	Duplicate      bool            `json:"duplicate"`
	DuplicateOfID  string          `json:"duplicate_of_id,omitempty"`
	DuplicateScore float64         `json:"duplicate_score,omitempty"`
	ReceivedAt     time.Time       `json:"received_at"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// SimilarEmail is one ranked hit from the vector-similarity search.
type SimilarEmail struct {
	ID      string  `json:"id"`
	Subject string  `json:"subject"`
	Sender  string  `json:"sender"`
	Score   float64 `json:"score"`
}
