package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"triage/internal"
	"triage/internal/config"
)

// Classifier sends canonical email content to the intent-classification
// service and parses the structured result. It never surfaces an error to
// the pipeline: any remote or parse failure degrades to the sentinel
// result so storage still captures the raw email content.
type Classifier struct {
	baseURL    string
	apiKey     string
	model      string
	prompt     string
	httpClient *http.Client
}

type generateRequest struct {
	SystemInstruction content   `json:"system_instruction"`
	Contents          []content `json:"contents"`
	GenerationConfig  genConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type genConfig struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func New(cfg config.Config) (*Classifier, error) {
	if err := cfg.Require("GOOGLE_AI_API_KEY", cfg.AIAPIKey); err != nil {
		return nil, err
	}
	if err := cfg.Require("MODEL_NAME", cfg.ModelName); err != nil {
		return nil, err
	}

	prompt := defaultPrompt
	if cfg.PromptPath != "" {
		blob, err := os.ReadFile(cfg.PromptPath)
		if err != nil {
			return nil, fmt.Errorf("read classification prompt: %w", err)
		}
		prompt = string(blob)
	}

	return &Classifier{
		baseURL:    strings.TrimRight(cfg.AIBaseURL, "/"),
		apiKey:     cfg.AIAPIKey,
		model:      cfg.ModelName,
		prompt:     prompt,
		httpClient: &http.Client{Timeout: time.Duration(cfg.AITimeoutMs) * time.Millisecond},
	}, nil
}

// Classify returns the classification for one record, or the sentinel
// result when the remote call fails.
func (c *Classifier) Classify(ctx context.Context, rec internal.CanonicalRecord) internal.ClassificationResult {
	keywords := DetectKeywords(rec.Body)
	result, err := c.invoke(ctx, rec, keywords)
	if err != nil {
		fmt.Printf("classification failed subject=%q: %v\n", rec.Subject, err)
		return SentinelResult()
	}
	return result
}

func (c *Classifier) invoke(ctx context.Context, rec internal.CanonicalRecord, keywords []string) (internal.ClassificationResult, error) {
	attachments := make([]internal.AttachmentRef, 0, len(rec.Attachments))
	for _, att := range rec.Attachments {
		attachments = append(attachments, internal.AttachmentRef{
			Filename:    att.Name,
			Description: att.Content,
		})
	}
	attachmentsJSON, _ := json.Marshal(attachments)

	detected := "None"
	if len(keywords) > 0 {
		detected = strings.Join(keywords, ", ")
	}

	message := fmt.Sprintf("Subject: %s\nFrom: %s\nBody: %s\nAttachments: %s\nDetected Keywords: %s",
		rec.Subject, rec.Sender, rec.Body, string(attachmentsJSON), detected)

	payload := generateRequest{
		SystemInstruction: content{Parts: []part{{Text: c.prompt}}},
		Contents:          []content{{Role: "user", Parts: []part{{Text: message}}}},
		GenerationConfig:  genConfig{Temperature: 0},
	}

	body, err := c.post(ctx, fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model), payload)
	if err != nil {
		return internal.ClassificationResult{}, err
	}

	var resp generateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return internal.ClassificationResult{}, fmt.Errorf("decode response: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return internal.ClassificationResult{}, fmt.Errorf("empty model response")
	}

	text := stripCodeFence(resp.Candidates[0].Content.Parts[0].Text)
	var result internal.ClassificationResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return internal.ClassificationResult{}, fmt.Errorf("parse model output: %w", err)
	}
	if strings.TrimSpace(result.MainIntent) == "" {
		return internal.ClassificationResult{}, fmt.Errorf("model output missing main_intent")
	}
	return result, nil
}

func (c *Classifier) post(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	blob, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"?key="+c.apiKey, bytes.NewReader(blob))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < 3 {
				backoff := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
				time.Sleep(backoff)
				lastErr = fmt.Errorf("classification status %d", resp.StatusCode)
				continue
			}
			return nil, fmt.Errorf("classification api error: status=%d body=%s", resp.StatusCode, string(body))
		}
		return body, nil
	}
	return nil, lastErr
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	return strings.TrimSpace(text)
}

// SentinelResult is the well-formed placeholder used when the remote
// classifier fails. It conforms to the full schema so downstream code
// never special-cases a partial shape.
func SentinelResult() internal.ClassificationResult {
	return internal.ClassificationResult{
		MainIntent: "ERROR",
		RequestDetails: []internal.RequestDetail{{
			Intent:                  "N/A",
			RequestType:             "N/A",
			SubRequestType:          "N/A",
			CustomerName:            "N/A",
			EmailAddress:            "N/A",
			AccountUserID:           "unavailable",
			Urgency:                 "unavailable",
			DetailedDescription:     "Error processing email",
			Impact:                  "unavailable",
			StepsTaken:              "N/A",
			Attachments:             []internal.AttachmentRef{},
			Keywords: internal.Keywords{
				RequestTypeKeywords:    map[string]string{},
				SubRequestTypeKeywords: map[string]string{},
				NotRelevantKeywords:    map[string]string{},
			},
			SuggestedAssignee:       "N/A",
			AssignmentJustification: "Error occurred during processing",
		}},
	}
}
