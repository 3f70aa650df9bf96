package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"triage/internal/config"
)

// Client performs optical character recognition against the Cloud Vision
// images:annotate endpoint.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

type annotateRequest struct {
	Requests []imageRequest `json:"requests"`
}

type imageRequest struct {
	Image    imageContent `json:"image"`
	Features []feature    `json:"features"`
}

type imageContent struct {
	Content string `json:"content"`
}

type feature struct {
	Type string `json:"type"`
}

type annotateResponse struct {
	Responses []struct {
		TextAnnotations []struct {
			Description string `json:"description"`
		} `json:"textAnnotations"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		endpoint:   cfg.OCREndpoint,
		apiKey:     cfg.OCRAPIKey,
		httpClient: &http.Client{Timeout: time.Duration(cfg.OCRTimeoutMs) * time.Millisecond},
	}
}

// RecognizeText returns the full text detected in one image. An image with
// no recognizable text yields an empty string, not an error.
func (c *Client) RecognizeText(ctx context.Context, image []byte) (string, error) {
	payload := annotateRequest{
		Requests: []imageRequest{{
			Image:    imageContent{Content: base64.StdEncoding.EncodeToString(image)},
			Features: []feature{{Type: "TEXT_DETECTION"}},
		}},
	}

	blob, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"?key="+c.apiKey, bytes.NewReader(blob))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("ocr api error: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out annotateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode ocr response: %w", err)
	}
	if len(out.Responses) == 0 {
		return "", nil
	}
	first := out.Responses[0]
	if first.Error != nil {
		return "", fmt.Errorf("ocr api: %s", first.Error.Message)
	}
	if len(first.TextAnnotations) == 0 {
		return "", nil
	}
	// The first annotation is the full-image text; the rest are per word.
	return first.TextAnnotations[0].Description, nil
}
