package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"triage/internal/config"
)

// Provider calls the remote embedding endpoint. The provider identity is
// recorded on stored documents so vectors from different models are never
// compared against each other.
type Provider struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

type embedRequest struct {
	Content embedContent `json:"content"`
}

type embedContent struct {
	Parts []embedPart `json:"parts"`
}

type embedPart struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding struct {
		Values []float64 `json:"values"`
	} `json:"embedding"`
}

func NewProvider(cfg config.Config) (*Provider, error) {
	if err := cfg.Require("GOOGLE_AI_API_KEY", cfg.AIAPIKey); err != nil {
		return nil, err
	}
	return &Provider{
		baseURL:    strings.TrimRight(cfg.AIBaseURL, "/"),
		apiKey:     cfg.AIAPIKey,
		model:      cfg.EmbeddingModel,
		httpClient: &http.Client{Timeout: time.Duration(cfg.AITimeoutMs) * time.Millisecond},
	}, nil
}

func (p *Provider) Model() string {
	return p.model
}

// Embed returns the fixed-length vector for one formatted text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float64, error) {
	payload := embedRequest{Content: embedContent{Parts: []embedPart{{Text: text}}}}

	blob, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/models/%s:embedContent?key=%s", p.baseURL, p.model, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(blob))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedding api error: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out embedResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	if len(out.Embedding.Values) == 0 {
		return nil, fmt.Errorf("embedding response empty")
	}
	return out.Embedding.Values, nil
}
