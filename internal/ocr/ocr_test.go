package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(rt roundTripFunc) *Client {
	return &Client{
		endpoint:   "https://vision.test/v1/images:annotate",
		apiKey:     "test-key",
		httpClient: &http.Client{Transport: rt, Timeout: time.Second},
	}
}

func TestRecognizeTextFullImageAnnotation(t *testing.T) {
	var gotReq annotateRequest
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		blob, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(blob, &gotReq)
		return &http.Response{
			StatusCode: http.StatusOK,
			Body: io.NopCloser(strings.NewReader(
				`{"responses":[{"textAnnotations":[{"description":"full text"},{"description":"full"}]}]}`)),
			Header: make(http.Header),
		}, nil
	})

	text, err := c.RecognizeText(context.Background(), []byte("png-bytes"))
	if err != nil {
		t.Fatal(err)
	}
	if text != "full text" {
		t.Fatalf("text=%q", text)
	}
	if len(gotReq.Requests) != 1 {
		t.Fatalf("requests=%d", len(gotReq.Requests))
	}
	if gotReq.Requests[0].Image.Content != base64.StdEncoding.EncodeToString([]byte("png-bytes")) {
		t.Fatal("image content not base64 encoded")
	}
	if gotReq.Requests[0].Features[0].Type != "TEXT_DETECTION" {
		t.Fatalf("features=%+v", gotReq.Requests[0].Features)
	}
}

func TestRecognizeTextNoAnnotations(t *testing.T) {
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(`{"responses":[{}]}`)),
			Header:     make(http.Header),
		}, nil
	})

	text, err := c.RecognizeText(context.Background(), []byte("blank"))
	if err != nil {
		t.Fatal(err)
	}
	if text != "" {
		t.Fatalf("text=%q", text)
	}
}

func TestRecognizeTextAPIError(t *testing.T) {
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body: io.NopCloser(strings.NewReader(
				`{"responses":[{"error":{"message":"invalid image"}}]}`)),
			Header: make(http.Header),
		}, nil
	})

	if _, err := c.RecognizeText(context.Background(), []byte("junk")); err == nil {
		t.Fatal("expected error from per-image error payload")
	}
}
