package expert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// httpExpert dispatches to a remote model server over a small JSON
// protocol: POST <base_url>/invoke with {text, task}, expecting
// {result} back. The remote decides which tasks it supports and
// reports unsupported ones with an "unsupported_task" error type.
type httpExpert struct {
	name             string
	baseURL          string
	apiKey           string
	client           *http.Client
	maxResponseBytes int64
}

// NewHTTP creates a remote expert.
func NewHTTP(name, baseURL, apiKey string, timeout time.Duration, maxResponseBytes int64) Expert {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if maxResponseBytes <= 0 {
		maxResponseBytes = 4 * 1024 * 1024
	}

	return &httpExpert{
		name:             name,
		baseURL:          strings.TrimRight(baseURL, "/"),
		apiKey:           apiKey,
		maxResponseBytes: maxResponseBytes,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type invokeRequest struct {
	Text string `json:"text"`
	Task string `json:"task"`
}

type invokeResponse struct {
	Result string `json:"result"`
}

type invokeErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (e *httpExpert) Invoke(ctx context.Context, text string, task Task) (string, error) {
	body, err := json.Marshal(invokeRequest{Text: text, Task: string(task)})
	if err != nil {
		return "", fmt.Errorf("marshal invoke request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		e.baseURL+"/invoke",
		bytes.NewReader(body),
	)
	if err != nil {
		return "", fmt.Errorf("create invoke request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("call expert backend: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := e.readLimited(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode >= 400 {
		var errBody invokeErrorResponse
		if err := json.Unmarshal(respBody, &errBody); err != nil {
			return "", fmt.Errorf("backend status %d with undecodable error body", resp.StatusCode)
		}
		if errBody.Error.Type == "unsupported_task" {
			return "", &UnsupportedTaskError{Expert: e.name, Task: task}
		}
		return "", fmt.Errorf("backend error: %s (type=%s)", errBody.Error.Message, errBody.Error.Type)
	}

	var out invokeResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("decode backend response: %w", err)
	}
	return out.Result, nil
}

func (e *httpExpert) readLimited(r io.Reader) ([]byte, error) {
	limited := io.LimitReader(r, e.maxResponseBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read backend response: %w", err)
	}
	if int64(len(body)) > e.maxResponseBytes {
		return nil, fmt.Errorf("backend response exceeded limit (%d bytes)", e.maxResponseBytes)
	}
	return body, nil
}
