package plivo

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

// Client issues call-control requests against the carrier's REST API.
// Requests are authenticated with the account's auth ID and token
// (HTTP basic auth) and bounded by the injected http.Client timeout.
type Client struct {
	baseURL    string
	authID     string
	authToken  string
	httpClient *http.Client
}

// APIError is a non-success carrier response. The raw body is carried
// for logging; it is never parsed further.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("plivo: upstream status %d: %s", e.Status, e.Body)
}

// NewClient builds a call-control client. httpClient may be nil, in
// which case a client with a 15s timeout is used.
func NewClient(baseURL, authID, authToken string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		authID:     authID,
		authToken:  authToken,
		httpClient: httpClient,
	}
}

// CreateCallRequest places one outbound call. The answer URL is hit
// when the callee picks up and must return a signaling document; the
// hangup and fallback URLs are status callbacks.
type CreateCallRequest struct {
	From        string `json:"from"`
	To          string `json:"to"`
	AnswerURL   string `json:"answer_url"`
	AnswerMeth  string `json:"answer_method"`
	HangupURL   string `json:"hangup_url,omitempty"`
	HangupMeth  string `json:"hangup_method,omitempty"`
	FallbackURL string `json:"fallback_answer_url,omitempty"`
	FallbackMth string `json:"fallback_method,omitempty"`
}

// CreateCallResponse reports the accepted call. CallUUID is whatever
// identifier the carrier chose to return; it is not guaranteed to be
// present, and the identifier on later webhooks may differ from it.
type CreateCallResponse struct {
	CallUUID string
	Message  string
}

// CreateCall POSTs to the account's call resource.
func (c *Client) CreateCall(ctx context.Context, req CreateCallRequest) (CreateCallResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return CreateCallResponse{}, err
	}

	url := fmt.Sprintf("%s/Account/%s/Call/", c.baseURL, c.authID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return CreateCallResponse{}, err
	}
	httpReq.SetBasicAuth(c.authID, c.authToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return CreateCallResponse{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return CreateCallResponse{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return CreateCallResponse{}, &APIError{Status: resp.StatusCode, Body: string(raw)}
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return CreateCallResponse{}, fmt.Errorf("plivo: decoding call response: %w", err)
	}

	out := CreateCallResponse{CallUUID: extractCallIdentifier(payload)}
	if msg, ok := payload["message"].(string); ok {
		out.Message = msg
	}
	return out, nil
}

// extractCallIdentifier pulls the call identifier out of a create-call
// response. The field name varies across carrier responses, so each
// known variant is tried in order. An empty result is not an error;
// the caller can still correlate the answer webhook by phone number.
func extractCallIdentifier(payload map[string]any) string {
	for _, field := range []string{"request_uuid", "call_uuid", "message_uuid"} {
		switch v := payload[field].(type) {
		case string:
			if v != "" {
				return v
			}
		case []any:
			// Some responses wrap the identifier in a single-element list.
			if len(v) > 0 {
				if s, ok := v[0].(string); ok && s != "" {
					return s
				}
			}
		}
	}
	return ""
}
