package daily

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client wraps the conferencing platform's REST API: room creation with
// a SIP dial-in trunk, meeting-token minting, and SIP URI resolution.
// Every call is a bounded network operation; the orchestrator sequences
// them and stops at the first failure.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	// signer, when set, mints meeting tokens locally instead of
	// round-tripping to the token endpoint.
	signer *TokenSigner
}

// APIError is a non-success platform response; status and raw body are
// surfaced to the caller for logging, not parsed further.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daily: upstream status %d: %s", e.Status, e.Body)
}

// Room is the ephemeral handle produced by CreateRoom and consumed
// within a single orchestration run.
type Room struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// NewClient builds a platform client. httpClient may be nil, in which
// case a client with a 15s timeout is used. signer may be nil to always
// mint tokens through the REST endpoint.
func NewClient(baseURL, apiKey string, httpClient *http.Client, signer *TokenSigner) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		signer:     signer,
	}
}

type roomProperties struct {
	EnableDialout bool          `json:"enable_dialout"`
	SIP           sipProperties `json:"sip"`
}

type sipProperties struct {
	DisplayName string `json:"display_name"`
	Video       bool   `json:"video"`
	SIPMode     string `json:"sip_mode"`
}

// CreateRoom creates a room with dial-in SIP enabled and video
// disabled.
func (c *Client) CreateRoom(ctx context.Context) (Room, error) {
	body := map[string]any{
		"properties": roomProperties{
			EnableDialout: true,
			SIP: sipProperties{
				DisplayName: "AI Phone Bot",
				Video:       false,
				SIPMode:     "dial-in",
			},
		},
	}

	var room Room
	if err := c.do(ctx, http.MethodPost, "/rooms", body, &room); err != nil {
		return Room{}, err
	}
	if room.URL == "" || room.Name == "" {
		return Room{}, fmt.Errorf("daily: room response missing url or name")
	}
	return room, nil
}

// MintToken obtains an owner-level access token scoped to roomName,
// either self-signed or via the token endpoint.
func (c *Client) MintToken(ctx context.Context, roomName string) (string, error) {
	if c.signer != nil {
		return c.signer.Sign(roomName, time.Now())
	}

	body := map[string]any{
		"properties": map[string]any{
			"room_name": roomName,
			"is_owner":  true,
		},
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/meeting-tokens", body, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("daily: token response missing token")
	}
	return resp.Token, nil
}

// ResolveSIPURI fetches the room's configuration and extracts the
// platform-assigned SIP endpoint. If the endpoint is absent it falls
// back to the conventional sip:{room}@sip.daily.co form; that default
// is best-effort and not guaranteed to be dialable.
func (c *Client) ResolveSIPURI(ctx context.Context, roomName string) (string, error) {
	var resp struct {
		Config struct {
			SIPURI struct {
				Endpoint string `json:"endpoint"`
			} `json:"sip_uri"`
		} `json:"config"`
	}
	if err := c.do(ctx, http.MethodGet, "/rooms/"+roomName, nil, &resp); err != nil {
		return "", err
	}
	if ep := resp.Config.SIPURI.Endpoint; ep != "" {
		return "sip:" + ep, nil
	}
	return fmt.Sprintf("sip:%s@sip.daily.co", roomName), nil
}

// DeleteRoom removes a room, compensating for a pipeline that failed
// after room creation. A missing room is treated as already deleted.
func (c *Client) DeleteRoom(ctx context.Context, roomName string) error {
	err := c.do(ctx, http.MethodDelete, "/rooms/"+roomName, nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return nil
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("daily: decoding %s %s response: %w", method, path, err)
	}
	return nil
}
