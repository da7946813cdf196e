// Package client is a typed Go client for the approval server's HTTP and
// WebSocket API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kevinaud/rpc-streaming-prototype/internal/session"
	"github.com/kevinaud/rpc-streaming-prototype/internal/ws"
)

// APIError is a refusal reported by the server. It unwraps to the matching
// session error kind, so callers can test it with errors.Is.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	return ws.KindForCode(e.Code)
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithClientID sets the ID reported when subscribing. A random one is used
// otherwise.
func WithClientID(id string) Option {
	return func(c *Client) { c.clientID = id }
}

type Client struct {
	baseURL  string
	clientID string
	client   *http.Client
}

// New creates a client targeting the given base URL (e.g. "http://127.0.0.1:50051").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		clientID: uuid.NewString(),
		client:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ClientID() string {
	return c.clientID
}

func (c *Client) CreateSession(ctx context.Context) (session.Session, error) {
	var out ws.SessionResponse
	if err := c.post(ctx, "/api/sessions", nil, &out); err != nil {
		return session.Session{}, err
	}
	return out.Session, nil
}

func (c *Client) GetSession(ctx context.Context, sessionID string) (session.Session, error) {
	var out ws.SessionResponse
	if err := c.get(ctx, sessionPath(sessionID), &out); err != nil {
		return session.Session{}, err
	}
	return out.Session, nil
}

// SessionExists reports false only when the server says the session is
// unknown; any other failure is returned.
func (c *Client) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	_, err := c.GetSession(ctx, sessionID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, session.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (c *Client) SubmitProposal(ctx context.Context, sessionID, text string) (session.Proposal, error) {
	var out ws.ProposalResponse
	body := ws.SubmitProposalRequest{Text: text}
	if err := c.post(ctx, sessionPath(sessionID)+"/proposals", body, &out); err != nil {
		return session.Proposal{}, err
	}
	return out.Proposal, nil
}

func (c *Client) SubmitDecision(ctx context.Context, sessionID, proposalID string, approved bool) (session.Proposal, error) {
	var out ws.ProposalResponse
	body := ws.SubmitDecisionRequest{Approved: &approved}
	path := sessionPath(sessionID) + "/proposals/" + url.PathEscape(proposalID) + "/decision"
	if err := c.post(ctx, path, body, &out); err != nil {
		return session.Proposal{}, err
	}
	return out.Proposal, nil
}

func sessionPath(sessionID string) string {
	return "/api/sessions/" + url.PathEscape(sessionID)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var er ws.ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil || er.Error.Code == "" {
		return &APIError{Status: resp.StatusCode, Code: ws.CodeInternal, Message: strings.TrimSpace(string(body))}
	}
	return &APIError{Status: resp.StatusCode, Code: er.Error.Code, Message: er.Error.Message}
}
