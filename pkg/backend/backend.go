// Package backend is the typed client for the external recruiting backend.
// The interview core only needs three contracts from it: ephemeral realtime
// credentials, the configured question set, and feedback submission.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithAPIKey sets a bearer token sent on every request.
func WithAPIKey(key string) Option {
	return func(cl *Client) { cl.apiKey = key }
}

// Client talks to the recruiting backend. Safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a Client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// credentialResponse mirrors the provider session the backend mints:
// {"client_secret":{"value":"ek_..."}, ...}.
type credentialResponse struct {
	ClientSecret struct {
		Value string `json:"value"`
	} `json:"client_secret"`
}

// IssueRealtimeCredential requests a short-lived credential scoped to one
// realtime session. interviewContext (résumé text, job description, question
// set) is forwarded so the backend can bake it into the agent instructions.
func (c *Client) IssueRealtimeCredential(ctx context.Context, voice string, interviewContext map[string]string) (string, error) {
	q := url.Values{}
	q.Set("voice", voice)
	for k, v := range interviewContext {
		q.Set(k, v)
	}

	var resp credentialResponse
	if err := c.getJSON(ctx, "/webrtc/session?"+q.Encode(), &resp); err != nil {
		return "", fmt.Errorf("backend: issue credential: %w", err)
	}
	return resp.ClientSecret.Value, nil
}

// Question is one entry of the recruiter-configured question set.
type Question struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// Questions fetches the question set for an interview type.
func (c *Client) Questions(ctx context.Context, interviewType string) ([]Question, error) {
	var questions []Question
	path := "/questions?type=" + url.QueryEscape(interviewType)
	if err := c.getJSON(ctx, path, &questions); err != nil {
		return nil, fmt.Errorf("backend: questions: %w", err)
	}
	return questions, nil
}

// Feedback is a candidate's post-interview feedback submission.
type Feedback struct {
	SessionID string `json:"sessionId"`
	Rating    int    `json:"rating"`
	Comments  string `json:"comments,omitempty"`
}

// SubmitFeedback posts candidate feedback.
func (c *Client) SubmitFeedback(ctx context.Context, fb Feedback) error {
	body, err := json.Marshal(fb)
	if err != nil {
		return fmt.Errorf("backend: marshal feedback: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/feedback", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("backend: submit feedback: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend: submit feedback: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("backend: submit feedback: %s", readErrorBody(resp))
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s", readErrorBody(resp))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func readErrorBody(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	text := strings.TrimSpace(string(body))
	if text == "" {
		return fmt.Sprintf("status %d", resp.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", resp.StatusCode, text)
}
