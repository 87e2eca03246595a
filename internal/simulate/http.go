package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/huddle/internal/domain/model"
)

// Client talks to a running huddle service.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

type eventBody struct {
	OrgID    string `json:"org_id"`
	StartsAt string `json:"starts_at"`
}

type candidateBody struct {
	UserID       string   `json:"user_id"`
	Interests    []string `json:"interests"`
	SocialEnergy int      `json:"social_energy"`
	City         string   `json:"city,omitempty"`
}

type assembleBody struct {
	Size       int             `json:"size"`
	Candidates []candidateBody `json:"candidates"`
}

// Ready checks /readyz.
func (c *Client) Ready(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/readyz", nil, nil, http.StatusOK)
}

// PutEvent creates an event far enough ahead that groups are not frozen.
func (c *Client) PutEvent(ctx context.Context, eventID string, startsAt time.Time) error {
	body := eventBody{OrgID: "simulation", StartsAt: startsAt.UTC().Format(time.RFC3339)}
	return c.do(ctx, http.MethodPut, "/events/"+eventID, body, nil, http.StatusOK)
}

// Assemble posts a pool and returns the service's result.
func (c *Client) Assemble(ctx context.Context, eventID string, pool []model.Candidate, size int) (model.AssembleResult, error) {
	body := assembleBody{Size: size, Candidates: make([]candidateBody, len(pool))}
	for i, cand := range pool {
		body.Candidates[i] = candidateBody{
			UserID:       cand.UserID,
			Interests:    cand.Profile.Interests,
			SocialEnergy: cand.Profile.SocialEnergy,
			City:         cand.Profile.City,
		}
	}
	var res model.AssembleResult
	err := c.do(ctx, http.MethodPost, "/events/"+eventID+"/groups", body, &res, http.StatusCreated, http.StatusOK)
	return res, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, accept ...int) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if !accepted(resp.StatusCode, accept) {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func accepted(status int, accept []int) bool {
	for _, a := range accept {
		if status == a {
			return true
		}
	}
	return false
}
