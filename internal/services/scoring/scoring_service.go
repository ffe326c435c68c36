package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Request is what the scoring vendor receives for one submission.
type Request struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Comment      string `json:"comment"`
	TimeTakenMin int64  `json:"time_taken"`
}

// Result is the vendor's verdict. Score is on a 0-5 scale.
type Result struct {
	Score   float64 `json:"score"`
	Passed  bool    `json:"passed"`
	Summary string  `json:"summary"`
}

// Scorer is the AI scoring collaborator. Implementations must return an error
// for anything other than a parseable verdict; the pipeline turns every error
// into the fail-safe under_review path.
type Scorer interface {
	Score(ctx context.Context, req Request) (*Result, error)
}

// Client calls the hosted scoring model over HTTP.
type Client struct {
	baseURL string
	http    *resty.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	c := &Client{baseURL: strings.TrimRight(baseURL, "/")}

	c.http = resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		c.http.SetAuthToken(apiKey)
	}

	return c
}

func (c *Client) Score(ctx context.Context, req Request) (*Result, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		Post(c.baseURL + "/v1/score")
	if err != nil {
		return nil, fmt.Errorf("scoring request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("scoring service returned %d", resp.StatusCode())
	}

	var out Result
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("malformed scoring response: %w", err)
	}
	if out.Score < 0 || out.Score > 5 {
		return nil, fmt.Errorf("score %v outside 0-5 range", out.Score)
	}

	return &out, nil
}
