// Package questions looks up test content from the external question
// bank. The coordinator reads a test's questions once per question
// advance and treats the bank as a given collaborator.
package questions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Satelliteq/PixelHunt-sub000/internal/models"
)

// Bank resolves a test id to its ordered question list.
type Bank interface {
	GetTest(ctx context.Context, testID string) ([]models.Question, error)
}

// Client is an HTTP Bank against the content service.
type Client struct {
	baseURL string
	client  *http.Client
	headers map[string]string
}

// NewClient creates a question bank client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		headers: make(map[string]string),
	}
}

// SetHeader attaches a header (e.g. an API key) to every request.
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// GetTest fetches the ordered question list for a test.
func (c *Client) GetTest(ctx context.Context, testID string) ([]models.Question, error) {
	endpoint := fmt.Sprintf("%s/tests/%s/questions", c.baseURL, url.PathEscape(testID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		responseBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("question bank returned status code: %d, response: %s", resp.StatusCode, string(responseBody))
	}

	var questions []models.Question
	if err := json.NewDecoder(resp.Body).Decode(&questions); err != nil {
		return nil, fmt.Errorf("failed to decode questions: %w", err)
	}
	return questions, nil
}

// Static is an in-memory Bank for tests and seeded dev environments.
type Static map[string][]models.Question

// GetTest returns the seeded questions for a test id.
func (s Static) GetTest(ctx context.Context, testID string) ([]models.Question, error) {
	questions, ok := s[testID]
	if !ok {
		return nil, fmt.Errorf("unknown test: %s", testID)
	}
	return questions, nil
}
