// Package mailsource is the mailbox-provider boundary: paginated id fetch,
// message fetch, and label management over a Gmail-style REST API.
package mailsource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/ykarpov/inboxflow/app/mail"
)

// maxAuthAttempts bounds the refresh-and-retry loop on a 401. The source
// this replaces recursed on auth failure; a counter keeps a persistently
// bad credential from looping forever.
const maxAuthAttempts = 2

// TokenSource supplies the bearer token for mail-source calls. Refresh is
// called after a 401; acquisition and storage of credentials live outside
// this package.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) error
}

// StaticTokenSource returns a fixed token and cannot refresh.
type StaticTokenSource string

func (s StaticTokenSource) Token(ctx context.Context) (string, error) {
	return string(s), nil
}

func (s StaticTokenSource) Refresh(ctx context.Context) error {
	return fmt.Errorf("mailsource: static token cannot be refreshed")
}

// AuthError reports that the mail source rejected the credential even after
// a refresh.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("mail source credential rejected: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// LabelResult reports a partial-failure label write.
type LabelResult struct {
	Success []string
	Failed  []LabelFailure
}

type LabelFailure struct {
	ID  string `json:"id"`
	Err string `json:"error"`
}

// Client calls the mail-source REST API. Outbound calls share one rate
// limiter; HTML bodies are reduced to text before they enter the repository.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	limiter    *rate.Limiter
	extractor  *ContentExtractor
}

type ClientOptions struct {
	BaseURL string
	Tokens  TokenSource
	Timeout time.Duration
	RPS     float64
	Burst   int
}

func NewClient(opts ClientOptions) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("mailsource: base URL is required")
	}
	if opts.Tokens == nil {
		return nil, fmt.Errorf("mailsource: token source is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RPS <= 0 {
		opts.RPS = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 5
	}

	return &Client{
		baseURL:    opts.BaseURL,
		tokens:     opts.Tokens,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(opts.RPS), opts.Burst),
		extractor:  NewContentExtractor(),
	}, nil
}

type idPageResponse struct {
	IDs           []string `json:"ids"`
	NextPageToken string   `json:"nextPageToken"`
}

// FetchIDs returns one page of message ids. An empty pageToken requests the
// head page; the returned token is empty on the last page.
func (c *Client) FetchIDs(ctx context.Context, pageToken string) (*mail.Page, error) {
	endpoint := c.baseURL + "/messages"
	if pageToken != "" {
		endpoint += "?pageToken=" + url.QueryEscape(pageToken)
	}

	var page idPageResponse
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
		return nil, err
	}

	return &mail.Page{IDs: page.IDs, NextPageToken: page.NextPageToken}, nil
}

type messageResponse struct {
	ID       string   `json:"id"`
	From     string   `json:"from"`
	Subject  string   `json:"subject"`
	Body     string   `json:"body"`
	MimeType string   `json:"mimeType"`
	Labels   []string `json:"labels"`
	Date     string   `json:"date"`
}

// FetchByIDs fetches full messages for the given ids. HTML bodies are
// reduced to readable text; extraction failure falls back to the raw body.
func (c *Client) FetchByIDs(ctx context.Context, ids []string) ([]*mail.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var resp struct {
		Messages []messageResponse `json:"messages"`
	}
	body := map[string]any{"ids": ids}
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/messages/batchGet", body, &resp); err != nil {
		return nil, err
	}

	items := make([]*mail.Item, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		content := msg.Body
		if msg.MimeType == "text/html" {
			content = c.extractor.Run(msg.Body)
		}

		createdAt := time.Now().UTC()
		if msg.Date != "" {
			if parsed, err := time.Parse(time.RFC3339, msg.Date); err == nil {
				createdAt = parsed
			}
		}

		items = append(items, &mail.Item{
			ID:        msg.ID,
			From:      msg.From,
			Subject:   msg.Subject,
			Content:   content,
			LabelSet:  msg.Labels,
			CreatedAt: createdAt,
		})
	}

	return items, nil
}

// GetOrCreateLabel resolves a label name to its id, creating it on demand.
func (c *Client) GetOrCreateLabel(ctx context.Context, name string) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	body := map[string]any{"name": name}
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/labels", body, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("mailsource: label endpoint returned no id")
	}
	return resp.ID, nil
}

// AddLabel attaches labelID to the given messages. Per-id failures are
// returned, not raised: labeling is best-effort.
func (c *Client) AddLabel(ctx context.Context, ids []string, labelID string) (*LabelResult, error) {
	var resp struct {
		Success []string       `json:"success"`
		Failed  []LabelFailure `json:"failed"`
	}
	body := map[string]any{"ids": ids, "labelId": labelID}
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/messages/addLabel", body, &resp); err != nil {
		return nil, err
	}
	return &LabelResult{Success: resp.Success, Failed: resp.Failed}, nil
}

// doJSON performs one authenticated request, refreshing the token and
// retrying on 401 up to maxAuthAttempts attempts total.
func (c *Client) doJSON(ctx context.Context, method, endpoint string, reqBody, out any) error {
	var encoded []byte
	if reqBody != nil {
		var err error
		encoded, err = json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxAuthAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("obtain token: %w", err)
		}

		var bodyReader io.Reader
		if encoded != nil {
			bodyReader = bytes.NewReader(encoded)
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if encoded != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("mail source request: %w", err)
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode == http.StatusUnauthorized {
			lastErr = fmt.Errorf("status 401: %s", string(respBody))
			slog.Warn("Mail source rejected token, refreshing", "attempt", attempt)
			if refreshErr := c.tokens.Refresh(ctx); refreshErr != nil {
				return &AuthError{Err: refreshErr}
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("mail source status %d: %s", resp.StatusCode, string(respBody))
		}

		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("unmarshal response: %w", err)
			}
		}
		return nil
	}

	return &AuthError{Err: lastErr}
}
