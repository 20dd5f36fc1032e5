package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	lmerrors "github.com/lingomux/lingomux/pkg/errors"
)

// HTTPConfig configures an HTTPProvider.
type HTTPConfig struct {
	Name    string
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// Client overrides the default HTTP client when set.
	Client *http.Client
}

// HTTPProvider is a generic JSON-over-HTTP backend adapter. It speaks a
// minimal wire format: POST /translate with {text, source_lang,
// target_lang, category} and POST /analyze with {prompt}, both answered
// by {result}.
type HTTPProvider struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTP creates an HTTP-backed provider.
func NewHTTP(cfg HTTPConfig) (*HTTPProvider, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("provider name is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("provider %s: base URL is required", cfg.Name)
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: timeout,
		}
	}
	return &HTTPProvider{
		name:    cfg.Name,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  client,
	}, nil
}

// Name returns the configured provider identifier.
func (p *HTTPProvider) Name() string { return p.name }

type translateBody struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang,omitempty"`
	TargetLang string `json:"target_lang"`
	Category   string `json:"category,omitempty"`
}

type analyzeBody struct {
	Prompt string `json:"prompt"`
}

type resultBody struct {
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

// Execute performs one translation call.
func (p *HTTPProvider) Execute(ctx context.Context, req *Request) (string, error) {
	return p.post(ctx, "/translate", translateBody{
		Text:       req.Text,
		SourceLang: req.SourceLang,
		TargetLang: req.TargetLang,
		Category:   req.Category,
	})
}

// Analyze performs a free-form analysis call.
func (p *HTTPProvider) Analyze(ctx context.Context, prompt string) (string, error) {
	return p.post(ctx, "/analyze", analyzeBody{Prompt: prompt})
}

func (p *HTTPProvider) post(ctx context.Context, path string, body any) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", lmerrors.NewInvalidRequestError(p.name, fmt.Sprintf("encode request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return "", lmerrors.NewInvalidRequestError(p.name, fmt.Sprintf("build request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", lmerrors.NewTimeoutError(p.name, "request cancelled or timed out")
		}
		return "", lmerrors.NewNetworkError(p.name, err.Error())
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", lmerrors.NewNetworkError(p.name, fmt.Sprintf("read response: %v", err))
	}

	if resp.StatusCode >= 400 {
		return "", p.mapError(resp.StatusCode, data)
	}

	var result resultBody
	if err := json.Unmarshal(data, &result); err != nil {
		return "", lmerrors.NewServerError(p.name, resp.StatusCode, fmt.Sprintf("decode response: %v", err))
	}
	return result.Result, nil
}

// mapError converts an HTTP failure status into the matching error class.
func (p *HTTPProvider) mapError(status int, body []byte) error {
	message := errorMessage(body, status)
	switch {
	case status == http.StatusTooManyRequests:
		return lmerrors.NewRateLimitError(p.name, message)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return lmerrors.NewAuthError(p.name, message)
	case status == http.StatusPaymentRequired:
		return lmerrors.NewQuotaError(p.name, message)
	case status == http.StatusRequestTimeout:
		return lmerrors.NewTimeoutError(p.name, message)
	case status >= 500:
		return lmerrors.NewServerError(p.name, status, message)
	default:
		return lmerrors.NewInvalidRequestError(p.name, message)
	}
}

func errorMessage(body []byte, status int) string {
	var result resultBody
	if err := json.Unmarshal(body, &result); err == nil && result.Error != "" {
		return result.Error
	}
	return fmt.Sprintf("upstream returned status %d", status)
}
