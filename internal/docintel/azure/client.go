// Package azure implements docintel.Client against the Azure Document
// Intelligence REST API (analyze + poll via Operation-Location).
package azure

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"docintel-backend/internal/docintel"
)

const defaultAPIVersion = "2024-02-29-preview"

// aadScope is the resource scope for Cognitive Services tokens.
const aadScope = "https://cognitiveservices.azure.com/.default"

// Config holds endpoint and credential settings. Either Key or the three
// TenantID/ClientID/ClientSecret values must be set; the key wins when both
// are present.
type Config struct {
	Endpoint     string
	Key          string
	APIVersion   string
	TenantID     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// Client talks to a Document Intelligence resource.
type Client struct {
	endpoint   string
	key        string
	apiVersion string
	httpClient *http.Client
}

// NewClient constructs a Client and validates the credential configuration.
func NewClient(cfg Config) (*Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("AZURE_DI_ENDPOINT is required")
	}
	apiVersion := strings.TrimSpace(cfg.APIVersion)
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	httpClient := &http.Client{Timeout: timeout}
	key := strings.TrimSpace(cfg.Key)
	if key == "" {
		if cfg.TenantID == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
			return nil, fmt.Errorf("either AZURE_DI_KEY or AZURE_TENANT_ID/AZURE_CLIENT_ID/AZURE_CLIENT_SECRET is required")
		}
		creds := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID),
			Scopes:       []string{aadScope},
		}
		tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		httpClient = creds.Client(tokenCtx)
		httpClient.Timeout = timeout
	}

	return &Client{
		endpoint:   endpoint,
		key:        key,
		apiVersion: apiVersion,
		httpClient: httpClient,
	}, nil
}

type analyzeRequest struct {
	URLSource    string `json:"urlSource,omitempty"`
	Base64Source string `json:"base64Source,omitempty"`
}

// Submit starts an analysis job and returns the Operation-Location URL as the
// opaque remote reference.
func (c *Client) Submit(ctx context.Context, req docintel.SubmitRequest) (string, error) {
	if strings.TrimSpace(req.ModelID) == "" {
		return "", fmt.Errorf("%w: model id is empty", docintel.ErrInvalidDocument)
	}

	body := analyzeRequest{}
	switch {
	case req.DocumentURL != "":
		body.URLSource = req.DocumentURL
	case len(req.Content) > 0:
		body.Base64Source = base64.StdEncoding.EncodeToString(req.Content)
	default:
		return "", fmt.Errorf("%w: no document source", docintel.ErrInvalidDocument)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/documentintelligence/documentModels/%s:analyze", c.endpoint, url.PathEscape(req.ModelID))
	query := url.Values{}
	query.Set("api-version", c.apiVersion)
	if req.Locale != "" {
		query.Set("locale", req.Locale)
	}
	if len(req.Pages) > 0 {
		query.Set("pages", strings.Join(req.Pages, ","))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"?"+query.Encode(), bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", docintel.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return "", c.classifyStatus(resp)
	}

	opLocation := strings.TrimSpace(resp.Header.Get("Operation-Location"))
	if opLocation == "" {
		return "", fmt.Errorf("%w: accepted response missing Operation-Location header", docintel.ErrUnreachable)
	}
	return opLocation, nil
}

type pollResponse struct {
	Status        string          `json:"status"`
	AnalyzeResult json.RawMessage `json:"analyzeResult"`
	Error         *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Poll fetches the current state of a previously submitted job.
func (c *Client) Poll(ctx context.Context, remoteRef string) (docintel.PollResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteRef, nil)
	if err != nil {
		return docintel.PollResult{}, err
	}
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return docintel.PollResult{}, fmt.Errorf("%w: %v", docintel.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return docintel.PollResult{}, c.classifyStatus(resp)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return docintel.PollResult{}, fmt.Errorf("%w: read poll response: %v", docintel.ErrUnreachable, err)
	}
	var parsed pollResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return docintel.PollResult{}, fmt.Errorf("%w: parse poll response: %v", docintel.ErrUnreachable, err)
	}

	out := docintel.PollResult{Status: mapStatus(parsed.Status)}
	if len(parsed.AnalyzeResult) > 0 {
		out.Payload = parsed.AnalyzeResult
	} else if out.Status == docintel.StatusSucceeded {
		out.Payload = json.RawMessage(raw)
	}
	if parsed.Error != nil {
		out.ErrorDetail = strings.TrimSpace(parsed.Error.Code + ": " + parsed.Error.Message)
	}
	return out, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.key != "" {
		req.Header.Set("Ocp-Apim-Subscription-Key", c.key)
	}
	// With AAD credentials the oauth2 transport injects the bearer token.
}

func (c *Client) classifyStatus(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	detail := remoteErrorDetail(body)

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", docintel.ErrInvalidDocument, detail)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", docintel.ErrAuthFailed, detail)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", docintel.ErrRateLimited, detail)
	default:
		return fmt.Errorf("%w: status %d: %s", docintel.ErrUnreachable, resp.StatusCode, detail)
	}
}

func remoteErrorDetail(body []byte) string {
	var parsed struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return strings.TrimSpace(parsed.Error.Code + ": " + parsed.Error.Message)
	}
	return strings.TrimSpace(string(body))
}

func mapStatus(raw string) docintel.Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "notstarted":
		return docintel.StatusNotStarted
	case "running":
		return docintel.StatusRunning
	case "succeeded":
		return docintel.StatusSucceeded
	case "failed":
		return docintel.StatusFailed
	}
	// Unknown statuses keep the poller going rather than failing the job.
	return docintel.StatusRunning
}
