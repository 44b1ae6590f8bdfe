// Package upload sends files to a Cloudinary-compatible unsigned upload
// endpoint and returns their secure retrieval URLs.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/jwalitptl/frontdesk/internal/model"
	"github.com/jwalitptl/frontdesk/pkg/circuitbreaker"
	"github.com/jwalitptl/frontdesk/pkg/metrics"
)

var (
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrEmptyFile          = errors.New("file is empty")
	ErrNoURL              = errors.New("upload response carried no secure_url")
)

// BatchTypes are accepted on the patient file batch path: images, PDF and
// common video containers.
var BatchTypes = map[string]bool{
	"image/jpeg":       true,
	"image/png":        true,
	"application/pdf":  true,
	"video/mp4":        true,
	"video/quicktime":  true,
	"video/webm":       true,
	"video/x-matroska": true,
	"video/x-msvideo":  true,
}

// Uploader stores one file and returns its URL.
type Uploader interface {
	Upload(ctx context.Context, file model.PendingFile, allowed map[string]bool) (string, error)
}

type Config struct {
	Endpoint        string
	Preset          string
	Timeout         time.Duration
	BreakerTimeout  time.Duration
	BreakerFailures uint32
}

type Client struct {
	endpoint string
	preset   string
	http     *http.Client
	breaker  *circuitbreaker.CircuitBreaker
	metrics  *metrics.Metrics
}

func NewClient(cfg Config, httpClient *http.Client, m *metrics.Metrics) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		endpoint: cfg.Endpoint,
		preset:   cfg.Preset,
		http:     httpClient,
		metrics:  m,
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "upload",
			MaxFailures: cfg.BreakerFailures,
			MaxRequests: 1,
			Timeout:     cfg.BreakerTimeout,
			OnChange: func(_ string, _, to string) {
				if m != nil {
					m.BreakerChanges.WithLabelValues(to).Inc()
				}
			},
		}),
	}
}

// ContentType returns the declared type, or the sniffed one when the
// declaration is missing or generic. Parameters are stripped.
func ContentType(file model.PendingFile) string {
	declared := strings.TrimSpace(strings.SplitN(file.ContentType, ";", 2)[0])
	if declared != "" && declared != "application/octet-stream" {
		return strings.ToLower(declared)
	}
	return strings.SplitN(mimetype.Detect(file.Data).String(), ";", 2)[0]
}

// Check validates a file before any network call.
func Check(file model.PendingFile, allowed map[string]bool) error {
	if len(file.Data) == 0 {
		return ErrEmptyFile
	}
	ct := ContentType(file)
	if !allowed[ct] {
		return fmt.Errorf("%w: %s", ErrInvalidContentType, ct)
	}
	return nil
}

type uploadResponse struct {
	SecureURL string `json:"secure_url"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) Upload(ctx context.Context, file model.PendingFile, allowed map[string]bool) (string, error) {
	if err := Check(file, allowed); err != nil {
		c.metrics.ObserveUpload("rejected", time.Time{})
		return "", err
	}

	start := time.Now()
	var url string
	err := c.breaker.Execute(func() error {
		var err error
		url, err = c.post(ctx, file)
		return err
	})
	if err != nil {
		c.metrics.ObserveUpload("failed", start)
		return "", err
	}
	c.metrics.ObserveUpload("uploaded", start)
	return url, nil
}

func (c *Client) post(ctx context.Context, file model.PendingFile) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile("file", file.Name)
	if err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if err := w.WriteField("upload_preset", c.preset); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read upload response: %w", err)
	}

	var out uploadResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("failed to decode upload response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		msg := http.StatusText(resp.StatusCode)
		if out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return "", fmt.Errorf("upload rejected with status %d: %s", resp.StatusCode, msg)
	}
	if out.SecureURL == "" {
		return "", ErrNoURL
	}
	return out.SecureURL, nil
}
