// Package summarizer talks to the remote summarization endpoint.
package summarizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/tldr-app/uploader/internal/models"
	"go.uber.org/zap"
)

// DefaultEndpoint is used when no endpoint is configured.
const DefaultEndpoint = "http://localhost:5001/summarize"

// DefaultFieldName is the multipart field the file is sent under.
const DefaultFieldName = "pdf"

// ErrTransport wraps network-level failures, including failed body reads.
var ErrTransport = errors.New("summarizer transport failure")

// StatusError is returned when the endpoint answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("summarizer returned status %d: %s", e.StatusCode, strings.TrimSpace(body))
}

// Summarizer turns a selected file into summary text.
type Summarizer interface {
	Summarize(ctx context.Context, file *models.SelectedFile) (string, error)
}

// FileOpener gives access to stored file bytes.
type FileOpener interface {
	Open(id string) (io.ReadCloser, error)
}

// Options configures a Client.
type Options struct {
	Endpoint   string
	FieldName  string
	Timeout    time.Duration // zero means no client-side timeout
	MaxRetries int           // retries on HTTP 429; zero disables them
	UserAgent  string
}

// Client posts files as multipart/form-data and returns the response body.
type Client struct {
	endpoint   string
	fieldName  string
	userAgent  string
	maxRetries int
	http       *http.Client
	files      FileOpener
	logger     *zap.Logger
}

// NewClient creates a Client. A nil logger discards log output.
func NewClient(opts Options, files FileOpener, logger *zap.Logger) *Client {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.FieldName == "" {
		opts.FieldName = DefaultFieldName
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoint:   opts.Endpoint,
		fieldName:  opts.FieldName,
		userAgent:  opts.UserAgent,
		maxRetries: opts.MaxRetries,
		http:       &http.Client{Timeout: opts.Timeout},
		files:      files,
		logger:     logger.Named("summarizer"),
	}
}

// Endpoint returns the configured endpoint address.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Summarize sends file to the endpoint. A nil file is sent as an empty part.
func (c *Client) Summarize(ctx context.Context, file *models.SelectedFile) (string, error) {
	body, contentType, err := c.buildBody(file)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := doWithRetry(ctx, c.http, req, c.maxRetries, c.logger)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %w", ErrTransport, err)
	}

	c.logger.Debug("summarizer responded",
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	return string(data), nil
}

func (c *Client) buildBody(file *models.SelectedFile) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	name := ""
	partType := "application/octet-stream"
	if file != nil {
		name = file.Name
		if file.ContentType != "" {
			partType = file.ContentType
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(c.fieldName), escapeQuotes(name)))
	h.Set("Content-Type", partType)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("creating form part: %w", err)
	}

	if file != nil {
		rc, err := c.files.Open(file.ID)
		if err != nil {
			return nil, "", fmt.Errorf("opening %s: %w", file.Name, err)
		}
		_, err = io.Copy(part, rc)
		rc.Close()
		if err != nil {
			return nil, "", fmt.Errorf("copying %s: %w", file.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
