package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/uber/cibridge/src/cibridge/entity"
	cibridgeerrors "github.com/uber/cibridge/src/cibridge/internal/errors"
	"go.uber.org/config"
	"golang.org/x/sys/unix"
)

const (
	_configKeyPort    = "daemon.port"
	_defaultPort      = 10881
	_headerServerTime = "X-Server-Time"
	_contentType      = "text/plain; charset=utf-8"
)

// Transport performs a single exchange with the daemon.
type Transport interface {
	Exchange(ctx context.Context, req *entity.PendingRequest) (*Response, error)
}

// Response is the raw daemon answer.
type Response struct {
	// StatusCode is informational. The body is parsed whatever the status.
	StatusCode int
	Body       []byte
	ServerTime time.Duration
}

type httpTransport struct {
	baseURL string
	client  *http.Client
}

// NewTransport creates a Transport posting to the daemon on the configured local port.
func NewTransport(cfg config.Provider) (Transport, error) {
	port := _defaultPort
	if v := cfg.Get(_configKeyPort); v.HasValue() {
		if err := v.Populate(&port); err != nil {
			return nil, fmt.Errorf("getting config field %q: %w", _configKeyPort, err)
		}
	}
	return newHTTPTransport(fmt.Sprintf("http://localhost:%d/", port), http.DefaultClient), nil
}

func newHTTPTransport(baseURL string, client *http.Client) *httpTransport {
	return &httpTransport{baseURL: baseURL, client: client}
}

// Exchange posts the document and returns the body. Refused connections report ErrNoServer.
func (t *httpTransport) Exchange(ctx context.Context, req *entity.PendingRequest) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.requestURL(req), strings.NewReader(req.Document))
	if err != nil {
		return nil, fmt.Errorf("building daemon request: %w", err)
	}
	httpReq.Header.Set("Content-Type", _contentType)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, unix.ECONNREFUSED) {
			return nil, fmt.Errorf("%w: %w", cibridgeerrors.ErrNoServer, err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading daemon response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
		ServerTime: parseServerTime(resp.Header.Get(_headerServerTime)),
	}, nil
}

// requestURL encodes the request the way the daemon expects: one-based row, zero-based column, relative path.
func (t *httpTransport) requestURL(req *entity.PendingRequest) string {
	return fmt.Sprintf("%s?mode=%s&row=%d&column=%d&path=%s",
		t.baseURL,
		url.QueryEscape(string(req.Command)),
		req.Position.Row+1,
		req.Position.Column,
		escapeComponent(strings.TrimPrefix(req.Path, "/")),
	)
}

// escapeComponent escapes spaces as %20 rather than +.
func escapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func parseServerTime(v string) time.Duration {
	if v == "" {
		return 0
	}
	ms, err := strconv.ParseFloat(v, 64)
	if err != nil || ms < 0 {
		return 0
	}
	return time.Duration(ms * float64(time.Millisecond))
}
