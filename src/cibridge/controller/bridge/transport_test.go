package bridge

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber/cibridge/src/cibridge/entity"
	cibridgeerrors "github.com/uber/cibridge/src/cibridge/internal/errors"
	"go.uber.org/config"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testClient() *http.Client {
	return &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
}

func TestExchange(t *testing.T) {
	var gotQuery, gotBody, gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotQuery = r.URL.RawQuery
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set(_headerServerTime, "12.5")
		_, _ = w.Write([]byte(`[{"name":"foo"}]`))
	}))
	defer server.Close()

	transport := newHTTPTransport(server.URL+"/", testClient())
	resp, err := transport.Exchange(context.Background(), &entity.PendingRequest{
		Command:  entity.CommandCompletions,
		Path:     "/src/my file.php",
		Position: entity.Position{Row: 2, Column: 7},
		Document: "<?php\n\n$foo->",
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "mode=completions&row=3&column=7&path=src%2Fmy%20file.php", gotQuery)
	assert.Equal(t, "<?php\n\n$foo->", gotBody)
	assert.JSONEq(t, `[{"name":"foo"}]`, string(resp.Body))
	assert.Equal(t, 12500*time.Microsecond, resp.ServerTime)
}

func TestExchangeErrorStatusKeepsBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "json payload", body: `{"error":"index missing"}`},
		{name: "traceback", body: "Traceback (most recent call last)\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			transport := newHTTPTransport(server.URL+"/", testClient())
			resp, err := transport.Exchange(context.Background(), &entity.PendingRequest{Command: entity.CommandGotoDefinition})
			require.NoError(t, err)
			assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
			assert.Equal(t, tt.body, string(resp.Body))
		})
	}
}

func TestExchangeConnectionRefused(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	transport := newHTTPTransport("http://"+addr+"/", testClient())
	_, err = transport.Exchange(context.Background(), &entity.PendingRequest{Command: entity.CommandCompletions})
	require.Error(t, err)
	assert.True(t, cibridgeerrors.IsNoServer(err))
}

func TestExchangeContextCanceled(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	transport := newHTTPTransport(server.URL+"/", testClient())
	_, err := transport.Exchange(ctx, &entity.PendingRequest{Command: entity.CommandCompletions})
	require.Error(t, err)
	assert.False(t, cibridgeerrors.IsNoServer(err))
}

func TestParseServerTime(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "empty", value: "", want: 0},
		{name: "integer", value: "40", want: 40 * time.Millisecond},
		{name: "fraction", value: "0.5", want: 500 * time.Microsecond},
		{name: "garbage", value: "soon", want: 0},
		{name: "negative", value: "-3", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseServerTime(tt.value))
		})
	}
}

func TestNewTransport(t *testing.T) {
	t.Run("default port", func(t *testing.T) {
		cfg, err := config.NewYAML(config.Source(strings.NewReader("daemon: {}")))
		require.NoError(t, err)
		transport, err := NewTransport(cfg)
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:10881/", transport.(*httpTransport).baseURL)
	})

	t.Run("configured port", func(t *testing.T) {
		cfg, err := config.NewYAML(config.Source(strings.NewReader("daemon:\n  port: 20000\n")))
		require.NoError(t, err)
		transport, err := NewTransport(cfg)
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:20000/", transport.(*httpTransport).baseURL)
	})

	t.Run("invalid port", func(t *testing.T) {
		cfg, err := config.NewYAML(config.Source(strings.NewReader("daemon:\n  port: eleven\n")))
		require.NoError(t, err)
		_, err = NewTransport(cfg)
		assert.Error(t, err)
	})
}
