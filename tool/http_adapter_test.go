package tool

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestHTTPHandlerInvoke(t *testing.T) {
	client := &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if r.Method != http.MethodPost {
				t.Fatalf("method = %s, want POST", r.Method)
			}
			if got := r.Header.Get("X-Request-ID"); got != "req-7" {
				t.Fatalf("X-Request-ID = %q, want req-7", got)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer token" {
				t.Fatalf("Authorization = %q, want Bearer token", got)
			}
			var payload map[string]any
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				t.Fatalf("decode payload: %v", err)
			}
			if payload["tool"] != "lookup" {
				t.Fatalf("payload tool = %v, want lookup", payload["tool"])
			}
			input, _ := payload["input"].(map[string]any)
			return jsonResponse(http.StatusOK, `{"output": {"found": `+boolJSON(input["key"] == "k1")+`}}`), nil
		}),
	}

	h := NewHTTPHandler("lookup", HandlerSpec{
		Endpoint: "http://tools.local/invoke",
		Headers:  map[string]string{"Authorization": "Bearer token"},
	}, client)

	ctx := WithRequestID(context.Background(), "req-7")
	out, err := h.Handle(ctx, map[string]any{"key": "k1"})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	m, ok := out.(map[string]any)
	if !ok || m["found"] != true {
		t.Fatalf("output = %#v, want found=true", out)
	}
}

func TestHTTPHandlerUpstreamFailure(t *testing.T) {
	client := &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusBadGateway,
				Body:       io.NopCloser(strings.NewReader("downstream failure")),
				Header:     make(http.Header),
			}, nil
		}),
	}
	h := NewHTTPHandler("remote", HandlerSpec{Endpoint: "http://tools.local/invoke"}, client)

	_, err := h.Handle(context.Background(), nil)
	var toolErr *ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("error = %v, want *ToolError", err)
	}
	if toolErr.Code != ToolErrorCodeUpstreamFailure {
		t.Fatalf("code = %q, want %q", toolErr.Code, ToolErrorCodeUpstreamFailure)
	}
	if toolErr.Message != "downstream failure" {
		t.Fatalf("message = %q, want downstream failure", toolErr.Message)
	}
	if got := toolErr.Details["status_code"]; got != http.StatusBadGateway {
		t.Fatalf("details status_code = %v, want 502", got)
	}
}

func TestHTTPHandlerErrorEnvelope(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
	}{
		{name: "non-2xx envelope", status: http.StatusUnprocessableEntity, body: `{"error":{"code":"BAD_INPUT","message":"key missing"}}`, wantCode: "BAD_INPUT"},
		{name: "2xx envelope", status: http.StatusOK, body: `{"error":"key missing"}`, wantCode: ToolErrorCodeToolFailure},
		{name: "2xx garbage", status: http.StatusOK, body: `<html>`, wantCode: ToolErrorCodeDecodeFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &http.Client{
				Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
					return jsonResponse(tt.status, tt.body), nil
				}),
			}
			h := NewHTTPHandler("remote", HandlerSpec{Endpoint: "http://tools.local/invoke"}, client)
			_, err := h.Handle(context.Background(), map[string]any{})
			if got := ErrorCode(err); got != tt.wantCode {
				t.Fatalf("ErrorCode = %q, want %q (err=%v)", got, tt.wantCode, err)
			}
		})
	}
}

func TestHTTPHandlerTransportErrors(t *testing.T) {
	t.Run("connection refused", func(t *testing.T) {
		client := &http.Client{
			Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
				return nil, errors.New("connection refused")
			}),
		}
		h := NewHTTPHandler("remote", HandlerSpec{Endpoint: "http://tools.local/invoke"}, client)
		_, err := h.Handle(context.Background(), nil)
		if got := ErrorCode(err); got != ToolErrorCodeTransportFailure {
			t.Fatalf("ErrorCode = %q, want %q", got, ToolErrorCodeTransportFailure)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		client := &http.Client{
			Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
				<-r.Context().Done()
				return nil, r.Context().Err()
			}),
		}
		h := NewHTTPHandler("remote", HandlerSpec{Endpoint: "http://tools.local/invoke", TimeoutMS: 50}, client)
		_, err := h.Handle(context.Background(), nil)
		if got := ErrorCode(err); got != ToolErrorCodeTimeout {
			t.Fatalf("ErrorCode = %q, want %q (err=%v)", got, ToolErrorCodeTimeout, err)
		}
	})

	t.Run("nil handler", func(t *testing.T) {
		var h *HTTPHandler
		_, err := h.Handle(context.Background(), nil)
		if got := ErrorCode(err); got != ToolErrorCodeInvalidRequest {
			t.Fatalf("ErrorCode = %q, want %q", got, ToolErrorCodeInvalidRequest)
		}
	})
}

func TestNewHTTPHandlerDefaultClient(t *testing.T) {
	a := NewHTTPHandler("a", HandlerSpec{Endpoint: "http://a.local"}, nil)
	b := NewHTTPHandler("b", HandlerSpec{Endpoint: "http://b.local"}, nil)
	if a.client == nil || a.client != b.client {
		t.Fatal("handlers without a client should share the pooled default client")
	}
	if a.client.Timeout != 0 {
		t.Fatalf("default client timeout = %v, want none", a.client.Timeout)
	}
}

type roundTripFunc func(r *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func jsonResponse(status int, body string) *http.Response {
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     header,
	}
}

func boolJSON(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
