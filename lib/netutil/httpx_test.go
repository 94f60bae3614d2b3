// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestReadResponse(t *testing.T) {
	t.Run("normal body", func(t *testing.T) {
		data, err := ReadResponse(bytes.NewReader([]byte(`{"next_batch":"s1"}`)))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(data) != `{"next_batch":"s1"}` {
			t.Fatalf("got %q", data)
		}
	})

	t.Run("read error propagates", func(t *testing.T) {
		if _, err := ReadResponse(&failReader{}); err == nil {
			t.Fatal("expected error from failing reader")
		}
	})
}

func TestErrorBodyIsBounded(t *testing.T) {
	body := strings.Repeat("x", 10000)
	if got := ErrorBody(strings.NewReader(body)); len(got) != 4096 {
		t.Fatalf("ErrorBody length = %d, want 4096", len(got))
	}
}

func TestIsNetworkError(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		if IsNetworkError(nil) {
			t.Error("nil classified as network error")
		}
	})

	t.Run("refused connection", func(t *testing.T) {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("Listen: %v", err)
		}
		address := listener.Addr().String()
		listener.Close()

		_, err = http.Get("http://" + address + "/_matrix/client/versions")
		if err == nil {
			t.Fatal("expected request to closed port to fail")
		}
		if !IsNetworkError(fmt.Errorf("messaging: login failed: %w", err)) {
			t.Errorf("refused connection not classified as network error: %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		defer server.Close()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		request, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
		_, err := http.DefaultClient.Do(request)
		if err == nil {
			t.Fatal("expected cancelled request to fail")
		}
		if IsNetworkError(err) {
			t.Errorf("cancellation classified as network error: %v", err)
		}
	})

	t.Run("plain error", func(t *testing.T) {
		if IsNetworkError(errors.New("matrix: M_FORBIDDEN (403): nope")) {
			t.Error("server error classified as network error")
		}
	})
}

type failReader struct{}

func (*failReader) Read([]byte) (int, error) {
	return 0, fmt.Errorf("simulated read failure")
}
