// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/bureau-dm/lib/config"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv(config.HomeserverVariable, "")
	t.Setenv(config.ConfigPathVariable, "")

	path := filepath.Join(t.TempDir(), "bureau-dm.yaml")
	content := "homeserver_url: https://matrix.example.org\nownership: server\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Run("file", func(t *testing.T) {
		cfg, err := loadConfig(path, "")
		if err != nil {
			t.Fatalf("loadConfig: %v", err)
		}
		if cfg.HomeserverURL != "https://matrix.example.org" || cfg.Ownership != config.OwnershipServer {
			t.Errorf("cfg = %+v", cfg)
		}
	})

	t.Run("flag overrides file", func(t *testing.T) {
		cfg, err := loadConfig(path, "http://localhost:8008")
		if err != nil {
			t.Fatalf("loadConfig: %v", err)
		}
		if cfg.HomeserverURL != "http://localhost:8008" {
			t.Errorf("HomeserverURL = %q", cfg.HomeserverURL)
		}
	})

	t.Run("invalid flag", func(t *testing.T) {
		_, err := loadConfig(path, "matrix.example.org")
		if err == nil || !strings.Contains(err.Error(), "--homeserver") {
			t.Errorf("err = %v, want a --homeserver error", err)
		}
	})

	t.Run("defaults without a file", func(t *testing.T) {
		cfg, err := loadConfig("", "")
		if err != nil {
			t.Fatalf("loadConfig: %v", err)
		}
		if cfg.HomeserverURL != config.DefaultHomeserverURL {
			t.Errorf("HomeserverURL = %q", cfg.HomeserverURL)
		}
	})
}

func TestReport(t *testing.T) {
	var buffer bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buffer, nil))

	if err := report(logger, "terminal UI failed", nil); err != nil {
		t.Fatalf("report(nil) = %v, want nil", err)
	}
	if buffer.Len() != 0 {
		t.Fatalf("report(nil) logged %q", buffer.String())
	}

	cause := errors.New("program killed")
	err := report(logger, "terminal UI failed", cause)
	if !errors.Is(err, cause) {
		t.Errorf("reported error %v does not wrap its cause", err)
	}
	if !errors.Is(err, errReported) {
		t.Errorf("reported error %v not marked as reported", err)
	}
	logged := buffer.String()
	for _, want := range []string{`"level":"ERROR"`, `"msg":"terminal UI failed"`, `"error":"program killed"`} {
		if !strings.Contains(logged, want) {
			t.Errorf("log record %q missing %s", logged, want)
		}
	}
}
