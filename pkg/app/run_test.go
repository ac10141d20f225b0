package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/flemzord/tgbridge/internal/config"
	"github.com/flemzord/tgbridge/internal/security"

	_ "github.com/flemzord/tgbridge/internal/handler"
	_ "github.com/flemzord/tgbridge/modules/adapter/telegram"
)

const testToken = "123456:TEST_TOKEN_abcdefghijklmnopqrstuvwxyz"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tgbridge.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestResolveConfigPath_XDGConfigHome(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "tgbridge")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	cfgPath := filepath.Join(cfgDir, "tgbridge.yaml")
	if err := os.WriteFile(cfgPath, []byte("version: \"1\""), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv("XDG_CONFIG_HOME", dir)

	got, err := ResolveConfigPath()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != cfgPath {
		t.Errorf("got %q, want %q", got, cfgPath)
	}
}

func TestResolveConfigPath_NotFound(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/nonexistent/path")
	t.Chdir(t.TempDir())

	if _, err := ResolveConfigPath(); err == nil {
		t.Error("expected error when no config file found")
	}
}

func TestDefaultDataDir_XDGDataHome(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	if got, want := DefaultDataDir(), "/custom/data/tgbridge"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDefaultDataDir_Fallback(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "")
	_ = os.Unsetenv("XDG_DATA_HOME")

	home, _ := os.UserHomeDir()
	if got, want := DefaultDataDir(), filepath.Join(home, ".local", "share", "tgbridge"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRun_InvalidConfigPath(t *testing.T) {
	if err := Run(context.Background(), RunParams{ConfigPath: "/nonexistent/config.yaml"}); err == nil {
		t.Error("expected error for invalid config path")
	}
}

func TestRun_InvalidConfigContent(t *testing.T) {
	path := writeConfig(t, "not: valid: yaml: [")
	if err := Run(context.Background(), RunParams{ConfigPath: path}); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestRun_ValidationFailure(t *testing.T) {
	path := writeConfig(t, "modules:\n  adapter.telegram: {}")
	if err := Run(context.Background(), RunParams{ConfigPath: path}); err == nil {
		t.Error("expected validation error")
	}
}

func TestLoad_ProvisionsModules(t *testing.T) {
	path := writeConfig(t, `version: "1"
modules:
  handler.builtin: {}
  adapter.telegram:
    bot_token: `+testToken+`
`)
	var logs bytes.Buffer
	loaded, err := Load(RunParams{ConfigPath: path, DataDir: t.TempDir(), LogOutput: &logs})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	mods := loaded.App.Modules()
	if len(mods) != 2 || mods[0] != "handler.builtin" || mods[1] != "adapter.telegram" {
		t.Errorf("modules = %v, want handler before adapter", mods)
	}

	// The adapter registered its token with the shared redactor.
	loaded.Logger.Info("probe", "token", testToken)
	if strings.Contains(logs.String(), testToken) {
		t.Errorf("token leaked into logs: %s", logs.String())
	}
}

func TestLoad_ModuleValidationError(t *testing.T) {
	path := writeConfig(t, `version: "1"
modules:
  handler.builtin: {}
  adapter.telegram:
    bot_token: not-a-token
`)
	_, err := Load(RunParams{ConfigPath: path, DataDir: t.TempDir(), LogOutput: &bytes.Buffer{}})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LogConfig
		wantIn  string
		wantOut string
	}{
		{"json", config.LogConfig{Level: "info", Format: "json"}, `"msg":"hello"`, ""},
		{"text", config.LogConfig{Level: "info", Format: "text"}, "msg=hello", ""},
		{"info filtered at warn", config.LogConfig{Level: "warn", Format: "text"}, "", "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.cfg, security.NewRedactor(), &buf)
			logger.Info("hello", "secret", testToken)

			out := buf.String()
			if tt.wantIn != "" && !strings.Contains(out, tt.wantIn) {
				t.Errorf("output %q lacks %q", out, tt.wantIn)
			}
			if tt.wantOut != "" && strings.Contains(out, tt.wantOut) {
				t.Errorf("output %q contains %q", out, tt.wantOut)
			}
			if strings.Contains(out, testToken) {
				t.Errorf("token not redacted: %q", out)
			}
		})
	}
}
