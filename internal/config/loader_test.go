package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/flemzord/tgbridge/internal/core"
)

func TestParse_ExpandsEnvAndDefaults(t *testing.T) {
	t.Setenv("TGB_TEST_TOKEN", "123:abc")

	cfg, err := Parse([]byte(`
version: "1"
modules:
  adapter.telegram:
    bot_token: ${TGB_TEST_TOKEN}
    bot_api_server_addr: ${TGB_TEST_API:-https://api.telegram.org}
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Driver != core.DriverClient {
		t.Errorf("Driver = %q, want default %q", cfg.Driver, core.DriverClient)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v", cfg.Log)
	}

	node := cfg.Modules["adapter.telegram"]
	var mod struct {
		Token  string `yaml:"bot_token"`
		Server string `yaml:"bot_api_server_addr"`
	}
	if err := node.Decode(&mod); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if mod.Token != "123:abc" {
		t.Errorf("bot_token = %q", mod.Token)
	}
	if mod.Server != "https://api.telegram.org" {
		t.Errorf("bot_api_server_addr = %q", mod.Server)
	}
}

func TestParse_UnresolvedVariables(t *testing.T) {
	_, err := Parse([]byte("a: ${TGB_MISSING_ONE}\nb: ${TGB_MISSING_TWO}\n"))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, name := range []string{"TGB_MISSING_ONE", "TGB_MISSING_TWO"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not mention %s", err, name)
		}
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("TGB_DOTENV_DRIVER=server\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "tgbridge.yaml")
	if err := os.WriteFile(path, []byte("version: \"1\"\ndriver: ${TGB_DOTENV_DRIVER}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("TGB_DOTENV_DRIVER") })

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Driver != core.DriverServer {
		t.Errorf("Driver = %q, want %q", cfg.Driver, core.DriverServer)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
