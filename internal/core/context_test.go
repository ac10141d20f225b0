package core

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestAppContext_ForModule(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx := NewAppContext(logger, "/data", DriverServer)
	child := ctx.ForModule("adapter.telegram")
	child.Logger.Info("hello")

	if !bytes.Contains(buf.Bytes(), []byte("adapter.telegram")) {
		t.Errorf("expected child logger to contain module ID, got: %s", buf.String())
	}
	if child.Driver != DriverServer {
		t.Errorf("Driver = %q, want %q", child.Driver, DriverServer)
	}
}

func TestNewAppContext_DefaultDriver(t *testing.T) {
	ctx := NewAppContext(nil, "/data", "")
	if ctx.Driver != DriverClient {
		t.Errorf("Driver = %q, want %q", ctx.Driver, DriverClient)
	}
}

func TestAppContext_ServicesSharedAcrossModules(t *testing.T) {
	root := NewAppContext(nil, "/data", DriverClient)
	producer := root.ForModule("gateway.http")
	consumer := root.ForModule("adapter.telegram")

	producer.RegisterService("greeting", "hello")

	svc, ok := consumer.GetService("greeting")
	if !ok {
		t.Fatal("service not visible from sibling module context")
	}
	if svc != "hello" {
		t.Errorf("service = %v, want hello", svc)
	}

	if _, ok := LookupService[int](consumer, "greeting"); ok {
		t.Error("LookupService should reject a service of the wrong type")
	}
	got, ok := LookupService[string](consumer, "greeting")
	if !ok || got != "hello" {
		t.Errorf("LookupService = %q, %v", got, ok)
	}
	if _, ok := consumer.GetService("missing"); ok {
		t.Error("expected missing service lookup to fail")
	}
}

func TestAppContext_LoadModule(t *testing.T) {
	t.Cleanup(resetRegistry)

	provisioned := false
	validated := false
	RegisterModule(&trackingModule{
		id:          "test.loadmod",
		onProvision: func() { provisioned = true },
		onValidate:  func() { validated = true },
	})

	mod, err := NewAppContext(nil, "/data", DriverClient).LoadModule("test.loadmod")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mod == nil {
		t.Fatal("expected non-nil module")
	}
	if !provisioned || !validated {
		t.Errorf("provisioned=%v validated=%v, want both true", provisioned, validated)
	}
}

func TestAppContext_LoadModule_Errors(t *testing.T) {
	tests := []struct {
		name   string
		module Module
		id     string
	}{
		{"unknown id", nil, "does.not.exist"},
		{"provision", &trackingModule{id: "test.provfail", provisionErr: errors.New("boom")}, "test.provfail"},
		{"validate", &trackingModule{id: "test.valfail", validateErr: errors.New("boom")}, "test.valfail"},
		{"configure", &configurableMod{id: "test.cfgerr", configErr: errors.New("boom")}, "test.cfgerr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Cleanup(resetRegistry)
			if tt.module != nil {
				RegisterModule(tt.module)
			}
			if _, err := NewAppContext(nil, "/data", DriverClient).LoadModule(tt.id); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestAppContext_LoadModule_WithConfig(t *testing.T) {
	t.Cleanup(resetRegistry)

	configured := false
	receivedKey := ""
	RegisterModule(&configurableMod{
		id:          "test.cfgmod",
		configured:  &configured,
		receivedKey: &receivedKey,
	})

	var node yaml.Node
	if err := yaml.Unmarshal([]byte("key: hello"), &node); err != nil {
		t.Fatal(err)
	}

	ctx := NewAppContext(nil, "/data", DriverClient).WithModuleConfigs(map[string]yaml.Node{
		"test.cfgmod": *node.Content[0],
	})
	if _, err := ctx.LoadModule("test.cfgmod"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !configured {
		t.Error("expected Configure to be called")
	}
	if receivedKey != "hello" {
		t.Errorf("receivedKey = %q, want %q", receivedKey, "hello")
	}
}

func TestAppContext_LoadModule_NoConfigStillConfigures(t *testing.T) {
	t.Cleanup(resetRegistry)

	configured := false
	receivedKey := "unset"
	RegisterModule(&configurableMod{
		id:          "test.noconfig",
		configured:  &configured,
		receivedKey: &receivedKey,
	})

	if _, err := NewAppContext(nil, "/data", DriverClient).LoadModule("test.noconfig"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !configured {
		t.Error("Configure should run with an empty section so defaults apply")
	}
	if receivedKey != "" {
		t.Errorf("receivedKey = %q, want empty", receivedKey)
	}
}

// trackingModule records lifecycle calls.
type trackingModule struct {
	id           ModuleID
	onProvision  func()
	onValidate   func()
	onStart      func()
	onStop       func()
	provisionErr error
	validateErr  error
	startErr     error
}

func (m *trackingModule) ModuleInfo() ModuleInfo {
	proto := *m
	return ModuleInfo{
		ID: m.id,
		New: func() Module {
			cp := proto
			return &cp
		},
	}
}

func (m *trackingModule) Provision(_ *AppContext) error {
	if m.onProvision != nil {
		m.onProvision()
	}
	return m.provisionErr
}

func (m *trackingModule) Validate() error {
	if m.onValidate != nil {
		m.onValidate()
	}
	return m.validateErr
}

func (m *trackingModule) Start() error {
	if m.onStart != nil {
		m.onStart()
	}
	return m.startErr
}

func (m *trackingModule) Stop(_ context.Context) error {
	if m.onStop != nil {
		m.onStop()
	}
	return nil
}

type configurableMod struct {
	id          ModuleID
	configured  *bool
	receivedKey *string
	configErr   error
}

func (m *configurableMod) ModuleInfo() ModuleInfo {
	proto := *m
	return ModuleInfo{
		ID: m.id,
		New: func() Module {
			cp := proto
			return &cp
		},
	}
}

func (m *configurableMod) Configure(node *yaml.Node) error {
	if m.configErr != nil {
		return m.configErr
	}
	if m.configured != nil {
		*m.configured = true
	}
	if m.receivedKey != nil {
		var parsed struct {
			Key string `yaml:"key"`
		}
		if err := node.Decode(&parsed); err != nil {
			return err
		}
		*m.receivedKey = parsed.Key
	}
	return nil
}
