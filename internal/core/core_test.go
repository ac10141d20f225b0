package core

import (
	"errors"
	"slices"
	"testing"
)

func TestGetModules_StartOrder(t *testing.T) {
	t.Cleanup(resetRegistry)

	for _, id := range []ModuleID{"adapter.telegram", "gateway.http", "zzz.other", "handler.builtin", "telemetry.otel"} {
		RegisterModule(&trackingModule{id: id})
	}

	var got []ModuleID
	for _, info := range GetModules() {
		got = append(got, info.ID)
	}
	want := []ModuleID{"telemetry.otel", "gateway.http", "handler.builtin", "adapter.telegram", "zzz.other"}
	if !slices.Equal(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}

	adapters := GetModulesByNamespace("adapter")
	if len(adapters) != 1 || adapters[0].ID != "adapter.telegram" {
		t.Errorf("GetModulesByNamespace(adapter) = %v", adapters)
	}
}

func TestRegisterModule_Duplicate(t *testing.T) {
	t.Cleanup(resetRegistry)
	RegisterModule(&trackingModule{id: "test.dup"})

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	RegisterModule(&trackingModule{id: "test.dup"})
}

func TestApp_StartFailureStopsStartedModules(t *testing.T) {
	t.Cleanup(resetRegistry)

	var events []string
	RegisterModule(&trackingModule{
		id:      "gateway.http",
		onStart: func() { events = append(events, "start gateway") },
		onStop:  func() { events = append(events, "stop gateway") },
	})
	RegisterModule(&trackingModule{
		id:       "adapter.telegram",
		onStart:  func() { events = append(events, "start adapter") },
		onStop:   func() { events = append(events, "stop adapter") },
		startErr: errors.New("boom"),
	})

	app := NewApp(NewAppContext(nil, t.TempDir(), DriverClient))
	if err := app.LoadModules([]string{"gateway.http", "adapter.telegram"}); err != nil {
		t.Fatalf("LoadModules: %v", err)
	}
	if err := app.Start(); err == nil {
		t.Fatal("expected start error")
	}

	want := []string{"start gateway", "start adapter", "stop gateway"}
	if !slices.Equal(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestModuleID_Namespace(t *testing.T) {
	tests := map[ModuleID]string{
		"adapter.telegram": "adapter",
		"gateway":          "gateway",
		"a.b.c":            "a",
	}
	for id, want := range tests {
		if got := id.Namespace(); got != want {
			t.Errorf("%q.Namespace() = %q, want %q", id, got, want)
		}
	}
}
