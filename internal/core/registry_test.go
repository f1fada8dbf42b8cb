package core

import "testing"

// bareModule returns whatever ModuleInfo it was given, valid or not.
type bareModule struct{ info ModuleInfo }

func (m bareModule) ModuleInfo() ModuleInfo { return m.info }

func expectPanic(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	fn()
}

func TestRegisterModule_DuplicateID(t *testing.T) {
	t.Cleanup(resetRegistry)

	RegisterModule(&trackingModule{id: "test.dup"})
	expectPanic(t, func() {
		RegisterModule(&trackingModule{id: "test.dup"})
	})
}

func TestRegisterModule_EmptyID(t *testing.T) {
	t.Cleanup(resetRegistry)

	expectPanic(t, func() {
		RegisterModule(bareModule{info: ModuleInfo{New: func() Module { return nil }}})
	})
}

func TestRegisterModule_NilNew(t *testing.T) {
	t.Cleanup(resetRegistry)

	expectPanic(t, func() {
		RegisterModule(bareModule{info: ModuleInfo{ID: "test.nilnew"}})
	})
}

func TestGetModule(t *testing.T) {
	t.Cleanup(resetRegistry)

	RegisterModule(&trackingModule{id: "test.present"})

	if _, ok := GetModule("test.present"); !ok {
		t.Error("registered module not found")
	}
	if _, ok := GetModule("test.absent"); ok {
		t.Error("unregistered module found")
	}
}

func TestGetModules_SortedByID(t *testing.T) {
	t.Cleanup(resetRegistry)

	RegisterModule(&trackingModule{id: "store.sqlite"})
	RegisterModule(&trackingModule{id: "agent.backend"})
	RegisterModule(&trackingModule{id: "channel.telegram"})

	mods := GetModules()
	if len(mods) != 3 {
		t.Fatalf("modules = %d, want 3", len(mods))
	}
	want := []ModuleID{"agent.backend", "channel.telegram", "store.sqlite"}
	for i, w := range want {
		if mods[i].ID != w {
			t.Errorf("mods[%d].ID = %s, want %s", i, mods[i].ID, w)
		}
	}
}

func TestGetModulesByNamespace(t *testing.T) {
	t.Cleanup(resetRegistry)

	RegisterModule(&trackingModule{id: "channel.telegram"})
	RegisterModule(&trackingModule{id: "channel.discord"})
	RegisterModule(&trackingModule{id: "channelx.other"})
	RegisterModule(&trackingModule{id: "store.sqlite"})

	mods := GetModulesByNamespace("channel")
	if len(mods) != 2 {
		t.Fatalf("modules = %d, want 2", len(mods))
	}
	// Sorted by ID, and "channelx.other" must not match on the bare prefix.
	if mods[0].ID != "channel.discord" || mods[1].ID != "channel.telegram" {
		t.Errorf("ids = [%s %s], want [channel.discord channel.telegram]", mods[0].ID, mods[1].ID)
	}
}

func TestGetModulesByNamespace_Empty(t *testing.T) {
	t.Cleanup(resetRegistry)

	RegisterModule(&trackingModule{id: "store.sqlite"})

	if mods := GetModulesByNamespace("channel"); len(mods) != 0 {
		t.Errorf("modules = %d, want 0", len(mods))
	}
}

func TestModuleID_NamespaceAndName(t *testing.T) {
	tests := []struct {
		id        ModuleID
		namespace string
		name      string
	}{
		{"channel.telegram", "channel", "telegram"},
		{"store.sqlite", "store", "sqlite"},
		{"gateway.http", "gateway", "http"},
		{"agent.backend.claude", "agent", "backend.claude"},
		{"plain", "plain", "plain"},
	}
	for _, tt := range tests {
		if got := tt.id.Namespace(); got != tt.namespace {
			t.Errorf("Namespace(%s) = %q, want %q", tt.id, got, tt.namespace)
		}
		if got := tt.id.Name(); got != tt.name {
			t.Errorf("Name(%s) = %q, want %q", tt.id, got, tt.name)
		}
	}
}
