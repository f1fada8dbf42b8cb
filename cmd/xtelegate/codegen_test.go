package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestGenerateMain_NoModules(t *testing.T) {
	var buf bytes.Buffer
	if err := GenerateMain(&buf, CodegenParams{}); err != nil {
		t.Fatalf("GenerateMain error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `"github.com/telegate/telegate/pkg/app"`) {
		t.Error("missing pkg/app import")
	}
	if !strings.Contains(out, "app.Run(app.RunParams{") {
		t.Error("missing app.Run call")
	}
	// Without modules or plugins there is nothing to blank-import.
	if strings.Contains(out, `_ "`) {
		t.Error("unexpected blank import in output without modules")
	}
}

func TestGenerateMain_WithPlugins(t *testing.T) {
	var buf bytes.Buffer
	err := GenerateMain(&buf, CodegenParams{
		PluginPkgs: []string{"github.com/example/channel-matrix"},
	})
	if err != nil {
		t.Fatalf("GenerateMain error: %v", err)
	}

	if !strings.Contains(buf.String(), `_ "github.com/example/channel-matrix"`) {
		t.Errorf("missing plugin import in:\n%s", buf.String())
	}
}

func TestGenerateMain_WithFirstParty(t *testing.T) {
	var buf bytes.Buffer
	err := GenerateMain(&buf, CodegenParams{
		FirstPartyPkgs: []string{"github.com/telegate/telegate/modules/channel/telegram"},
	})
	if err != nil {
		t.Fatalf("GenerateMain error: %v", err)
	}

	if !strings.Contains(buf.String(), `_ "github.com/telegate/telegate/modules/channel/telegram"`) {
		t.Errorf("missing first-party import in:\n%s", buf.String())
	}
}

func TestGenerateMain_DefaultModules(t *testing.T) {
	var buf bytes.Buffer
	err := GenerateMain(&buf, CodegenParams{
		FirstPartyPkgs: DefaultModules,
		PluginPkgs:     []string{"github.com/example/custom"},
	})
	if err != nil {
		t.Fatalf("GenerateMain error: %v", err)
	}

	out := buf.String()
	for _, pkg := range DefaultModules {
		if !strings.Contains(out, `_ "`+pkg+`"`) {
			t.Errorf("missing default module %s", pkg)
		}
	}
	if !strings.Contains(out, "example/custom") {
		t.Error("missing plugin module")
	}
}
