package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Plugin identifies a third-party Go module to include in the build.
type Plugin struct {
	ModulePath string
	Version    string
}

// String returns the module@version representation.
func (p Plugin) String() string {
	if p.Version != "" {
		return p.ModulePath + "@" + p.Version
	}
	return p.ModulePath
}

// BuildRequest contains all parameters for building a custom telegate binary.
type BuildRequest struct {
	Plugins       []Plugin
	OnlyIDs       []string
	OutputPath    string
	GoPath        string
	BridgeVersion string // telegate module version (e.g. "v0.1.0", "latest")
}

// Build generates and compiles a custom telegate binary with the given
// modules and plugins. The generated tree lives in a temp dir that is removed
// when the build finishes.
func Build(ctx context.Context, req BuildRequest) error {
	tmpDir, err := os.MkdirTemp("", "xtelegate-build-*")
	if err != nil {
		return fmt.Errorf("creating temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	firstParty := DefaultModules
	if len(req.OnlyIDs) > 0 {
		firstParty = filterModules(DefaultModules, req.OnlyIDs)
	}

	pluginPkgs := make([]string, len(req.Plugins))
	for i, p := range req.Plugins {
		pluginPkgs[i] = p.ModulePath
	}

	mainPath := filepath.Join(tmpDir, "main.go")
	f, err := os.Create(mainPath)
	if err != nil {
		return fmt.Errorf("creating main.go: %w", err)
	}
	if err := GenerateMain(f, CodegenParams{
		FirstPartyPkgs: firstParty,
		PluginPkgs:     pluginPkgs,
	}); err != nil {
		_ = f.Close()
		return fmt.Errorf("generating main.go: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing main.go: %w", err)
	}

	bridgeVer := req.BridgeVersion
	if bridgeVer == "" {
		bridgeVer = "latest"
	}
	if err := generateGoMod(tmpDir, req.Plugins, bridgeVer); err != nil {
		return fmt.Errorf("generating go.mod: %w", err)
	}

	goCmd := req.GoPath

	tidy := exec.CommandContext(ctx, goCmd, "mod", "tidy")
	tidy.Dir = tmpDir
	tidy.Stdout = os.Stdout
	tidy.Stderr = os.Stderr
	if err := tidy.Run(); err != nil {
		return fmt.Errorf("go mod tidy failed: %w", err)
	}

	outputAbs, err := filepath.Abs(req.OutputPath)
	if err != nil {
		return fmt.Errorf("resolving output path: %w", err)
	}

	build := exec.CommandContext(ctx, goCmd, "build", "-ldflags", "-s -w", "-o", outputAbs, ".")
	build.Dir = tmpDir
	build.Stdout = os.Stdout
	build.Stderr = os.Stderr
	if err := build.Run(); err != nil {
		return fmt.Errorf("go build failed: %w", err)
	}

	fmt.Printf("Built %s\n", outputAbs)
	return nil
}

func generateGoMod(dir string, plugins []Plugin, bridgeVersion string) error {
	var b strings.Builder
	b.WriteString("module telegate-custom\n\n")
	b.WriteString("go 1.25.0\n\n")
	b.WriteString("require (\n")
	fmt.Fprintf(&b, "\tgithub.com/telegate/telegate %s\n", bridgeVersion)
	for _, p := range plugins {
		if p.Version != "" {
			fmt.Fprintf(&b, "\t%s %s\n", p.ModulePath, p.Version)
		}
	}
	b.WriteString(")\n")

	return os.WriteFile(filepath.Join(dir, "go.mod"), []byte(b.String()), 0o644)
}

// parsePlugins converts "module@version" strings into Plugin structs.
func parsePlugins(raw []string) ([]Plugin, error) {
	plugins := make([]Plugin, len(raw))
	for i, s := range raw {
		if idx := strings.LastIndex(s, "@"); idx > 0 {
			plugins[i] = Plugin{ModulePath: s[:idx], Version: s[idx+1:]}
		} else {
			plugins[i] = Plugin{ModulePath: s}
		}
		if plugins[i].ModulePath == "" {
			return nil, fmt.Errorf("empty module path in %q", s)
		}
	}
	return plugins, nil
}

// filterModules returns only modules whose import paths contain one of the
// given IDs. A contains check lets --only work with partial names like
// "telegram" or "sqlite".
func filterModules(all []string, onlyIDs []string) []string {
	var result []string
	for _, mod := range all {
		for _, id := range onlyIDs {
			if strings.Contains(mod, id) {
				result = append(result, mod)
				break
			}
		}
	}
	return result
}
