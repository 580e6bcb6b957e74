package plugins

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"
	"gopkg.in/yaml.v3"

	"github.com/jacopone/brownkit-sub001/internal/analysis"
)

// DefaultGoVersion is written when go.mod lacks a go directive.
const DefaultGoVersion = "1.22"

// GoHandler handles Go modules.
type GoHandler struct {
	GoVersion string
}

// NewGoHandler creates a Go handler.
func NewGoHandler() *GoHandler {
	return &GoHandler{GoVersion: DefaultGoVersion}
}

func (h *GoHandler) Name() string { return "go" }

// Detect reports whether root holds a go.mod.
func (h *GoHandler) Detect(root string) (bool, error) {
	return fileExists(filepath.Join(root, "go.mod")), nil
}

// ParseModule reads and parses root/go.mod.
func ParseModule(root string) (*modfile.File, error) {
	path := filepath.Join(root, "go.mod")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := modfile.Parse(path, data, nil)
	if err != nil {
		return nil, fmt.Errorf("parsing go.mod: %w", err)
	}
	if f.Module == nil || f.Module.Mod.Path == "" {
		return nil, fmt.Errorf("go.mod has no module directive")
	}
	return f, nil
}

// SetupStructure ensures go.mod declares a go version and the standard
// internal/ layout exists.
func (h *GoHandler) SetupStructure(ctx context.Context, root string) (*SetupResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := ParseModule(root)
	if err != nil {
		return nil, err
	}
	result := &SetupResult{}

	if f.Go == nil {
		version := h.GoVersion
		if version == "" {
			version = DefaultGoVersion
		}
		if err := f.AddGoStmt(version); err != nil {
			return nil, fmt.Errorf("adding go directive: %w", err)
		}
		f.Cleanup()
		data, err := f.Format()
		if err != nil {
			return nil, fmt.Errorf("formatting go.mod: %w", err)
		}
		if err := os.WriteFile(filepath.Join(root, "go.mod"), data, 0644); err != nil {
			return nil, fmt.Errorf("writing go.mod: %w", err)
		}
		result.add("go.mod", fmt.Sprintf("declared go %s in go.mod", version))
	}

	doc := fmt.Sprintf("// Package internal holds packages private to %s.\npackage internal\n", f.Module.Mod.Path)
	if _, err := os.Stat(filepath.Join(root, "internal")); os.IsNotExist(err) {
		created, err := writeNew(root, "internal/doc.go", []byte(doc))
		if err != nil {
			return nil, fmt.Errorf("creating internal/: %w", err)
		}
		if created {
			result.add("internal/doc.go", "created internal/ package tree")
		}
	}
	return result, nil
}

// SetupTests adds a smoke test to the root package when the module has no
// tests at all.
func (h *GoHandler) SetupTests(ctx context.Context, root string) (*SetupResult, error) {
	result := &SetupResult{}
	found, err := hasTests(ctx, root, ".go")
	if err != nil {
		return nil, fmt.Errorf("looking for tests: %w", err)
	}
	if found {
		result.add("", "existing Go tests found")
		return result, nil
	}

	pkg, err := rootPackage(root)
	if err != nil {
		return nil, err
	}
	if pkg == "" {
		result.add("", "no Go package at module root; skipped smoke test")
		return result, nil
	}
	body := fmt.Sprintf("package %s\n\nimport \"testing\"\n\nfunc TestSmoke(t *testing.T) {}\n", pkg)
	created, err := writeNew(root, "smoke_test.go", []byte(body))
	if err != nil {
		return nil, fmt.Errorf("writing smoke test: %w", err)
	}
	if created {
		result.add("smoke_test.go", fmt.Sprintf("added smoke test to package %s", pkg))
	}
	return result, nil
}

// golangciConfig is the subset of .golangci.yml we write.
type golangciConfig struct {
	Run struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"run"`
	Linters struct {
		Enable []string `yaml:"enable"`
	} `yaml:"linters"`
}

// SetupQuality writes a golangci-lint configuration if none exists.
func (h *GoHandler) SetupQuality(ctx context.Context, root string) (*SetupResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := &SetupResult{}
	for _, name := range []string{".golangci.yml", ".golangci.yaml", ".golangci.toml", ".golangci.json"} {
		if fileExists(filepath.Join(root, name)) {
			result.add("", fmt.Sprintf("kept existing %s", name))
			return result, nil
		}
	}

	var cfg golangciConfig
	cfg.Run.Timeout = "5m"
	cfg.Linters.Enable = []string{"errcheck", "govet", "ineffassign", "staticcheck", "unused"}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return nil, err
	}
	if _, err := writeNew(root, ".golangci.yml", data); err != nil {
		return nil, fmt.Errorf("writing .golangci.yml: %w", err)
	}
	result.add(".golangci.yml", "configured golangci-lint")
	return result, nil
}

// ValidationCommands builds, vets and tests every package.
func (h *GoHandler) ValidationCommands() []analysis.Command {
	return []analysis.Command{
		{Name: "build", Args: []string{"go", "build", "./..."}},
		{Name: "vet", Args: []string{"go", "vet", "./..."}},
		{Name: "test", Args: []string{"go", "test", "./..."}},
	}
}

// rootPackage returns the package clause of the first non-test .go file in
// root, or "" when there is none.
func rootPackage(root string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".go" || strings.HasSuffix(name, "_test.go") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(root, name))
		if err != nil {
			return "", err
		}
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			fields := strings.Fields(scanner.Text())
			if len(fields) >= 2 && fields[0] == "package" {
				return fields[1], nil
			}
		}
	}
	return "", nil
}
