// Package plugins defines the language handler capability set and the
// explicit, ordered registry the workflow resolves handlers from.
package plugins

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jacopone/brownkit-sub001/internal/analysis"
)

// SetupResult is what a setup capability did to the project.
type SetupResult struct {
	// Files are project-relative paths created or modified
	Files []string
	// Actions describe each change for reports and decisions
	Actions []string
}

func (r *SetupResult) add(file, action string) {
	if file != "" {
		r.Files = append(r.Files, file)
	}
	r.Actions = append(r.Actions, action)
}

// LanguageHandler is the per-ecosystem collaborator used by the phases.
// Setup capabilities must be idempotent: running one twice leaves the
// project as the first run did and reports no files.
type LanguageHandler interface {
	// Name is the registry key, e.g. "go"
	Name() string
	Detect(root string) (bool, error)
	SetupStructure(ctx context.Context, root string) (*SetupResult, error)
	SetupTests(ctx context.Context, root string) (*SetupResult, error)
	SetupQuality(ctx context.Context, root string) (*SetupResult, error)
	// ValidationCommands are run when no commands are configured
	ValidationCommands() []analysis.Command
}

// UnsupportedLanguageError is returned when no handler is registered for a
// language, or none detects the project.
type UnsupportedLanguageError struct {
	Language  string // empty when detection found nothing
	Available []string
}

func (e *UnsupportedLanguageError) Error() string {
	if e.Language == "" {
		return fmt.Sprintf("no language handler detected this project (available: %s)", strings.Join(e.Available, ", "))
	}
	return fmt.Sprintf("unsupported language %q (available: %s)", e.Language, strings.Join(e.Available, ", "))
}

// Registry maps language keys to handlers in registration order.
type Registry struct {
	order    []string
	handlers map[string]LanguageHandler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]LanguageHandler)}
}

// DefaultRegistry returns a registry with the built-in handlers, Go first.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, h := range []LanguageHandler{NewGoHandler(), NewPythonHandler()} {
		if err := r.Register(h); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a handler. Keys are unique.
func (r *Registry) Register(h LanguageHandler) error {
	if h == nil || h.Name() == "" {
		return fmt.Errorf("handler must have a name")
	}
	if _, exists := r.handlers[h.Name()]; exists {
		return fmt.Errorf("handler %q already registered", h.Name())
	}
	r.order = append(r.order, h.Name())
	r.handlers[h.Name()] = h
	return nil
}

// Names returns the registered keys in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Get returns the handler registered under name.
func (r *Registry) Get(name string) (LanguageHandler, error) {
	h, ok := r.handlers[name]
	if !ok {
		return nil, &UnsupportedLanguageError{Language: name, Available: r.Names()}
	}
	return h, nil
}

// Detect returns the first handler, in registration order, that detects root.
func (r *Registry) Detect(root string) (LanguageHandler, error) {
	for _, name := range r.order {
		ok, err := r.handlers[name].Detect(root)
		if err != nil {
			return nil, fmt.Errorf("%s detection failed: %w", name, err)
		}
		if ok {
			return r.handlers[name], nil
		}
	}
	return nil, &UnsupportedLanguageError{Available: r.Names()}
}

// Resolve returns the named handler, or detects one when name is empty.
func (r *Registry) Resolve(root, name string) (LanguageHandler, error) {
	if name != "" {
		return r.Get(name)
	}
	return r.Detect(root)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// hasTests reports whether any test file exists under root.
func hasTests(ctx context.Context, root string, exts ...string) (bool, error) {
	found := false
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		if d.IsDir() {
			if rel != "." && analysis.ShouldExcludePath(rel, true, analysis.DefaultExcludePatterns) {
				return filepath.SkipDir
			}
			return nil
		}
		for _, ext := range exts {
			if filepath.Ext(path) == ext && analysis.IsTestFile(filepath.ToSlash(rel)) {
				found = true
				return filepath.SkipAll
			}
		}
		return nil
	})
	return found, err
}

// writeNew writes a file only when it does not exist yet.
func writeNew(root, rel string, data []byte) (bool, error) {
	path := filepath.Join(root, rel)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return false, err
	}
	return true, nil
}
