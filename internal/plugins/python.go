package plugins

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jacopone/brownkit-sub001/internal/analysis"
)

// PythonHandler handles Python projects.
type PythonHandler struct {
	RequiresPython string
}

// NewPythonHandler creates a Python handler.
func NewPythonHandler() *PythonHandler {
	return &PythonHandler{RequiresPython: ">=3.9"}
}

func (h *PythonHandler) Name() string { return "python" }

// Detect reports whether root carries Python packaging metadata.
func (h *PythonHandler) Detect(root string) (bool, error) {
	for _, name := range []string{"pyproject.toml", "setup.py", "setup.cfg", "requirements.txt"} {
		if fileExists(filepath.Join(root, name)) {
			return true, nil
		}
	}
	return false, nil
}

// PyProject is the part of pyproject.toml we read.
type PyProject struct {
	Project struct {
		Name           string `toml:"name"`
		Version        string `toml:"version"`
		RequiresPython string `toml:"requires-python"`
	} `toml:"project"`
	Tool map[string]interface{} `toml:"tool"`
}

// LoadPyProject decodes root/pyproject.toml.
func LoadPyProject(root string) (*PyProject, error) {
	var p PyProject
	if _, err := toml.DecodeFile(filepath.Join(root, "pyproject.toml"), &p); err != nil {
		return nil, fmt.Errorf("parsing pyproject.toml: %w", err)
	}
	return &p, nil
}

var nonNameChars = regexp.MustCompile(`[^a-z0-9]+`)

// SetupStructure writes a minimal pyproject.toml when the project has none.
// An existing one is validated, not rewritten.
func (h *PythonHandler) SetupStructure(ctx context.Context, root string) (*SetupResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := &SetupResult{}
	if fileExists(filepath.Join(root, "pyproject.toml")) {
		p, err := LoadPyProject(root)
		if err != nil {
			return nil, err
		}
		if p.Project.Name == "" {
			result.add("", "pyproject.toml has no [project] name; left unchanged")
		} else {
			result.add("", fmt.Sprintf("kept existing pyproject.toml for %s", p.Project.Name))
		}
		return result, nil
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	name := strings.Trim(nonNameChars.ReplaceAllString(strings.ToLower(filepath.Base(abs)), "-"), "-")
	if name == "" {
		name = "project"
	}
	doc := map[string]interface{}{
		"project": map[string]interface{}{
			"name":            name,
			"version":         "0.1.0",
			"requires-python": h.RequiresPython,
		},
		"build-system": map[string]interface{}{
			"requires":      []string{"setuptools>=61"},
			"build-backend": "setuptools.build_meta",
		},
	}
	if err := writeTOML(root, "pyproject.toml", doc); err != nil {
		return nil, err
	}
	result.add("pyproject.toml", fmt.Sprintf("created pyproject.toml for %s", name))
	return result, nil
}

// SetupTests creates a pytest tree with a smoke test when no tests exist.
func (h *PythonHandler) SetupTests(ctx context.Context, root string) (*SetupResult, error) {
	result := &SetupResult{}
	found, err := hasTests(ctx, root, ".py")
	if err != nil {
		return nil, fmt.Errorf("looking for tests: %w", err)
	}
	if found {
		result.add("", "existing Python tests found")
		return result, nil
	}
	files := []struct{ rel, body string }{
		{"tests/__init__.py", ""},
		{"tests/test_smoke.py", "def test_smoke():\n    assert True\n"},
	}
	for _, f := range files {
		created, err := writeNew(root, f.rel, []byte(f.body))
		if err != nil {
			return nil, fmt.Errorf("writing %s: %w", f.rel, err)
		}
		if created {
			result.add(f.rel, "created "+f.rel)
		}
	}
	return result, nil
}

// SetupQuality writes ruff.toml unless ruff is already configured.
func (h *PythonHandler) SetupQuality(ctx context.Context, root string) (*SetupResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := &SetupResult{}
	for _, name := range []string{"ruff.toml", ".ruff.toml"} {
		if fileExists(filepath.Join(root, name)) {
			result.add("", "kept existing "+name)
			return result, nil
		}
	}
	if fileExists(filepath.Join(root, "pyproject.toml")) {
		p, err := LoadPyProject(root)
		if err != nil {
			return nil, err
		}
		if _, ok := p.Tool["ruff"]; ok {
			result.add("", "kept [tool.ruff] in pyproject.toml")
			return result, nil
		}
	}

	cfg := map[string]interface{}{
		"line-length": 100,
		"lint": map[string]interface{}{
			"select": []string{"E", "F", "I", "B"},
		},
	}
	if err := writeTOML(root, "ruff.toml", cfg); err != nil {
		return nil, err
	}
	result.add("ruff.toml", "configured ruff")
	return result, nil
}

// ValidationCommands byte-compiles the tree and runs pytest.
func (h *PythonHandler) ValidationCommands() []analysis.Command {
	return []analysis.Command{
		{Name: "compile", Args: []string{"python3", "-m", "compileall", "-q", "."}},
		{Name: "test", Args: []string{"python3", "-m", "pytest", "-q"}},
	}
}

func writeTOML(root, rel string, v interface{}) error {
	f, err := os.Create(filepath.Join(root, rel))
	if err != nil {
		return fmt.Errorf("creating %s: %w", rel, err)
	}
	if err := toml.NewEncoder(f).Encode(v); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", rel, err)
	}
	return f.Close()
}
