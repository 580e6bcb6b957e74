package plugins

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return root
}

func TestDefaultRegistryOrder(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{"go", "python"}, r.Names())

	h, err := r.Get("python")
	require.NoError(t, err)
	assert.Equal(t, "python", h.Name())
}

func TestRegistryUnknownLanguage(t *testing.T) {
	_, err := DefaultRegistry().Get("cobol")
	var unsupported *UnsupportedLanguageError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "cobol", unsupported.Language)
	assert.Equal(t, []string{"go", "python"}, unsupported.Available)
	assert.Contains(t, err.Error(), `unsupported language "cobol"`)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewGoHandler()))
	assert.Error(t, r.Register(NewGoHandler()))
	assert.Error(t, r.Register(nil))
}

func TestRegistryDetect(t *testing.T) {
	r := DefaultRegistry()

	h, err := r.Detect(writeFiles(t, map[string]string{"go.mod": "module example.com/a\n", "requirements.txt": ""}))
	require.NoError(t, err)
	assert.Equal(t, "go", h.Name(), "first registered handler wins")

	h, err = r.Detect(writeFiles(t, map[string]string{"requirements.txt": "requests\n"}))
	require.NoError(t, err)
	assert.Equal(t, "python", h.Name())

	_, err = r.Detect(t.TempDir())
	var unsupported *UnsupportedLanguageError
	require.True(t, errors.As(err, &unsupported))
	assert.Empty(t, unsupported.Language)

	h, err = r.Resolve(t.TempDir(), "go")
	require.NoError(t, err)
	assert.Equal(t, "go", h.Name())
}

func TestGoSetupStructure(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"go.mod":  "module example.com/legacy\n\nrequire github.com/pkg/errors v0.9.1\n",
		"main.go": "package main\n\nfunc main() {}\n",
	})
	h := NewGoHandler()

	result, err := h.SetupStructure(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"go.mod", "internal/doc.go"}, result.Files)

	f, err := ParseModule(root)
	require.NoError(t, err)
	require.NotNil(t, f.Go)
	assert.Equal(t, DefaultGoVersion, f.Go.Version)
	require.Len(t, f.Require, 1)
	assert.Equal(t, "github.com/pkg/errors", f.Require[0].Mod.Path)

	again, err := h.SetupStructure(context.Background(), root)
	require.NoError(t, err)
	assert.Empty(t, again.Files)
}

func TestGoSetupStructureBadModule(t *testing.T) {
	root := writeFiles(t, map[string]string{"go.mod": "this is not a go.mod\n"})
	_, err := NewGoHandler().SetupStructure(context.Background(), root)
	assert.Error(t, err)
}

func TestGoSetupTests(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"go.mod":  "module example.com/legacy\n\ngo 1.21\n",
		"tool.go": "// Package legacy does things.\npackage legacy\n",
	})
	h := NewGoHandler()

	result, err := h.SetupTests(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"smoke_test.go"}, result.Files)
	data, err := os.ReadFile(filepath.Join(root, "smoke_test.go"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "package legacy")

	again, err := h.SetupTests(context.Background(), root)
	require.NoError(t, err)
	assert.Empty(t, again.Files)
	assert.Equal(t, []string{"existing Go tests found"}, again.Actions)
}

func TestGoSetupQuality(t *testing.T) {
	root := writeFiles(t, map[string]string{"go.mod": "module example.com/a\n"})
	h := NewGoHandler()

	result, err := h.SetupQuality(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{".golangci.yml"}, result.Files)

	data, err := os.ReadFile(filepath.Join(root, ".golangci.yml"))
	require.NoError(t, err)
	var cfg golangciConfig
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	assert.Equal(t, "5m", cfg.Run.Timeout)
	assert.Contains(t, cfg.Linters.Enable, "govet")

	again, err := h.SetupQuality(context.Background(), root)
	require.NoError(t, err)
	assert.Empty(t, again.Files)
}

func TestPythonSetupStructure(t *testing.T) {
	root := writeFiles(t, map[string]string{"requirements.txt": "flask\n"})
	h := NewPythonHandler()

	result, err := h.SetupStructure(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"pyproject.toml"}, result.Files)

	p, err := LoadPyProject(root)
	require.NoError(t, err)
	assert.NotEmpty(t, p.Project.Name)
	assert.Equal(t, "0.1.0", p.Project.Version)
	assert.Equal(t, ">=3.9", p.Project.RequiresPython)

	again, err := h.SetupStructure(context.Background(), root)
	require.NoError(t, err)
	assert.Empty(t, again.Files)
}

func TestPythonSetupTests(t *testing.T) {
	root := writeFiles(t, map[string]string{"app.py": "print('hi')\n"})
	h := NewPythonHandler()

	result, err := h.SetupTests(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"tests/__init__.py", "tests/test_smoke.py"}, result.Files)

	again, err := h.SetupTests(context.Background(), root)
	require.NoError(t, err)
	assert.Empty(t, again.Files)
}

func TestPythonSetupQuality(t *testing.T) {
	t.Run("writes ruff.toml", func(t *testing.T) {
		root := writeFiles(t, map[string]string{"pyproject.toml": "[project]\nname = \"svc\"\n"})
		result, err := NewPythonHandler().SetupQuality(context.Background(), root)
		require.NoError(t, err)
		assert.Equal(t, []string{"ruff.toml"}, result.Files)

		var cfg struct {
			LineLength int `toml:"line-length"`
			Lint       struct {
				Select []string `toml:"select"`
			} `toml:"lint"`
		}
		_, err = toml.DecodeFile(filepath.Join(root, "ruff.toml"), &cfg)
		require.NoError(t, err)
		assert.Equal(t, 100, cfg.LineLength)
		assert.Equal(t, []string{"E", "F", "I", "B"}, cfg.Lint.Select)
	})

	t.Run("respects tool.ruff", func(t *testing.T) {
		root := writeFiles(t, map[string]string{"pyproject.toml": "[project]\nname = \"svc\"\n\n[tool.ruff]\nline-length = 88\n"})
		result, err := NewPythonHandler().SetupQuality(context.Background(), root)
		require.NoError(t, err)
		assert.Empty(t, result.Files)
		assert.NoFileExists(t, filepath.Join(root, "ruff.toml"))
	})
}

func TestValidationCommands(t *testing.T) {
	for _, h := range []LanguageHandler{NewGoHandler(), NewPythonHandler()} {
		cmds := h.ValidationCommands()
		require.NotEmpty(t, cmds, h.Name())
		for _, c := range cmds {
			assert.NotEmpty(t, c.Name)
			assert.NotEmpty(t, c.Args)
		}
	}
}
