package analysis

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// DefaultExcludePatterns are skipped in addition to .gitignore rules.
var DefaultExcludePatterns = []string{
	".git/",
	".brownfield/",
	"vendor/",
	"node_modules/",
	"testdata/",
	".venv/",
	"__pycache__/",
	".pb.go",
	".gen.go",
}

// DefaultSourceExtensions are the file extensions counted as source.
var DefaultSourceExtensions = []string{
	".go", ".py", ".js", ".jsx", ".ts", ".tsx", ".java", ".kt", ".rb", ".rs", ".c", ".cc", ".cpp", ".h", ".cs", ".php", ".swift", ".scala", ".sh",
}

// ShouldExcludePath reports whether relPath matches one of the patterns.
// Patterns match at path component boundaries:
//   - Directory prefixes: "vendor/" matches "vendor/foo.go" and "src/vendor/foo.go"
//   - File suffixes: "_test.go" matches "foo_test.go"
func ShouldExcludePath(relPath string, isDir bool, patterns []string) bool {
	relPath = filepath.ToSlash(relPath)
	if isDir && !strings.HasSuffix(relPath, "/") {
		relPath += "/"
	}
	for _, pattern := range patterns {
		switch {
		case strings.HasPrefix(relPath, pattern):
			return true
		case strings.Contains(relPath, "/"+pattern):
			return true
		case strings.HasSuffix(relPath, pattern):
			return true
		}
	}
	return false
}

// walkFiles calls fn for every regular file under root that is not
// excluded by patterns or by the repository's .gitignore files. rel is
// slash-separated and relative to root.
func walkFiles(ctx context.Context, root string, patterns []string, fn func(rel, path string) error) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("invalid root path %q: %w", root, err)
	}

	ignore, err := gitignore.ReadPatterns(osfs.New(absRoot), nil)
	if err != nil {
		return fmt.Errorf("reading .gitignore rules: %w", err)
	}
	matcher := gitignore.NewMatcher(ignore)

	return filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == absRoot {
			return nil
		}

		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if ShouldExcludePath(rel, d.IsDir(), patterns) || matcher.Match(strings.Split(rel, "/"), d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return fn(rel, path)
	})
}

func hasExtension(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
