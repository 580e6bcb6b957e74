package analysis

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/jacopone/brownkit-sub001/internal/types"
)

// MetricsCollector measures a project.
type MetricsCollector interface {
	Collect(ctx context.Context, root string) (*types.Metrics, error)
}

// FileMetrics counts files, source lines and test files by walking the tree.
type FileMetrics struct {
	// ExcludePatterns for files/directories to skip
	ExcludePatterns []string
	// SourceExtensions to count as source
	SourceExtensions []string
	// Now stamps CollectedAt; defaults to time.Now
	Now func() time.Time
}

// NewFileMetrics creates a collector with the default patterns.
func NewFileMetrics() *FileMetrics {
	return &FileMetrics{
		ExcludePatterns:  DefaultExcludePatterns,
		SourceExtensions: DefaultSourceExtensions,
		Now:              time.Now,
	}
}

// Collect implements MetricsCollector. TestRatio is the share of source files
// that are tests, in [0, 1].
func (m *FileMetrics) Collect(ctx context.Context, root string) (*types.Metrics, error) {
	metrics := &types.Metrics{}

	err := walkFiles(ctx, root, m.ExcludePatterns, func(rel, full string) error {
		metrics.Files++
		if !hasExtension(rel, m.SourceExtensions) {
			return nil
		}
		lines, err := countLines(full)
		if err != nil {
			return fmt.Errorf("counting lines in %s: %w", rel, err)
		}
		metrics.Lines += lines
		if IsTestFile(rel) {
			metrics.TestFiles++
		} else {
			metrics.SourceFiles++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collecting metrics for %s: %w", root, err)
	}

	if total := metrics.SourceFiles + metrics.TestFiles; total > 0 {
		metrics.TestRatio = float64(metrics.TestFiles) / float64(total)
	}
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	metrics.CollectedAt = now().UTC()
	return metrics, nil
}

// IsTestFile reports whether a slash-separated relative path names a test
// file by the conventions of the common languages.
func IsTestFile(rel string) bool {
	base := path.Base(rel)
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	switch {
	case strings.HasSuffix(stem, "_test"):
		return true
	case ext == ".py" && strings.HasPrefix(stem, "test_"):
		return true
	case strings.HasSuffix(stem, ".test"), strings.HasSuffix(stem, ".spec"):
		return true
	case strings.HasSuffix(stem, "Test") && (ext == ".java" || ext == ".kt"):
		return true
	}
	for _, dir := range strings.Split(path.Dir(rel), "/") {
		if dir == "tests" || dir == "test" || dir == "__tests__" {
			return true
		}
	}
	return false
}

func countLines(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	n := 0
	for scanner.Scan() {
		n++
	}
	return n, scanner.Err()
}
