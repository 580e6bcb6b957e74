package analysis

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jacopone/brownkit-sub001/internal/types"
)

// TechDebtAnalyzer finds and categorises tech debt.
type TechDebtAnalyzer interface {
	Analyze(ctx context.Context, root string) (*types.DebtSummary, error)
}

// DefaultMarkerSeverities maps comment markers to severities.
var DefaultMarkerSeverities = map[string]types.DebtSeverity{
	"FIXME": types.DebtHigh,
	"BUG":   types.DebtHigh,
	"HACK":  types.DebtMedium,
	"XXX":   types.DebtMedium,
	"TODO":  types.DebtLow,
}

// criticalKeywords escalate any marker to critical.
var criticalKeywords = []string{"security", "vulnerab", "data loss", "critical"}

var markerPattern = regexp.MustCompile(`\b(TODO|FIXME|HACK|XXX|BUG)\b(?:\([^)]*\))?:?\s*(.*)$`)

// MarkerAnalyzer scans source files for debt markers.
type MarkerAnalyzer struct {
	ExcludePatterns  []string
	SourceExtensions []string
	Severities       map[string]types.DebtSeverity
	Now              func() time.Time
}

// NewMarkerAnalyzer creates an analyzer with the default markers.
func NewMarkerAnalyzer() *MarkerAnalyzer {
	return &MarkerAnalyzer{
		ExcludePatterns:  DefaultExcludePatterns,
		SourceExtensions: DefaultSourceExtensions,
		Severities:       DefaultMarkerSeverities,
		Now:              time.Now,
	}
}

// Analyze implements TechDebtAnalyzer. Items are ordered by file and line.
func (a *MarkerAnalyzer) Analyze(ctx context.Context, root string) (*types.DebtSummary, error) {
	summary := &types.DebtSummary{Items: []types.DebtItem{}}

	err := walkFiles(ctx, root, a.ExcludePatterns, func(rel, full string) error {
		if !hasExtension(rel, a.SourceExtensions) {
			return nil
		}
		items, err := a.scanFile(rel, full)
		if err != nil {
			return fmt.Errorf("scanning %s: %w", rel, err)
		}
		summary.Items = append(summary.Items, items...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("analyzing tech debt in %s: %w", root, err)
	}

	sort.SliceStable(summary.Items, func(i, j int) bool {
		if summary.Items[i].File != summary.Items[j].File {
			return summary.Items[i].File < summary.Items[j].File
		}
		return summary.Items[i].Line < summary.Items[j].Line
	})
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	summary.AnalyzedAt = now().UTC()
	return summary, nil
}

func (a *MarkerAnalyzer) scanFile(rel, full string) ([]types.DebtItem, error) {
	f, err := os.Open(full)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var items []types.DebtItem
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		m := markerPattern.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		severity, ok := a.Severities[m[1]]
		if !ok {
			continue
		}
		text := strings.TrimSpace(m[2])
		if isCritical(text) {
			severity = types.DebtCritical
		}
		items = append(items, types.DebtItem{
			File:     rel,
			Line:     line,
			Marker:   m[1],
			Severity: severity,
			Text:     text,
		})
	}
	return items, scanner.Err()
}

func isCritical(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range criticalKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
