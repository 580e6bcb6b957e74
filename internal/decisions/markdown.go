package decisions

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jacopone/brownkit-sub001/internal/types"
)

// Separator is the line written between entries.
const Separator = "---"

// Sink receives decision entries. Append must not return before the entry is
// durable.
type Sink interface {
	Append(entry types.DecisionEntry) error
}

// MarkdownSink appends entries to a human-readable Markdown file.
type MarkdownSink struct {
	path string
	mu   sync.Mutex
}

// NewMarkdownSink creates a sink writing to path. The file is created on the
// first append.
func NewMarkdownSink(path string) *MarkdownSink {
	return &MarkdownSink{path: path}
}

// Path returns the log file path.
func (s *MarkdownSink) Path() string { return s.path }

// Append renders the entry, appends it and syncs the file.
func (s *MarkdownSink) Append(entry types.DecisionEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating decision log directory: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening decision log: %w", err)
	}
	if _, err := f.WriteString(RenderEntry(entry)); err != nil {
		_ = f.Close()
		return fmt.Errorf("appending decision: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("syncing decision log: %w", err)
	}
	return f.Close()
}

// RenderEntry renders one entry followed by the separator line.
func RenderEntry(e types.DecisionEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Decision %s\n\n", e.ID)
	fmt.Fprintf(&b, "%s%s\n", timestampPrefix, e.Timestamp.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "%s%s\n", phasePrefix, e.Phase)
	fmt.Fprintf(&b, "%s%s\n\n", riskPrefix, e.ChosenRisk)
	b.WriteString(strings.TrimSpace(e.Decision))
	b.WriteString("\n\n")
	if r := strings.TrimSpace(e.Rationale); r != "" {
		b.WriteString("### Rationale\n\n")
		b.WriteString(r)
		b.WriteString("\n\n")
	}
	if len(e.Alternatives) > 0 {
		b.WriteString("### Alternatives\n\n")
		for _, alt := range e.Alternatives {
			fmt.Fprintf(&b, "- %s\n", singleLine(alt.Description))
			if alt.RejectedReason != "" {
				fmt.Fprintf(&b, "  - Rejected: %s\n", singleLine(alt.RejectedReason))
			}
		}
		b.WriteString("\n")
	}
	b.WriteString(Separator)
	b.WriteString("\n\n")
	return b.String()
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ReadEntries parses every entry in a decision log. A missing log has no
// entries.
func ReadEntries(path string) ([]types.DecisionEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening decision log: %w", err)
	}
	defer f.Close()

	var (
		entries []types.DecisionEntry
		block   []string
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == Separator {
			if e, ok, err := parseBlock(block); err != nil {
				return nil, err
			} else if ok {
				entries = append(entries, e)
			}
			block = block[:0]
			continue
		}
		block = append(block, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading decision log: %w", err)
	}
	// A trailing block without separator is a torn write; ignore it.
	return entries, nil
}

type section int

const (
	sectionHeader section = iota
	sectionDecision
	sectionRationale
	sectionAlternatives
)

// Metadata line prefixes. They are only recognized in the header, between
// the title and the first blank line that follows them.
const (
	timestampPrefix = "- **Timestamp:** "
	phasePrefix     = "- **Phase:** "
	riskPrefix      = "- **Risk:** "
)

func parseBlock(lines []string) (types.DecisionEntry, bool, error) {
	var (
		e         types.DecisionEntry
		found     bool
		meta      bool
		current   = sectionHeader
		decision  []string
		rationale []string
	)
	for _, line := range lines {
		if !found {
			if strings.HasPrefix(line, "## Decision") {
				e.ID = strings.TrimSpace(strings.TrimPrefix(line, "## Decision"))
				found = true
			}
			continue
		}
		if current == sectionHeader {
			switch {
			case strings.HasPrefix(line, timestampPrefix):
				ts, err := time.Parse(time.RFC3339, strings.TrimPrefix(line, timestampPrefix))
				if err != nil {
					return e, false, fmt.Errorf("decision %s: bad timestamp: %w", e.ID, err)
				}
				e.Timestamp = ts
				meta = true
				continue
			case strings.HasPrefix(line, phasePrefix):
				e.Phase = types.Phase(strings.TrimPrefix(line, phasePrefix))
				meta = true
				continue
			case strings.HasPrefix(line, riskPrefix):
				e.ChosenRisk = types.RiskLevel(strings.TrimPrefix(line, riskPrefix))
				meta = true
				continue
			case strings.TrimSpace(line) == "":
				if meta {
					current = sectionDecision
				}
				continue
			default:
				current = sectionDecision
			}
		}
		switch {
		case line == "### Rationale":
			current = sectionRationale
		case line == "### Alternatives":
			current = sectionAlternatives
		case current == sectionAlternatives && strings.HasPrefix(line, "  - Rejected: "):
			if n := len(e.Alternatives); n > 0 {
				e.Alternatives[n-1].RejectedReason = strings.TrimPrefix(line, "  - Rejected: ")
			}
		case current == sectionAlternatives && strings.HasPrefix(line, "- "):
			e.Alternatives = append(e.Alternatives, types.Alternative{Description: strings.TrimPrefix(line, "- ")})
		case current == sectionRationale:
			rationale = append(rationale, line)
		case current == sectionDecision:
			decision = append(decision, line)
		}
	}
	if !found {
		return e, false, nil
	}
	e.Decision = strings.TrimSpace(strings.Join(decision, "\n"))
	e.Rationale = strings.TrimSpace(strings.Join(rationale, "\n"))
	if e.Alternatives == nil {
		e.Alternatives = []types.Alternative{}
	}
	return e, true, nil
}
