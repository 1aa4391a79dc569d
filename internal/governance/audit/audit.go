// Package audit implements the Governance Audit Log (C7): an
// append-only per-run JSON-lines journal, additive only, never
// rewritten or truncated by the core.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/novapact/gcu-go/internal/domain"
)

// Appender is the narrow interface the Governance Gate and the review/
// admin handlers depend on, so tests can substitute a fake journal.
type Appender interface {
	Append(runID string, event domain.AuditEvent, payload map[string]any) error
	Read(runID string) ([]domain.GovernanceAuditEntry, error)
	Path(runID string) string
}

// FileJournal writes one JSON object per line to
// <outputsDir>/<run_id>/governance_audit.jsonl. Appends use
// O_APPEND|O_CREATE|O_WRONLY so interleaved writers never corrupt a
// line; the directory is created on first write.
type FileJournal struct {
	outputsDir string
	mu         sync.Mutex
}

func timeNow() time.Time {
	return time.Now().UTC()
}

func NewFileJournal(outputsDir string) *FileJournal {
	return &FileJournal{outputsDir: outputsDir}
}

func (j *FileJournal) Path(runID string) string {
	return filepath.Join(j.outputsDir, runID, "governance_audit.jsonl")
}

// Append writes one line, durable whole-or-not-present: the encoded
// record is fully built in memory before the single Write call, and
// opened in append mode so a partial write from one goroutine cannot
// interleave with another's line.
func (j *FileJournal) Append(runID string, event domain.AuditEvent, payload map[string]any) error {
	entry := domain.GovernanceAuditEntry{
		RunID:   runID,
		Event:   event,
		Payload: payload,
	}
	entry.Timestamp = timeNow()

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	line = append(line, '\n')

	path := j.Path(runID)

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure audit dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("append audit journal: %w", err)
	}
	return nil
}

// Read returns every well-formed entry in the journal, skipping
// malformed lines rather than failing the whole read (forward
// compatibility with future payload shapes).
func (j *FileJournal) Read(runID string) ([]domain.GovernanceAuditEntry, error) {
	f, err := os.Open(j.Path(runID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open audit journal: %w", err)
	}
	defer f.Close()

	var entries []domain.GovernanceAuditEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry domain.GovernanceAuditEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("scan audit journal: %w", err)
	}
	return entries, nil
}
