package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Entry is one asset's failure record: a failure reason code plus
// whatever diagnostics the failing stage attached.
type Entry map[string]any

// SetReason records the failure reason code if none is set yet and
// reports whether it was recorded. An asset fails at most once; the
// earliest reason wins.
func (e Entry) SetReason(reason string) bool {
	if _, ok := e["failure_reason"]; ok {
		return false
	}
	e["failure_reason"] = reason
	return true
}

// Reason returns the recorded failure reason code, or "".
func (e Entry) Reason() string {
	r, _ := e["failure_reason"].(string)
	return r
}

// Ledger collects per-asset failure entries across a batch run. Entries
// are created explicitly; looking up an absent asset never materializes
// a record, so a clean run produces an empty ledger.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]Entry
	order   []string
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string]Entry)}
}

// GetOrCreate returns the entry for assetID, creating it on first use.
// The returned entry is owned by the asset's worker until the run ends.
func (l *Ledger) GetOrCreate(assetID string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[assetID]
	if !ok {
		e = Entry{}
		l.entries[assetID] = e
		l.order = append(l.order, assetID)
	}
	return e
}

// Has reports whether a failure entry exists for assetID.
func (l *Ledger) Has(assetID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[assetID]
	return ok
}

// Len returns the number of failed assets.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// FailedAssets returns failed asset ids in first-failure order.
func (l *Ledger) FailedAssets() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// MarshalJSON writes entries as an object keyed by asset id, in
// first-failure order.
func (l *Ledger) MarshalJSON() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range l.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(l.entries[id])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// WriteReport writes the ledger as indented JSON to path. Callers skip
// this when the ledger is empty so a clean run leaves no report behind.
func (l *Ledger) WriteReport(path string) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal failure report: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write failure report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize failure report: %w", err)
	}
	return nil
}
