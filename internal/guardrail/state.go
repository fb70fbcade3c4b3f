package guardrail

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// State is the persisted form of a ledger. Session open counts are not
// persisted; they are rebuilt from trade history after a restart.
type State struct {
	Day       string               `json:"day"`
	Cooldowns map[string]time.Time `json:"cooldowns"`
	RiskUsed  map[string]float64   `json:"risk_used"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// Snapshot copies the ledger's durable state.
func (l *Ledger) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()
	st := State{
		Day:       l.day,
		Cooldowns: make(map[string]time.Time, len(l.cooldowns)),
		RiskUsed:  make(map[string]float64, len(l.riskUsed)),
	}
	for k, v := range l.cooldowns {
		st.Cooldowns[k] = v
	}
	for k, v := range l.riskUsed {
		st.RiskUsed[k] = v
	}
	return st
}

// Restore loads a snapshot. Risk usage from a previous UTC day is dropped.
func (l *Ledger) Restore(st State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, v := range st.Cooldowns {
		l.cooldowns[k] = v
	}
	if st.Day != l.now().UTC().Format(dayLayout) {
		return
	}
	for k, v := range st.RiskUsed {
		if v > 0 {
			l.riskUsed[k] = v
		}
	}
}

// LoadState reads a ledger snapshot from a JSON file. Returns a zero state if the file doesn't exist.
func LoadState(filePath string) (State, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, nil
		}
		return State{}, err
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, err
	}
	return st, nil
}

// SaveState writes a ledger snapshot to a JSON file.
func SaveState(filePath string, st State) error {
	st.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(filePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(filePath, data, 0644)
}
