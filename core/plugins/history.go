package plugins

import (
	"context"

	"github.com/FocuswithJustin/picman/internal/logging"
)

// HistoryStore persists the names of recently used procedures, most
// recent first.
type HistoryStore interface {
	Load() ([]string, error)
	Save(names []string) error
	Close() error
}

// HistoryAdd moves proc to the front of the recently used list, dropping
// the oldest entry beyond the configured size.
func (m *Manager) HistoryAdd(ctx context.Context, proc *Procedure) {
	m.mu.Lock()
	list := []*Procedure{proc}
	for _, p := range m.history {
		if p != proc && p.Name != proc.Name {
			list = append(list, p)
		}
	}
	if len(list) > m.cfg.HistorySize {
		list = list[:m.cfg.HistorySize]
	}
	m.history = list
	names := historyNames(list)
	m.mu.Unlock()

	m.saveHistory(ctx, names)
	m.emit(Event{Kind: EventHistoryChanged})
}

// History returns the recently used procedures, most recent first.
func (m *Manager) History() []*Procedure {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Procedure(nil), m.history...)
}

// HistoryClear forgets every entry.
func (m *Manager) HistoryClear(ctx context.Context) {
	m.mu.Lock()
	m.history = nil
	m.mu.Unlock()
	m.saveHistory(ctx, nil)
	m.emit(Event{Kind: EventHistoryChanged})
}

// historyRemoveLocked drops proc from the history and reports whether it
// was there. m.mu must be held.
func (m *Manager) historyRemoveLocked(proc *Procedure) bool {
	before := len(m.history)
	m.history = removeProcedure(m.history, proc)
	return len(m.history) != before
}

// loadHistory restores the history from the store, skipping procedures
// that no longer exist.
func (m *Manager) loadHistory(ctx context.Context) {
	if m.store == nil {
		return
	}
	names, err := m.store.Load()
	if err != nil {
		logging.WarnContext(ctx, "cannot load procedure history", "error", err)
		return
	}
	m.mu.Lock()
	m.history = nil
	for _, name := range names {
		if len(m.history) == m.cfg.HistorySize {
			break
		}
		if proc := FindProcedure(m.procedures, name); proc != nil {
			m.history = append(m.history, proc)
		}
	}
	m.mu.Unlock()
	m.emit(Event{Kind: EventHistoryChanged})
}

func (m *Manager) saveHistory(ctx context.Context, names []string) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(names); err != nil {
		logging.WarnContext(ctx, "cannot save procedure history", "error", err)
	}
}

func historyNames(list []*Procedure) []string {
	names := make([]string, len(list))
	for i, p := range list {
		names[i] = p.Name
	}
	return names
}
