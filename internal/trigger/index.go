package trigger

import (
	"sort"
	"sync"

	"github.com/roach88/frontbase/internal/ir"
)

type triggerSet map[ir.Trigger]struct{}

// Index maps change keys and schedules to deduplicated trigger sets.
//
// Thread-safety: all methods are safe for concurrent use.
type Index struct {
	mu         sync.RWMutex
	byKey      map[string]triggerSet
	bySchedule map[string]triggerSet
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		byKey:      make(map[string]triggerSet),
		bySchedule: make(map[string]triggerSet),
	}
}

// Add registers t under a "{model}:{field}" key.
// Returns false if the identical trigger was already present.
func (idx *Index) Add(key string, t ir.Trigger) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return add(idx.byKey, key, t)
}

// AddSchedule registers a time-process trigger under a normalized schedule
// expression.
func (idx *Index) AddSchedule(expr string, t ir.Trigger) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return add(idx.bySchedule, expr, t)
}

func add(m map[string]triggerSet, key string, t ir.Trigger) bool {
	set, ok := m[key]
	if !ok {
		set = make(triggerSet)
		m[key] = set
	}
	if _, dup := set[t]; dup {
		return false
	}
	set[t] = struct{}{}
	return true
}

// Fire returns the union of the triggers registered for each changed field
// of model. Every trigger appears at most once.
func (idx *Index) Fire(model string, changedFields []string) []ir.Trigger {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	fired := make(triggerSet)
	for _, field := range changedFields {
		for t := range idx.byKey[ir.Key(model, field)] {
			fired[t] = struct{}{}
		}
	}
	return sorted(fired)
}

// Triggers returns the triggers registered under key.
func (idx *Index) Triggers(key string) []ir.Trigger {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return sorted(idx.byKey[key])
}

// Keys returns every registered change key in sorted order.
func (idx *Index) Keys() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return sortedKeys(idx.byKey)
}

// Schedules returns the distinct schedule expressions in sorted order.
func (idx *Index) Schedules() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return sortedKeys(idx.bySchedule)
}

// TimeTriggers returns the process triggers registered for expr.
func (idx *Index) TimeTriggers(expr string) []ir.Trigger {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return sorted(idx.bySchedule[expr])
}

func sortedKeys(m map[string]triggerSet) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// sorted returns the set in a stable order so logs and tests are
// reproducible; dispatch does not depend on it.
func sorted(set triggerSet) []ir.Trigger {
	out := make([]ir.Trigger, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.FormulaID != b.FormulaID {
			return a.FormulaID < b.FormulaID
		}
		if a.IsLocal != b.IsLocal {
			return b.IsLocal
		}
		if a.ProcessID != b.ProcessID {
			return a.ProcessID < b.ProcessID
		}
		return a.TriggerName < b.TriggerName
	})
	return out
}
