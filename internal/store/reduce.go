// ABOUTME: Change reducer: condenses the change log into one entry per record since a cutoff
// ABOUTME: Last write wins, create+delete inside the window cancels, update chains squash

package store

import (
	"context"
	"encoding/json"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ChangesSince returns the condensed changes after since, optionally limited
// to one table (empty name means every table). An unparsable since yields no
// changes rather than an error.
func (s *Store) ChangesSince(ctx context.Context, since string, name Table) ([]ChangeEntry, error) {
	if name != "" {
		if _, err := ParseTable(string(name)); err != nil {
			return nil, err
		}
	}
	if err := s.Open(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	entries := cloneChanges(s.doc.Changes)
	s.mu.Unlock()

	return Reduce(entries, since, name), nil
}

// ParseTimestamp accepts RFC 3339 (fraction optional), the zone-less forms
// "2006-01-02T15:04:05", "2006-01-02", "2006-01" and "2006" read as UTC, and
// Unix milliseconds. A bare four-digit number is a year, not milliseconds.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02", "2006-01", "2006"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}

type stampedEntry struct {
	entry ChangeEntry
	at    time.Time
}

type groupKey struct {
	table Table
	id    string
}

// Reduce condenses entries newer than since (strictly) into at most one entry
// per (table, record). Entries whose timestamp does not parse are skipped.
// The result is ordered by each surviving entry's timestamp.
func Reduce(entries []ChangeEntry, since string, name Table) []ChangeEntry {
	cutoff, ok := ParseTimestamp(since)
	if !ok {
		return []ChangeEntry{}
	}

	selected := make([]stampedEntry, 0, len(entries))
	for _, e := range entries {
		if name != "" && e.Table != name {
			continue
		}
		at, ok := ParseTimestamp(e.Timestamp)
		if !ok || !at.After(cutoff) {
			continue
		}
		selected = append(selected, stampedEntry{entry: e, at: at})
	}
	slices.SortStableFunc(selected, func(a, b stampedEntry) int {
		return a.at.Compare(b.at)
	})

	groups := make(map[groupKey][]stampedEntry)
	var order []groupKey
	for _, s := range selected {
		key := groupKey{table: s.entry.Table, id: s.entry.ItemID}
		if key.id == "" {
			key.id = s.entry.ID
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], s)
	}

	condensed := make([]stampedEntry, 0, len(order))
	for _, key := range order {
		if c, keep := condense(groups[key]); keep {
			condensed = append(condensed, c)
		}
	}
	slices.SortStableFunc(condensed, func(a, b stampedEntry) int {
		return a.at.Compare(b.at)
	})

	out := make([]ChangeEntry, len(condensed))
	for i, c := range condensed {
		out[i] = c.entry
	}
	return out
}

// condense reduces one record's time-ordered history to a single entry.
// keep is false when the window holds a create and ends in a delete.
func condense(group []stampedEntry) (stampedEntry, bool) {
	last := group[len(group)-1]

	switch last.entry.Action {
	case ActionDelete:
		if slices.ContainsFunc(group, isCreate) {
			return stampedEntry{}, false
		}
		return last, true

	case ActionUpdate:
		if slices.ContainsFunc(group, isCreate) {
			return squashIntoCreate(group), true
		}
		return squashUpdates(group), true

	default:
		return last, true
	}
}

func isCreate(s stampedEntry) bool {
	return s.entry.Action == ActionCreate
}

// squashIntoCreate turns create+updates into one create carrying the final state.
func squashIntoCreate(group []stampedEntry) stampedEntry {
	out := group[len(group)-1]
	out.entry.Action = ActionCreate

	for i := len(group) - 1; i >= 0; i-- {
		e := group[i].entry
		if e.Action == ActionCreate {
			out.entry.Data = e.Data
			return out
		}
		if e.Action != ActionUpdate {
			continue
		}
		var p UpdatePayload
		if err := json.Unmarshal(e.Data, &p); err == nil && hasValue(p.After) {
			out.entry.Data = p.After
			return out
		}
	}
	return out
}

// squashUpdates folds an update chain into one before/after pair: the
// earliest before, the latest after, and the patches merged in order. If any
// payload in the chain is unreadable the last entry is returned unchanged.
func squashUpdates(group []stampedEntry) stampedEntry {
	out := group[len(group)-1]

	var merged UpdatePayload
	for _, s := range group {
		if s.entry.Action != ActionUpdate {
			continue
		}
		var p UpdatePayload
		if err := json.Unmarshal(s.entry.Data, &p); err != nil {
			return out
		}
		if !hasValue(merged.Before) && hasValue(p.Before) {
			merged.Before = p.Before
		}
		if hasValue(p.After) {
			merged.After = p.After
		}
		if len(p.Patch) > 0 {
			if merged.Patch == nil {
				merged.Patch = Fields{}
			}
			maps.Copy(merged.Patch, p.Patch)
		}
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return out
	}
	out.entry.Data = data
	return out
}

func hasValue(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}
