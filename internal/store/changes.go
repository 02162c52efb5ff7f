// ABOUTME: Change recorder: builds change-log entries for repository mutations
// ABOUTME: Every state-changing create/update/delete yields exactly one ChangeEntry

package store

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// changeIDPrefix keeps change ids apart from record ids.
const changeIDPrefix = "chg_"

// mutation carries the per-call values a table needs to apply a change.
type mutation struct {
	stamp string
	newID func() string
}

// record builds the ChangeEntry for a mutation. It is called before the
// document is touched so an encoding failure leaves no partial state.
func (m *mutation) record(table Table, action Action, itemID string, payload any) (ChangeEntry, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return ChangeEntry{}, fmt.Errorf("encoding %s change for %s/%s: %w", action, table, itemID, err)
	}
	return ChangeEntry{
		ID:        changeIDPrefix + uuid.NewString(),
		Table:     table,
		Action:    action,
		ItemID:    itemID,
		Timestamp: m.stamp,
		Data:      data,
	}, nil
}

// recordUpdate builds an update entry carrying before, after and the applied patch.
func (m *mutation) recordUpdate(table Table, itemID string, before, after any, patch Fields) (ChangeEntry, error) {
	b, err := json.Marshal(before)
	if err != nil {
		return ChangeEntry{}, fmt.Errorf("encoding before state for %s/%s: %w", table, itemID, err)
	}
	a, err := json.Marshal(after)
	if err != nil {
		return ChangeEntry{}, fmt.Errorf("encoding after state for %s/%s: %w", table, itemID, err)
	}
	return m.record(table, ActionUpdate, itemID, UpdatePayload{Before: b, After: a, Patch: patch})
}

// cloneChanges deep-copies change entries, payloads included.
func cloneChanges(entries []ChangeEntry) []ChangeEntry {
	out := make([]ChangeEntry, len(entries))
	for i, e := range entries {
		out[i] = e
		out[i].Data = append(json.RawMessage(nil), e.Data...)
	}
	return out
}
