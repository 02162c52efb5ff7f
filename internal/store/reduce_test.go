// ABOUTME: Tests for the change reducer: cutoff filtering, cancellation and update squashing
// ABOUTME: Builds change logs by hand and through the store with a stepping clock

package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(id string, table Table, action Action, item, ts, data string) ChangeEntry {
	return ChangeEntry{
		ID:        id,
		Table:     table,
		Action:    action,
		ItemID:    item,
		Timestamp: ts,
		Data:      json.RawMessage(data),
	}
}

func updateData(before, after, patch string) string {
	return `{"before":` + before + `,"after":` + after + `,"patch":` + patch + `}`
}

func ids(entries []ChangeEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2024-01-01T00:00:01.000Z", time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC), true},
		{"2024-01-01T00:00:01Z", time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC), true},
		{"2024-01-01T02:00:01+02:00", time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC), true},
		{"2024-01-01T00:00:01", time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC), true},
		{"2024-01-01", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"1704067201000", time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC), true},
		{"2024", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"2024-03", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"", time.Time{}, false},
		{"yesterday", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, tt.want.Equal(got), "got %s", got)
			}
		})
	}
}

func TestReduce_CutoffIsStrict(t *testing.T) {
	log := []ChangeEntry{
		entry("c1", TableProducts, ActionCreate, "p1", stamp(1), `{"id":"p1"}`),
		entry("c2", TableProducts, ActionCreate, "p2", stamp(2), `{"id":"p2"}`),
	}

	got := Reduce(log, stamp(1), "")
	assert.Equal(t, []string{"c2"}, ids(got))
}

func TestReduce_UnparsableSinceYieldsEmpty(t *testing.T) {
	log := []ChangeEntry{
		entry("c1", TableProducts, ActionCreate, "p1", stamp(1), `{"id":"p1"}`),
	}

	got := Reduce(log, "not a time", "")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestReduce_SkipsEntriesWithBadTimestamps(t *testing.T) {
	log := []ChangeEntry{
		entry("c1", TableProducts, ActionCreate, "p1", "garbage", `{"id":"p1"}`),
		entry("c2", TableProducts, ActionCreate, "p2", stamp(2), `{"id":"p2"}`),
	}

	got := Reduce(log, stamp(0), "")
	assert.Equal(t, []string{"c2"}, ids(got))
}

func TestReduce_CreateThenDeleteCancels(t *testing.T) {
	log := []ChangeEntry{
		entry("c1", TableOrders, ActionCreate, "o1", stamp(1), `{"id":"o1"}`),
		entry("c2", TableOrders, ActionUpdate, "o1", stamp(2), updateData(`{"id":"o1"}`, `{"id":"o1","total":3}`, `{"total":3}`)),
		entry("c3", TableOrders, ActionDelete, "o1", stamp(3), `{"id":"o1","total":3}`),
	}

	assert.Empty(t, Reduce(log, stamp(0), ""))
}

func TestReduce_DeleteOfPreexistingRecordSurvives(t *testing.T) {
	log := []ChangeEntry{
		entry("c1", TableOrders, ActionUpdate, "o1", stamp(1), updateData(`{"id":"o1"}`, `{"id":"o1","total":3}`, `{"total":3}`)),
		entry("c2", TableOrders, ActionDelete, "o1", stamp(2), `{"id":"o1","total":3}`),
	}

	got := Reduce(log, stamp(0), "")
	require.Len(t, got, 1)
	assert.Equal(t, "c2", got[0].ID)
	assert.Equal(t, ActionDelete, got[0].Action)
}

func TestReduce_DeleteRecreateDeleteCancels(t *testing.T) {
	log := []ChangeEntry{
		entry("c1", TableCustomers, ActionDelete, "x", stamp(1), `{"id":"x"}`),
		entry("c2", TableCustomers, ActionCreate, "x", stamp(2), `{"id":"x"}`),
		entry("c3", TableCustomers, ActionDelete, "x", stamp(3), `{"id":"x"}`),
	}

	got := Reduce(log, stamp(0), "")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestReduce_CreateThenUpdatesSquashIntoCreate(t *testing.T) {
	log := []ChangeEntry{
		entry("c1", TableProducts, ActionCreate, "p1", stamp(1), `{"id":"p1","name":"Widget","price":5}`),
		entry("c2", TableProducts, ActionUpdate, "p1", stamp(2), updateData(`{"id":"p1","price":5}`, `{"id":"p1","name":"Widget","price":6}`, `{"price":6}`)),
		entry("c3", TableProducts, ActionUpdate, "p1", stamp(3), updateData(`{"id":"p1","price":6}`, `{"id":"p1","name":"Widget","price":7}`, `{"price":7}`)),
	}

	got := Reduce(log, stamp(0), "")
	require.Len(t, got, 1)
	assert.Equal(t, "c3", got[0].ID)
	assert.Equal(t, ActionCreate, got[0].Action)
	assert.Equal(t, stamp(3), got[0].Timestamp)
	assert.JSONEq(t, `{"id":"p1","name":"Widget","price":7}`, string(got[0].Data))
}

func TestReduce_CreateThenUpdateWithoutAfterKeepsCreatePayload(t *testing.T) {
	log := []ChangeEntry{
		entry("c1", TableProducts, ActionCreate, "p1", stamp(1), `{"id":"p1","name":"Widget"}`),
		entry("c2", TableProducts, ActionUpdate, "p1", stamp(2), `{"patch":{"name":"Gadget"}}`),
	}

	got := Reduce(log, stamp(0), "")
	require.Len(t, got, 1)
	assert.Equal(t, ActionCreate, got[0].Action)
	assert.JSONEq(t, `{"id":"p1","name":"Widget"}`, string(got[0].Data))
}

func TestReduce_UpdateChainSquashes(t *testing.T) {
	log := []ChangeEntry{
		entry("c1", TableInventory, ActionUpdate, "i1", stamp(1), updateData(`{"id":"i1","quantity":10}`, `{"id":"i1","quantity":9}`, `{"quantity":9}`)),
		entry("c2", TableInventory, ActionUpdate, "i1", stamp(2), updateData(`{"id":"i1","quantity":9}`, `{"id":"i1","quantity":8,"location":"back"}`, `{"quantity":8,"location":"back"}`)),
	}

	got := Reduce(log, stamp(0), "")
	require.Len(t, got, 1)
	assert.Equal(t, "c2", got[0].ID)
	assert.Equal(t, ActionUpdate, got[0].Action)

	var payload UpdatePayload
	require.NoError(t, json.Unmarshal(got[0].Data, &payload))
	assert.JSONEq(t, `{"id":"i1","quantity":10}`, string(payload.Before))
	assert.JSONEq(t, `{"id":"i1","quantity":8,"location":"back"}`, string(payload.After))
	assert.Equal(t, Fields{"quantity": 8.0, "location": "back"}, payload.Patch)
}

func TestReduce_YearOnlySinceIsNotMilliseconds(t *testing.T) {
	log := []ChangeEntry{
		entry("c1", TableProducts, ActionCreate, "p1", "2020-06-01T00:00:00.000Z", `{"id":"p1"}`),
		entry("c2", TableProducts, ActionCreate, "p2", "2024-06-01T00:00:00.000Z", `{"id":"p2"}`),
	}

	got := Reduce(log, "2024", "")
	assert.Equal(t, []string{"c2"}, ids(got))
}

func TestReduce_UnreadableUpdateKeepsLastEntry(t *testing.T) {
	last := updateData(`{"id":"i1","quantity":8}`, `{"id":"i1","quantity":7}`, `{"quantity":7}`)
	log := []ChangeEntry{
		entry("c1", TableInventory, ActionUpdate, "i1", stamp(1), `"not an object"`),
		entry("c2", TableInventory, ActionUpdate, "i1", stamp(2), last),
	}

	got := Reduce(log, stamp(0), "")
	require.Len(t, got, 1)
	assert.Equal(t, "c2", got[0].ID)
	assert.JSONEq(t, last, string(got[0].Data))
}

func TestReduce_DeleteThenCreateEmitsCreate(t *testing.T) {
	log := []ChangeEntry{
		entry("c1", TableProducts, ActionDelete, "p1", stamp(1), `{"id":"p1","name":"Old"}`),
		entry("c2", TableProducts, ActionCreate, "p1", stamp(2), `{"id":"p1","name":"New"}`),
	}

	got := Reduce(log, stamp(0), "")
	require.Len(t, got, 1)
	assert.Equal(t, ActionCreate, got[0].Action)
	assert.JSONEq(t, `{"id":"p1","name":"New"}`, string(got[0].Data))
}

func TestReduce_GroupsPerTableAndOrdersByTimestamp(t *testing.T) {
	log := []ChangeEntry{
		entry("c1", TableProducts, ActionCreate, "x", stamp(1), `{"id":"x"}`),
		entry("c2", TableCustomers, ActionCreate, "x", stamp(2), `{"id":"x"}`),
		entry("c3", TableProducts, ActionUpdate, "x", stamp(4), updateData(`{"id":"x"}`, `{"id":"x","name":"A"}`, `{"name":"A"}`)),
		entry("c4", TableLogs, ActionCreate, "l1", stamp(3), `{"id":"l1"}`),
	}

	got := Reduce(log, stamp(0), "")
	assert.Equal(t, []string{"c2", "c4", "c3"}, ids(got))
}

func TestReduce_OrdersByTimestampNotLogPosition(t *testing.T) {
	log := []ChangeEntry{
		entry("c1", TableProducts, ActionCreate, "p2", stamp(5), `{"id":"p2"}`),
		entry("c2", TableProducts, ActionCreate, "p1", stamp(3), `{"id":"p1"}`),
	}

	got := Reduce(log, stamp(0), "")
	assert.Equal(t, []string{"c2", "c1"}, ids(got))
}

func TestReduce_EntriesWithoutItemIDStandAlone(t *testing.T) {
	log := []ChangeEntry{
		entry("c1", TableLogs, ActionCreate, "", stamp(1), `{}`),
		entry("c2", TableLogs, ActionCreate, "", stamp(2), `{}`),
	}

	got := Reduce(log, stamp(0), "")
	assert.Equal(t, []string{"c1", "c2"}, ids(got))
}

func TestReduce_TableFilter(t *testing.T) {
	log := []ChangeEntry{
		entry("c1", TableProducts, ActionCreate, "p1", stamp(1), `{"id":"p1"}`),
		entry("c2", TableOrders, ActionCreate, "o1", stamp(2), `{"id":"o1"}`),
	}

	got := Reduce(log, stamp(0), TableOrders)
	assert.Equal(t, []string{"c2"}, ids(got))
}

func TestChangesSince_WidgetScenario(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, TableProducts, Fields{"id": "p1", "name": "Widget", "price": 5})
	require.NoError(t, err)
	_, err = s.Update(ctx, TableProducts, "p1", Fields{"price": 6})
	require.NoError(t, err)

	got, err := s.ChangesSince(ctx, stamp(0), "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ActionCreate, got[0].Action)
	assert.Equal(t, "p1", got[0].ItemID)
	assert.Equal(t, stamp(2), got[0].Timestamp)

	var p Product
	require.NoError(t, json.Unmarshal(got[0].Data, &p))
	assert.Equal(t, "Widget", p.Name)
	assert.Equal(t, 6.0, p.Price)

	// A replica that saw the create only gets the update
	got, err = s.ChangesSince(ctx, stamp(1), TableProducts)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ActionUpdate, got[0].Action)
}

func TestChangesSince_CreateDeleteInWindowVanishes(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, TableOrders, Fields{"id": "o1", "total": 12})
	require.NoError(t, err)
	_, err = s.Delete(ctx, TableOrders, "o1")
	require.NoError(t, err)

	got, err := s.ChangesSince(ctx, stamp(0), "")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.ChangesSince(ctx, stamp(1), "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ActionDelete, got[0].Action)
}

func TestChangesSince_DoesNotAlterLog(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, TableProducts, Fields{"id": "p1"})
	require.NoError(t, err)
	_, err = s.Update(ctx, TableProducts, "p1", Fields{"name": "Tea"})
	require.NoError(t, err)

	_, err = s.ChangesSince(ctx, stamp(0), "")
	require.NoError(t, err)
	assert.Len(t, changeLog(t, s), 2)
}
