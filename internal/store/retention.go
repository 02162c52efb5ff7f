// ABOUTME: Explicit change-log retention; never triggered by ordinary mutations
// ABOUTME: Drops entries older than a cutoff and persists the trimmed log

package store

import (
	"context"
	"slices"
	"time"
)

// PruneChanges removes change entries with a timestamp strictly before
// cutoff and returns how many were dropped. Entries whose timestamp does not
// parse are kept. Pruning is not itself recorded in the change log.
//
// Replicas that last synced before cutoff can no longer be brought up to date
// from the log alone.
func (s *Store) PruneChanges(ctx context.Context, cutoff time.Time) (int, error) {
	if err := s.Open(ctx); err != nil {
		return 0, err
	}

	s.mu.Lock()
	before := len(s.doc.Changes)
	s.doc.Changes = slices.DeleteFunc(s.doc.Changes, func(e ChangeEntry) bool {
		at, ok := ParseTimestamp(e.Timestamp)
		return ok && at.Before(cutoff)
	})
	pruned := before - len(s.doc.Changes)
	if pruned == 0 {
		s.mu.Unlock()
		return 0, nil
	}
	pending := s.writes.schedule()
	s.mu.Unlock()

	s.logger.Info("pruned change log", "removed", pruned, "cutoff", cutoff.UTC().Format(time.RFC3339))
	return pruned, pending.Wait(ctx)
}
