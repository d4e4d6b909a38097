package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Functions

// TestTransactionSnapshotIsolation verifies that reads
// within a transaction observe the begin-time snapshot
// only, regardless of buffered operations.
func TestTransactionSnapshotIsolation(t *testing.T) {

	s := NewStore()
	addItem(s, 1, "existing")

	tx := s.Begin(1)

	tx.Do(func(st *CausalDotStore, r uint8) {
		d := st.NextDot(r)
		st.Root.Map.Create(d.String(), KindMap, d)
	})

	// The buffered creation is invisible to the snapshot
	// and to the live store alike before commit.
	assert.Len(t, tx.Snapshot().Root.Map.Entries, 1, "snapshot must not observe buffered writes")
	assert.Len(t, s.Root.Map.Entries, 1, "live store must not change before commit")

	delta := tx.Commit()

	assert.Len(t, s.Root.Map.Entries, 2, "commit must apply the full batch")
	assert.NotNil(t, delta)
}

// TestTransactionSingleDeltaPerBatch verifies that a
// multi-operation batch commits as one combined delta
// whose replay yields the identical store.
func TestTransactionSingleDeltaPerBatch(t *testing.T) {

	s := NewStore()
	replica := NewStore()

	tx := s.Begin(1)
	for _, text := range []string{"first", "second", "third"} {

		text := text
		tx.Do(func(st *CausalDotStore, r uint8) {
			d := st.NextDot(r)
			item := st.Root.Map.Create(d.String(), KindMap, d)
			field := item.Map.GetOrCreate("text", KindReg, st.Context, r)
			field.Reg.Write(st.Context, r, String(text))
		})
	}

	delta := tx.Commit()
	replica.Merge(delta)

	assert.Len(t, replica.Root.Map.Entries, 3, "one delta must carry the whole batch")
	assert.True(t, s.Equal(replica), "replaying the batch delta must reproduce the store")
}

// TestTransactionEmptyCommit verifies that a transaction
// without operations commits to no delta and leaves the
// store untouched.
func TestTransactionEmptyCommit(t *testing.T) {

	s := NewStore()
	before := len(s.Context.Dots())

	tx := s.Begin(1)
	delta := tx.Commit()

	assert.Nil(t, delta, "empty transaction must not emit a delta")
	assert.Equal(t, before, len(s.Context.Dots()), "empty transaction must not mint dots")
}
