package crdt

// Structs

// Transaction batches operations against one store with
// read-committed isolation. Reads issued before Commit
// observe the snapshot taken at Begin and never partial
// writes; Commit applies every buffered operation to the
// live store as one atomic step and yields one combined
// delta for the whole batch.
//
// The store has exactly one concurrent local mutator, so
// transactions are a correctness contract rather than a
// contention mechanism; they must still be created and
// committed from the owning control path.
type Transaction struct {
	store    *CausalDotStore
	snapshot *CausalDotStore
	replica  uint8
	ops      []func(*CausalDotStore, uint8)
}

// Functions

// Begin opens a transaction against this store on behalf
// of the supplied replica and takes the read snapshot.
func (s *CausalDotStore) Begin(replica uint8) *Transaction {

	return &Transaction{
		store:    s,
		snapshot: s.Clone(),
		replica:  replica,
	}
}

// Snapshot returns the read view of this transaction. It
// reflects the store as of Begin, regardless of operations
// buffered since.
func (tx *Transaction) Snapshot() *CausalDotStore {
	return tx.snapshot
}

// Do buffers one operation. Operations receive the live
// store and the acting replica at commit time, which is
// when their dot-producing effects happen.
func (tx *Transaction) Do(op func(s *CausalDotStore, replica uint8)) {
	tx.ops = append(tx.ops, op)
}

// Commit applies all buffered operations to the live
// store in order and returns the one delta covering the
// whole batch, computed against the pre-operation context
// so the broadcast payload stays minimal. A transaction
// without operations commits to a nil delta.
func (tx *Transaction) Commit() *Delta {

	if len(tx.ops) == 0 {
		return nil
	}

	pre := tx.store.Context.Clone()

	for _, op := range tx.ops {
		op(tx.store, tx.replica)
	}
	tx.ops = nil

	return tx.store.Diff(pre)
}
