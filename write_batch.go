package fountainstore

// write_batch.go implements the public WriteBatch API for atomic,
// multi-collection writes.

// OpKind distinguishes a put from a delete within a WriteBatch.
type OpKind int

const (
	// OpPut stores or replaces a document.
	OpPut OpKind = iota
	// OpDelete tombstones a document.
	OpDelete
)

// Op is a single put or delete addressing one collection and document id.
type Op struct {
	Kind       OpKind
	Collection string
	ID         string
	Value      []byte
}

// WriteBatch accumulates puts and deletes across any mix of collections
// to be committed atomically by Store.Batch. Keys and values are copied,
// so callers may reuse buffers after adding an op.
type WriteBatch struct {
	ops []Op
}

// NewWriteBatch creates a new empty WriteBatch.
func NewWriteBatch() *WriteBatch {
	return &WriteBatch{}
}

// Put appends a put for id within collection to the batch.
func (wb *WriteBatch) Put(collection, id string, value []byte) {
	v := make([]byte, len(value))
	copy(v, value)
	wb.ops = append(wb.ops, Op{Kind: OpPut, Collection: collection, ID: id, Value: v})
}

// Delete appends a delete for id within collection to the batch.
func (wb *WriteBatch) Delete(collection, id string) {
	wb.ops = append(wb.ops, Op{Kind: OpDelete, Collection: collection, ID: id})
}

// Clear resets the batch to empty, allowing it to be reused.
func (wb *WriteBatch) Clear() {
	wb.ops = wb.ops[:0]
}

// Count returns the number of operations in the batch.
func (wb *WriteBatch) Count() int {
	return len(wb.ops)
}

// Ops returns the batch's accumulated operations. Callers must not
// mutate the returned slice.
func (wb *WriteBatch) Ops() []Op {
	return wb.ops
}
