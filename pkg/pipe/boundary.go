package pipe

import "sync"

// Tag is the context a token record was lexed in.
type Tag uint8

const (
	TagNone Tag = iota
	TagNumber
	TagOperator
	TagTerminator
	// TagAbort ends a statement that failed lexing; the record carries the
	// reason in Err.
	TagAbort
)

func (t Tag) String() string {
	switch t {
	case TagNone:
		return "none"
	case TagNumber:
		return "number"
	case TagOperator:
		return "operator"
	case TagTerminator:
		return "terminator"
	case TagAbort:
		return "abort"
	}
	return "unknown"
}

// Record describes one token inside the token buffer.
type Record struct {
	Offset   int64
	Length   int
	Consumed int
	Type     Tag
	Complete bool
	Err      error
}

// BoundaryQueue is the FIFO of token records shared by the lexer, which
// grows and closes the newest record, and the classifier, which consumes and
// removes the oldest.
type BoundaryQueue struct {
	mu      sync.Mutex
	records []*Record
	next    int64
}

func NewBoundaryQueue() *BoundaryQueue {
	return &BoundaryQueue{}
}

func (q *BoundaryQueue) newest() *Record {
	if n := len(q.records); n > 0 && !q.records[n-1].Complete {
		return q.records[n-1]
	}
	r := &Record{Offset: q.next}
	q.records = append(q.records, r)
	return r
}

// Extend grows the newest open record by n bytes, creating it if needed.
func (q *BoundaryQueue) Extend(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.newest().Length += n
	q.next += int64(n)
}

// CloseAndAppend marks the newest record complete with tag and opens a new
// empty record behind it.
func (q *BoundaryQueue) CloseAndAppend(tag Tag) {
	q.mu.Lock()
	defer q.mu.Unlock()

	r := q.newest()
	r.Type = tag
	r.Complete = true
	q.records = append(q.records, &Record{Offset: q.next})
}

// Fail closes the newest record as an abort carrying err.
func (q *BoundaryQueue) Fail(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	r := q.newest()
	r.Type = TagAbort
	r.Err = err
	r.Complete = true
	q.records = append(q.records, &Record{Offset: q.next})
}

// OpenLength returns the length of the newest record if it is still open.
func (q *BoundaryQueue) OpenLength() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n := len(q.records); n > 0 && !q.records[n-1].Complete {
		return q.records[n-1].Length
	}
	return 0
}

// Oldest returns a snapshot of the oldest record.
func (q *BoundaryQueue) Oldest() (Record, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.records) == 0 {
		return Record{}, false
	}
	return *q.records[0], true
}

// AdvanceConsumed marks n more bytes of the oldest record as consumed.
func (q *BoundaryQueue) AdvanceConsumed(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.records) == 0 {
		return
	}
	r := q.records[0]
	r.Consumed += n
	if r.Consumed > r.Length {
		r.Consumed = r.Length
	}
}

// TryRemoveOldest drops the oldest record once it is complete and fully
// consumed. Empty open records are never removed so the lexer always has
// somewhere to extend.
func (q *BoundaryQueue) TryRemoveOldest() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.records) == 0 {
		return false
	}
	r := q.records[0]
	if !r.Complete || r.Consumed < r.Length {
		return false
	}
	q.records[0] = nil
	q.records = q.records[1:]
	return true
}

// Len returns the number of records, including the open one.
func (q *BoundaryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.records)
}
