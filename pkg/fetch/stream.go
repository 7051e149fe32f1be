package fetch

import (
	"context"
	"sync"
)

// Stream is the merged output of one table fetch: the schema exactly once,
// then an ordered, finite, non-restartable sequence of row batches. The
// batch channel has capacity one, so the producer never runs more than one
// batch ahead of the consumer.
type Stream struct {
	schemaCh chan Schema
	batchCh  chan Batch

	mu           sync.Mutex
	schema       Schema
	hasSchema    bool
	schemaClosed bool
	err          error
}

func newStream() *Stream {
	return &Stream{
		schemaCh: make(chan Schema, 1),
		batchCh:  make(chan Batch, 1),
	}
}

// Schema blocks until the stream's schema is known (after the first batch
// of fetches has merged) and returns it. Subsequent calls return the same
// schema without blocking.
func (s *Stream) Schema(ctx context.Context) (Schema, error) {
	s.mu.Lock()
	if s.hasSchema {
		defer s.mu.Unlock()
		return s.schema, nil
	}
	s.mu.Unlock()

	select {
	case schema, ok := <-s.schemaCh:
		if !ok {
			return Schema{}, s.Err()
		}
		s.mu.Lock()
		s.schema = schema
		s.hasSchema = true
		s.mu.Unlock()
		return schema, nil
	case <-ctx.Done():
		return Schema{}, ctx.Err()
	}
}

// Next returns the next row batch. A nil batch with a nil error means the
// stream completed; a nil batch with an error means the fetch failed and
// no further batches will arrive.
func (s *Stream) Next(ctx context.Context) (*Batch, error) {
	select {
	case b, ok := <-s.batchCh:
		if !ok {
			return nil, s.Err()
		}
		return &b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Err returns the failure that terminated the stream, if any. It is only
// meaningful after Next has returned a nil batch.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// fail records the terminal error and closes the stream.
func (s *Stream) fail(err error) {
	s.mu.Lock()
	s.err = err
	closeSchema := !s.schemaClosed
	s.schemaClosed = true
	s.mu.Unlock()
	if closeSchema {
		close(s.schemaCh)
	}
	close(s.batchCh)
}

// finish closes the stream after a complete run.
func (s *Stream) finish() {
	close(s.batchCh)
}

// emitSchema publishes the schema; called exactly once per stream.
func (s *Stream) emitSchema(schema Schema) {
	s.schemaCh <- schema
	s.mu.Lock()
	s.schemaClosed = true
	s.mu.Unlock()
	close(s.schemaCh)
}

// emitBatch publishes one batch, honoring backpressure and cancellation.
func (s *Stream) emitBatch(ctx context.Context, b Batch) error {
	select {
	case s.batchCh <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
