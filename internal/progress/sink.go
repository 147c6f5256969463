package progress

import "context"

// Sink consumes batches of updates. Implementations must be safe for
// repeated calls and honor ctx deadlines.
type Sink interface {
	Consume(ctx context.Context, batch []Update) error
	Close(ctx context.Context) error
}

// Emitter publishes individual updates; Hub satisfies this interface so the
// monitor stays agnostic about how updates are buffered or delivered.
type Emitter interface {
	Emit(u Update)
}
