package sagalog

import "context"

// Repository persists saga log entries. Save appends; the log is never
// updated in place.
type Repository interface {
	Save(ctx context.Context, entry *SagaLog) error
	History(ctx context.Context, sagaID string) ([]SagaLog, error)
}
