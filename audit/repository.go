package audit

import (
	"context"
)

// Repository is the append-only ledger contract. Backends implement three
// verbs: insert one record, run a filtered read, count matches. Nothing
// mutates.
type Repository interface {
	Append(ctx context.Context, record *Record) error
	Query(ctx context.Context, filter Filter) ([]*Record, error)
	Count(ctx context.Context, filter Filter) (int, error)
}
