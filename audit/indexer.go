package audit

import (
	"context"
	"fmt"

	"github.com/piwdev/member-management-kiro-sub000/model"
	"github.com/piwdev/member-management-kiro-sub000/util"
)

// Indexer forwards committed ledger records into the search mirror. It runs
// off the event bus, so mirror outages cost search freshness, not decisions.
type Indexer struct {
	mirror *SearchMirror
}

func NewIndexer(mirror *SearchMirror) *Indexer {
	return &Indexer{mirror: mirror}
}

// Register subscribes the indexer to audit.recorded events.
func (ix *Indexer) Register(eventBus *util.EventBus) {
	eventBus.Subscribe(model.EventAuditRecorded, ix.handle)
}

func (ix *Indexer) handle(ctx context.Context, event util.Event) error {
	record, ok := event.Payload.(*Record)
	if !ok {
		return fmt.Errorf("audit indexer: unexpected payload %T", event.Payload)
	}
	if err := ix.mirror.Index(ctx, record); err != nil {
		return fmt.Errorf("audit indexer: %w", err)
	}
	return nil
}
