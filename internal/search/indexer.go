// internal/search/indexer.go
// Indexing collaborator hook. The chat core flags new and edited messages
// with indexed=false; this job drains the backlog, hands the batch to the
// external search system and acknowledges through the mark-indexed call.

package search

import (
	"context"
	"log"
	"time"

	"github.com/loquiapp/loqui-backend/internal/chat"
)

// Sink receives message batches for actual indexing. The default sink only
// logs; a real search module replaces it at wiring time.
type Sink interface {
	Index(ctx context.Context, messages []*chat.Message) error
}

type LogSink struct{}

func (LogSink) Index(_ context.Context, messages []*chat.Message) error {
	log.Printf("search sink received %d messages", len(messages))
	return nil
}

type Indexer struct {
	messages  *chat.MessageService
	sink      Sink
	interval  time.Duration
	batchSize int
}

func NewIndexer(messages *chat.MessageService, sink Sink, interval time.Duration) *Indexer {
	if sink == nil {
		sink = LogSink{}
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Indexer{
		messages:  messages,
		sink:      sink,
		interval:  interval,
		batchSize: 100,
	}
}

// Start runs the drain loop until the context is cancelled.
func (i *Indexer) Start(ctx context.Context) {
	log.Printf("starting search indexer with interval: %v", i.interval)

	i.drain(ctx)

	ticker := time.NewTicker(i.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			i.drain(ctx)
		case <-ctx.Done():
			log.Println("stopping search indexer")
			return
		}
	}
}

func (i *Indexer) drain(ctx context.Context) {
	for {
		batch, err := i.messages.ListUnindexed(ctx, i.batchSize)
		if err != nil {
			log.Printf("failed to list unindexed messages: %v", err)
			return
		}
		if len(batch) == 0 {
			return
		}

		if err := i.sink.Index(ctx, batch); err != nil {
			log.Printf("search sink rejected batch: %v", err)
			return
		}

		ids := make([]int64, 0, len(batch))
		for _, m := range batch {
			ids = append(ids, m.ID)
		}
		if err := i.messages.MarkIndexed(ctx, ids); err != nil {
			log.Printf("failed to mark %d messages indexed: %v", len(ids), err)
			return
		}

		if len(batch) < i.batchSize {
			return
		}
	}
}
