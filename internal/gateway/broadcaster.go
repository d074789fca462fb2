package gateway

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/pasthortown/cripto/internal/model"
)

// Broadcaster is the single reader of the sync event stream. It builds
// the wire envelope once per event and hands fan-out to the hub.
type Broadcaster struct {
	hub *Hub
	log zerolog.Logger
}

// NewBroadcaster creates a Broadcaster feeding the given hub.
func NewBroadcaster(hub *Hub, log zerolog.Logger) *Broadcaster {
	return &Broadcaster{hub: hub, log: log}
}

// Run consumes events until ctx is cancelled or the channel closes.
func (b *Broadcaster) Run(ctx context.Context, events <-chan model.SyncResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			b.hub.Broadcast(envelope(ev))
			b.log.Debug().
				Str("symbol", ev.Symbol).
				Int64("new_records", ev.NewRecords).
				Int("subscribers", b.hub.SubscriberCount(ev.Symbol)).
				Msg("sync_complete broadcast")
		}
	}
}

func envelope(ev model.SyncResult) syncCompleteMsg {
	return syncCompleteMsg{
		Type:      "sync_complete",
		Symbol:    ev.Symbol,
		Timestamp: wsNow(),
		Statistics: syncStatistics{
			NewRecords:   ev.NewRecords,
			TotalRecords: ev.Stats.TotalRecords,
			LastPrice:    ev.Stats.LastPrice,
			LastRecord:   ev.Stats.LastRecord,
		},
	}
}
