package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/edgelake/sheetsink/internal/stats"
)

const wsWriteTimeout = 5 * time.Second

// wsFeed streams Snapshot updates to WebSocket clients. Every connection
// holds its own collector subscription, so a slow client only ever drops
// its own frames.
type wsFeed struct {
	collector *stats.Collector
	logger    zerolog.Logger
}

func (f *wsFeed) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Allow cross-origin for dev.
	})
	if err != nil {
		f.logger.Err(err).Msg("ws accept")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The read side only detects disconnects; clients send nothing we use.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	if err := f.send(ctx, conn, f.collector.Snapshot()); err != nil {
		return
	}

	sub := f.collector.Subscribe()
	defer f.collector.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub:
			if !ok {
				return
			}
			if err := f.send(ctx, conn, snap); err != nil {
				return
			}
		}
	}
}

func (f *wsFeed) send(ctx context.Context, conn *websocket.Conn, snap stats.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		f.logger.Err(err).Msg("marshal snapshot for ws")
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, data)
}
