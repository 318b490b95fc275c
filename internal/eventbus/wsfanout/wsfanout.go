// Package wsfanout streams an eventbus.Bus's events out over a
// websocket connection, one JSON frame per event. Grounded on the
// teacher's internal/gateway/websocket/client.go write-pump shape
// (ping ticker racing a send channel, write-deadline per frame); adapted
// here to a single outbound fan-out of typed events instead of a
// bidirectional client protocol.
package wsfanout

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rustyclaw/core/internal/common/logger"
	"github.com/rustyclaw/core/internal/eventbus"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// Bus is the subset of eventbus.Bus[T] this package needs, so callers
// can pass *eventbus.Bus[T] directly.
type Bus[T any] interface {
	Subscribe() *eventbus.Subscription[T]
}

// Stream subscribes to bus and writes every event to conn as a JSON text
// frame until conn closes or done is closed. It blocks; callers run it in
// its own goroutine per connection. bus is anything with a Subscribe()
// method returning an *eventbus.Subscription[T] — both thread.Manager and
// taskmgr.Manager satisfy this directly, so callers never need to reach
// into their internal Bus field.
func Stream[T any](conn *websocket.Conn, bus Bus[T], log *logger.Logger, done <-chan struct{}) {
	sub := bus.Subscribe()
	defer sub.Unsubscribe()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				log.Warn("failed to marshal event for websocket fanout")
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug("websocket fanout write failed, closing stream")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
