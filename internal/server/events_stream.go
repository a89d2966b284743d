package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/hindsight/internal/events"
)

// streamBuffer is how many events a slow client may fall behind before
// events are dropped for that connection.
const streamBuffer = 100

// EventsStreamHandler streams bus events over a websocket. Clients may
// filter with ?types=run_completed,margin_call.
type EventsStreamHandler struct {
	bus     *events.Bus
	devMode bool
	log     zerolog.Logger
}

// NewEventsStreamHandler creates a new events stream handler.
func NewEventsStreamHandler(bus *events.Bus, devMode bool, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		bus:     bus,
		devMode: devMode,
		log:     log.With().Str("component", "events_stream").Logger(),
	}
}

// ServeHTTP handles GET /api/events/ws.
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if h.devMode {
		opts.InsecureSkipVerify = true
	}

	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	allowed := parseTypeFilter(r.URL.Query().Get("types"))
	h.log.Debug().Int("filtered_types", len(allowed)).Msg("Event stream client connected")

	// Buffered so a slow client never blocks publishers; overflow drops.
	eventCh := make(chan *events.Event, streamBuffer)
	unsubscribe := h.bus.SubscribeAll(func(ev *events.Event) {
		if allowed != nil && !allowed[ev.Type] {
			return
		}
		select {
		case eventCh <- ev:
		default:
			h.log.Warn().Str("type", string(ev.Type)).Msg("Event stream buffer full, dropping event")
		}
	})
	defer unsubscribe()

	ctx := r.Context()
	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-pingTicker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				h.log.Debug().Err(err).Msg("Event stream client gone")
				return
			}
		case ev := <-eventCh:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, ev)
			cancel()
			if err != nil {
				h.log.Debug().Err(err).Msg("Event stream write failed")
				return
			}
		}
	}
}

func parseTypeFilter(raw string) map[events.EventType]bool {
	if raw == "" {
		return nil
	}
	allowed := make(map[events.EventType]bool)
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			allowed[events.EventType(t)] = true
		}
	}
	return allowed
}
