package http

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/carparkfinder/internal/adapters/nats"
	"github.com/samirrijal/carparkfinder/internal/core/domain"
	"github.com/samirrijal/carparkfinder/internal/core/usecases"
	"github.com/samirrijal/carparkfinder/internal/pkg/debounce"
	"github.com/samirrijal/carparkfinder/internal/pkg/metrics"
)

// wsEventBuffer bounds queued in-process events per connection. Events
// beyond it are dropped; clients re-read state over REST.
const wsEventBuffer = 64

// wsMessage is sent from client to drive its session.
type wsMessage struct {
	Action string   `json:"action"` // "search" | "select" | "locate" | "focus" | "unfocus" | "refetch"
	Query  string   `json:"query"`
	Lat    *float64 `json:"lat"`
	Lon    *float64 `json:"lon"`
	ID     string   `json:"id"`
}

// WebSocketHandler returns a handler that upgrades to WebSocket and streams a
// session's events to the client. Connect with /ws?session=<id>.
// Session events come from NATS when connected, otherwise from the session
// itself. Clients send JSON such as {"action":"search","query":"orchard"}
// (debounced) or {"action":"select","lat":1.30,"lon":103.83}.
func WebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		remoteAddr := c.RemoteAddr().String()
		sessionID := c.Query("session")
		logger := slog.Default().With("remote", remoteAddr, "session_id", sessionID)

		var mu sync.Mutex
		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}
		writeRaw := func(data []byte) error {
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		s, err := deps.Sessions.Get(sessionID)
		if err != nil {
			_ = writeJSON(map[string]string{"error": "session not found"})
			return
		}

		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()
		logger.Info("ws client connected")

		done := make(chan struct{})

		// Session events
		var unsubscribe func()
		if deps.NATS != nil && deps.NATS.IsConnected() {
			sub, err := deps.NATS.Subscribe(natsadapter.SessionSubject(s.ID, ">"), func(msg *nats.Msg) {
				_ = writeRaw(msg.Data)
			})
			if err != nil {
				logger.Error("ws subscribe failed", "error", err)
				_ = writeJSON(map[string]string{"error": "subscribe failed"})
				return
			}
			unsubscribe = func() { _ = sub.Unsubscribe() }
		} else {
			events := make(chan usecases.SessionEvent, wsEventBuffer)
			stop := s.Subscribe(func(ev usecases.SessionEvent) {
				select {
				case events <- ev:
				default:
				}
			})
			unsubscribe = stop
			go func() {
				for {
					select {
					case ev := <-events:
						if err := writeJSON(ev); err != nil {
							return
						}
					case <-done:
						return
					}
				}
			}()
		}

		_ = writeJSON(map[string]interface{}{"status": "subscribed", "session": s.Snapshot()})

		// Keep-alive ping
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		searches := debounce.New(deps.SearchDebounce)

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}

			switch m.Action {
			case "search":
				q := strings.TrimSpace(m.Query)
				if q == "" || deps.Search == nil {
					searches.Stop()
					_ = writeJSON(map[string]interface{}{"type": "search", "query": q, "results": []domain.Place{}})
					continue
				}
				searches.Trigger(func() {
					places, err := deps.Search.Search(s.Context(), q)
					if err != nil {
						logger.Warn("ws search failed", "error", err)
						_ = writeJSON(map[string]string{"type": "search", "query": q, "error": "search failed"})
						return
					}
					_ = writeJSON(map[string]interface{}{"type": "search", "query": q, "results": places})
				})

			case "select", "locate":
				if m.Lat == nil || m.Lon == nil {
					_ = writeJSON(map[string]string{"error": "lat and lon are required"})
					continue
				}
				p := domain.GeoPoint{Lat: *m.Lat, Lon: *m.Lon}
				if !p.Valid() {
					_ = writeJSON(map[string]string{"error": errInvalidPoint.Error()})
					continue
				}
				apply := s.SelectLocation
				if m.Action == "locate" {
					apply = s.SetCurrentLocation
				}
				if err := apply(p); err != nil {
					_ = writeJSON(map[string]string{"error": err.Error()})
				}

			case "focus":
				if err := s.Focus(m.ID); err != nil {
					_ = writeJSON(map[string]string{"error": err.Error()})
				}

			case "unfocus":
				if err := s.ClearFocus(); err != nil {
					_ = writeJSON(map[string]string{"error": err.Error()})
				}

			case "refetch":
				if err := s.RefetchAvailability(); err != nil {
					_ = writeJSON(map[string]string{"error": err.Error()})
				}

			default:
				_ = writeJSON(map[string]string{"error": "unknown action: " + m.Action})
			}
		}

		// Cleanup
		searches.Stop()
		close(done)
		unsubscribe()
		logger.Info("ws client disconnected")
	}
}
