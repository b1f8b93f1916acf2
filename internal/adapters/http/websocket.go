package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/tripcore/internal/adapters/nats"
	"github.com/samirrijal/tripcore/internal/core/domain"
	"github.com/samirrijal/tripcore/internal/pkg/metrics"
)

// wsMessage is sent from client to narrow or widen the relayed event types.
type wsMessage struct {
	Action string `json:"action"` // "subscribe" | "unsubscribe"
	Type   string `json:"type"`   // "quota_warning" | "counters_reset" | "" (all)
}

// usageSubjectFor maps a client-facing event type to its NATS subject.
func usageSubjectFor(eventType string) (string, bool) {
	switch domain.UsageEventType(eventType) {
	case "":
		return natsadapter.UsageSubjects, true
	case domain.UsageEventWarning, domain.UsageEventReset:
		return natsadapter.UsageSubject(domain.UsageEventType(eventType)), true
	default:
		return "", false
	}
}

// UsageRelayHandler returns a handler that relays usage events from NATS to
// connected clients. Every client starts subscribed to all usage events.
// Clients send JSON: {"action":"unsubscribe"} then {"action":"subscribe","type":"quota_warning"}.
func UsageRelayHandler(nc *nats.Conn) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		remoteAddr := c.RemoteAddr().String()
		log := slog.Default().With("remote", remoteAddr)

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

		if nc == nil {
			_ = writeJSON(map[string]string{"error": "usage events are not enabled"})
			return
		}

		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()
		log.Info("ws client connected")

		relay := func(msg *nats.Msg) {
			_ = writeJSON(json.RawMessage(msg.Data))
		}

		subs := make(map[string]*nats.Subscription)
		sub, err := nc.Subscribe(natsadapter.UsageSubjects, relay)
		if err != nil {
			log.Error("ws default subscribe failed", "error", err)
			return
		}
		subs[natsadapter.UsageSubjects] = sub

		// Keep-alive ping
		done := make(chan struct{})
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

			subject, ok := usageSubjectFor(m.Type)
			if !ok {
				_ = writeJSON(map[string]string{"error": "unknown event type: " + m.Type})
				continue
			}

			switch m.Action {
			case "subscribe":
				if _, exists := subs[subject]; exists {
					_ = writeJSON(map[string]string{"status": "already subscribed", "subject": subject})
					continue
				}
				s, err := nc.Subscribe(subject, relay)
				if err != nil {
					_ = writeJSON(map[string]string{"error": "subscribe failed: " + err.Error()})
					continue
				}
				subs[subject] = s
				_ = writeJSON(map[string]string{"status": "subscribed", "subject": subject})

			case "unsubscribe":
				if s, exists := subs[subject]; exists {
					_ = s.Unsubscribe()
					delete(subs, subject)
					_ = writeJSON(map[string]string{"status": "unsubscribed", "subject": subject})
				} else {
					_ = writeJSON(map[string]string{"error": "not subscribed to " + subject})
				}

			default:
				_ = writeJSON(map[string]string{"error": "unknown action: " + m.Action})
			}
		}

		close(done)
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
		log.Info("ws client disconnected")
	}
}
