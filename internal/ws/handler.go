package ws

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/pose-reveal-kiosk/internal/catalog"
	"github.com/DoyleJ11/pose-reveal-kiosk/internal/feed"
	"github.com/DoyleJ11/pose-reveal-kiosk/internal/hub"
	"github.com/DoyleJ11/pose-reveal-kiosk/internal/kiosk"
	"github.com/DoyleJ11/pose-reveal-kiosk/internal/types"
	pub "github.com/DoyleJ11/pose-reveal-kiosk/pkg/types"
)

// Handler streams a kiosk's snapshots to a renderer and accepts detections
// from a classifier running next to the camera.
func Handler(h *hub.Hub, cat *catalog.Catalog, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}

		k := h.Get(code)
		if k == nil {
			http.Error(w, "kiosk not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan kiosk.Snapshot, 8)
		clientID := randID(6)
		log := log.With(zap.String("kiosk", code), zap.String("client", clientID))

		if !k.Send(kiosk.Join{ClientID: clientID, Outbox: out}) {
			conn.Close(websocket.StatusGoingAway, "kiosk closed")
			return
		}
		defer k.Send(kiosk.Leave{ClientID: clientID})

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for snap := range out {
				view := types.NewSnapshotView(snap, cat)
				msg := types.ServerMessage{Type: "StateSnapshot", Version: snap.Version, Snapshot: &view}
				payload, _ := json.Marshal(msg)
				ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
				_ = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
			// kiosk dropped us (slow) or shut down
			conn.Close(websocket.StatusGoingAway, "kiosk closed")
		}()

		// Reader loop. Renderers only listen, so there is no read deadline.
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("websocket read", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				writeError(r.Context(), conn, "bad json")
				continue
			}

			switch cm.Type {
			case "Detection":
				samples, malformed := feed.ToSamples(cat, pub.DetectionMessage{Detections: cm.Detections})
				if malformed > 0 {
					log.Debug("malformed detections discarded", zap.Int("count", malformed))
				}
				if len(samples) > 0 && !k.Send(kiosk.Detection{Samples: samples}) {
					return
				}
			default:
				writeError(r.Context(), conn, "unknown type")
			}
		}
	}
}

func writeError(ctx context.Context, conn *websocket.Conn, msg string) {
	payload, _ := json.Marshal(types.ServerMessage{Type: "Error", Error: msg})
	_ = conn.Write(ctx, websocket.MessageText, payload)
}

func randID(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.IntN(len(charset))]
	}
	return string(b)
}
