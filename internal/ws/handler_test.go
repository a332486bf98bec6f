package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/pose-reveal-kiosk/internal/catalog"
	"github.com/DoyleJ11/pose-reveal-kiosk/internal/hub"
	"github.com/DoyleJ11/pose-reveal-kiosk/internal/kiosk"
	"github.com/DoyleJ11/pose-reveal-kiosk/internal/types"
	pub "github.com/DoyleJ11/pose-reveal-kiosk/pkg/types"
)

func readServerMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) types.ServerMessage {
	t.Helper()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg types.ServerMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHandler_StreamsSnapshotsAndAcceptsDetections(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cat := catalog.Default()
	h := hub.NewHub(ctx, kiosk.Config{CatalogSize: cat.Size()})
	_, err := h.Create("MAIN")
	require.NoError(t, err)

	srv := httptest.NewServer(Handler(h, cat, zap.NewNop()))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?code=MAIN"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	first := readServerMessage(t, ctx, conn)
	require.Equal(t, "StateSnapshot", first.Type)
	require.NotNil(t, first.Snapshot)
	assert.Equal(t, 0, first.Snapshot.ActiveSlot)

	unknown, _ := json.Marshal(types.ClientMessage{Type: "Skip"})
	require.NoError(t, conn.Write(ctx, websocket.MessageText, unknown))
	errMsg := readServerMessage(t, ctx, conn)
	assert.Equal(t, "Error", errMsg.Type)

	det, _ := json.Marshal(types.ClientMessage{Type: "Detection", Detections: []pub.Detection{
		{Label: first.Snapshot.Slots[0].PoseName, Confidence: 0.99},
	}})
	require.NoError(t, conn.Write(ctx, websocket.MessageText, det))

	next := readServerMessage(t, ctx, conn)
	require.Equal(t, "StateSnapshot", next.Type)
	assert.Equal(t, 1, next.Version)
	assert.Equal(t, "completed", next.Snapshot.Slots[0].Status)
	assert.True(t, next.Snapshot.Flashing)
	assert.Equal(t, 1, next.Snapshot.ActiveSlot)
}

func TestHandler_RejectsMissingAndUnknownCodes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := hub.NewHub(ctx, kiosk.Config{CatalogSize: 9})
	handler := Handler(h, catalog.Default(), zap.NewNop())

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest("GET", "/ws", nil))
	assert.Equal(t, 400, rec.Code)

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest("GET", "/ws?code=NOPE", nil))
	assert.Equal(t, 404, rec.Code)
}
