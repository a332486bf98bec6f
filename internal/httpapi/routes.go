package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/pose-reveal-kiosk/internal/catalog"
	"github.com/DoyleJ11/pose-reveal-kiosk/internal/hub"
	"github.com/DoyleJ11/pose-reveal-kiosk/internal/store"
	"github.com/DoyleJ11/pose-reveal-kiosk/internal/ws"
)

func SetupRoutes(h *hub.Hub, cat *catalog.Catalog, st store.Store, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()

	// Public routes
	r.Post("/kiosks", CreateKiosk(h, log))
	r.Get("/kiosks", ListKiosks(h))
	r.Route("/kiosks/{code}", func(r chi.Router) {
		r.Get("/snapshot", Snapshot(h, cat))
		r.Post("/detections", Detections(h, cat, log))
		r.Get("/rounds", Rounds(h, st, log))
	})
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h, cat, log))
	return r
}
