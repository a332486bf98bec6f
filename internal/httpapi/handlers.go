package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/pose-reveal-kiosk/internal/catalog"
	"github.com/DoyleJ11/pose-reveal-kiosk/internal/feed"
	"github.com/DoyleJ11/pose-reveal-kiosk/internal/hub"
	"github.com/DoyleJ11/pose-reveal-kiosk/internal/kiosk"
	"github.com/DoyleJ11/pose-reveal-kiosk/internal/store"
	"github.com/DoyleJ11/pose-reveal-kiosk/internal/types"
	pub "github.com/DoyleJ11/pose-reveal-kiosk/pkg/types"
)

const maxRoundsLimit = 100

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

func CreateKiosk(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for {
			code, err := GenerateCode()
			if err != nil {
				http.Error(w, "failed to generate code", http.StatusInternalServerError)
				return
			}

			_, err = h.Create(code)
			switch {
			case err == nil:
				writeJSON(w, http.StatusCreated, struct {
					Code string `json:"code"`
				}{Code: code})
				return
			case errors.Is(err, hub.ErrKioskExists):
				log.Debug("collision on code, regenerating", zap.String("code", code))
			case errors.Is(err, hub.ErrHubClosed):
				http.Error(w, "shutting down", http.StatusServiceUnavailable)
				return
			default:
				log.Error("create kiosk", zap.String("kiosk", code), zap.Error(err))
				http.Error(w, "failed to create kiosk", http.StatusInternalServerError)
				return
			}
		}
	}
}

func ListKiosks(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		codes, err := h.List()
		if err != nil {
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Kiosks []string `json:"kiosks"`
		}{Kiosks: codes})
	}
}

// Snapshot is the renderer's poll endpoint.
func Snapshot(h *hub.Hub, cat *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		k := h.Get(chi.URLParam(r, "code"))
		if k == nil {
			http.Error(w, "kiosk not found", http.StatusNotFound)
			return
		}

		view, err := k.State(r.Context())
		if err != nil {
			if errors.Is(err, kiosk.ErrStopped) {
				http.Error(w, "kiosk stopped", http.StatusServiceUnavailable)
			}
			return
		}

		snap := kiosk.Snapshot{Code: view.Code, Version: view.Version, State: view.State}
		writeJSON(w, http.StatusOK, types.NewSnapshotView(snap, cat))
	}
}

// Detections ingests one estimator frame. Malformed entries are discarded,
// never reported as a failure of the request.
func Detections(h *hub.Hub, cat *catalog.Catalog, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		k := h.Get(code)
		if k == nil {
			http.Error(w, "kiosk not found", http.StatusNotFound)
			return
		}

		var msg pub.DetectionMessage
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&msg); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}

		samples, malformed := feed.ToSamples(cat, msg)
		if malformed > 0 {
			log.Debug("malformed detections discarded", zap.String("kiosk", code), zap.Int("count", malformed))
		}
		if len(samples) > 0 && !k.Send(kiosk.Detection{Samples: samples}) {
			http.Error(w, "kiosk stopped", http.StatusServiceUnavailable)
			return
		}

		writeJSON(w, http.StatusAccepted, struct {
			Accepted  int `json:"accepted"`
			Discarded int `json:"discarded"`
		}{Accepted: len(samples), Discarded: malformed})
	}
}

func Rounds(h *hub.Hub, st store.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		if h.Get(code) == nil {
			http.Error(w, "kiosk not found", http.StatusNotFound)
			return
		}

		limit := 20
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				http.Error(w, "bad limit", http.StatusBadRequest)
				return
			}
			limit = min(n, maxRoundsLimit)
		}

		rounds, err := st.RecentRounds(r.Context(), code, limit)
		if err != nil {
			log.Error("recent rounds", zap.String("kiosk", code), zap.Error(err))
			http.Error(w, "failed to load rounds", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, rounds)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
