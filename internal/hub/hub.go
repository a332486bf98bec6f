package hub

import (
	"context"
	"errors"
	"slices"

	"go.uber.org/zap"

	"github.com/DoyleJ11/pose-reveal-kiosk/internal/kiosk"
)

var ErrHubClosed = errors.New("hub closed")
var ErrKioskExists = errors.New("kiosk code already taken")

type HubMsg interface{ isHubMsg() }

// CreateKiosk fails with ErrKioskExists when the code is taken.
type CreateKiosk struct {
	Code  string
	Reply chan Result
}

type GetKiosk struct {
	Code  string
	Reply chan *kiosk.Kiosk
}

// EnsureKiosk replies with the existing kiosk, creating it only if needed.
type EnsureKiosk struct {
	Code  string
	Reply chan Result
}

type RemoveKiosk struct {
	Code string
}

type ListKiosks struct {
	Reply chan []string
}

type ShutdownHub struct{}

type Result struct {
	Kiosk *kiosk.Kiosk
	Err   error
}

type Hub struct {
	inbox    chan HubMsg
	kiosks   map[string]*kiosk.Kiosk
	template kiosk.Config
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func (CreateKiosk) isHubMsg() {}
func (GetKiosk) isHubMsg()    {}
func (EnsureKiosk) isHubMsg() {}
func (RemoveKiosk) isHubMsg() {}
func (ListKiosks) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

// NewHub starts the registry. Every kiosk it creates is built from template
// with its own code.
func NewHub(parent context.Context, template kiosk.Config) *Hub {
	ctx, cancel := context.WithCancel(parent)
	log := template.Logger
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		kiosks:   make(map[string]*kiosk.Kiosk),
		template: template,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// send posts m unless the hub has stopped.
func (h *Hub) send(m HubMsg) bool {
	select {
	case <-h.ctx.Done():
		return false
	default:
	}
	select {
	case h.inbox <- m:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func await[T any](h *Hub, reply <-chan T) (T, bool) {
	select {
	case v := <-reply:
		return v, true
	case <-h.ctx.Done():
		var zero T
		return zero, false
	}
}

// Create is a blocking convenience over CreateKiosk.
func (h *Hub) Create(code string) (*kiosk.Kiosk, error) {
	reply := make(chan Result, 1)
	if !h.send(CreateKiosk{Code: code, Reply: reply}) {
		return nil, ErrHubClosed
	}
	res, ok := await(h, reply)
	if !ok {
		return nil, ErrHubClosed
	}
	return res.Kiosk, res.Err
}

// Ensure is a blocking convenience over EnsureKiosk.
func (h *Hub) Ensure(code string) (*kiosk.Kiosk, error) {
	reply := make(chan Result, 1)
	if !h.send(EnsureKiosk{Code: code, Reply: reply}) {
		return nil, ErrHubClosed
	}
	res, ok := await(h, reply)
	if !ok {
		return nil, ErrHubClosed
	}
	return res.Kiosk, res.Err
}

// Get returns nil when no kiosk has the code or the hub has stopped.
func (h *Hub) Get(code string) *kiosk.Kiosk {
	reply := make(chan *kiosk.Kiosk, 1)
	if !h.send(GetKiosk{Code: code, Reply: reply}) {
		return nil
	}
	k, _ := await(h, reply)
	return k
}

// List returns the registered codes, sorted.
func (h *Hub) List() ([]string, error) {
	reply := make(chan []string, 1)
	if !h.send(ListKiosks{Reply: reply}) {
		return nil, ErrHubClosed
	}
	codes, ok := await(h, reply)
	if !ok {
		return nil, ErrHubClosed
	}
	return codes, nil
}

// Shutdown stops every kiosk and the hub. Safe to call after the hub stopped.
func (h *Hub) Shutdown() {
	h.send(ShutdownHub{})
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateKiosk:
				if h.kiosks[msg.Code] != nil {
					msg.Reply <- Result{Err: ErrKioskExists}
					break
				}
				k, err := h.create(msg.Code)
				msg.Reply <- Result{Kiosk: k, Err: err}

			case GetKiosk:
				msg.Reply <- h.kiosks[msg.Code] // May be nil

			case EnsureKiosk:
				if k := h.kiosks[msg.Code]; k != nil {
					msg.Reply <- Result{Kiosk: k}
					break
				}
				k, err := h.create(msg.Code)
				msg.Reply <- Result{Kiosk: k, Err: err}

			case ListKiosks:
				codes := make([]string, 0, len(h.kiosks))
				for code := range h.kiosks {
					codes = append(codes, code)
				}
				slices.Sort(codes)
				msg.Reply <- codes

			case RemoveKiosk:
				if k := h.kiosks[msg.Code]; k != nil {
					k.Send(kiosk.Shutdown{})
					delete(h.kiosks, msg.Code)
				}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) create(code string) (*kiosk.Kiosk, error) {
	cfg := h.template
	cfg.Code = code
	// a shared random source would be touched by several kiosk loops
	cfg.Rand = nil
	k, err := kiosk.New(h.ctx, cfg)
	if err != nil {
		return nil, err
	}
	h.kiosks[code] = k
	h.log.Info("kiosk created", zap.String("kiosk", code))
	return k, nil
}

func (h *Hub) shutdown() {
	for _, k := range h.kiosks {
		k.Send(kiosk.Shutdown{})
	}
	clear(h.kiosks)
	h.cancel()
}
