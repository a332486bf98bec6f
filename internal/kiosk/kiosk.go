package kiosk

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/pose-reveal-kiosk/internal/engine"
	"github.com/DoyleJ11/pose-reveal-kiosk/internal/sequence"
	"github.com/DoyleJ11/pose-reveal-kiosk/internal/store"
)

var ErrStopped = errors.New("kiosk stopped")

type Msg interface{ isKioskMsg() }

// Detection carries every body classified in one estimator frame.
type Detection struct {
	Samples []engine.Sample
}

func (Detection) isKioskMsg() {}

type Join struct {
	ClientID string
	Outbox   chan Snapshot // where this renderer wants to receive snapshots
}

func (Join) isKioskMsg() {}

type Leave struct{ ClientID string }

func (Leave) isKioskMsg() {}

type Shutdown struct{}

func (Shutdown) isKioskMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isKioskMsg() {}

type timerKind int

const (
	flashTimer timerKind = iota
	revealTimer
)

// timerFired is posted by a timer with the tokens it was armed for.
type timerFired struct {
	kind  timerKind
	round uint64
	flash uint64
}

func (timerFired) isKioskMsg() {}

type Snapshot struct {
	Code    string
	Version int
	State   engine.State
}

type View struct {
	Code       string
	Version    int
	NumClients int
	State      engine.State
}

type Recorder interface {
	RecordRound(ctx context.Context, r store.RoundRecord) error
}

type Config struct {
	Code        string
	CatalogSize int
	Rules       engine.Rules     // zero: engine.DefaultRules
	Rand        *rand.Rand       // nil: randomly seeded
	Recorder    Recorder         // nil: rounds are not recorded
	Logger      *zap.Logger      // nil: no logging
	Now         func() time.Time // nil: time.Now
}

type Kiosk struct {
	code    string
	inbox   chan Msg
	state   engine.State
	version int
	clients map[string]chan Snapshot

	catalogSize int
	rng         *rand.Rand
	recorder    Recorder
	log         *zap.Logger
	now         func() time.Time

	flash  *time.Timer
	reveal *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds the kiosk with its first round already in progress. It fails if
// the catalog cannot supply a full sequence of distinct poses.
func New(parent context.Context, cfg Config) (*Kiosk, error) {
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Rules == (engine.Rules{}) {
		cfg.Rules = engine.DefaultRules()
	}

	ctx, cancel := context.WithCancel(parent)
	k := &Kiosk{
		code:        cfg.Code,
		inbox:       make(chan Msg, 64), // Small buffer
		state:       engine.NewEmptyState(cfg.Rules),
		clients:     make(map[string]chan Snapshot),
		catalogSize: cfg.CatalogSize,
		rng:         cfg.Rand,
		recorder:    cfg.Recorder,
		log:         cfg.Logger.With(zap.String("kiosk", cfg.Code)),
		now:         cfg.Now,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	poses, err := sequence.Generate(k.rng, engine.SlotCount, k.catalogSize)
	if err != nil {
		cancel()
		return nil, err
	}
	_, k.state, err = engine.Apply(k.state, engine.Command{Type: engine.CmdStartRound, Poses: poses, At: k.now()})
	if err != nil {
		cancel()
		return nil, err
	}
	k.log.Info("round started", zap.Uint64("round", k.state.Round), zap.Ints("poses", poses))

	go k.loop()
	return k, nil
}

func (k *Kiosk) loop() {
	defer close(k.done)
	for {
		select {
		case <-k.ctx.Done():
			k.shutdown()
			return

		case m := <-k.inbox:
			switch msg := m.(type) {
			case Join:
				// Register renderer + send current snapshot immediately
				k.clients[msg.ClientID] = msg.Outbox
				msg.Outbox <- k.snapshot()

			case Leave:
				if ch, ok := k.clients[msg.ClientID]; ok {
					close(ch)
					delete(k.clients, msg.ClientID)
				}

			case Detection:
				k.apply(engine.Command{Type: engine.CmdDetect, Samples: msg.Samples, At: k.now()})

			case timerFired:
				k.onTimer(msg)

			case GetState:
				msg.Reply <- View{
					Code:       k.code,
					Version:    k.version,
					NumClients: len(k.clients),
					State:      k.state,
				}

			case Shutdown:
				k.shutdown()
				return
			}
		}
	}
}

func (k *Kiosk) onTimer(msg timerFired) {
	switch msg.kind {
	case flashTimer:
		// a stale fire must not forget the handle of a re-armed timer
		if msg.round == k.state.Round && msg.flash == k.state.FlashSeq {
			k.flash = nil
		}
		k.apply(engine.Command{Type: engine.CmdFlashExpired, Round: msg.round, Flash: msg.flash, At: k.now()})

	case revealTimer:
		if msg.round == k.state.Round {
			k.reveal = nil
		}
		poses, err := sequence.Generate(k.rng, engine.SlotCount, k.catalogSize)
		if err != nil {
			// catalog size is validated in New; unreachable unless it shrank
			k.log.Error("generate sequence", zap.Error(err))
			return
		}
		k.apply(engine.Command{Type: engine.CmdRevealExpired, Round: msg.round, Poses: poses, At: k.now()})
	}
}

func (k *Kiosk) apply(cmd engine.Command) {
	events, next, err := engine.Apply(k.state, cmd)
	if err != nil {
		if errors.Is(err, engine.ErrStaleTimer) {
			k.log.Debug("dropped stale timer", zap.Error(err))
		} else {
			k.log.Warn("command rejected", zap.String("command", string(cmd.Type)), zap.Error(err))
		}
		return
	}
	if len(events) == 0 {
		return
	}

	prev := k.state
	k.state = next
	for _, ev := range events {
		k.handleEvent(prev, ev)
	}
	k.version++
	k.broadcast(k.snapshot())
}

func (k *Kiosk) handleEvent(prev engine.State, ev engine.Event) {
	switch ev.Type {
	case engine.EvtSlotCompleted:
		k.log.Info("pose matched", zap.Uint64("round", ev.Round), zap.Int("slot", ev.Slot), zap.Int("pose", ev.PoseID))

	case engine.EvtFlashRaised:
		k.stopTimer(&k.flash)
		k.flash = k.arm(k.state.Rules.FlashDuration, timerFired{kind: flashTimer, round: ev.Round, flash: ev.Flash})

	case engine.EvtRevealStarted:
		k.stopTimer(&k.reveal)
		k.reveal = k.arm(k.state.Rules.RevealDuration, timerFired{kind: revealTimer, round: ev.Round})
		k.log.Info("reveal started", zap.Uint64("round", ev.Round), zap.Time("ends_at", k.state.RevealEndsAt))
		k.record(prev, ev.At)

	case engine.EvtRoundStarted:
		// nothing armed for the discarded round may fire into this one
		k.stopTimer(&k.flash)
		k.stopTimer(&k.reveal)
		k.log.Info("round started", zap.Uint64("round", ev.Round), zap.Ints("poses", k.state.Poses()))
	}
}

// arm schedules msg into the inbox. The post gives up once the kiosk stops.
func (k *Kiosk) arm(d time.Duration, msg timerFired) *time.Timer {
	return time.AfterFunc(d, func() {
		select {
		case k.inbox <- msg:
		case <-k.ctx.Done():
		}
	})
}

func (k *Kiosk) stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func (k *Kiosk) record(prev engine.State, completedAt time.Time) {
	if k.recorder == nil {
		return
	}
	rec := store.NewRoundRecord(k.code, prev.Round, prev.Poses(), prev.StartedAt, completedAt)

	// never block the loop on storage
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(k.ctx), 5*time.Second)
		defer cancel()
		if err := k.recorder.RecordRound(ctx, rec); err != nil {
			k.log.Warn("record round", zap.String("id", rec.ID), zap.Error(err))
		}
	}()
}

func (k *Kiosk) snapshot() Snapshot {
	return Snapshot{Code: k.code, Version: k.version, State: k.state}
}

func (k *Kiosk) shutdown() {
	k.stopTimer(&k.flash)
	k.stopTimer(&k.reveal)
	for id, ch := range k.clients {
		close(ch) // Tell renderer no more snapshots
		delete(k.clients, id)
	}
	k.cancel()
}

func (k *Kiosk) broadcast(snap Snapshot) {
	for id, ch := range k.clients {
		select {
		case ch <- snap:
			//ok
		default:
			// Renderer is slow/full - drop it.
			close(ch)
			delete(k.clients, id)
		}
	}
}

func (k *Kiosk) Code() string { return k.code }

// Expose the inbox so tests, the feed and the WS layer can send messages.
func (k *Kiosk) Inbox() chan<- Msg { return k.inbox }

// Send posts m unless the kiosk has stopped. A stopped kiosk reads nothing,
// so callers must not wait on a reply after a false return.
func (k *Kiosk) Send(m Msg) bool {
	select {
	case <-k.done:
		return false
	default:
	}
	select {
	case k.inbox <- m:
		return true
	case <-k.done:
		return false
	}
}

// State asks the loop for its current view.
func (k *Kiosk) State(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if !k.Send(GetState{Reply: reply}) {
		return View{}, ErrStopped
	}
	select {
	case v := <-reply:
		return v, nil
	case <-k.done:
		return View{}, ErrStopped
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// Done is closed once the loop has exited.
func (k *Kiosk) Done() <-chan struct{} { return k.done }
