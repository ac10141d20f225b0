package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// PollerState is the lifecycle state of a Poller.
type PollerState int32

// Poller states, in lifecycle order.
const (
	PollerIdle PollerState = iota
	PollerPriming
	PollerPolling
	PollerStopping
	PollerStopped
)

func (s PollerState) String() string {
	switch s {
	case PollerIdle:
		return "idle"
	case PollerPriming:
		return "priming"
	case PollerPolling:
		return "polling"
	case PollerStopping:
		return "stopping"
	case PollerStopped:
		return "stopped"
	default:
		return fmt.Sprintf("PollerState(%d)", int32(s))
	}
}

// DispatchFunc receives one raw update. The poller calls it in its own
// goroutine and does not wait for it. It must not panic.
type DispatchFunc func(ctx context.Context, raw json.RawMessage)

// PollerConfig configures a Poller.
type PollerConfig struct {
	// Interval is the pause between short polls. Zero selects long polling.
	Interval time.Duration
	// LongPollTimeout is the server-side wait of each getUpdates call.
	LongPollTimeout time.Duration
	AllowedUpdates  []string
	// ErrorPause is the wait after MaxConsecutiveErrors failed polls.
	ErrorPause           time.Duration
	MaxConsecutiveErrors int
}

// Poller pulls updates with getUpdates. Update offsets only move forward,
// so every update is acknowledged exactly once.
type Poller struct {
	client   *Client
	dispatch DispatchFunc
	logger   *slog.Logger
	config   PollerConfig
	metrics  *Metrics

	state  atomic.Int32
	offset atomic.Int64

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewPoller creates a Poller in the idle state.
func NewPoller(client *Client, dispatch DispatchFunc, logger *slog.Logger, cfg PollerConfig, metrics *Metrics) *Poller {
	if cfg.MaxConsecutiveErrors <= 0 {
		cfg.MaxConsecutiveErrors = defaultConsecutiveLimit
	}
	if cfg.ErrorPause <= 0 {
		cfg.ErrorPause = defaultErrorPause
	}
	return &Poller{
		client:   client,
		dispatch: dispatch,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
		done:     make(chan struct{}),
		sleep:    sleepCtx,
	}
}

// State returns the current lifecycle state.
func (p *Poller) State() PollerState { return PollerState(p.state.Load()) }

// Offset returns the next update_id the poller will ask for.
func (p *Poller) Offset() int64 { return p.offset.Load() }

// Start primes the update queue and launches the polling loop. ctx bounds
// the lifetime of the loop and of the dispatched handlers.
func (p *Poller) Start(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(PollerIdle), int32(PollerPriming)) {
		return errors.New("telegram: poller already started")
	}
	ctx, p.cancel = context.WithCancel(ctx)
	go p.run(ctx)
	return nil
}

// Stop cancels the loop, including any in-flight getUpdates call, and
// waits for it to exit. It is safe to call Stop more than once.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel == nil {
			p.state.Store(int32(PollerStopped))
			close(p.done)
			return
		}
		p.state.Store(int32(PollerStopping))
		p.cancel()
	})
	<-p.done
}

func (p *Poller) run(ctx context.Context) {
	defer func() {
		p.state.Store(int32(PollerStopped))
		close(p.done)
	}()

	p.prime(ctx)
	if ctx.Err() != nil {
		return
	}
	p.state.CompareAndSwap(int32(PollerPriming), int32(PollerPolling))
	p.logger.Info("polling started", "mode", p.mode())

	consecutive := 0
	for ctx.Err() == nil {
		if err := p.pollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			consecutive++
			p.metrics.observePollError()
			p.logPollError(err, consecutive)

			if consecutive >= p.config.MaxConsecutiveErrors {
				p.logger.Warn("polling paused after consecutive errors", "pause", p.config.ErrorPause)
				if p.sleep(ctx, p.config.ErrorPause) != nil {
					return
				}
				consecutive = 0
				continue
			}
		} else {
			consecutive = 0
		}

		if p.config.Interval > 0 {
			if p.sleep(ctx, p.config.Interval) != nil {
				return
			}
		}
	}
}

// prime discards the backlog that accumulated while the bot was offline.
// getUpdates with offset -1 acknowledges all but the newest update; the
// offset then moves past that one too.
func (p *Poller) prime(ctx context.Context) {
	raws, err := p.client.GetUpdates(ctx, GetUpdatesRequest{Offset: -1, Limit: 1})
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("discarding update backlog failed", "error", err)
		}
		return
	}
	for _, raw := range raws {
		if id, ok := updateID(raw); ok {
			p.advance(id)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) error {
	req := GetUpdatesRequest{
		Offset:         p.offset.Load(),
		AllowedUpdates: p.config.AllowedUpdates,
	}
	if p.config.Interval == 0 {
		req.Timeout = int(p.config.LongPollTimeout / time.Second)
	}

	raws, err := p.client.GetUpdates(ctx, req)
	if err != nil {
		return err
	}

	type pending struct {
		id  int64
		raw json.RawMessage
	}
	batch := make([]pending, 0, len(raws))
	for _, raw := range raws {
		id, ok := updateID(raw)
		if !ok {
			p.logger.Warn("update without update_id skipped", "raw", string(raw))
			continue
		}
		batch = append(batch, pending{id: id, raw: raw})
	}
	slices.SortFunc(batch, func(a, b pending) int { return int(a.id - b.id) })

	for _, u := range batch {
		p.advance(u.id)
		go p.dispatch(ctx, u.raw)
	}
	return nil
}

// advance moves the offset past id. It never moves backwards.
func (p *Poller) advance(id int64) {
	for {
		cur := p.offset.Load()
		if id+1 <= cur {
			return
		}
		if p.offset.CompareAndSwap(cur, id+1) {
			return
		}
	}
}

func (p *Poller) logPollError(err error, consecutive int) {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		// Long polls time out routinely when the network is flaky.
		if p.config.Interval == 0 {
			p.logger.Debug("getUpdates network error", "error", err, "consecutive_errors", consecutive)
			return
		}
		p.logger.Warn("getUpdates network error", "error", err, "consecutive_errors", consecutive)
		return
	}
	p.logger.Error("getUpdates failed", "error", err, "consecutive_errors", consecutive, "stack", string(debug.Stack()))
}

func (p *Poller) mode() string {
	if p.config.Interval > 0 {
		return "short"
	}
	return "long"
}

func updateID(raw json.RawMessage) (int64, bool) {
	var head struct {
		UpdateID *int64 `json:"update_id"`
	}
	if err := json.Unmarshal(raw, &head); err != nil || head.UpdateID == nil {
		return 0, false
	}
	return *head.UpdateID, true
}
