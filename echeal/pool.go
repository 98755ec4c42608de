package echeal

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"

	"github.com/gluster-labs/ec-core/ec"
)

// Request is one queued heal admission request.
type Request struct {
	Gfid   [16]byte
	Parent [16]byte
	Name   string
	Mask   ec.Mask
	IsDir  bool
}

// Pool bounds concurrent background heals to Config.BackgroundHeals
// active healers plus Config.HealWaitQLen waiting slots, per spec.md
// §4.6 "Background throttling": excess requests fail fast with
// ec.ErrHealBusy rather than growing the queue unbounded.
type Pool struct {
	engine *Engine
	sem    *semaphore.Weighted

	waitMu  sync.Mutex
	waiting int64
	waitCap int64

	activeN int64 // atomic; mirrors the active gauge for tests

	active      prometheus.Gauge
	queueLength prometheus.Gauge
	busyRejects prometheus.Counter
	completed   prometheus.Counter
}

// NewPool constructs a Pool bounded by cfg.BackgroundHeals active
// healers and cfg.HealWaitQLen additional waiting slots. reg may be
// nil to skip metric registration (tests).
func NewPool(engine *Engine, cfg ec.Config, reg prometheus.Registerer) *Pool {
	p := &Pool{
		engine:  engine,
		sem:     semaphore.NewWeighted(int64(cfg.BackgroundHeals)),
		waitCap: int64(cfg.HealWaitQLen),

		active:      prometheus.NewGauge(prometheus.GaugeOpts{Name: "ec_heals_active", Help: "number of heals currently running"}),
		queueLength: prometheus.NewGauge(prometheus.GaugeOpts{Name: "ec_heal_wait_qlen", Help: "number of heal requests waiting for an admission slot"}),
		busyRejects: prometheus.NewCounter(prometheus.CounterOpts{Name: "ec_heal_busy_total", Help: "heal requests rejected because the wait queue was full"}),
		completed:   prometheus.NewCounter(prometheus.CounterOpts{Name: "ec_heals_completed_total", Help: "heals that ran to completion"}),
	}
	if reg != nil {
		reg.MustRegister(p.active, p.queueLength, p.busyRejects, p.completed)
	}
	return p
}

// Submit admits req for healing, blocking until a healer slot is free
// or the wait queue is full (in which case it returns ec.ErrHealBusy
// immediately, per spec.md §4.6). partial mirrors Engine.Heal's
// partial flag.
func (p *Pool) Submit(ctx context.Context, req Request, partial bool) (*Result, error) {
	if !p.sem.TryAcquire(1) {
		if !p.reserveWaitSlot() {
			p.busyRejects.Inc()
			return nil, ec.ErrHealBusy
		}
		p.queueLength.Inc()
		err := p.sem.Acquire(ctx, 1)
		p.queueLength.Dec()
		p.releaseWaitSlot()
		if err != nil {
			return nil, err
		}
	}
	defer p.sem.Release(1)

	p.active.Inc()
	atomic.AddInt64(&p.activeN, 1)
	defer func() {
		p.active.Dec()
		atomic.AddInt64(&p.activeN, -1)
	}()

	res, err := p.engine.Heal(ctx, req.Gfid, req.Parent, req.Name, req.Mask, req.IsDir, partial)
	if err == nil {
		p.completed.Inc()
	}
	return res, err
}

// reserveWaitSlot reports whether the caller may join the wait queue,
// atomically incrementing the waiting count if there is room.
func (p *Pool) reserveWaitSlot() bool {
	p.waitMu.Lock()
	defer p.waitMu.Unlock()
	if p.waiting >= p.waitCap {
		return false
	}
	p.waiting++
	return true
}

func (p *Pool) releaseWaitSlot() {
	p.waitMu.Lock()
	p.waiting--
	p.waitMu.Unlock()
}

// activeCount reports the number of healers currently running, for
// tests that can't observe the prometheus gauge directly.
func (p *Pool) activeCount() int64 {
	return atomic.LoadInt64(&p.activeN)
}
