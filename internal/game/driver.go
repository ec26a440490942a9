package game

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "rallybot/pkg/logx"
)

// Driver runs the periodic scan: generate due games, then evaluate
// deadline triggers. One tick does both, in that order, so a game created
// on a tick is already visible to the trigger pass of the next tick.
type Driver struct {
	svc *Service
	log logx.Logger

	mu       sync.Mutex
	c        *cron.Cron
	interval time.Duration
	loc      *time.Location
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewDriver(svc *Service, log logx.Logger) *Driver {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Driver{svc: svc, log: log}
}

// Start launches the cron runner. Interval must be positive.
func (d *Driver) Start(parent context.Context, interval time.Duration, loc *time.Location) error {
	if interval <= 0 {
		return fmt.Errorf("scan interval must be positive, got %s", interval)
	}
	if loc == nil {
		loc = time.UTC
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.interval = interval
	d.loc = loc
	d.ctx, d.cancel = context.WithCancel(parent)
	d.restartLocked()
	return nil
}

// Apply picks up changed settings: a new interval or timezone restarts the
// cron runner, anything else takes effect on the next tick by itself.
func (d *Driver) Apply(interval time.Duration, loc *time.Location) {
	if interval <= 0 || loc == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.c == nil {
		return // not started
	}
	if interval == d.interval && loc.String() == d.loc.String() {
		return
	}
	d.interval = interval
	d.loc = loc
	d.restartLocked()
}

func (d *Driver) restartLocked() {
	if d.c != nil {
		<-d.c.Stop().Done()
	}
	d.c = cron.New(cron.WithLocation(d.loc))
	spec := fmt.Sprintf("@every %s", d.interval)
	if _, err := d.c.AddFunc(spec, d.tick); err != nil {
		// @every with a positive duration always parses; keep the runner
		// alive with nothing scheduled rather than crash mid-reload.
		d.log.Error("schedule spec rejected", logx.String("spec", spec), logx.Err(err))
	}
	d.c.Start()
	d.log.Info("scan driver started",
		logx.Duration("interval", d.interval),
		logx.String("tz", d.loc.String()))
}

func (d *Driver) tick() {
	d.mu.Lock()
	ctx := d.ctx
	d.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	created, err := d.svc.GenerateDueGames(ctx)
	if err != nil {
		d.log.Warn("game generation failed", logx.Err(err))
	} else if created > 0 {
		d.log.Info("games generated", logx.Int("count", created))
	}

	if err := d.svc.EvaluateTriggers(ctx); err != nil {
		d.log.Warn("trigger evaluation failed", logx.Err(err))
	}
}

// Stop halts the runner and waits for an in-flight tick to finish.
func (d *Driver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
	if d.c != nil {
		<-d.c.Stop().Done()
		d.c = nil
	}
}
