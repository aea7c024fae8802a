package dispatch

import (
	"context"
	"io"
	"time"

	"github.com/leo-cloudarbitration/functions/pkg/logging"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Dispatcher fires the due entries of a schedule.
type Dispatcher struct {
	trigger  Trigger
	lockPath string
	events   zerolog.Logger
	now      func() time.Time
	logger   zerolog.Logger
}

// Summary lists what one dispatch did.
type Summary struct {
	Triggered []string
	Failed    []string
	Locked    bool
}

// New creates a dispatcher. Each trigger is written to events as one JSON line.
func New(trigger Trigger, lockPath string, events io.Writer) *Dispatcher {
	return &Dispatcher{
		trigger:  trigger,
		lockPath: lockPath,
		events:   zerolog.New(events).With().Timestamp().Logger(),
		now:      time.Now,
		logger:   logging.NewLogger("dispatch"),
	}
}

// Run triggers every entry due at the current minute. A held lock is not an
// error: the run is skipped and Summary.Locked is set.
func (d *Dispatcher) Run(ctx context.Context, entries []Entry) (Summary, error) {
	lock, err := AcquireLock(d.lockPath)
	if errors.Is(err, ErrLocked) {
		d.events.Warn().Str("lock", d.lockPath).Msg("Dispatcher already running, aborting")
		return Summary{Locked: true}, nil
	}
	if err != nil {
		return Summary{}, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			d.logger.Error().Err(err).Msg("Failed to release lock")
		}
	}()

	now := d.now().UTC()
	var summary Summary
	for _, e := range entries {
		if !e.Due(now) {
			continue
		}

		res, err := d.trigger.Trigger(ctx, e.Workflow)
		status := "success"
		if err != nil || res.ExitCode != 0 {
			status = "error"
			summary.Failed = append(summary.Failed, e.Workflow)
		} else {
			summary.Triggered = append(summary.Triggered, e.Workflow)
		}

		event := d.events.Info()
		if status == "error" {
			event = d.events.Error().Err(err)
		}
		event.
			Time("scheduled_at", now).
			Str("workflow", e.Workflow).
			Int("exit_code", res.ExitCode).
			Str("status", status).
			Str("stdout", res.Stdout).
			Str("stderr", res.Stderr).
			Msg("Workflow triggered")
	}

	d.logger.Info().
		Int("triggered", len(summary.Triggered)).
		Int("failed", len(summary.Failed)).
		Msg("Dispatch finished")
	return summary, nil
}
