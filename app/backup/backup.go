// Package backup runs the periodic snapshot of the saved-tab collection.
// It copies the live collection to the backup key on a cron schedule, with
// one extra run right after startup. Backup failures are logged and
// swallowed; a failed run is not retried until the next scheduled one.
package backup

import (
	"context"
	"fmt"

	log "github.com/go-pkgz/lgr"
	"github.com/robfig/cron/v3"
)

// Snapshotter copies the live collection to the backup key and reports how
// many records the snapshot holds. Zero with no error means the live
// collection was empty and the previous snapshot was left in place.
type Snapshotter interface {
	Backup() (int, error)
}

// Cron defines the robfig/cron methods used by the scheduler
type Cron interface {
	Start()
	Stop() context.Context
	Schedule(schedule cron.Schedule, cmd cron.Job) cron.EntryID
}

// Scheduler wires the snapshotter to a cron timer
type Scheduler struct {
	Cron        Cron
	Snapshotter Snapshotter
	Spec        string // cron spec, e.g. "@daily"
}

// Do runs the blocking scheduler until ctx is canceled. The first backup is
// made immediately, the rest follow the cron spec.
func (s *Scheduler) Do(ctx context.Context) error {
	sched, err := cron.ParseStandard(s.Spec)
	if err != nil {
		return fmt.Errorf("can't parse backup schedule %q: %w", s.Spec, err)
	}

	s.run() // initial backup right away, matching first-install behavior

	id := s.Cron.Schedule(sched, cron.FuncJob(s.run))
	log.Printf("[INFO] backup scheduled, spec %q (%v)", s.Spec, id)

	s.Cron.Start()
	<-ctx.Done()
	log.Print("[DEBUG] terminate backup scheduler")
	<-s.Cron.Stop().Done()
	return nil
}

// run makes a single backup, never failing the scheduler
func (s *Scheduler) run() {
	count, err := s.Snapshotter.Backup()
	if err != nil {
		log.Printf("[WARN] backup failed: %v", err)
		return
	}
	if count == 0 {
		log.Printf("[DEBUG] live collection empty, backup skipped")
		return
	}
	log.Printf("[INFO] backup completed, %d records", count)
}

// Run triggers one backup outside the schedule, e.g. from the web API
func (s *Scheduler) Run() {
	s.run()
}
