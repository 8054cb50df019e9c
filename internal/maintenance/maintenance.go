package maintenance

import (
	"github.com/robfig/cron/v3"

	"visascout/internal/config"
	"visascout/internal/logging"
	"visascout/internal/runs"
	"visascout/internal/session"
)

// Scheduler runs periodic store housekeeping. Sessions and runs expire by
// TTL; pruning on a schedule keeps the JSON files from growing unbounded
// between reads.
type Scheduler struct {
	cron     *cron.Cron
	log      logging.Logger
	schedule string
	sessions *session.Store
	runs     *runs.Store
}

func NewScheduler(cfg *config.Config, log logging.Logger, sessions *session.Store, runStore *runs.Store) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		log:      log.WithField("component", "maintenance"),
		schedule: cfg.Maintenance.PruneSchedule,
		sessions: sessions,
		runs:     runStore,
	}
}

// Start registers the prune job and begins the cron loop
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.schedule, s.prune)
	if err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("Maintenance scheduler started", map[string]interface{}{
		"schedule": s.schedule,
	})
	return nil
}

// Stop halts the cron loop and waits for a running prune to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("Maintenance scheduler stopped")
}

func (s *Scheduler) prune() {
	if err := s.sessions.Prune(); err != nil {
		s.log.Error("Session prune failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if err := s.runs.Prune(); err != nil {
		s.log.Error("Run prune failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
