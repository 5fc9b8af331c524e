package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"fiftybrains/delivery/internal/queue"
)

// Enqueuer is implemented by queue.Publisher.
type Enqueuer interface {
	Publish(ctx context.Context, task queue.Task) error
}

type Scheduler struct {
	cron      *cron.Cron
	queue     Enqueuer
	purgeSpec string
	log       zerolog.Logger
}

func NewScheduler(queue Enqueuer, purgeSpec string, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:      c,
		queue:     queue,
		purgeSpec: purgeSpec,
		log:       log,
	}
}

func (s *Scheduler) Start() error {
	if s.queue == nil || s.purgeSpec == "" {
		return nil
	}

	if _, err := s.cron.AddFunc(s.purgeSpec, s.enqueuePurge); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop waits up to five seconds for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) enqueuePurge() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.queue.Publish(ctx, queue.Task{Type: queue.TaskStoragePurge}); err != nil {
		s.log.Error().Err(err).Msg("enqueue purge failed")
	}
}
