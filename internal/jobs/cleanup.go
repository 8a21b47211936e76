package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Task is one sweep run by a CleanupJob. It returns how many items it
// cleaned up.
type Task struct {
	Name string
	Run  func(ctx context.Context) (int64, error)
}

// PairingSweep expires pending pairings through expire, which reports how
// many it closed.
func PairingSweep(expire func() int) Task {
	return Task{
		Name: "pending pairings",
		Run: func(context.Context) (int64, error) {
			return int64(expire()), nil
		},
	}
}

type CleanupJob struct {
	tasks    []Task
	interval time.Duration
	timeout  time.Duration
	done     chan struct{}
	stopOnce sync.Once
}

func NewCleanupJob(interval time.Duration, tasks ...Task) *CleanupJob {
	return &CleanupJob{
		tasks:    tasks,
		interval: interval,
		timeout:  30 * time.Second,
		done:     make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Int("tasks", len(j.tasks)).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	j.stopOnce.Do(func() {
		close(j.done)
		log.Info().Msg("cleanup job stopped")
	})
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	for _, task := range j.tasks {
		j.runCleanup(ctx, task.Name, task.Run)
	}
}

func (j *CleanupJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Debug().Int64("count", count).Msgf("cleaned up %s", name)
	}
}
