package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/storywire/storywire/internal/metrics"
)

const (
	defaultQueueSize  = 256
	defaultWorkers    = 2
	defaultSynthDelay = 30 * time.Second
)

// NarrativeChecker is implemented by the clustering narrative trigger.
type NarrativeChecker interface {
	Check(ctx context.Context, clusterID int64) (bool, error)
}

type narrativeJob struct {
	ID        string
	ClusterID int64
	RunAt     time.Time
}

// NarrativeScheduler queues clusters for narrative synthesis and runs
// checks on a small worker pool. Jobs are delayed so a burst of inserts
// into the same cluster collapses into one synthesis attempt.
type NarrativeScheduler struct {
	trigger   NarrativeChecker
	collector *metrics.PipelineCollector
	logger    *slog.Logger

	queue   chan narrativeJob
	pending map[int64]bool
	mu      sync.Mutex

	workers int
	delay   time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewNarrativeScheduler creates a scheduler with the default queue and
// worker sizes.
func NewNarrativeScheduler(trigger NarrativeChecker, collector *metrics.PipelineCollector, logger *slog.Logger) *NarrativeScheduler {
	return &NarrativeScheduler{
		trigger:   trigger,
		collector: collector,
		logger:    logger,
		queue:     make(chan narrativeJob, defaultQueueSize),
		pending:   make(map[int64]bool),
		workers:   defaultWorkers,
		delay:     defaultSynthDelay,
		stopChan:  make(chan struct{}),
	}
}

// Schedule enqueues a synthesis check for the cluster. Returns false when
// the job was dropped, either because the cluster is already queued or the
// queue is full.
func (s *NarrativeScheduler) Schedule(clusterID int64) bool {
	if clusterID <= 0 {
		return false
	}

	s.mu.Lock()
	if s.pending[clusterID] {
		s.mu.Unlock()
		return false
	}
	s.pending[clusterID] = true
	s.mu.Unlock()

	job := narrativeJob{
		ID:        uuid.New().String(),
		ClusterID: clusterID,
		RunAt:     time.Now().Add(s.delay),
	}

	select {
	case s.queue <- job:
		return true
	default:
		s.mu.Lock()
		delete(s.pending, clusterID)
		s.mu.Unlock()
		s.logger.Warn("narrative queue full, dropping job",
			"cluster_id", clusterID,
		)
		return false
	}
}

// Start launches the worker pool. Workers run until the context is
// cancelled or Stop is called.
func (s *NarrativeScheduler) Start(ctx context.Context) {
	s.logger.Info("starting narrative scheduler",
		"workers", s.workers,
		"delay", s.delay,
	)
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}
}

// Stop signals workers to exit and waits for in-flight jobs to finish.
func (s *NarrativeScheduler) Stop() {
	close(s.stopChan)
	s.wg.Wait()
	s.logger.Info("narrative scheduler stopped")
}

func (s *NarrativeScheduler) worker(ctx context.Context, id int) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case job := <-s.queue:
			s.waitUntil(ctx, job.RunAt)
			s.run(ctx, id, job)
		}
	}
}

// waitUntil sleeps until the job's run time, waking early on shutdown.
func (s *NarrativeScheduler) waitUntil(ctx context.Context, runAt time.Time) {
	wait := time.Until(runAt)
	if wait <= 0 {
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-s.stopChan:
	case <-timer.C:
	}
}

func (s *NarrativeScheduler) run(ctx context.Context, workerID int, job narrativeJob) {
	defer func() {
		s.mu.Lock()
		delete(s.pending, job.ClusterID)
		s.mu.Unlock()
	}()

	written, err := s.trigger.Check(ctx, job.ClusterID)
	if err != nil {
		s.logger.Error("narrative check failed",
			"worker", workerID,
			"job_id", job.ID,
			"cluster_id", job.ClusterID,
			"error", err,
		)
		return
	}
	if written {
		if s.collector != nil {
			s.collector.NarrativeWritten()
		}
		s.logger.Info("narrative check completed",
			"worker", workerID,
			"job_id", job.ID,
			"cluster_id", job.ClusterID,
		)
	}
}
