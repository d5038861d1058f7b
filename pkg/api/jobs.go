package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrJobNotFound is returned for unknown or expired job ids
var ErrJobNotFound = errors.New("job not found")

// Task is the body of a background job
type Task func(ctx context.Context) (interface{}, error)

// JobConfig bounds background processing
type JobConfig struct {
	MaxWorkers      int
	JobTimeout      time.Duration
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// JobService handles background job processing
type JobService struct {
	cfg     JobConfig
	jobs    map[string]*Job
	cancels map[string]context.CancelFunc
	workers chan struct{}
	mutex   sync.RWMutex

	stop chan struct{}
	once sync.Once
}

// NewJobService creates a job service and starts its cleanup loop
func NewJobService(cfg JobConfig) *JobService {
	if cfg.MaxWorkers < 1 {
		cfg.MaxWorkers = 1
	}
	s := &JobService{
		cfg:     cfg,
		jobs:    make(map[string]*Job),
		cancels: make(map[string]context.CancelFunc),
		workers: make(chan struct{}, cfg.MaxWorkers),
		stop:    make(chan struct{}),
	}

	if cfg.CleanupInterval > 0 {
		go s.cleanupLoop()
	}

	return s
}

// Submit queues task and returns a snapshot of the new job
func (s *JobService) Submit(kind string, params interface{}, task Task) Job {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if s.cfg.JobTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), s.cfg.JobTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	now := time.Now()
	job := &Job{
		ID:         uuid.New().String(),
		Kind:       kind,
		Parameters: params,
		Status:     JobStatusQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	s.mutex.Lock()
	s.jobs[job.ID] = job
	s.cancels[job.ID] = cancel
	snapshot := *job
	s.mutex.Unlock()

	log.Info().
		Str("job_id", job.ID).
		Str("kind", kind).
		Msg("Job submitted")

	go s.process(ctx, job.ID, task)

	return snapshot
}

// Get returns a snapshot of the job
func (s *JobService) Get(jobID string) (Job, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return *job, nil
}

// Cancel stops a queued or running job
func (s *JobService) Cancel(jobID string) (Job, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	if !job.Done() {
		s.cancels[jobID]()
		now := time.Now()
		job.Status = JobStatusCancelled
		job.CompletedAt = &now
		job.UpdatedAt = now

		log.Info().Str("job_id", jobID).Msg("Job cancelled")
	}
	return *job, nil
}

// Close cancels all jobs and stops the cleanup loop
func (s *JobService) Close() {
	s.once.Do(func() {
		close(s.stop)
		s.mutex.Lock()
		defer s.mutex.Unlock()
		for _, cancel := range s.cancels {
			cancel()
		}
	})
}

func (s *JobService) process(ctx context.Context, jobID string, task Task) {
	select {
	case s.workers <- struct{}{}:
	case <-ctx.Done():
		s.finish(jobID, nil, ctx.Err())
		return
	}
	defer func() { <-s.workers }()

	if !s.start(jobID) {
		return
	}

	result, err := task(ctx)
	s.finish(jobID, result, err)
}

// start marks the job running; false when it was cancelled while queued
func (s *JobService) start(jobID string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	job, exists := s.jobs[jobID]
	if !exists || job.Done() {
		return false
	}
	now := time.Now()
	job.Status = JobStatusRunning
	job.StartedAt = &now
	job.UpdatedAt = now

	log.Debug().Str("job_id", jobID).Msg("Job processing started")
	return true
}

func (s *JobService) finish(jobID string, result interface{}, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return
	}
	if cancel, ok := s.cancels[jobID]; ok {
		cancel()
		delete(s.cancels, jobID)
	}
	if job.Status == JobStatusCancelled {
		return
	}

	now := time.Now()
	job.CompletedAt = &now
	job.UpdatedAt = now

	if err != nil {
		job.Status = JobStatusFailed
		job.Error = err.Error()
		log.Error().Str("job_id", jobID).Err(err).Msg("Job failed")
		return
	}

	job.Status = JobStatusCompleted
	job.Result = result
	log.Info().Str("job_id", jobID).Msg("Job completed successfully")
}

// cleanupLoop periodically removes finished jobs older than the TTL
func (s *JobService) cleanupLoop() {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup(time.Now().Add(-s.cfg.ResultTTL))
		case <-s.stop:
			return
		}
	}
}

func (s *JobService) cleanup(cutoff time.Time) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cleaned := 0
	for jobID, job := range s.jobs {
		if job.Done() && job.UpdatedAt.Before(cutoff) {
			delete(s.jobs, jobID)
			cleaned++
		}
	}

	if cleaned > 0 {
		log.Info().Int("cleaned_jobs", cleaned).Msg("Job cleanup completed")
	}
	return cleaned
}
