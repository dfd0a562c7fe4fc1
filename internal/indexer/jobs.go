package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobKind distinguishes document uploads from website crawls.
type JobKind string

const (
	JobDocument JobKind = "document"
	JobURL      JobKind = "url"
)

// Job and session states.
const (
	StateIdle       = "idle"
	StateProcessing = "processing"
	StateCompleted  = "completed"
	StateFailed     = "failed"
)

// Job is one background ingestion.
type Job struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Kind       JobKind   `json:"kind"`
	Source     string    `json:"source"`
	State      string    `json:"state"`
	Chunks     int       `json:"chunks"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// Status aggregates the jobs of one session.
type Status struct {
	SessionID          string   `json:"session_id"`
	Status             string   `json:"status"`
	DocumentsProcessed int      `json:"documents_processed"`
	URLsProcessed      int      `json:"urls_processed"`
	ChunksStored       int      `json:"chunks_stored"`
	Failures           []string `json:"failures,omitempty"`
	Jobs               []Job    `json:"jobs"`
}

// JobFunc does the work of a job and reports how many chunks it stored.
type JobFunc func(ctx context.Context) (int, error)

// Retention limits for finished jobs.
const (
	// DefaultMaxJobsPerSession is the number of finished job records kept per
	// session. Older ones only survive as counts in Status.
	DefaultMaxJobsPerSession = 100
	// DefaultJobRetention is how long an idle session's records are kept
	// after its last job finished.
	DefaultJobRetention = 24 * time.Hour
)

// sessionJobs holds the job records of one session plus the totals of
// records already evicted.
type sessionJobs struct {
	jobs       []*Job
	lastActive time.Time

	evictedDocs      int
	evictedURLs      int
	evictedChunks    int
	evictedCompleted int
	evictedFailed    int
	failures         []string
}

func (s *sessionJobs) running() bool {
	for _, job := range s.jobs {
		if job.State == StateProcessing {
			return true
		}
	}
	return false
}

// Jobs runs ingestion off the request path and tracks per-session progress.
// It is safe for concurrent use.
type Jobs struct {
	mu            sync.Mutex
	sessions      map[string]*sessionJobs
	maxPerSession int
	retention     time.Duration
	now           func() time.Time

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// NewJobs creates a runner. Jobs run under a context canceled by Shutdown.
func NewJobs(logger *slog.Logger) *Jobs {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Jobs{
		sessions:      make(map[string]*sessionJobs),
		maxPerSession: DefaultMaxJobsPerSession,
		retention:     DefaultJobRetention,
		now:           time.Now,
		ctx:           ctx,
		cancel:        cancel,
		logger:        logger,
	}
}

// Submit starts fn in a goroutine and returns the job id immediately.
func (j *Jobs) Submit(sessionID string, kind JobKind, source string, fn JobFunc) string {
	job := &Job{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Kind:      kind,
		Source:    source,
		State:     StateProcessing,
		StartedAt: j.now().UTC(),
	}

	j.mu.Lock()
	j.sweep()
	sess := j.sessions[sessionID]
	if sess == nil {
		sess = &sessionJobs{}
		j.sessions[sessionID] = sess
	}
	sess.jobs = append(sess.jobs, job)
	sess.lastActive = job.StartedAt
	j.mu.Unlock()

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()

		chunks, err := j.run(fn)

		j.mu.Lock()
		defer j.mu.Unlock()
		job.FinishedAt = j.now().UTC()
		job.Chunks = chunks
		sess.lastActive = job.FinishedAt
		if err != nil {
			job.State = StateFailed
			job.Error = err.Error()
			j.logger.Error("Ingestion job failed", "job", job.ID, "session", sessionID, "source", source, "error", err)
		} else {
			job.State = StateCompleted
		}
		j.trim(sess)
	}()

	return job.ID
}

// trim folds the oldest finished records of sess into its totals until at
// most maxPerSession finished records remain. Caller holds j.mu.
func (j *Jobs) trim(sess *sessionJobs) {
	finished := 0
	for _, job := range sess.jobs {
		if job.State != StateProcessing {
			finished++
		}
	}

	kept := sess.jobs[:0]
	for _, job := range sess.jobs {
		if finished <= j.maxPerSession || job.State == StateProcessing {
			kept = append(kept, job)
			continue
		}
		finished--
		switch job.State {
		case StateCompleted:
			sess.evictedCompleted++
			sess.evictedChunks += job.Chunks
			if job.Kind == JobURL {
				sess.evictedURLs++
			} else {
				sess.evictedDocs++
			}
		case StateFailed:
			sess.evictedFailed++
			sess.failures = append(sess.failures, failure(job))
			if len(sess.failures) > j.maxPerSession {
				sess.failures = sess.failures[len(sess.failures)-j.maxPerSession:]
			}
		}
	}
	clear(sess.jobs[len(kept):])
	sess.jobs = kept
}

// sweep drops sessions with no running job whose last activity is older
// than the retention period. Caller holds j.mu.
func (j *Jobs) sweep() {
	cutoff := j.now().UTC().Add(-j.retention)
	for id, sess := range j.sessions {
		if !sess.running() && sess.lastActive.Before(cutoff) {
			delete(j.sessions, id)
		}
	}
}

func failure(job *Job) string {
	return job.Source + ": " + job.Error
}

// run calls fn, turning a panic into a job failure.
func (j *Jobs) run(fn JobFunc) (chunks int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn(j.ctx)
}

// Status summarizes a session: processing while any job runs, failed when
// every finished job failed, completed otherwise, idle with no jobs.
func (j *Jobs) Status(sessionID string) Status {
	j.mu.Lock()
	defer j.mu.Unlock()

	st := Status{SessionID: sessionID, Status: StateIdle, Jobs: []Job{}}
	sess := j.sessions[sessionID]
	if sess == nil {
		return st
	}

	st.DocumentsProcessed = sess.evictedDocs
	st.URLsProcessed = sess.evictedURLs
	st.ChunksStored = sess.evictedChunks
	st.Failures = append(st.Failures, sess.failures...)
	processing, completed, failed := 0, sess.evictedCompleted, sess.evictedFailed
	for _, job := range sess.jobs {
		st.Jobs = append(st.Jobs, *job)
		switch job.State {
		case StateProcessing:
			processing++
		case StateFailed:
			failed++
			st.Failures = append(st.Failures, failure(job))
		case StateCompleted:
			completed++
			st.ChunksStored += job.Chunks
			if job.Kind == JobURL {
				st.URLsProcessed++
			} else {
				st.DocumentsProcessed++
			}
		}
	}

	switch {
	case processing > 0:
		st.Status = StateProcessing
	case completed == 0 && failed > 0:
		st.Status = StateFailed
	default:
		st.Status = StateCompleted
	}
	return st
}

// Forget drops the job records of a session.
func (j *Jobs) Forget(sessionID string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.sessions, sessionID)
}

// Wait blocks until every submitted job has finished.
func (j *Jobs) Wait() {
	j.wg.Wait()
}

// Shutdown cancels running jobs and waits for them, or for ctx to expire.
func (j *Jobs) Shutdown(ctx context.Context) error {
	j.cancel()
	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
