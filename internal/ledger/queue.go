package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/expense-bot/internal/domain"
)

// postingJob is one batch of records awaiting the single writer.
type postingJob struct {
	jobID    string
	records  []domain.ExpenseRecord
	enqueued time.Time
	result   chan bool
}

// PostingQueue serializes all ledger postings through a single worker so two
// concurrent captures cannot race on the probed next-free-row position. It is
// safe for concurrent use.
type PostingQueue struct {
	poster    *Poster
	jobChan   chan *postingJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	log       zerolog.Logger
}

// NewPostingQueue creates a queue in front of the given poster. bufferSize
// determines how many batches can be pending before Post blocks.
func NewPostingQueue(poster *Poster, bufferSize int, log zerolog.Logger) *PostingQueue {
	return &PostingQueue{
		poster:    poster,
		jobChan:   make(chan *postingJob, bufferSize),
		closeChan: make(chan struct{}),
		log:       log,
	}
}

// Start launches the single writer goroutine.
func (q *PostingQueue) Start(ctx context.Context) {
	q.wg.Add(1)
	go q.worker(ctx)
}

func (q *PostingQueue) worker(ctx context.Context) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}
			start := time.Now()
			ok := q.poster.Post(ctx, job.records)
			q.log.Debug().
				Str("job_id", job.jobID).
				Int("records", len(job.records)).
				Bool("success", ok).
				Dur("duration", time.Since(start)).
				Msg("Posting job processed")
			job.result <- ok
		}
	}
}

// Post enqueues the records and waits for the writer's combined result. It
// keeps the Poster's contract: empty input succeeds trivially, and a closed
// queue or cancelled context yields false rather than an error.
func (q *PostingQueue) Post(ctx context.Context, records []domain.ExpenseRecord) bool {
	if len(records) == 0 {
		return true
	}

	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		q.log.Error().Msg("Posting queue is closed, dropping posting request")
		return false
	}
	q.mu.RUnlock()

	job := &postingJob{
		jobID:    uuid.NewString(),
		records:  records,
		enqueued: time.Now(),
		result:   make(chan bool, 1),
	}

	select {
	case q.jobChan <- job:
	case <-ctx.Done():
		return false
	case <-q.closeChan:
		return false
	}

	select {
	case ok := <-job.result:
		return ok
	case <-ctx.Done():
		return false
	}
}

// Stop shuts the queue down and waits for the in-flight batch to finish.
func (q *PostingQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
