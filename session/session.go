// Package session runs scrapes in the background and tracks their progress.
//
// Only one scrape runs at a time. Starting a new one while the current run
// has not reached done is rejected with ErrInFlight; once it is done, a new
// start replaces it as the current run and the finished run stays reachable
// by ID until it falls out of the history cache.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/ao3-wrapped/models"
	"github.com/aluiziolira/ao3-wrapped/scraper"
)

// ErrInFlight is returned by Start while another scrape is still running.
var ErrInFlight = errors.New("session: scrape already in progress")

// ScrapeFunc performs one scrape. scraper.(*Scraper).Run satisfies it.
type ScrapeFunc func(ctx context.Context, creds models.Credentials, reporter scraper.Reporter) (*models.ScrapeResult, error)

// Run is the progress state of one scrape. Only the worker writes to it
// after creation.
type Run struct {
	ID        string
	StartedAt time.Time

	mu    sync.RWMutex
	state models.ProgressState
}

func newRun() *Run {
	return &Run{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
}

// Report records a progress percentage. Values are clamped to [0, 100],
// never decrease, and are ignored once the run is done.
func (r *Run) Report(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Done || percent <= r.state.Progress {
		return
	}
	r.state.Progress = percent
}

// Snapshot returns a copy of the current state.
func (r *Run) Snapshot() models.ProgressState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Done reports whether the run has reached its terminal state.
func (r *Run) Done() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Done
}

// finish sets the terminal state exactly once.
func (r *Run) finish(result *models.ScrapeResult, err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Done {
		return false
	}

	r.state.Progress = 100
	r.state.Done = true
	if err != nil {
		msg := err.Error()
		r.state.Results = nil
		r.state.Error = &msg
		return true
	}
	r.state.Results = result
	r.state.Error = nil
	return true
}

// Manager owns the current run and a bounded history of finished ones.
type Manager struct {
	ctx     context.Context
	scrape  ScrapeFunc
	metrics *scraper.Metrics

	mu      sync.Mutex
	current *Run
	history *lru.Cache[string, *Run]

	wg sync.WaitGroup
}

// NewManager builds a manager whose workers stop cooperatively when ctx is
// cancelled. historySize bounds how many runs stay reachable by ID.
func NewManager(ctx context.Context, scrape ScrapeFunc, historySize int, metrics *scraper.Metrics) (*Manager, error) {
	if scrape == nil {
		return nil, fmt.Errorf("scrape func cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	history, err := lru.New[string, *Run](historySize)
	if err != nil {
		return nil, fmt.Errorf("create run history: %w", err)
	}
	return &Manager{
		ctx:     ctx,
		scrape:  scrape,
		metrics: metrics,
		history: history,
	}, nil
}

// Start resets progress and launches a scrape for creds on a new goroutine.
func (m *Manager) Start(creds models.Credentials) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && !m.current.Done() {
		return nil, ErrInFlight
	}

	run := newRun()
	m.current = run
	m.history.Add(run.ID, run)
	m.metrics.SessionStarted()

	m.wg.Add(1)
	go m.work(run, creds)

	slog.Info("scrape started", slog.String("session_id", run.ID), slog.String("username", creds.Username))
	return run, nil
}

func (m *Manager) work(run *Run, creds models.Credentials) {
	defer m.wg.Done()

	var (
		result *models.ScrapeResult
		err    error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("scrape panicked: %v", r)
			}
		}()
		result, err = m.scrape(m.ctx, creds, run)
	}()
	if err == nil && result == nil {
		err = errors.New("scrape returned no result")
	}

	run.finish(result, err)

	logger := slog.With(slog.String("session_id", run.ID), slog.Duration("elapsed", time.Since(run.StartedAt)))
	if err != nil {
		m.metrics.SessionFinished("error")
		logger.Warn("scrape finished with error", slog.Any("error", err))
		return
	}
	m.metrics.SessionFinished("success")
	logger.Info("scrape finished", slog.Int("books", result.TotalBooks))
}

// Current returns the state of the most recent run, or the zero state when
// nothing has been started.
func (m *Manager) Current() models.ProgressState {
	m.mu.Lock()
	run := m.current
	m.mu.Unlock()

	if run == nil {
		return models.ProgressState{}
	}
	return run.Snapshot()
}

// Lookup returns the state of a run by ID while it remains in the history.
func (m *Manager) Lookup(id string) (models.ProgressState, bool) {
	run, ok := m.history.Get(id)
	if !ok {
		return models.ProgressState{}, false
	}
	return run.Snapshot(), true
}

// Wait blocks until every started worker has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}
