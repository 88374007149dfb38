package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/ao3-wrapped/models"
	"github.com/aluiziolira/ao3-wrapped/scraper"
)

func TestManagerSuccess(t *testing.T) {
	want := &models.ScrapeResult{TotalBooks: 2, TotalWords: 800}
	var username string
	scrape := func(ctx context.Context, creds models.Credentials, r scraper.Reporter) (*models.ScrapeResult, error) {
		username = creds.Username
		r.Report(20)
		r.Report(40)
		return want, nil
	}

	mgr, err := NewManager(context.Background(), scrape, 4, scraper.NewMetrics())
	require.NoError(t, err)

	run, err := mgr.Start(models.Credentials{Username: "alice", Password: "secret"})
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	mgr.Wait()
	require.Equal(t, "alice", username)

	state := mgr.Current()
	require.True(t, state.Done)
	require.Equal(t, 100, state.Progress)
	require.Nil(t, state.Error)
	require.Same(t, want, state.Results)

	byID, ok := mgr.Lookup(run.ID)
	require.True(t, ok)
	require.Equal(t, state, byID)
}

func TestManagerFailure(t *testing.T) {
	scrape := func(ctx context.Context, creds models.Credentials, r scraper.Reporter) (*models.ScrapeResult, error) {
		return nil, scraper.AuthenticationError{Reason: scraper.ReasonLoginFailed}
	}

	mgr, err := NewManager(context.Background(), scrape, 4, nil)
	require.NoError(t, err)

	_, err = mgr.Start(models.Credentials{Username: "alice", Password: "wrong"})
	require.NoError(t, err)
	mgr.Wait()

	state := mgr.Current()
	require.True(t, state.Done)
	require.Equal(t, 100, state.Progress)
	require.Nil(t, state.Results)
	require.NotNil(t, state.Error)
	require.Equal(t, scraper.ReasonLoginFailed, *state.Error)
}

func TestManagerRecoversPanic(t *testing.T) {
	scrape := func(ctx context.Context, creds models.Credentials, r scraper.Reporter) (*models.ScrapeResult, error) {
		panic("boom")
	}

	mgr, err := NewManager(context.Background(), scrape, 4, nil)
	require.NoError(t, err)

	_, err = mgr.Start(models.Credentials{Username: "alice", Password: "secret"})
	require.NoError(t, err)
	mgr.Wait()

	state := mgr.Current()
	require.True(t, state.Done)
	require.NotNil(t, state.Error)
	require.Contains(t, *state.Error, "boom")
}

func TestManagerRejectsSecondStartWhileRunning(t *testing.T) {
	release := make(chan struct{})
	scrape := func(ctx context.Context, creds models.Credentials, r scraper.Reporter) (*models.ScrapeResult, error) {
		<-release
		return &models.ScrapeResult{}, nil
	}

	mgr, err := NewManager(context.Background(), scrape, 4, nil)
	require.NoError(t, err)

	first, err := mgr.Start(models.Credentials{Username: "alice", Password: "secret"})
	require.NoError(t, err)

	_, err = mgr.Start(models.Credentials{Username: "bob", Password: "secret"})
	require.ErrorIs(t, err, ErrInFlight)

	close(release)
	mgr.Wait()

	second, err := mgr.Start(models.Credentials{Username: "bob", Password: "secret"})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
	mgr.Wait()

	_, ok := mgr.Lookup(first.ID)
	require.True(t, ok, "finished run should stay in history")
}

func TestManagerStartResetsProgress(t *testing.T) {
	calls := 0
	var initial []models.ProgressState
	scrape := func(ctx context.Context, creds models.Credentials, r scraper.Reporter) (*models.ScrapeResult, error) {
		calls++
		initial = append(initial, r.(*Run).Snapshot())
		r.Report(60)
		return &models.ScrapeResult{}, nil
	}

	mgr, err := NewManager(context.Background(), scrape, 4, nil)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := mgr.Start(models.Credentials{Username: "alice", Password: "secret"})
		require.NoError(t, err)
		mgr.Wait()
	}
	require.Equal(t, 2, calls)
	require.Equal(t, []models.ProgressState{{}, {}}, initial)
}

func TestManagerCancelsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	scrape := func(ctx context.Context, creds models.Credentials, r scraper.Reporter) (*models.ScrapeResult, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return &models.ScrapeResult{}, nil
		}
	}

	mgr, err := NewManager(ctx, scrape, 4, nil)
	require.NoError(t, err)

	_, err = mgr.Start(models.Credentials{Username: "alice", Password: "secret"})
	require.NoError(t, err)
	cancel()
	mgr.Wait()

	state := mgr.Current()
	require.True(t, state.Done)
	require.NotNil(t, state.Error)
	require.Equal(t, context.Canceled.Error(), *state.Error)
}

func TestCurrentBeforeAnyStart(t *testing.T) {
	mgr, err := NewManager(context.Background(), func(context.Context, models.Credentials, scraper.Reporter) (*models.ScrapeResult, error) {
		return nil, nil
	}, 4, nil)
	require.NoError(t, err)

	require.Equal(t, models.ProgressState{}, mgr.Current())
	_, ok := mgr.Lookup("missing")
	require.False(t, ok)
}

func TestRunReportIsMonotonicAndClamped(t *testing.T) {
	run := newRun()

	run.Report(40)
	run.Report(20)
	require.Equal(t, 40, run.Snapshot().Progress)

	run.Report(140)
	require.Equal(t, 100, run.Snapshot().Progress)

	run.Report(-5)
	require.Equal(t, 100, run.Snapshot().Progress)
}

func TestRunFinishOnce(t *testing.T) {
	run := newRun()
	require.True(t, run.finish(&models.ScrapeResult{TotalBooks: 1}, nil))
	require.False(t, run.finish(nil, context.Canceled))

	state := run.Snapshot()
	require.Nil(t, state.Error)
	require.Equal(t, 1, state.Results.TotalBooks)

	run.Report(10)
	require.Equal(t, 100, run.Snapshot().Progress)
}

func TestNewManagerValidates(t *testing.T) {
	_, err := NewManager(context.Background(), nil, 4, nil)
	require.Error(t, err)

	_, err = NewManager(context.Background(), func(context.Context, models.Credentials, scraper.Reporter) (*models.ScrapeResult, error) {
		return nil, nil
	}, 0, nil)
	require.Error(t, err)
}
