package feed

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/gridbot/internal/domain"
	"go.uber.org/zap"
)

func settingsServer(t *testing.T, handler func(w http.ResponseWriter, n int32)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		handler(w, calls.Add(1))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestSettingsPoller_DispatchesLevelSize(t *testing.T) {
	body := `{"level_size": 12.34, "level_size_relative": 0.0002, "trades": 10, "relevant_trades": 4,
		"first_trade": "2024-01-01T00:00:00Z", "first_relevant_trade": "2024-01-01T00:00:05Z"}`
	srv, _ := settingsServer(t, func(w http.ResponseWriter, _ int32) {
		_, _ = io.WriteString(w, body)
	})

	rec := &recorder{}
	p := NewSettingsPoller(zap.NewNop(), srv.URL, time.Millisecond, rec)

	require.NoError(t, p.Poll(context.Background()))
	require.NoError(t, p.Poll(context.Background()))

	actions := rec.all()
	require.Len(t, actions, 1)
	upd := actions[0].(domain.UpdateSettings)
	assert.True(t, upd.LevelSize.Equal(d("12.34")))
}

func TestSettingsPoller_IgnoresNonPositive(t *testing.T) {
	srv, _ := settingsServer(t, func(w http.ResponseWriter, _ int32) {
		_, _ = io.WriteString(w, `{"level_size": 0}`)
	})

	rec := &recorder{}
	p := NewSettingsPoller(zap.NewNop(), srv.URL, time.Millisecond, rec)

	require.NoError(t, p.Poll(context.Background()))
	assert.Empty(t, rec.all())
}

func TestSettingsPoller_RetriesUnavailable(t *testing.T) {
	srv, calls := settingsServer(t, func(w http.ResponseWriter, n int32) {
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"level_size": 5}`)
	})

	rec := &recorder{}
	p := NewSettingsPoller(zap.NewNop(), srv.URL, time.Millisecond, rec)

	require.NoError(t, p.Poll(context.Background()))
	assert.Equal(t, int32(3), calls.Load())
	require.Len(t, rec.all(), 1)
}

func TestSettingsPoller_OtherStatusIsNotRetried(t *testing.T) {
	srv, calls := settingsServer(t, func(w http.ResponseWriter, _ int32) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	rec := &recorder{}
	p := NewSettingsPoller(zap.NewNop(), srv.URL, time.Millisecond, rec)

	require.Error(t, p.Poll(context.Background()))
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, rec.all())
}

func TestSettingsPoller_RunStopsOnCancel(t *testing.T) {
	srv, _ := settingsServer(t, func(w http.ResponseWriter, _ int32) {
		_, _ = io.WriteString(w, `{"level_size": 7}`)
	})

	rec := &recorder{}
	p := NewSettingsPoller(zap.NewNop(), srv.URL, time.Millisecond, rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}
