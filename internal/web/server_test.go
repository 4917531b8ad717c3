package web

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/gridbot/internal/domain"
	"github.com/vadiminshakov/gridbot/internal/scheduler"
	"go.uber.org/zap"
)

type fakeBot struct {
	mu          sync.Mutex
	state       domain.State
	history     []scheduler.Entry
	targets     []int
	liquidated  int
	knownOrders int
}

func (f *fakeBot) State() domain.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeBot) History() []scheduler.Entry { return f.history }
func (f *fakeBot) KnownOrders() int           { return f.knownOrders }

func (f *fakeBot) SetGridParameters(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, n)
}

func (f *fakeBot) Liquidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.liquidated++
}

func initializedState() domain.State {
	base := domain.NewBalance(decimal.RequireFromString("0.1"), decimal.Zero)
	quote := domain.NewBalance(decimal.NewFromInt(500), decimal.Zero)
	s := domain.NewState(6)
	s.Base, s.Quote = &base, &quote
	s.LastTrade = &domain.Trade{ID: 9, Price: decimal.NewFromInt(1000)}
	s.AnchorPrice = domain.DecimalPtr(decimal.NewFromInt(1000))
	s.LevelSizeQuote = domain.DecimalPtr(decimal.NewFromInt(5))
	s.Orders = []domain.Order{
		{Side: domain.SideBuy, CorrelationID: "b", Level: -1, Price: decimal.NewFromInt(995), Quantity: decimal.NewFromInt(1), Lifecycle: domain.LifecycleActive},
	}
	return s
}

func newTestServer(bot *fakeBot) *httptest.Server {
	s := NewServer(zap.NewNop(), ":0", domain.Pair{From: "BTC", To: "FDUSD"}, bot, prometheus.NewRegistry(), nil)
	s.pollPeriod = 5 * time.Millisecond
	return httptest.NewServer(s.Handler())
}

func TestServer_Status(t *testing.T) {
	bot := &fakeBot{state: initializedState(), knownOrders: 3}
	srv := newTestServer(bot)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "BTC_FDUSD", st.Pair)
	assert.True(t, st.Initialized)
	require.NotNil(t, st.Equity)
	assert.True(t, st.Equity.Equal(decimal.NewFromInt(600)))
	assert.Equal(t, 1, st.BuyOrders)
	assert.Equal(t, 0, st.SellOrders)
	assert.Equal(t, 3, st.KnownOrders)
	assert.Equal(t, 6, st.State.TargetTotalLevels)
}

func TestServer_History(t *testing.T) {
	bot := &fakeBot{history: []scheduler.Entry{{Type: scheduler.EntryState}, {Type: scheduler.EntryAbort}}}
	srv := newTestServer(bot)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/history")
	require.NoError(t, err)
	defer resp.Body.Close()

	var entries []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "abort", entries[1]["type"])
}

func TestServer_Grid(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		want   []int
	}{
		{name: "valid", body: `{"target_levels": 14}`, status: http.StatusAccepted, want: []int{14}},
		{name: "zero", body: `{"target_levels": 0}`, status: http.StatusBadRequest},
		{name: "garbage", body: `levels please`, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bot := &fakeBot{}
			srv := newTestServer(bot)
			defer srv.Close()

			resp, err := http.Post(srv.URL+"/grid", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.want, bot.targets)
		})
	}
}

func TestServer_Liquidate(t *testing.T) {
	bot := &fakeBot{}
	srv := newTestServer(bot)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/liquidate", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 1, bot.liquidated)

	resp, err = http.Get(srv.URL + "/liquidate")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, 1, bot.liquidated)
}

func TestServer_Metrics(t *testing.T) {
	srv := newTestServer(&fakeBot{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
}

func TestServer_StateStream(t *testing.T) {
	bot := &fakeBot{state: initializedState()}
	srv := newTestServer(bot)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/state/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	nextData := func() Status {
		for scanner.Scan() {
			line := scanner.Text()
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				var st Status
				require.NoError(t, json.Unmarshal([]byte(data), &st))
				return st
			}
		}
		t.Fatal("stream ended")
		return Status{}
	}

	first := nextData()
	assert.Equal(t, 9, int(first.State.LastTrade.ID))

	bot.mu.Lock()
	bot.state.LastTrade = &domain.Trade{ID: 10, Price: decimal.NewFromInt(1001)}
	bot.mu.Unlock()

	second := nextData()
	assert.Equal(t, 10, int(second.State.LastTrade.ID))
}
