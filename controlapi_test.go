package boxmgr

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"vawter.tech/stopper"
)

// fakeControlAPI serves canned messages on the control API streams
type fakeControlAPI struct {
	srv      *httptest.Server
	messages map[string][]string

	mu     sync.Mutex
	tokens map[string]string
	conns  atomic.Int32
}

func newFakeControlAPI(t *testing.T, messages map[string][]string) *fakeControlAPI {
	t.Helper()

	f := &fakeControlAPI{messages: messages, tokens: make(map[string]string)}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeControlAPI) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.tokens[r.URL.Path] = r.URL.Query().Get("token")
	f.mu.Unlock()

	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer c.CloseNow()
	f.conns.Add(1)

	ctx := r.Context()
	for _, msg := range f.messages[r.URL.Path] {
		if err := c.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
			return
		}
	}
	for {
		if _, _, err := c.Read(ctx); err != nil {
			return
		}
	}
}

func (f *fakeControlAPI) endpoint() string {
	return f.srv.Listener.Addr().String()
}

func (f *fakeControlAPI) token(path string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens[path]
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func stopAndWait(t *testing.T, sctx *stopper.Context) {
	t.Helper()
	sctx.Stop(time.Second)
	require.NoError(t, sctx.Wait())
}

func TestMetricsPollerTraffic(t *testing.T) {
	api := newFakeControlAPI(t, map[string][]string{
		"/connections": {`{"connections":[{"id":"x"},{"id":"y"}],"downloadTotal":100,"uploadTotal":50}`},
	})

	board := NewStatusBoard()
	changed := board.Changed()

	p := newMetricsPoller(controlPlane{Endpoint: api.endpoint()}, board, discardLogger())
	sctx := stopper.WithContext(context.Background())
	p.Start(sctx, closedChan())
	defer stopAndWait(t, sctx)

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("no status change after traffic message")
	}

	s := board.Snapshot()
	assert.Equal(t, uint64(2), s.ConnectionCount)
	assert.Equal(t, uint64(100), s.DownloadTraffic)
	assert.Equal(t, uint64(50), s.UploadTraffic)

	next := board.Changed()
	select {
	case <-next:
		t.Fatal("one message must produce exactly one status change")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestMetricsPollerSpeedMemoryAndToken(t *testing.T) {
	api := newFakeControlAPI(t, map[string][]string{
		"/traffic": {`{"up":1,"down":2}`, `not json`, `{"up":30,"down":40}`},
		"/memory":  {`{"inuse":8192,"oslimit":0}`},
	})

	board := NewStatusBoard()
	p := newMetricsPoller(controlPlane{Endpoint: api.endpoint(), Secret: "s3cret"}, board, discardLogger())
	sctx := stopper.WithContext(context.Background())
	p.Start(sctx, closedChan())
	defer stopAndWait(t, sctx)

	require.Eventually(t, func() bool {
		s := board.Snapshot()
		return s.UploadSpeed == 30 && s.DownloadSpeed == 40 && s.MemoryUsage == 8192
	}, 5*time.Second, 10*time.Millisecond)

	for _, path := range []string{"/connections", "/traffic", "/memory"} {
		assert.Equal(t, "s3cret", api.token(path), path)
	}
}

func TestMetricsPollerWaitsForReady(t *testing.T) {
	api := newFakeControlAPI(t, nil)

	p := newMetricsPoller(controlPlane{Endpoint: api.endpoint()}, NewStatusBoard(), discardLogger())
	sctx := stopper.WithContext(context.Background())
	ready := make(chan struct{})
	p.Start(sctx, ready)
	defer stopAndWait(t, sctx)

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, api.conns.Load())

	close(ready)
	require.Eventually(t, func() bool {
		return api.conns.Load() == 3
	}, 5*time.Second, 10*time.Millisecond)
}

func TestMetricsPollerStopBeforeReady(t *testing.T) {
	p := newMetricsPoller(controlPlane{Endpoint: "127.0.0.1:1"}, NewStatusBoard(), discardLogger())
	sctx := stopper.WithContext(context.Background())
	p.Start(sctx, make(chan struct{}))
	stopAndWait(t, sctx)
}

func TestMetricsPollerConnectFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	endpoint := l.Addr().String()
	require.NoError(t, l.Close())

	board := NewStatusBoard()
	p := newMetricsPoller(controlPlane{Endpoint: endpoint}, board, discardLogger())
	sctx := stopper.WithContext(context.Background())
	p.Start(sctx, closedChan())

	time.Sleep(200 * time.Millisecond)
	stopAndWait(t, sctx)
	assert.Equal(t, Status{}, board.Snapshot())
}

func TestMetricsPollerApply(t *testing.T) {
	tests := []struct {
		name   string
		stream metricsStream
		msg    string
		ok     bool
	}{
		{"traffic null connections", streamTraffic, `{"connections":null,"downloadTotal":1,"uploadTotal":2}`, true},
		{"traffic missing totals", streamTraffic, `{"connections":[]}`, false},
		{"speed string field", streamSpeed, `{"up":"1","down":2}`, false},
		{"memory", streamMemory, `{"inuse":10}`, true},
		{"memory invalid", streamMemory, `{"inuse":`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			board := NewStatusBoard()
			changed := board.Changed()
			p := newMetricsPoller(controlPlane{}, board, discardLogger())

			assert.Equal(t, tt.ok, p.apply(tt.stream, []byte(tt.msg)))

			select {
			case <-changed:
				assert.True(t, tt.ok, "rejected message must not signal")
			default:
				assert.False(t, tt.ok, "accepted message must signal")
			}
		})
	}
}

func TestMetricsPollerStreamURL(t *testing.T) {
	p := newMetricsPoller(controlPlane{Endpoint: "127.0.0.1:9090"}, NewStatusBoard(), discardLogger())
	assert.Equal(t, "ws://127.0.0.1:9090/connections", p.streamURL(streamTraffic))

	p.secret = "a b"
	assert.Equal(t, "ws://127.0.0.1:9090/memory?token=a+b", p.streamURL(streamMemory))
}
