package boxmgr

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/coder/websocket"
	"github.com/tidwall/gjson"
	"vawter.tech/stopper"
)

// MaxControlMessageSize bounds a single control API message. Connection
// snapshots grow with the number of open connections.
const MaxControlMessageSize = 16 << 20

// metricsStream is one push subscription on the core's control API
type metricsStream int

const (
	streamTraffic metricsStream = iota
	streamSpeed
	streamMemory
)

var metricsStreams = []metricsStream{streamTraffic, streamSpeed, streamMemory}

func (s metricsStream) String() string {
	switch s {
	case streamTraffic:
		return "traffic"
	case streamSpeed:
		return "speed"
	default:
		return "memory"
	}
}

func (s metricsStream) path() string {
	switch s {
	case streamTraffic:
		return "/connections"
	case streamSpeed:
		return "/traffic"
	default:
		return "/memory"
	}
}

// MetricsPoller follows the traffic, speed and memory streams of a running
// core and copies every message into the StatusBoard. Each stream is an
// independent task: a failed connection or read ends that task only, and
// there is no reconnect.
type MetricsPoller struct {
	endpoint string
	secret   string
	board    *StatusBoard
	logger   *slog.Logger
}

func newMetricsPoller(cp controlPlane, board *StatusBoard, logger *slog.Logger) *MetricsPoller {
	return &MetricsPoller{
		endpoint: cp.Endpoint,
		secret:   cp.Secret,
		board:    board,
		logger:   logger.With("component", "control-api"),
	}
}

// streamURL returns the websocket URL of s, carrying the secret as a token
func (p *MetricsPoller) streamURL(s metricsStream) string {
	u := url.URL{Scheme: "ws", Host: p.endpoint, Path: s.path()}
	if p.secret != "" {
		u.RawQuery = url.Values{"token": {p.secret}}.Encode()
	}
	return u.String()
}

// Start launches one task per stream on sctx. Tasks wait for ready before
// connecting and exit when sctx begins stopping.
func (p *MetricsPoller) Start(sctx *stopper.Context, ready <-chan struct{}) {
	for _, s := range metricsStreams {
		sctx.Go(func(sctx *stopper.Context) error {
			select {
			case <-ready:
			case <-sctx.Stopping():
				return nil
			}

			ctx, cancel := stoppingContext(sctx)
			defer cancel()
			p.follow(ctx, s)
			return nil
		})
	}
}

func (p *MetricsPoller) follow(ctx context.Context, s metricsStream) {
	logger := p.logger.With("stream", s.String())
	logger.Debug("connecting", "endpoint", p.endpoint, "path", s.path())

	conn, _, err := websocket.Dial(ctx, p.streamURL(s), nil)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error("failed to connect to control api", "error", err)
		}
		return
	}
	defer func() {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()
	conn.SetReadLimit(MaxControlMessageSize)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("failed to receive from control api", "error", err)
			} else {
				logger.Debug("stopped")
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		if !p.apply(s, data) {
			logger.Debug("ignoring malformed message", "size", len(data))
		}
	}
}

// apply copies one message of stream s into the board and signals the
// change. It reports false, leaving the board untouched, when the message
// lacks a field the stream owns.
func (p *MetricsPoller) apply(s metricsStream, data []byte) bool {
	if !gjson.ValidBytes(data) {
		return false
	}
	msg := gjson.ParseBytes(data)

	switch s {
	case streamTraffic:
		up, down := msg.Get("uploadTotal"), msg.Get("downloadTotal")
		if up.Type != gjson.Number || down.Type != gjson.Number {
			return false
		}
		var conns uint64
		msg.Get("connections").ForEach(func(_, _ gjson.Result) bool {
			conns++
			return true
		})
		p.board.SetTraffic(conns, up.Uint(), down.Uint())

	case streamSpeed:
		up, down := msg.Get("up"), msg.Get("down")
		if up.Type != gjson.Number || down.Type != gjson.Number {
			return false
		}
		p.board.SetSpeed(up.Uint(), down.Uint())

	case streamMemory:
		inuse := msg.Get("inuse")
		if inuse.Type != gjson.Number {
			return false
		}
		p.board.SetMemory(inuse.Uint())
	}

	p.board.Notify()
	return true
}

// stoppingContext returns a context cancelled once sctx begins stopping
func stoppingContext(sctx *stopper.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-sctx.Stopping():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
