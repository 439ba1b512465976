package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Notify/internal/app/orch"
	"github.com/dkeye/Notify/internal/config"
	"github.com/dkeye/Notify/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

type Options struct {
	ReadLimit    int64
	PingPeriod   time.Duration
	PongWait     time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ReadLimit:    cfg.ReadLimit,
		PingPeriod:   cfg.PingPeriod,
		PongWait:     cfg.PongWait,
		WriteTimeout: cfg.WriteTimeout,
		SendBuffer:   cfg.SendBuffer,
	}
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	opts    Options
	limiter *RateLimiter
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 32768
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	return o
}

func NewSignalWSController(o *orch.Orchestrator, opts Options, limiter *RateLimiter) *SignalWSController {
	return &SignalWSController{Orch: o, opts: opts.withDefaults(), limiter: limiter}
}

// WsConn is the websocket side of a registered channel. Payloads are queued
// and written by writePump; a full queue fails the send instead of blocking
// the broadcaster.
type WsConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func newWsConn(ws *websocket.Conn, buffer int) *WsConn {
	return &WsConn{conn: ws, send: make(chan []byte, buffer)}
}

func (c *WsConn) Send(p domain.Payload) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return c.trySend(b)
}

func (c *WsConn) trySend(b []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- b:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) upgrade(c *gin.Context) (*WsConn, bool) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return nil, false
	}
	return newWsConn(ws, ctl.opts.SendBuffer), true
}

func badParam(c *gin.Context, name string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
}

// HandleNotifications serves /ws/notifications/:user_id. Inbound frames are
// heartbeats and get echoed back.
func (ctl *SignalWSController) HandleNotifications(ctx context.Context, c *gin.Context) {
	uid, err := domain.ParseUserID(c.Param("user_id"))
	if err != nil {
		badParam(c, "user_id")
		return
	}
	conn, ok := ctl.upgrade(c)
	if !ok {
		return
	}
	h, err := ctl.Orch.Connect(uid, conn)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("register")
		conn.Close()
		return
	}
	log.Info().Str("module", "signal").Stringer("user", uid).Str("device", c.GetString("client_token")).Stringer("conn", h.ID).Msg("notification socket open")

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, conn,
		func(data []byte) { ctl.handlePing(conn, data) },
		func() {
			ctl.Orch.OnDisconnect(uid, h)
			cancel()
		},
	)
}

// HandleCall serves /ws/call/:call_id/:user_id and relays signaling frames
// to the other participants.
func (ctl *SignalWSController) HandleCall(ctx context.Context, c *gin.Context) {
	call, err := domain.ParseCallID(c.Param("call_id"))
	if err != nil {
		badParam(c, "call_id")
		return
	}
	uid, err := domain.ParseUserID(c.Param("user_id"))
	if err != nil {
		badParam(c, "user_id")
		return
	}
	conn, ok := ctl.upgrade(c)
	if !ok {
		return
	}
	h, err := ctl.Orch.JoinCall(call, uid, conn)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("connect call")
		conn.Close()
		return
	}
	log.Info().Str("module", "signal").Stringer("call", call).Stringer("user", uid).Str("device", c.GetString("client_token")).Stringer("conn", h.ID).Msg("call socket open")

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, conn,
		func(data []byte) { ctl.handleCallSignal(call, uid, conn, data) },
		func() {
			ctl.Orch.LeaveCall(call, h)
			cancel()
		},
	)
}
