package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/oklog/ulid/v2"
)

// Identify resolves the authenticated identity key and session id of a request.
// ok is false for unauthenticated requests.
type Identify func(r *http.Request) (identityKey, sid string, ok bool)

// Gateway upgrades /ws/session requests and runs one socket per request.
type Gateway struct {
	hub      *Hub
	identify Identify
	cfg      Config
	patterns []string
	log      *slog.Logger
}

// NewGateway returns a Gateway serving hub.
func NewGateway(hub *Hub, identify Identify, cfg Config, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.normalized()
	return &Gateway{
		hub:      hub,
		identify: identify,
		cfg:      cfg,
		patterns: originPatterns(cfg.AllowedOrigins),
		log:      log,
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key, sid, ok := g.identify(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if err := checkOrigin(r, g.cfg.AllowedOrigins, g.cfg.OriginRequired); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{Subprotocol},
		OriginPatterns: g.patterns,
	})
	if err != nil {
		g.log.Info("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	if sp := conn.Subprotocol(); sp != Subprotocol {
		g.log.Info("ws.reject.subprotocol", "got", sp)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	now := time.Now()
	client := NewClient(ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(), key, sid, g.cfg.SendQueue)
	g.run(r.Context(), conn, client)
}

func (g *Gateway) run(parent context.Context, conn *websocket.Conn, client *Client) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var once sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		once.Do(func() {
			g.hub.Unregister(client)
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	g.hub.Register(client)
	g.log.Info("ws.open", "client_id", client.ID)
	client.offer(NewEvent(TypeHello, time.Now()))

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case ev := <-client.send:
				if err := g.write(ctx, conn, ev); err != nil {
					g.log.Info("ws.write.fail", "client_id", client.ID, "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
				if ev.Final() {
					shutdown(websocket.StatusPolicyViolation, "session revoked")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		t := time.NewTicker(g.cfg.HeartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				pctx, pcancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
				err := conn.Ping(pctx)
				pcancel()
				if err == nil {
					failures = 0
					continue
				}
				failures++
				if failures >= maxPingFailures {
					shutdown(websocket.StatusGoingAway, "heartbeat failed")
					return
				}
			}
		}
	}()

	lim := newLimiter(g.cfg.RateEvents, g.cfg.RateWindow)
	for {
		rctx, rcancel := context.WithTimeout(ctx, g.cfg.ReadIdle)
		_, data, err := conn.Read(rctx)
		rcancel()
		if err != nil {
			if !expectedReadErr(err) {
				g.log.Info("ws.read.fail", "client_id", client.ID, "err", err)
			}
			shutdown(websocket.StatusNormalClosure, "bye")
			break
		}
		if !lim.allow(time.Now()) {
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break
		}

		var in Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			g.reject(client, "bad_json")
			continue
		}
		switch in.Type {
		case "ping":
			client.offer(NewEvent(TypePong, time.Now()))
		default:
			g.reject(client, "unsupported")
		}
	}

	<-writerDone
	select {
	case <-heartbeatDone:
	case <-time.After(closeGrace):
	}
	g.log.Info("ws.close", "client_id", client.ID)
}

func (g *Gateway) reject(c *Client, code string) {
	ev := NewEvent(TypeError, time.Now())
	ev.Code = code
	c.offer(ev)
}

func (g *Gateway) write(parent context.Context, conn *websocket.Conn, ev Event) error {
	ctx, cancel := context.WithTimeout(parent, g.cfg.WriteTimeout)
	defer cancel()
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

func expectedReadErr(err error) bool {
	return websocket.CloseStatus(err) != -1 ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.EOF)
}
