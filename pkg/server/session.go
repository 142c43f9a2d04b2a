package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/l7mp/dflow/pkg/api/graph/v1alpha1"
	"github.com/l7mp/dflow/pkg/auth"
	"github.com/l7mp/dflow/pkg/dataflow"
	"github.com/l7mp/dflow/pkg/delta"
	"github.com/l7mp/dflow/pkg/util"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	detachTimeout  = 5 * time.Second
)

// session is a WebSocket client connected to a path. Inbound messages are envelopes addressed to
// a root, outbound messages are envelopes of the view or error frames.
type session struct {
	id     string
	server *Server
	conn   *websocket.Conn
	path   v1alpha1.PathSpec
	perm   v1alpha1.Permission
	sink   *dataflow.ChannelSink
	// nil if unlimited
	limiter *rate.Limiter

	replies chan ErrorFrame
	ctx     context.Context
	cancel  context.CancelFunc
	once    sync.Once
	log     logr.Logger
}

func newSession(s *Server, id string, conn *websocket.Conn, path v1alpha1.PathSpec, perm v1alpha1.Permission) *session {
	ctx, cancel := context.WithCancel(context.Background())
	var limiter *rate.Limiter
	if s.config.MessageRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.config.MessageRate), s.config.MessageBurst)
	}
	return &session{
		id:      id,
		server:  s,
		conn:    conn,
		path:    path,
		perm:    perm,
		limiter: limiter,
		replies: make(chan ErrorFrame, 16),
		ctx:     ctx,
		cancel:  cancel,
		log:     s.log.WithName("session").WithValues("id", id, "path", path.Path),
	}
}

// run serves the session until the client goes away or the session is shut down.
func (s *session) run() {
	s.server.addSession(s)
	defer s.close()

	s.log.V(1).Info("session started", "view", s.path.View, "permission", s.perm)

	if s.perm.CanRead() {
		s.sink = dataflow.NewChannelSink(s.server.config.SinkBuffer)
		if err := s.server.executor.Attach(s.ctx, s.path.View, s.sink); err != nil {
			s.log.Error(err, "failed to attach session to view")
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteJSON(ErrorFrame{Error: err.Error()})
			s.sink.Stop()
			s.sink = nil
			return
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writeLoop()
	}()

	s.readLoop()
	s.shutdown()
	<-done
}

func (s *session) readLoop() {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.V(1).Info("unexpected close", "error", err.Error())
			}
			return
		}

		if err := s.handleMessage(msg); err != nil {
			s.log.V(2).Info("request failed", "error", err.Error())
			s.reply(ErrorFrame{Error: err.Error()})
		}
	}
}

func (s *session) handleMessage(msg []byte) error {
	sessionMessages.WithLabelValues("in", "envelope").Inc()

	if !s.perm.CanWrite() {
		return fmt.Errorf("%w: path %q is not writable", auth.ErrPermissionDenied, s.path.Path)
	}

	if s.limiter != nil && !s.limiter.Allow() {
		return ErrRateLimited
	}

	var env delta.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return fmt.Errorf("malformed envelope: %w", err)
	}
	s.log.V(4).Info("envelope received", "envelope", util.Stringify(env))

	if !s.server.allRoots[env.RootID] {
		return dataflow.NewUnknownRootError(env.RootID)
	}
	if !s.server.roots[s.path.Path][env.RootID] {
		return fmt.Errorf("%w: root %q does not feed view %q", auth.ErrPermissionDenied,
			env.RootID, s.path.View)
	}

	return s.server.executor.Submit(s.ctx, env.RootID, env.Changes...)
}

func (s *session) reply(frame ErrorFrame) {
	select {
	case s.replies <- frame:
	case <-s.ctx.Done():
	}
}

// writeLoop is the only writer of the connection once the session runs.
func (s *session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	var results <-chan delta.Envelope
	if s.sink != nil {
		results = s.sink.ResultChan()
	}

	for {
		select {
		case <-s.ctx.Done():
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return

		case env, ok := <-results:
			if !ok {
				// the sink was stopped: the client could not keep up with the view
				s.log.Info("session fell behind, closing")
				_ = s.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "sink overflow"),
					time.Now().Add(writeWait))
				s.shutdown()
				return
			}
			if err := s.write(env); err != nil {
				s.log.V(1).Info("write failed", "error", err.Error())
				s.shutdown()
				return
			}
			sessionMessages.WithLabelValues("out", "envelope").Inc()

		case frame := <-s.replies:
			if err := s.write(frame); err != nil {
				s.log.V(1).Info("write failed", "error", err.Error())
				s.shutdown()
				return
			}
			sessionMessages.WithLabelValues("out", "error").Inc()

		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.shutdown()
				return
			}
		}
	}
}

func (s *session) write(v any) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteJSON(v)
}

// shutdown cancels the session. The read loop exits as the connection is closed.
func (s *session) shutdown() {
	s.once.Do(func() {
		s.cancel()
		go func() {
			// give the writer a chance to send the close frame
			time.Sleep(100 * time.Millisecond)
			_ = s.conn.Close()
		}()
	})
}

func (s *session) close() {
	s.cancel()

	if s.sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), detachTimeout)
		defer cancel()
		if err := s.server.executor.Detach(ctx, s.path.View, s.sink); err != nil {
			s.log.V(1).Info("failed to detach session", "error", err.Error())
		}
		s.sink.Stop()
	}

	_ = s.conn.Close()
	s.server.removeSession(s)
	s.log.V(1).Info("session closed")
}
