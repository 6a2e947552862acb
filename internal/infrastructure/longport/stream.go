package longport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"longtrade/internal/domain/entity/market"
	"longtrade/internal/domain/interfaces"
)

const (
	dialTimeout   = 10 * time.Second
	redialBackoff = 2 * time.Second
	pingInterval  = 30 * time.Second
	writeTimeout  = 5 * time.Second
)

type refKey struct {
	symbol string
	kind   interfaces.SubKind
}

// controlFrame is the subscribe/unsubscribe message sent to the gateway.
type controlFrame struct {
	Op      string   `json:"op"`
	Kind    string   `json:"kind"`
	Symbols []string `json:"symbols"`
}

// pushEnvelope wraps every message the gateway pushes.
type pushEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Stream is the websocket push leg of the gateway connection. Subscriptions
// are reference counted per (symbol, kind): several consumers can watch the
// same symbol and the upstream subscription stays open until the last one
// leaves. Run keeps the connection alive across drops and replays the current
// subscription set after every redial.
type Stream struct {
	url    string
	token  string
	logger *logrus.Logger

	mu            sync.Mutex
	conn          *websocket.Conn
	refs          map[refKey]int
	tickHandlers  []interfaces.TickHandler
	depthHandlers []interfaces.DepthHandler
}

func NewStream(url, token string, logger *logrus.Logger) *Stream {
	return &Stream{
		url:    url,
		token:  token,
		logger: logger,
		refs:   make(map[refKey]int),
	}
}

// OnTick registers a push tick handler. Register before calling Run.
func (s *Stream) OnTick(h interfaces.TickHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickHandlers = append(s.tickHandlers, h)
}

// OnDepth registers a push depth handler. Register before calling Run.
func (s *Stream) OnDepth(h interfaces.DepthHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.depthHandlers = append(s.depthHandlers, h)
}

func (s *Stream) Subscribe(ctx context.Context, symbols []string, kinds []interfaces.SubKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	opened := make(map[interfaces.SubKind][]string)
	for _, kind := range kinds {
		for _, symbol := range symbols {
			key := refKey{symbol: symbol, kind: kind}
			s.refs[key]++
			if s.refs[key] == 1 {
				opened[kind] = append(opened[kind], symbol)
			}
		}
	}
	return s.sendControlLocked("subscribe", opened)
}

func (s *Stream) Unsubscribe(ctx context.Context, symbols []string, kinds []interfaces.SubKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	closed := make(map[interfaces.SubKind][]string)
	for _, kind := range kinds {
		for _, symbol := range symbols {
			key := refKey{symbol: symbol, kind: kind}
			if s.refs[key] == 0 {
				continue
			}
			s.refs[key]--
			if s.refs[key] == 0 {
				delete(s.refs, key)
				closed[kind] = append(closed[kind], symbol)
			}
		}
	}
	return s.sendControlLocked("unsubscribe", closed)
}

// sendControlLocked sends one control frame per kind. A nil connection is not
// an error: the ref table is the source of truth and Run replays it on the
// next (re)connect.
func (s *Stream) sendControlLocked(op string, byKind map[interfaces.SubKind][]string) error {
	if s.conn == nil {
		return nil
	}
	for kind, symbols := range byKind {
		if len(symbols) == 0 {
			continue
		}
		frame := controlFrame{Op: op, Kind: string(kind), Symbols: symbols}
		s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := s.conn.WriteJSON(frame); err != nil {
			return fmt.Errorf("send %s frame: %w", op, err)
		}
	}
	return nil
}

// Run dials the gateway and serves the read loop until ctx is canceled,
// redialing with a fixed backoff after any connection failure.
func (s *Stream) Run(ctx context.Context) error {
	for {
		if err := s.serveOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.WithError(err).Warn("push stream disconnected, redialing")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(redialBackoff):
		}
	}
}

func (s *Stream) serveOnce(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	header := http.Header{"Authorization": {"Bearer " + s.token}}
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, s.url, header)
	if err != nil {
		return fmt.Errorf("dial push stream: %w", err)
	}
	defer conn.Close()

	s.mu.Lock()
	s.conn = conn
	replay := make(map[interfaces.SubKind][]string)
	for key := range s.refs {
		replay[key.kind] = append(replay[key.kind], key.symbol)
	}
	err = s.sendControlLocked("subscribe", replay)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("replay subscriptions: %w", err)
	}
	s.logger.WithField("url", s.url).Info("push stream connected")

	// Close the connection when ctx dies so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				s.mu.Lock()
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				pingErr := conn.WriteMessage(websocket.PingMessage, nil)
				s.mu.Unlock()
				if pingErr != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	readErr := s.readLoop(conn)

	s.mu.Lock()
	s.conn = nil
	s.mu.Unlock()
	return readErr
}

func (s *Stream) readLoop(conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read push message: %w", err)
		}
		var env pushEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			s.logger.WithError(err).Warn("drop undecodable push message")
			continue
		}
		s.dispatch(env)
	}
}

func (s *Stream) dispatch(env pushEnvelope) {
	switch env.Type {
	case "quote":
		var tick market.Tick
		if err := json.Unmarshal(env.Data, &tick); err != nil {
			s.logger.WithError(err).Warn("drop malformed tick push")
			return
		}
		s.mu.Lock()
		handlers := s.tickHandlers
		s.mu.Unlock()
		for _, h := range handlers {
			h(tick)
		}
	case "depth":
		var depth market.Depth
		if err := json.Unmarshal(env.Data, &depth); err != nil {
			s.logger.WithError(err).Warn("drop malformed depth push")
			return
		}
		s.mu.Lock()
		handlers := s.depthHandlers
		s.mu.Unlock()
		for _, h := range handlers {
			h(depth)
		}
	default:
		// Heartbeats and acks are ignored.
	}
}
