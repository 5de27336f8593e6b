package marketdata

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"signal-enginev1/internal/model"
	"signal-enginev1/internal/ringbuf"
)

const (
	heartbeatInterval = 10 * time.Second
	readDeadline      = 30 * time.Second
	reconnectBaseWait = time.Second
	reconnectMaxWait  = 30 * time.Second
	tickRingCapacity  = 4096
)

// StreamConfig configures the last-price websocket stream.
type StreamConfig struct {
	URL     string
	APIKey  string
	Symbols []string
}

// StreamHooks are optional observability callbacks.
type StreamHooks struct {
	OnConnect    func()
	OnDisconnect func()
	OnReconnect  func()
}

// Stream maintains a websocket subscription for last-trade prices and
// caches the latest price per symbol. The read loop pushes ticks into a
// SPSC ring; a separate updater drains it into the cache so a slow
// consumer never stalls the socket.
type Stream struct {
	cfg     StreamConfig
	session *Session
	hooks   StreamHooks
	ring    *ringbuf.Ring

	mu     sync.RWMutex
	latest map[string]model.PriceTick
}

// NewStream builds a price stream. Run must be called to connect.
func NewStream(cfg StreamConfig, session *Session, hooks StreamHooks) *Stream {
	return &Stream{
		cfg:     cfg,
		session: session,
		hooks:   hooks,
		ring:    ringbuf.New(tickRingCapacity),
		latest:  make(map[string]model.PriceTick),
	}
}

// LastPrice returns the most recent streamed price for a symbol.
func (s *Stream) LastPrice(symbol string) (model.PriceTick, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tick, ok := s.latest[symbol]
	return tick, ok
}

// Overflow reports ticks dropped because the ring was full.
func (s *Stream) Overflow() uint64 { return s.ring.Overflow() }

// Run connects, subscribes and keeps the stream alive until ctx is
// cancelled, reconnecting with exponential backoff on any failure.
func (s *Stream) Run(ctx context.Context) {
	go s.drainLoop(ctx)

	wait := reconnectBaseWait
	for {
		if err := s.connectAndRead(ctx); err != nil {
			log.Printf("[stream] connection lost: %v", err)
		}
		if s.hooks.OnDisconnect != nil {
			s.hooks.OnDisconnect()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		wait *= 2
		if wait > reconnectMaxWait {
			wait = reconnectMaxWait
		}
		if s.hooks.OnReconnect != nil {
			s.hooks.OnReconnect()
		}
	}
}

func (s *Stream) connectAndRead(ctx context.Context) error {
	token, err := s.session.Token(ctx)
	if err != nil {
		return err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	header.Set("x-api-key", s.cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.URL, header)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub, _ := json.Marshal(map[string]any{
		"action":  "subscribe",
		"symbols": s.cfg.Symbols,
	})
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		return err
	}
	log.Printf("[stream] connected, subscribed %d symbols", len(s.cfg.Symbols))
	if s.hooks.OnConnect != nil {
		s.hooks.OnConnect()
	}

	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		conn.SetReadDeadline(time.Now().Add(readDeadline))

		var msg struct {
			Symbol string  `json:"symbol"`
			Price  float64 `json:"price"`
			TS     int64   `json:"ts"` // unix millis
		}
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Symbol == "" {
			continue
		}
		s.ring.Push(model.PriceTick{
			Symbol: msg.Symbol,
			Price:  msg.Price,
			TS:     time.UnixMilli(msg.TS).UTC(),
		})
	}
}

// drainLoop pops ticks from the ring into the latest-price cache.
func (s *Stream) drainLoop(ctx context.Context) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				tick, ok := s.ring.Pop()
				if !ok {
					break
				}
				s.mu.Lock()
				s.latest[tick.Symbol] = tick
				s.mu.Unlock()
			}
		}
	}
}
