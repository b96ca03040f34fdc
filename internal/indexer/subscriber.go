package indexer

import (
	"context"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/skyfeed/skyfeed/internal/models"
	"github.com/skyfeed/skyfeed/pkg/logging"
)

// State is the connection state of a subscriber
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Handler receives raw firehose messages
type Handler interface {
	Handle(ctx context.Context, message []byte)
}

// Subscriber keeps a Jetstream subscription open, reconnecting forever
type Subscriber struct {
	endpoint       string
	reconnectDelay time.Duration
	handler        Handler
	dialer         *websocket.Dialer
	logger         *zap.Logger

	state    atomic.Int32
	received atomic.Int64
}

// NewSubscriber creates a subscriber for a Jetstream endpoint
func NewSubscriber(endpoint string, reconnectDelay time.Duration, handler Handler) *Subscriber {
	return &Subscriber{
		endpoint:       endpoint,
		reconnectDelay: reconnectDelay,
		handler:        handler,
		dialer:         websocket.DefaultDialer,
		logger:         logging.WithComponent("firehose"),
	}
}

// State returns the current connection state
func (s *Subscriber) State() State {
	return State(s.state.Load())
}

// Received returns the number of messages read since start
func (s *Subscriber) Received() int64 {
	return s.received.Load()
}

// Run subscribes until ctx is cancelled
func (s *Subscriber) Run(ctx context.Context) error {
	for {
		err := s.subscribe(ctx)
		s.state.Store(int32(Disconnected))
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("Firehose disconnected, reconnecting",
			zap.Duration("delay", s.reconnectDelay),
			zap.Error(err))

		timer := time.NewTimer(s.reconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *Subscriber) buildURL() (string, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid firehose endpoint: %w", err)
	}
	q := u.Query()
	q.Set("wantedCollections", models.PostCollection)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Subscriber) subscribe(ctx context.Context) error {
	wsURL, err := s.buildURL()
	if err != nil {
		return err
	}

	s.state.Store(int32(Connecting))
	s.logger.Info("Connecting to firehose", zap.String("url", wsURL))

	conn, _, err := s.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial firehose: %w", err)
	}
	defer conn.Close()

	// unblock ReadMessage on shutdown
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	s.state.Store(int32(Connected))
	s.logger.Info("Connected to firehose")

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}
		s.received.Add(1)
		s.handler.Handle(ctx, message)
	}
}
