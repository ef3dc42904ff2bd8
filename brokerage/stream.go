package brokerage

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/abhip2006/copytrade-sub001/models"
)

// ActivityHandler is called for every trade event pushed on the stream.
type ActivityHandler func(event models.TradeEvent)

// ActivityStream subscribes to the aggregator's activity feed over
// WebSocket. It is a latency optimization on top of snapshot polling: events
// enter the same pending-trade pipeline as webhooks, so a dropped connection
// only delays detection until the next poll.
type ActivityStream struct {
	url     string
	onEvent ActivityHandler

	// mu guards conn and running; Start/Stop may be called from any
	// goroutine.
	mu      sync.Mutex
	conn    *websocket.Conn
	running bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewActivityStream creates a stream client. url is the aggregator's
// websocket endpoint; onEvent receives each decoded trade event.
func NewActivityStream(url string, onEvent ActivityHandler) *ActivityStream {
	return &ActivityStream{
		url:     url,
		onEvent: onEvent,
		stopCh:  make(chan struct{}),
	}
}

// Start connects and begins reading events. Reconnects with backoff until
// Stop is called or the context is cancelled.
func (s *ActivityStream) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		backoff := time.Second
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			default:
			}

			if err := s.readLoop(ctx); err != nil {
				log.Printf("[stream] connection lost: %v (reconnecting in %v)", err, backoff)
			}

			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
		}
	}()

	log.Printf("[stream] activity stream started (%s)", s.url)
	return nil
}

// Stop closes the connection and waits for the read loop to exit.
func (s *ActivityStream) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	if s.conn != nil {
		s.conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	log.Printf("[stream] stopped")
}

func (s *ActivityStream) readLoop(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	defer conn.Close()

	log.Printf("[stream] connected")

	for {
		select {
		case <-s.stopCh:
			return nil
		case <-ctx.Done():
			return nil
		default:
		}

		conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var event models.TradeEvent
		if err := json.Unmarshal(data, &event); err != nil {
			log.Printf("[stream] skipping malformed event: %v", err)
			continue
		}
		if event.EventType != models.EventTypeTradesPlaced || len(event.Trades) == 0 {
			continue
		}
		s.onEvent(event)
	}
}
