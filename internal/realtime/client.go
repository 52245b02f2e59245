// Package realtime subscribes to Supabase Realtime row changes over a
// Phoenix channel websocket and delivers them as types.ChangeEvent values.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/larder/internal/metrics"
	"github.com/mesh-intelligence/larder/pkg/types"
)

const (
	defaultHeartbeat  = 25 * time.Second
	defaultMinBackoff = time.Second
	defaultMaxBackoff = 32 * time.Second
	writeWait         = 10 * time.Second
	maxMessageSize    = 1 << 20
	eventBuffer       = 64
)

// Config describes the realtime endpoint.
type Config struct {
	// URL is the Supabase project URL (https://<ref>.supabase.co).
	URL string
	Key string

	// AccessToken is sent with each join so row-level security applies.
	AccessToken string

	// Heartbeat is the keep-alive interval. Zero means 25s.
	Heartbeat time.Duration

	// MinBackoff and MaxBackoff bound the reconnect delay.
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Client implements types.Feed. Each subscription owns its own connection.
type Client struct {
	endpoint string
	cfg      Config
	dialer   websocket.Dialer
	ref      atomic.Uint64
	log      zerolog.Logger
}

// New builds a client for cfg.
func New(cfg Config, log zerolog.Logger) (*Client, error) {
	endpoint, err := websocketURL(cfg.URL, cfg.Key)
	if err != nil {
		return nil, err
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = defaultHeartbeat
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = defaultMinBackoff
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	return &Client{
		endpoint: endpoint,
		cfg:      cfg,
		dialer:   websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:      log,
	}, nil
}

func websocketURL(project, key string) (string, error) {
	if project == "" || key == "" {
		return "", errors.New("realtime: url and key are required")
	}
	u, err := url.Parse(strings.TrimSuffix(project, "/"))
	if err != nil {
		return "", fmt.Errorf("parsing realtime url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("realtime: unsupported scheme %q", u.Scheme)
	}
	u.Path += "/realtime/v1/websocket"
	u.RawQuery = url.Values{"apikey": {key}, "vsn": {"1.0.0"}}.Encode()
	return u.String(), nil
}

// Subscribe implements types.Feed. The first connection and join happen
// before Subscribe returns; later disconnects are retried with backoff and
// announced with a ChangeResync event.
func (c *Client) Subscribe(ctx context.Context, table string, filter []types.Predicate) (types.Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &subscription{
		client: c,
		table:  table,
		topic:  topicFor(table),
		filter: filter,
		events: make(chan types.ChangeEvent, eventBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
		log:    c.log.With().Str("table", table).Logger(),
	}

	conn, err := s.connect(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	go s.run(ctx, conn)
	return s, nil
}

func (c *Client) nextRef() uint64 { return c.ref.Add(1) }

type subscription struct {
	client *Client
	table  string
	topic  string
	filter []types.Predicate
	events chan types.ChangeEvent
	cancel context.CancelFunc
	done   chan struct{}
	log    zerolog.Logger

	mu   sync.Mutex // guards conn and serializes writes
	conn *websocket.Conn
}

func (s *subscription) Events() <-chan types.ChangeEvent { return s.events }

// Close ends the subscription and waits for its goroutines to exit.
func (s *subscription) Close() error {
	s.cancel()
	<-s.done
	return nil
}

// connect dials and joins the channel.
func (s *subscription) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := s.client.dialer.DialContext(ctx, s.client.endpoint, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("realtime dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("realtime dial failed: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	join := joinPayload{
		Config: joinConfig{PostgresChanges: []changeConfig{{
			Event:  "*",
			Schema: "public",
			Table:  s.table,
			Filter: serverFilter(s.filter),
		}}},
		AccessToken: s.client.cfg.AccessToken,
	}
	if err := s.send(s.topic, eventJoin, join); err != nil {
		s.closeConn()
		return nil, err
	}
	metrics.SetRealtimeConnected(true)
	s.log.Info().Str("filter", join.Config.PostgresChanges[0].Filter).Msg("realtime channel joined")
	return conn, nil
}

func (s *subscription) send(topic, event string, payload any) error {
	msg, err := newMessage(topic, event, payload, s.client.nextRef())
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return errors.New("realtime: not connected")
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := s.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("sending %s: %w", event, err)
	}
	return nil
}

func (s *subscription) closeConn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// run serves conn, then reconnects until ctx is done.
func (s *subscription) run(ctx context.Context, conn *websocket.Conn) {
	defer close(s.done)
	defer close(s.events)

	go func() {
		<-ctx.Done()
		s.closeConn()
	}()

	backoff := s.client.cfg.MinBackoff
	for {
		err := s.serve(ctx, conn)
		s.closeConn()
		metrics.SetRealtimeConnected(false)
		if ctx.Err() != nil {
			s.log.Info().Msg("realtime subscription closed")
			return
		}
		s.log.Warn().Err(err).Dur("retry_in", backoff).Msg("realtime connection lost")

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > s.client.cfg.MaxBackoff {
				backoff = s.client.cfg.MaxBackoff
			}
			conn, err = s.connect(ctx)
			if err == nil {
				break
			}
			if ctx.Err() != nil {
				return
			}
			s.log.Warn().Err(err).Dur("retry_in", backoff).Msg("realtime reconnect failed")
		}
		backoff = s.client.cfg.MinBackoff
		if !s.deliver(ctx, types.ChangeEvent{Table: s.table, Op: types.ChangeResync}) {
			return
		}
	}
}

// serve reads frames from conn until it fails, keeping it alive with
// heartbeats.
func (s *subscription) serve(ctx context.Context, conn *websocket.Conn) error {
	hbCtx, stop := context.WithCancel(ctx)
	defer stop()
	go s.heartbeat(hbCtx)

	readWait := 2 * s.client.cfg.Heartbeat
	for {
		if err := conn.SetReadDeadline(time.Now().Add(readWait)); err != nil {
			return err
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := s.handle(ctx, data); err != nil {
			return err
		}
	}
}

func (s *subscription) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(s.client.cfg.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.send(heartbeatTopic, eventHeartbeat, struct{}{}); err != nil {
				s.log.Debug().Err(err).Msg("heartbeat failed")
				return
			}
		}
	}
}

// handle processes one frame. A returned error drops the connection.
func (s *subscription) handle(ctx context.Context, data []byte) error {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.log.Debug().Err(err).Msg("ignoring malformed realtime frame")
		return nil
	}
	switch msg.Event {
	case eventChanges:
		ev, ok := toEvent(msg.Payload)
		if !ok {
			return nil
		}
		if ev.Table == "" {
			ev.Table = s.table
		}
		if ev.Table != s.table || !matches(s.filter, ev) {
			return nil
		}
		metrics.RecordRealtimeEvent(ev.Table, ev.Op)
		s.log.Debug().Str("op", ev.Op).Msg("realtime change")
		if !s.deliver(ctx, ev) {
			return ctx.Err()
		}
	case eventReply:
		if msg.Topic != s.topic {
			return nil
		}
		var reply replyPayload
		if err := json.Unmarshal(msg.Payload, &reply); err == nil && reply.Status != "ok" {
			return fmt.Errorf("realtime join rejected: %s %s", reply.Status, reply.Response)
		}
	case eventError, eventClose:
		if msg.Topic == s.topic {
			return fmt.Errorf("realtime channel %s: %s", s.topic, msg.Event)
		}
	case eventSystem:
		s.log.Debug().RawJSON("payload", msg.Payload).Msg("realtime system message")
	}
	return nil
}

func (s *subscription) deliver(ctx context.Context, ev types.ChangeEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
