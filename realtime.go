package aceconnect

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// ============================================================================
// Wire Types
// ============================================================================

// Channel event names.
const (
	EventConnected   = "connected"
	EventJoinMatch   = "join_match"
	EventSendMessage = "send_message"
	EventNewMessage  = "new_message"
	EventError       = "error"
)

// Envelope is the wire format for all server-to-client events.
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
}

// Command is a client-to-server event.
type Command struct {
	Type      string `json:"type"`
	Payload   any    `json:"payload"`
	RequestID string `json:"requestId,omitempty"`
}

// SendMessagePayload is the payload of send_message. join_match carries the
// bare match id.
type SendMessagePayload struct {
	MatchID  int64  `json:"matchId"`
	SenderID int64  `json:"senderId"`
	Content  string `json:"content"`
}

// ChannelErrorPayload is sent by the server when it rejects a command.
type ChannelErrorPayload struct {
	Message string `json:"message"`
}

// ============================================================================
// Configuration
// ============================================================================

// ChannelConfig configures a Channel.
type ChannelConfig struct {
	// TokenSource supplies the bearer token for each dial, so a reconnect
	// picks up a refreshed session.
	TokenSource func() string

	DisableReconnect bool
	// MaxReconnectAttempts defaults to 10; negative retries forever.
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	HeartbeatInterval    time.Duration
	PingTimeout          time.Duration
	HandshakeTimeout     time.Duration

	// HTTPClient is used for the upgrade request. It must not set Timeout.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

func (c *ChannelConfig) defaults() {
	if c.TokenSource == nil {
		c.TokenSource = func() string { return "" }
	}
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = 1 * time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 10
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = 10 * time.Second
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// ChannelState represents the connection state.
type ChannelState string

const (
	StateDisconnected ChannelState = "disconnected"
	StateConnecting   ChannelState = "connecting"
	StateConnected    ChannelState = "connected"
	StateReconnecting ChannelState = "reconnecting"
)

// ============================================================================
// Reconnector
// ============================================================================

type reconnector struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	attempt     int
	connectedAt time.Time
}

func newReconnector(config *ChannelConfig) *reconnector {
	return &reconnector{
		baseDelay:   config.ReconnectBaseDelay,
		maxDelay:    config.ReconnectMaxDelay,
		maxAttempts: config.MaxReconnectAttempts,
	}
}

func (r *reconnector) shouldReconnect() bool {
	return r.maxAttempts < 0 || r.attempt < r.maxAttempts
}

func (r *reconnector) markConnected() {
	r.connectedAt = time.Now()
}

func (r *reconnector) nextDelay() time.Duration {
	// A connection that stayed up for a minute starts a fresh backoff.
	if !r.connectedAt.IsZero() && time.Since(r.connectedAt) > 60*time.Second {
		r.attempt = 0
		r.connectedAt = time.Time{}
	}
	jitter := time.Duration(rand.Float64() * float64(r.baseDelay) * 0.5)
	delay := time.Duration(math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(r.attempt))+float64(jitter),
		float64(r.maxDelay),
	))
	r.attempt++
	return delay
}

func (r *reconnector) reset() {
	r.attempt = 0
	r.connectedAt = time.Time{}
}

// ============================================================================
// Channel
// ============================================================================

// Channel owns the single realtime connection of a client. Create one per
// application and share it between consumers.
//
// Connect must be called before JoinRoom: joining while disconnected does
// nothing. Rooms joined on a live connection are re-joined after an
// automatic reconnect unless LeaveRoom was called in between.
type Channel struct {
	endpoint string
	config   *ChannelConfig
	logger   *zap.Logger

	mu               sync.Mutex
	conn             *websocket.Conn
	state            ChannelState
	intentionalClose bool
	cancelFn         context.CancelFunc
	stopReconnect    context.CancelFunc
	dialDone         chan struct{}
	abortDial        context.CancelFunc
	rooms            map[int64]struct{}
	handler          func(Message)
	stateListeners   []func(ChannelState)
	recon            *reconnector

	// gen identifies the current dial. Disconnect and every new dial bump
	// it, so a handshake that finishes late can tell it was abandoned.
	gen uint64
}

// NewChannel creates a channel for the given ws:// or wss:// endpoint.
func NewChannel(endpoint string, config *ChannelConfig) *Channel {
	var cfg ChannelConfig
	if config != nil {
		cfg = *config
	}
	cfg.defaults()
	return &Channel{
		endpoint: endpoint,
		config:   &cfg,
		logger:   cfg.Logger,
		state:    StateDisconnected,
		rooms:    make(map[int64]struct{}),
		recon:    newReconnector(&cfg),
	}
}

// State returns the current connection state.
func (ch *Channel) State() ChannelState {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.state
}

// Rooms returns the rooms that will be re-joined after a reconnect.
func (ch *Channel) Rooms() []int64 {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.roomsLocked()
}

func (ch *Channel) roomsLocked() []int64 {
	out := make([]int64, 0, len(ch.rooms))
	for id := range ch.rooms {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// OnStateChange registers a listener for connection state transitions.
func (ch *Channel) OnStateChange(fn func(ChannelState)) {
	ch.mu.Lock()
	ch.stateListeners = append(ch.stateListeners, fn)
	ch.mu.Unlock()
}

// OnMessage sets the new_message handler, replacing any previous one.
// Handlers run on the read goroutine in arrival order and must not block.
func (ch *Channel) OnMessage(h func(Message)) {
	ch.mu.Lock()
	ch.handler = h
	ch.mu.Unlock()
}

// OffMessage removes the new_message handler.
func (ch *Channel) OffMessage() {
	ch.mu.Lock()
	ch.handler = nil
	ch.mu.Unlock()
}

// setStateLocked must be called with ch.mu held. The returned listeners are
// notified by the caller after unlocking.
func (ch *Channel) setStateLocked(s ChannelState) []func(ChannelState) {
	if ch.state == s {
		return nil
	}
	ch.state = s
	return append([]func(ChannelState){}, ch.stateListeners...)
}

func (ch *Channel) notify(listeners []func(ChannelState), s ChannelState) {
	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					ch.logger.Error("state listener panicked", zap.Any("panic", r))
				}
			}()
			fn(s)
		}()
	}
}

// Connect establishes the connection and waits for the server handshake.
// It is idempotent: with a live connection it returns nil, and while another
// caller is connecting it waits for that attempt.
func (ch *Channel) Connect(ctx context.Context) error {
	ch.mu.Lock()
	if ch.stopReconnect != nil && ch.state == StateReconnecting {
		ch.stopReconnect()
		ch.stopReconnect = nil
	}
	ch.intentionalClose = false
	ch.recon.reset()
	ch.mu.Unlock()

	return ch.dial(ctx)
}

func (ch *Channel) dial(ctx context.Context) error {
	ch.mu.Lock()
	switch ch.state {
	case StateConnected:
		ch.mu.Unlock()
		return nil
	case StateConnecting:
		done := ch.dialDone
		ch.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		if ch.State() == StateConnected {
			return nil
		}
		return ErrNotConnected
	}
	ch.gen++
	gen := ch.gen
	dctx, abort := context.WithCancel(ctx)
	defer abort()
	ch.abortDial = abort
	done := make(chan struct{})
	ch.dialDone = done
	listeners := ch.setStateLocked(StateConnecting)
	ch.mu.Unlock()
	defer close(done)
	ch.notify(listeners, StateConnecting)

	conn, err := ch.handshake(dctx)

	ch.mu.Lock()
	if gen != ch.gen {
		// Disconnect ran during the handshake; a newer dial may own the state.
		ch.mu.Unlock()
		if conn != nil {
			conn.Close(websocket.StatusNormalClosure, "client disconnect")
		}
		return fmt.Errorf("%w: disconnected while connecting", ErrChannel)
	}
	ch.abortDial = nil
	if err != nil {
		listeners = ch.setStateLocked(StateDisconnected)
		ch.mu.Unlock()
		ch.notify(listeners, StateDisconnected)
		return err
	}
	prevConn, prevCancel := ch.conn, ch.cancelFn
	loopCtx, cancel := context.WithCancel(context.Background())
	ch.conn = conn
	ch.cancelFn = cancel
	ch.recon.markConnected()
	rooms := ch.roomsLocked()
	listeners = ch.setStateLocked(StateConnected)
	ch.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
	}
	if prevConn != nil {
		prevConn.Close(websocket.StatusNormalClosure, "replaced")
	}

	ch.logger.Info("channel connected", zap.Int("rooms", len(rooms)))
	ch.notify(listeners, StateConnected)

	go ch.readLoop(loopCtx, conn)
	go ch.heartbeatLoop(loopCtx, conn)

	for _, id := range rooms {
		if err := ch.write(ctx, conn, EventJoinMatch, id); err != nil {
			ch.logger.Warn("rejoin room", zap.Int64("match_id", id), zap.Error(err))
		}
	}
	return nil
}

func (ch *Channel) handshake(ctx context.Context) (*websocket.Conn, error) {
	u := ch.endpoint
	if token := ch.config.TokenSource(); token != "" {
		u += "?token=" + url.QueryEscape(token)
	}

	hctx, cancel := context.WithTimeout(ctx, ch.config.HandshakeTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(hctx, u, &websocket.DialOptions{HTTPClient: ch.config.HTTPClient})
	if err != nil {
		return nil, fmt.Errorf("%w: websocket dial: %w", ErrChannel, err)
	}

	// First frame must be the handshake.
	var env Envelope
	if err := wsjson.Read(hctx, conn, &env); err != nil {
		conn.Close(websocket.StatusNormalClosure, "")
		return nil, fmt.Errorf("%w: read handshake: %w", ErrChannel, err)
	}
	if env.Type != EventConnected {
		conn.Close(websocket.StatusPolicyViolation, "unexpected handshake")
		return nil, fmt.Errorf("%w: expected %q, got %q", ErrChannel, EventConnected, env.Type)
	}
	return conn, nil
}

// Disconnect closes the connection, stops any pending reconnect and forgets
// joined rooms. It is a no-op when already disconnected.
func (ch *Channel) Disconnect() {
	ch.mu.Lock()
	ch.intentionalClose = true
	ch.gen++
	if ch.abortDial != nil {
		ch.abortDial()
		ch.abortDial = nil
	}
	if ch.stopReconnect != nil {
		ch.stopReconnect()
		ch.stopReconnect = nil
	}
	cancel := ch.cancelFn
	ch.cancelFn = nil
	conn := ch.conn
	ch.conn = nil
	ch.rooms = make(map[int64]struct{})
	listeners := ch.setStateLocked(StateDisconnected)
	ch.mu.Unlock()

	if conn != nil {
		if err := conn.Close(websocket.StatusNormalClosure, "client disconnect"); err != nil {
			ch.logger.Debug("close connection", zap.Error(err))
		}
	}
	if cancel != nil {
		cancel()
	}
	ch.notify(listeners, StateDisconnected)
}

// JoinRoom subscribes the connection to a match room. While disconnected it
// does nothing; while a reconnect is pending the room is joined once the
// connection is back.
func (ch *Channel) JoinRoom(ctx context.Context, matchID int64) error {
	ch.mu.Lock()
	conn := ch.conn
	switch {
	case conn != nil:
		ch.rooms[matchID] = struct{}{}
	case ch.state == StateReconnecting || ch.state == StateConnecting:
		ch.rooms[matchID] = struct{}{}
		ch.mu.Unlock()
		ch.logger.Debug("join deferred until reconnect", zap.Int64("match_id", matchID))
		return nil
	default:
		ch.mu.Unlock()
		ch.logger.Debug("join ignored, not connected", zap.Int64("match_id", matchID))
		return nil
	}
	ch.mu.Unlock()

	return ch.write(ctx, conn, EventJoinMatch, matchID)
}

// LeaveRoom drops a room from the rejoin set. The server has no leave event,
// so membership of the live connection is unchanged.
func (ch *Channel) LeaveRoom(matchID int64) {
	ch.mu.Lock()
	delete(ch.rooms, matchID)
	ch.mu.Unlock()
}

// Send emits send_message without waiting for acknowledgement. The message
// comes back through the new_message broadcast, including to the sender.
func (ch *Channel) Send(ctx context.Context, matchID, senderID int64, content string) error {
	ch.mu.Lock()
	conn := ch.conn
	ch.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return ch.write(ctx, conn, EventSendMessage, SendMessagePayload{
		MatchID:  matchID,
		SenderID: senderID,
		Content:  content,
	})
}

func (ch *Channel) write(ctx context.Context, conn *websocket.Conn, event string, payload any) error {
	cmd := Command{Type: event, Payload: payload, RequestID: uuid.NewString()}
	if err := wsjson.Write(ctx, conn, cmd); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrChannel, event, err)
	}
	return nil
}

func (ch *Channel) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			ch.handleDrop(conn, err)
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			ch.logger.Debug("skip malformed frame", zap.Error(err))
			continue
		}

		switch env.Type {
		case EventNewMessage:
			var msg Message
			if err := json.Unmarshal(env.Payload, &msg); err != nil {
				ch.logger.Debug("skip malformed message", zap.Error(err))
				continue
			}
			ch.mu.Lock()
			h := ch.handler
			ch.mu.Unlock()
			if h != nil {
				ch.deliver(h, msg)
			}
		case EventError:
			var p ChannelErrorPayload
			_ = json.Unmarshal(env.Payload, &p)
			ch.logger.Warn("server rejected command", zap.String("request_id", env.RequestID), zap.String("message", p.Message))
		}
	}
}

func (ch *Channel) deliver(h func(Message), msg Message) {
	defer func() {
		if r := recover(); r != nil {
			ch.logger.Error("message handler panicked", zap.Any("panic", r))
		}
	}()
	h(msg)
}

func (ch *Channel) handleDrop(conn *websocket.Conn, cause error) {
	ch.mu.Lock()
	if ch.intentionalClose || ch.conn != conn {
		ch.mu.Unlock()
		return
	}
	ch.conn = nil
	if ch.cancelFn != nil {
		ch.cancelFn()
		ch.cancelFn = nil
	}
	reconnect := !ch.config.DisableReconnect && ch.recon.shouldReconnect()
	listeners := ch.setStateLocked(StateDisconnected)
	ch.mu.Unlock()

	ch.logger.Warn("channel dropped", zap.Error(cause), zap.Bool("reconnect", reconnect))
	ch.notify(listeners, StateDisconnected)
	if reconnect {
		ch.startReconnect()
	}
}

func (ch *Channel) heartbeatLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(ch.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, ch.config.PingTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				// Closing makes the read loop fail and schedule a reconnect.
				ch.logger.Warn("heartbeat failed", zap.Error(err))
				conn.Close(websocket.StatusGoingAway, "heartbeat timeout")
				return
			}
		}
	}
}

func (ch *Channel) startReconnect() {
	ctx, cancel := context.WithCancel(context.Background())
	ch.mu.Lock()
	if ch.intentionalClose {
		ch.mu.Unlock()
		cancel()
		return
	}
	if ch.stopReconnect != nil {
		ch.stopReconnect()
	}
	ch.stopReconnect = cancel
	ch.mu.Unlock()

	go ch.reconnectLoop(ctx)
}

func (ch *Channel) reconnectLoop(ctx context.Context) {
	for {
		ch.mu.Lock()
		if ctx.Err() != nil || ch.intentionalClose {
			ch.mu.Unlock()
			return
		}
		if !ch.recon.shouldReconnect() {
			attempts := ch.recon.attempt
			listeners := ch.setStateLocked(StateDisconnected)
			ch.mu.Unlock()
			ch.logger.Warn("giving up reconnect", zap.Int("attempts", attempts))
			ch.notify(listeners, StateDisconnected)
			return
		}
		delay := ch.recon.nextDelay()
		attempt := ch.recon.attempt
		listeners := ch.setStateLocked(StateReconnecting)
		ch.mu.Unlock()

		ch.notify(listeners, StateReconnecting)
		ch.logger.Info("reconnecting", zap.Int("attempt", attempt), zap.Duration("delay", delay))

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}

		err := ch.dial(ctx)
		if err == nil {
			ch.mu.Lock()
			ch.stopReconnect = nil
			ch.mu.Unlock()
			return
		}
		if ctx.Err() != nil {
			return
		}
		ch.logger.Warn("reconnect attempt failed", zap.Int("attempt", attempt), zap.Error(err))
	}
}
