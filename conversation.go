package aceconnect

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// RoomChannel is the part of Channel the conversation controller uses.
type RoomChannel interface {
	Connect(ctx context.Context) error
	JoinRoom(ctx context.Context, matchID int64) error
	LeaveRoom(matchID int64)
	Send(ctx context.Context, matchID, senderID int64, content string) error
	OnMessage(h func(Message))
	OffMessage()
}

// BacklogFetcher loads the message history of a match room.
type BacklogFetcher interface {
	Messages(ctx context.Context, matchID int64) ([]Message, error)
}

// Identity reports the current user; 0 means no session.
type Identity interface {
	UserID() int64
}

// ConversationState is the lifecycle state of the active conversation.
type ConversationState string

const (
	ConversationIdle    ConversationState = "idle"
	ConversationLoading ConversationState = "loading"
	ConversationLive    ConversationState = "live"
)

// ConversationOptions configures NewConversations.
type ConversationOptions struct {
	// Store retains message sequences per room. A fresh store is used when nil.
	Store  *RoomStore
	Logger *zap.Logger
}

// Conversations tracks the one conversation currently on screen. It merges
// the REST backlog with live channel events so that the backlog always
// precedes live messages and no message id is shown twice.
//
// Only the active conversation holds the channel's message handler.
// Messages that name another room are kept in that room's retained sequence
// and never reach the active one.
type Conversations struct {
	channel  RoomChannel
	backlog  BacklogFetcher
	identity Identity
	store    *RoomStore
	logger   *zap.Logger
	changes  changeEmitter

	mu     sync.Mutex
	active int64
	state  ConversationState
	// selection is bumped on every Select and Deselect. A backlog or handler
	// holding an older value belongs to a superseded selection.
	selection uint64
	pending   []Message
	// version orders the snapshots handed to the change emitter.
	version uint64
}

// NewConversations wires a controller to a channel, a backlog source and the
// session identity.
func NewConversations(ch RoomChannel, backlog BacklogFetcher, identity Identity, opts *ConversationOptions) *Conversations {
	var o ConversationOptions
	if opts != nil {
		o = *opts
	}
	if o.Store == nil {
		o.Store = NewRoomStore()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	c := &Conversations{
		channel:  ch,
		backlog:  backlog,
		identity: identity,
		store:    o.Store,
		logger:   o.Logger,
		state:    ConversationIdle,
	}
	c.changes.logger = o.Logger
	return c
}

// OnChange registers a listener called after every applied change.
// Listeners run one at a time and only ever see the newest list, so they
// must not call Select or Deselect synchronously.
func (c *Conversations) OnChange(h ChangeHandler) {
	c.changes.On(h)
}

// Active returns the selected match id, or 0.
func (c *Conversations) Active() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// State returns the lifecycle state of the active conversation.
func (c *Conversations) State() ConversationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Messages returns the message list of the active conversation. It is empty
// until the backlog has loaded.
func (c *Conversations) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != ConversationLive {
		return []Message{}
	}
	return c.store.Messages(c.active)
}

// Store returns the per-room message store.
func (c *Conversations) Store() *RoomStore {
	return c.store
}

// Search looks for query in every retained room.
func (c *Conversations) Search(query string, limit int) []SearchResult {
	return c.store.Search(query, 0, limit)
}

// Select makes matchID the active conversation: it detaches the previous
// handler, attaches a new one, joins the room and loads the backlog. Live
// messages that arrive while the backlog is loading are applied after it.
//
// If another Select or Deselect happens before the backlog arrives, the
// backlog is discarded and ErrSelectionSuperseded is returned. A fetch
// failure leaves the controller idle.
func (c *Conversations) Select(ctx context.Context, matchID int64) error {
	c.mu.Lock()
	c.channel.OffMessage()
	if c.active != 0 && c.active != matchID {
		c.channel.LeaveRoom(c.active)
	}
	c.selection++
	sel := c.selection
	c.active = matchID
	c.state = ConversationLoading
	c.pending = nil
	c.channel.OnMessage(func(m Message) { c.receive(sel, m) })
	c.mu.Unlock()

	log := c.logger.With(zap.Int64("match_id", matchID))
	if err := c.channel.JoinRoom(ctx, matchID); err != nil {
		log.Warn("join room", zap.Error(err))
	}

	msgs, err := c.backlog.Messages(ctx, matchID)

	c.mu.Lock()
	if sel != c.selection {
		c.mu.Unlock()
		log.Debug("discarding superseded backlog")
		return ErrSelectionSuperseded
	}
	if err != nil {
		c.channel.OffMessage()
		c.channel.LeaveRoom(matchID)
		c.selection++
		c.active = 0
		c.state = ConversationIdle
		c.pending = nil
		c.version++
		version := c.version
		c.mu.Unlock()
		log.Warn("load backlog", zap.Error(err))
		c.changes.emit(version, 0, []Message{})
		return fmt.Errorf("load messages for match %d: %w", matchID, err)
	}

	c.store.Replace(matchID, msgs)
	for _, m := range c.pending {
		c.store.Append(matchID, m)
	}
	buffered := len(c.pending)
	c.pending = nil
	c.state = ConversationLive
	snapshot := c.store.Messages(matchID)
	c.version++
	version := c.version
	c.mu.Unlock()

	log.Debug("conversation live", zap.Int("backlog", len(msgs)), zap.Int("buffered", buffered))
	c.changes.emit(version, matchID, snapshot)
	return nil
}

func (c *Conversations) receive(sel uint64, msg Message) {
	c.mu.Lock()
	if msg.MatchID != 0 && msg.MatchID != c.active {
		// Still a member of a previously viewed room.
		if c.store.Has(msg.MatchID) {
			c.store.Append(msg.MatchID, msg)
		}
		c.mu.Unlock()
		return
	}
	if sel != c.selection || c.active == 0 {
		c.mu.Unlock()
		c.logger.Debug("dropping message for superseded selection", zap.Int64("message_id", msg.ID))
		return
	}
	if msg.MatchID == 0 && msg.SenderID != 0 && msg.SenderID != c.identity.UserID() {
		// The socket stays in rooms viewed earlier. An untagged message from
		// someone who has only written there belongs to that room.
		if other, ok := c.store.senderRoom(msg.SenderID, c.active); ok {
			c.store.Append(other, msg)
			c.mu.Unlock()
			c.logger.Debug("untagged message routed to earlier room", zap.Int64("match_id", other), zap.Int64("message_id", msg.ID))
			return
		}
	}

	switch c.state {
	case ConversationLoading:
		c.pending = append(c.pending, msg)
		c.mu.Unlock()
	case ConversationLive:
		active := c.active
		added := c.store.Append(active, msg)
		var snapshot []Message
		var version uint64
		if added {
			snapshot = c.store.Messages(active)
			c.version++
			version = c.version
		}
		c.mu.Unlock()
		if added {
			c.changes.emit(version, active, snapshot)
		} else {
			c.logger.Debug("duplicate message", zap.Int64("match_id", active), zap.Int64("message_id", msg.ID))
		}
	default:
		c.mu.Unlock()
	}
}

// Send emits content to the active conversation. Nothing is appended
// locally; the message shows up when the server broadcasts it back.
func (c *Conversations) Send(ctx context.Context, content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyMessage
	}
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if active == 0 {
		return ErrNoActiveConversation
	}
	uid := c.identity.UserID()
	if uid == 0 {
		return ErrNotAuthenticated
	}
	return c.channel.Send(ctx, active, uid, content)
}

// Deselect detaches the handler and returns to idle. The server keeps the
// connection in the room; only the rejoin after a reconnect is cancelled.
func (c *Conversations) Deselect() {
	c.mu.Lock()
	c.channel.OffMessage()
	if c.active != 0 {
		c.channel.LeaveRoom(c.active)
	}
	c.selection++
	c.active = 0
	c.state = ConversationIdle
	c.pending = nil
	c.version++
	version := c.version
	c.mu.Unlock()

	c.changes.emit(version, 0, []Message{})
}

// Resume reconnects the channel and reloads the active conversation, for
// when the view regains focus after a drop.
func (c *Conversations) Resume(ctx context.Context) error {
	if err := c.channel.Connect(ctx); err != nil {
		return err
	}
	active := c.Active()
	if active == 0 {
		return nil
	}
	return c.Select(ctx, active)
}

// Close deselects and removes all change listeners.
func (c *Conversations) Close() {
	c.Deselect()
	c.changes.removeAll()
}
