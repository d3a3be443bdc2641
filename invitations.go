package aceconnect

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// ============================================================================
// RequestBoard
// ============================================================================

// RequestAPI is the part of MatchmakingClient the request board uses.
type RequestAPI interface {
	Requests(ctx context.Context) ([]MatchRequest, error)
	SendInvitation(ctx context.Context, requestID int64, message string) error
}

// RequestBoard mirrors the open match requests and overlays which of them
// the current user has already invited. Once a request is marked sent it
// stays sent until the next Refresh reseeds the overlay from the server.
type RequestBoard struct {
	api      RequestAPI
	identity Identity
	logger   *zap.Logger

	mu       sync.Mutex
	requests []MatchRequest
	owners   map[int64]int64
	sent     map[int64]bool
	inFlight map[int64]bool
}

// NewRequestBoard creates an empty board. Call Refresh to load requests.
func NewRequestBoard(api RequestAPI, identity Identity, logger *zap.Logger) *RequestBoard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestBoard{
		api:      api,
		identity: identity,
		logger:   logger,
		owners:   make(map[int64]int64),
		sent:     make(map[int64]bool),
		inFlight: make(map[int64]bool),
	}
}

// Refresh reloads the open requests and reseeds the sent overlay from each
// request's invitation_sent flag.
func (b *RequestBoard) Refresh(ctx context.Context) ([]MatchRequest, error) {
	reqs, err := b.api.Requests(ctx)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.requests = reqs
	b.owners = make(map[int64]int64, len(reqs))
	b.sent = make(map[int64]bool, len(reqs))
	for _, r := range reqs {
		b.owners[r.ID] = r.UserID
		if r.InvitationSent {
			b.sent[r.ID] = true
		}
	}
	out := b.viewLocked()
	b.mu.Unlock()

	b.logger.Debug("requests refreshed", zap.Int("count", len(reqs)))
	return out, nil
}

// Requests returns the last loaded requests with InvitationSent reflecting
// the local overlay.
func (b *RequestBoard) Requests() []MatchRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.viewLocked()
}

func (b *RequestBoard) viewLocked() []MatchRequest {
	out := make([]MatchRequest, len(b.requests))
	for i, r := range b.requests {
		r.InvitationSent = b.sent[r.ID]
		out[i] = r
	}
	return out
}

// IsSent reports whether the current user has invited requestID.
func (b *RequestBoard) IsSent(requestID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sent[requestID]
}

// IsPending reports whether an invitation for requestID is being submitted.
func (b *RequestBoard) IsPending(requestID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inFlight[requestID]
}

// IsOwn reports whether the current user owns requestID.
func (b *RequestBoard) IsOwn(requestID int64) bool {
	uid := b.identity.UserID()
	b.mu.Lock()
	defer b.mu.Unlock()
	owner, ok := b.owners[requestID]
	return ok && uid != 0 && owner == uid
}

// CanInvite reports whether an invitation could be submitted for requestID
// right now.
func (b *RequestBoard) CanInvite(requestID int64) bool {
	if b.identity.UserID() == 0 || b.IsOwn(requestID) {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.sent[requestID] && !b.inFlight[requestID]
}

// SendInvitation invites the owner of requestID. Requests owned by the
// current user fail with ErrSelfInvite. A request already sent, or with a
// submission in flight, returns nil without calling the server. A conflict
// reporting the invitation as already sent counts as success; any other
// failure leaves the request unmarked and is returned.
func (b *RequestBoard) SendInvitation(ctx context.Context, requestID int64, message string) error {
	uid := b.identity.UserID()
	if uid == 0 {
		return ErrNotAuthenticated
	}
	log := b.logger.With(zap.Int64("request_id", requestID))

	b.mu.Lock()
	if owner, ok := b.owners[requestID]; ok && owner == uid {
		b.mu.Unlock()
		return ErrSelfInvite
	}
	if b.sent[requestID] || b.inFlight[requestID] {
		b.mu.Unlock()
		log.Debug("invitation already submitted")
		return nil
	}
	b.inFlight[requestID] = true
	b.mu.Unlock()

	err := b.api.SendInvitation(ctx, requestID, message)

	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.inFlight, requestID)
	switch {
	case err == nil:
		b.sent[requestID] = true
		log.Info("invitation sent")
		return nil
	case IsAlreadySent(err):
		b.sent[requestID] = true
		log.Info("invitation already sent on server")
		return nil
	default:
		log.Warn("send invitation", zap.Error(err))
		return err
	}
}

// ============================================================================
// Inbox
// ============================================================================

// InboxAPI is the part of MatchmakingClient the inbox uses.
type InboxAPI interface {
	Invitations(ctx context.Context) ([]Invitation, error)
	AcceptInvitation(ctx context.Context, id int64) error
	DeclineInvitation(ctx context.Context, id int64) error
}

// Inbox holds the invitations received by the current user.
type Inbox struct {
	api    InboxAPI
	logger *zap.Logger

	mu    sync.Mutex
	items []Invitation
}

// NewInbox creates an empty inbox.
func NewInbox(api InboxAPI, logger *zap.Logger) *Inbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inbox{api: api, logger: logger}
}

// Refresh reloads the received invitations.
func (in *Inbox) Refresh(ctx context.Context) ([]Invitation, error) {
	items, err := in.api.Invitations(ctx)
	if err != nil {
		return nil, err
	}
	in.mu.Lock()
	in.items = items
	in.mu.Unlock()
	return in.Items(), nil
}

// Items returns a copy of the last loaded invitations.
func (in *Inbox) Items() []Invitation {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]Invitation{}, in.items...)
}

// Accept accepts an invitation and reloads the inbox, since accepting
// creates a match server-side. A failed reload is logged, not returned.
func (in *Inbox) Accept(ctx context.Context, id int64) error {
	if err := in.api.AcceptInvitation(ctx, id); err != nil {
		return err
	}
	if _, err := in.Refresh(ctx); err != nil {
		in.logger.Warn("refresh inbox after accept", zap.Int64("invitation_id", id), zap.Error(err))
	}
	return nil
}

// Decline declines an invitation and removes it locally.
func (in *Inbox) Decline(ctx context.Context, id int64) error {
	if err := in.api.DeclineInvitation(ctx, id); err != nil {
		return err
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	kept := in.items[:0]
	for _, inv := range in.items {
		if inv.ID != id {
			kept = append(kept, inv)
		}
	}
	in.items = kept
	return nil
}
