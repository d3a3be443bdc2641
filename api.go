package aceconnect

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultInvitationMessage is sent when the caller leaves the invitation
// message empty.
const DefaultInvitationMessage = "Hey! I'd like to play."

func withoutBearer() requestOption {
	return func(r *http.Request) { r.Header.Del("Authorization") }
}

func idPath(prefix string, id int64, suffix string) string {
	return prefix + "/" + strconv.FormatInt(id, 10) + suffix
}

// ============================================================================
// Auth
// ============================================================================

// AuthClient handles login, registration and session restore.
type AuthClient struct{ c *Client }

// Login exchanges credentials for a token and establishes the session.
// An unverified account fails with an *APIError whose RequiresVerification
// is set.
func (a *AuthClient) Login(ctx context.Context, email, password string) (*Session, error) {
	res, err := call[AuthResult](ctx, a.c, http.MethodPost, "/auth/login",
		map[string]string{"email": email, "password": password}, withoutBearer())
	if err != nil {
		return nil, err
	}
	if res.Token == "" {
		return nil, fmt.Errorf("%w: login response carried no token", ErrAuth)
	}
	sess, err := a.c.session.establish(res.Token, res.User)
	if err != nil {
		a.c.logger.Warn("persist token", zap.Error(err))
	}

	// The login payload is the bare user row; /auth/me returns it merged
	// with the profile.
	if me, err := a.Me(ctx); err == nil {
		a.c.session.updateUser(*me)
		return a.c.session.Current(), nil
	}
	return sess, nil
}

// Register creates an account. A session is only established when the
// backend reports the account as already verified; otherwise the caller
// continues with VerifyOTP and Login.
func (a *AuthClient) Register(ctx context.Context, in *RegisterInput) (*AuthResult, error) {
	if in.Role == "" {
		in.Role = RolePlayer
	}
	res, err := call[AuthResult](ctx, a.c, http.MethodPost, "/auth/register", in, withoutBearer())
	if err != nil {
		return nil, err
	}
	if res.User.IsVerified && res.Token != "" {
		if _, err := a.c.session.establish(res.Token, res.User); err != nil {
			a.c.logger.Warn("persist token", zap.Error(err))
		}
	}
	return res, nil
}

func (a *AuthClient) VerifyOTP(ctx context.Context, email, otp string) error {
	_, err := a.c.doRequest(ctx, http.MethodPost, "/auth/verify-otp",
		map[string]string{"email": email, "otp": otp}, nil, withoutBearer())
	return err
}

func (a *AuthClient) ResendOTP(ctx context.Context, email string) error {
	_, err := a.c.doRequest(ctx, http.MethodPost, "/auth/resend-otp",
		map[string]string{"email": email}, nil, withoutBearer())
	return err
}

// Me returns the merged user and profile record of the session user.
func (a *AuthClient) Me(ctx context.Context) (*User, error) {
	if a.c.session.Token() == "" {
		return nil, ErrNotAuthenticated
	}
	return call[User](ctx, a.c, http.MethodGet, "/auth/me", nil)
}

// Restore re-establishes the session from the persisted token. It returns
// (nil, nil) when no token is stored. A token the backend rejects is cleared.
func (a *AuthClient) Restore(ctx context.Context) (*Session, error) {
	token, err := a.c.tokens.Load()
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	if token == "" {
		return nil, nil
	}

	user, err := call[User](ctx, a.c, http.MethodGet, "/auth/me", nil, withBearer(token))
	if err != nil {
		a.c.logger.Info("restore failed, clearing token", zap.Error(err))
		if clearErr := a.c.session.clear(); clearErr != nil {
			a.c.logger.Warn("clear persisted token", zap.Error(clearErr))
		}
		return nil, err
	}
	return a.c.session.establish(token, *user)
}

// Logout destroys the session and the persisted token.
func (a *AuthClient) Logout() error {
	return a.c.session.clear()
}

// ============================================================================
// Profile
// ============================================================================

type ProfileClient struct{ c *Client }

// Update saves the profile and returns the merged user record.
func (p *ProfileClient) Update(ctx context.Context, in *ProfileInput) (*User, error) {
	user, err := call[User](ctx, p.c, http.MethodPut, "/profile", in)
	if err != nil {
		return nil, err
	}
	p.c.session.updateUser(*user)
	return user, nil
}

// ============================================================================
// Matchmaking
// ============================================================================

// MatchmakingClient handles matches, match requests and invitations.
type MatchmakingClient struct{ c *Client }

func (m *MatchmakingClient) MyMatches(ctx context.Context) ([]Match, error) {
	return callList[Match](ctx, m.c, "/matchmaking/matches/my")
}

// UpcomingMatches returns the matches that are still pending or accepted.
func (m *MatchmakingClient) UpcomingMatches(ctx context.Context) ([]Match, error) {
	matches, err := m.MyMatches(ctx)
	if err != nil {
		return nil, err
	}
	return FilterUpcoming(matches), nil
}

// FilterUpcoming keeps matches with status accepted or pending.
func FilterUpcoming(matches []Match) []Match {
	out := make([]Match, 0, len(matches))
	for _, mt := range matches {
		if mt.Status == MatchStatusAccepted || mt.Status == MatchStatusPending {
			out = append(out, mt)
		}
	}
	return out
}

// Messages returns the backlog of a match room, oldest first.
func (m *MatchmakingClient) Messages(ctx context.Context, matchID int64) ([]Message, error) {
	return callList[Message](ctx, m.c, idPath("/matchmaking/matches", matchID, "/messages"))
}

// Requests returns all open match requests, each carrying invitation_sent
// for the current user.
func (m *MatchmakingClient) Requests(ctx context.Context) ([]MatchRequest, error) {
	return callList[MatchRequest](ctx, m.c, "/matchmaking/requests")
}

func (m *MatchmakingClient) MyRequests(ctx context.Context) ([]MatchRequest, error) {
	return callList[MatchRequest](ctx, m.c, "/matchmaking/requests/my")
}

func (m *MatchmakingClient) GetRequest(ctx context.Context, id int64) (*MatchRequest, error) {
	return call[MatchRequest](ctx, m.c, http.MethodGet, idPath("/matchmaking/requests", id, ""), nil)
}

func (m *MatchmakingClient) CreateRequest(ctx context.Context, in *RequestInput) (*MatchRequest, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return call[MatchRequest](ctx, m.c, http.MethodPost, "/matchmaking/requests", in)
}

func (m *MatchmakingClient) UpdateRequest(ctx context.Context, id int64, in *RequestInput) (*MatchRequest, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return call[MatchRequest](ctx, m.c, http.MethodPut, idPath("/matchmaking/requests", id, ""), in)
}

// SendInvitation posts an invitation for a match request. Each call carries a
// fresh Idempotency-Key. A duplicate is reported as an *APIError for which
// IsAlreadySent is true.
func (m *MatchmakingClient) SendInvitation(ctx context.Context, requestID int64, message string) error {
	if message == "" {
		message = DefaultInvitationMessage
	}
	body := map[string]any{"matchRequestId": requestID, "message": message}
	_, err := m.c.doRequest(ctx, http.MethodPost, "/matchmaking/invitations", body, nil,
		withHeader("Idempotency-Key", uuid.NewString()))
	return err
}

// Invitations returns the invitations received by the current user.
func (m *MatchmakingClient) Invitations(ctx context.Context) ([]Invitation, error) {
	return callList[Invitation](ctx, m.c, "/matchmaking/invitations")
}

func (m *MatchmakingClient) AcceptInvitation(ctx context.Context, id int64) error {
	_, err := m.c.doRequest(ctx, http.MethodPut, idPath("/matchmaking/invitations", id, "/accept"), nil, nil)
	return err
}

func (m *MatchmakingClient) DeclineInvitation(ctx context.Context, id int64) error {
	_, err := m.c.doRequest(ctx, http.MethodPut, idPath("/matchmaking/invitations", id, "/decline"), nil, nil)
	return err
}

// Overview fetches upcoming matches, open requests and received invitations
// concurrently. The first failure cancels the others.
func (m *MatchmakingClient) Overview(ctx context.Context) (*Overview, error) {
	var ov Overview
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		matches, err := m.UpcomingMatches(gctx)
		ov.Matches = matches
		return err
	})
	g.Go(func() error {
		reqs, err := m.Requests(gctx)
		ov.Requests = reqs
		return err
	})
	g.Go(func() error {
		invs, err := m.Invitations(gctx)
		ov.Invitations = invs
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &ov, nil
}

// Validate checks the request fields the backend would otherwise reject.
func (in *RequestInput) Validate() error {
	switch in.MatchType {
	case MatchTypeSingles, MatchTypeDoubles:
	default:
		return fmt.Errorf("%w: match type must be %q or %q", ErrValidation, MatchTypeSingles, MatchTypeDoubles)
	}
	if in.SkillLevelMin > 0 && in.SkillLevelMax > 0 && in.SkillLevelMin > in.SkillLevelMax {
		return fmt.Errorf("%w: minimum skill level %.1f exceeds maximum %.1f", ErrValidation, in.SkillLevelMin, in.SkillLevelMax)
	}
	if in.Duration < 0 {
		return fmt.Errorf("%w: duration must not be negative", ErrValidation)
	}
	return nil
}

// ============================================================================
// Events & Payments
// ============================================================================

type EventsClient struct{ c *Client }

func (e *EventsClient) List(ctx context.Context) ([]Event, error) {
	return callList[Event](ctx, e.c, "/events")
}

func (e *EventsClient) Create(ctx context.Context, in *EventInput) (*Event, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("%w: event title is required", ErrValidation)
	}
	return call[Event](ctx, e.c, http.MethodPost, "/events", in)
}

type PaymentsClient struct{ c *Client }

// PayEvent opens a payment for an event and returns the processor client
// secret used to confirm it.
func (p *PaymentsClient) PayEvent(ctx context.Context, eventID int64, amount float64) (*PaymentIntent, error) {
	body := map[string]any{"eventId": eventID, "amount": amount}
	return call[PaymentIntent](ctx, p.c, http.MethodPost, "/payments/pay-event", body)
}

// ============================================================================
// Users & Settings
// ============================================================================

type UsersClient struct{ c *Client }

func (u *UsersClient) List(ctx context.Context) ([]User, error) {
	return callList[User](ctx, u.c, "/users")
}

// FilterPlayers keeps users whose name or location contains query,
// case-insensitively. An empty query keeps everyone.
func FilterPlayers(users []User, query string) []User {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return users
	}
	var out []User
	for _, u := range users {
		if strings.Contains(strings.ToLower(u.Name), q) || strings.Contains(strings.ToLower(u.Location), q) {
			out = append(out, u)
		}
	}
	return out
}

type SettingsClient struct{ c *Client }

// DefaultSettings are the public site settings used when the backend omits a
// key or cannot be reached.
var DefaultSettings = map[string]string{
	"brand_name":                    "ACE CONNECT",
	"brand_slogan":                  "STRIVE FOR EXCELLENCE",
	"default_location":              "San Francisco, CA",
	"dashboard_match_header":        "COURT COMMAND",
	"dashboard_find_match_title":    "FIND MATCH",
	"dashboard_browse_events_title": "BROWSE EVENTS",
	"primary_sport_icon":            "🎾",
	"no_sessions_message":           "No active sessions matching your form.",
	"pro_list_title":                "PRO LIST",
}

// Public returns the public site settings merged over DefaultSettings. On
// failure the defaults are returned together with the error.
func (s *SettingsClient) Public(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string, len(DefaultSettings))
	for k, v := range DefaultSettings {
		out[k] = v
	}
	remote, err := call[map[string]string](ctx, s.c, http.MethodGet, "/settings/public", nil)
	if err != nil {
		return out, err
	}
	for k, v := range *remote {
		out[k] = v
	}
	return out, nil
}
