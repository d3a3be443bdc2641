package aceconnect

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// ============================================================================
// Fake REST backend
// ============================================================================

const (
	testEmail    = "ana@example.com"
	testPassword = "secret"
	testToken    = "tok-ana"
	testUserID   = int64(7)
)

type fakeBackend struct {
	t      *testing.T
	server *httptest.Server

	mu              sync.Mutex
	validToken      string
	user            User
	matches         []Match
	messages        map[int64][]Message
	requests        []MatchRequest
	invitations     []Invitation
	invited         map[int64]bool
	inviteBodies    []map[string]any
	idempotencyKeys []string
	accepted        []int64
	declined        []int64
	calls           map[string]int
	failInvite      map[int64]int
	settings        map[string]string
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{
		t:          t,
		validToken: testToken,
		user: User{
			ID:               testUserID,
			Email:            testEmail,
			Role:             RolePlayer,
			IsVerified:       true,
			ProfileCompleted: true,
		},
		matches: []Match{
			{ID: 1, OpponentName: "Ben", MatchType: MatchTypeSingles, Status: MatchStatusAccepted},
			{ID: 2, OpponentName: "Cleo", MatchType: MatchTypeDoubles, Status: MatchStatusPending},
			{ID: 3, OpponentName: "Dev", MatchType: MatchTypeSingles, Status: MatchStatusCompleted},
		},
		messages: map[int64][]Message{
			1: {
				{ID: 101, SenderID: 8, Content: "hi", CreatedAt: "2026-01-01T10:00:00Z"},
				{ID: 102, SenderID: testUserID, Content: "hey", CreatedAt: "2026-01-01T10:01:00Z"},
			},
		},
		requests: []MatchRequest{
			{ID: 5, UserID: 8, MatchType: MatchTypeSingles, Status: RequestStatusOpen, InvitationSent: true},
			{ID: 6, UserID: 9, MatchType: MatchTypeDoubles, Status: RequestStatusOpen},
			{ID: 10, UserID: testUserID, MatchType: MatchTypeSingles, Status: RequestStatusOpen},
		},
		invitations: []Invitation{
			{ID: 31, SenderName: "Ben", MatchType: MatchTypeSingles, Location: "Court 1"},
			{ID: 32, SenderName: "Cleo", MatchType: MatchTypeDoubles, Location: "Court 2"},
		},
		invited:    map[int64]bool{5: true},
		calls:      make(map[string]int),
		failInvite: make(map[int64]int),
		settings:   map[string]string{"brand_name": "ACE TEST"},
	}

	r := chi.NewRouter()
	r.Use(fb.count)
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", fb.login)
		r.Post("/auth/register", fb.register)
		r.Post("/auth/verify-otp", fb.ok)
		r.Post("/auth/resend-otp", fb.ok)
		r.Get("/settings/public", fb.publicSettings)

		r.Group(func(r chi.Router) {
			r.Use(fb.requireAuth)
			r.Get("/auth/me", fb.me)
			r.Put("/profile", fb.updateProfile)
			r.Get("/matchmaking/matches/my", fb.myMatches)
			r.Get("/matchmaking/matches/{id}/messages", fb.matchMessages)
			r.Get("/matchmaking/requests", fb.listRequests)
			r.Get("/matchmaking/requests/my", fb.myRequests)
			r.Get("/matchmaking/requests/{id}", fb.getRequest)
			r.Post("/matchmaking/requests", fb.createRequest)
			r.Put("/matchmaking/requests/{id}", fb.createRequest)
			r.Post("/matchmaking/invitations", fb.sendInvitation)
			r.Get("/matchmaking/invitations", fb.listInvitations)
			r.Put("/matchmaking/invitations/{id}/accept", fb.acceptInvitation)
			r.Put("/matchmaking/invitations/{id}/decline", fb.declineInvitation)
			r.Get("/events", fb.listEvents)
			r.Post("/payments/pay-event", fb.payEvent)
			r.Get("/users", fb.listUsers)
		})
	})

	fb.server = httptest.NewServer(r)
	t.Cleanup(fb.server.Close)
	return fb
}

func (fb *fakeBackend) client(opts ...ClientOption) *Client {
	return NewClient(append([]ClientOption{WithBaseURL(fb.server.URL + "/api")}, opts...)...)
}

func (fb *fakeBackend) callCount(key string) int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.calls[key]
}

func (fb *fakeBackend) revokeToken() {
	fb.mu.Lock()
	fb.validToken = "rotated"
	fb.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}

func (fb *fakeBackend) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		fb.calls[r.Method+" "+strings.TrimPrefix(r.URL.Path, "/api")]++
		fb.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (fb *fakeBackend) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		valid := fb.validToken
		fb.mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer "+valid {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (fb *fakeBackend) ok(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}

func (fb *fakeBackend) login(w http.ResponseWriter, r *http.Request) {
	var body struct{ Email, Password string }
	_ = json.NewDecoder(r.Body).Decode(&body)
	switch {
	case body.Email == "new@example.com":
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error":                "Please verify your email",
			"requiresVerification": true,
		})
	case body.Email == testEmail && body.Password == testPassword:
		fb.mu.Lock()
		u := fb.user
		fb.mu.Unlock()
		// The login payload lacks profile fields.
		writeJSON(w, http.StatusOK, map[string]any{
			"token": testToken,
			"user":  map[string]any{"id": u.ID, "email": u.Email, "role": u.Role, "is_verified": true},
		})
	default:
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
	}
}

func (fb *fakeBackend) register(w http.ResponseWriter, r *http.Request) {
	var in RegisterInput
	_ = json.NewDecoder(r.Body).Decode(&in)
	if in.Email == testEmail {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "User already exists"})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"token": "tok-new",
		"user":  map[string]any{"id": 50, "email": in.Email, "role": in.Role, "is_verified": false},
	})
}

func (fb *fakeBackend) me(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	u := fb.user
	fb.mu.Unlock()
	u.Name = "Ana"
	u.Location = "Lisbon"
	u.NTRPRating = 4.0
	writeJSON(w, http.StatusOK, u)
}

func (fb *fakeBackend) updateProfile(w http.ResponseWriter, r *http.Request) {
	var in ProfileInput
	_ = json.NewDecoder(r.Body).Decode(&in)
	fb.mu.Lock()
	fb.user.Name = in.Name
	fb.user.Bio = in.Bio
	u := fb.user
	fb.mu.Unlock()
	writeJSON(w, http.StatusOK, u)
}

func (fb *fakeBackend) publicSettings(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	writeJSON(w, http.StatusOK, fb.settings)
}

func (fb *fakeBackend) myMatches(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	writeJSON(w, http.StatusOK, fb.matches)
}

func (fb *fakeBackend) matchMessages(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	msgs := fb.messages[pathID(r)]
	fb.mu.Unlock()
	// REST uses snake_case keys.
	out := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, map[string]any{
			"id": m.ID, "sender_id": m.SenderID, "content": m.Content, "created_at": m.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (fb *fakeBackend) listRequests(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	out := make([]MatchRequest, len(fb.requests))
	for i, req := range fb.requests {
		req.InvitationSent = fb.invited[req.ID]
		out[i] = req
	}
	writeJSON(w, http.StatusOK, out)
}

func (fb *fakeBackend) myRequests(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	var out []MatchRequest
	for _, req := range fb.requests {
		if req.UserID == fb.user.ID {
			out = append(out, req)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (fb *fakeBackend) getRequest(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	id := pathID(r)
	for _, req := range fb.requests {
		if req.ID == id {
			writeJSON(w, http.StatusOK, req)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "Request not found"})
}

func (fb *fakeBackend) createRequest(w http.ResponseWriter, r *http.Request) {
	var in RequestInput
	_ = json.NewDecoder(r.Body).Decode(&in)
	fb.mu.Lock()
	defer fb.mu.Unlock()
	id := pathID(r)
	if id == 0 {
		id = int64(100 + len(fb.requests))
	}
	req := MatchRequest{
		ID:            id,
		UserID:        fb.user.ID,
		MatchType:     in.MatchType,
		Location:      in.Location,
		SkillLevelMin: in.SkillLevelMin,
		SkillLevelMax: in.SkillLevelMax,
		Status:        RequestStatusOpen,
	}
	writeJSON(w, http.StatusOK, req)
}

func (fb *fakeBackend) sendInvitation(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	id := int64(body["matchRequestId"].(float64))

	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.inviteBodies = append(fb.inviteBodies, body)
	fb.idempotencyKeys = append(fb.idempotencyKeys, r.Header.Get("Idempotency-Key"))
	if n := fb.failInvite[id]; n > 0 {
		fb.failInvite[id] = n - 1
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to send invitation"})
		return
	}
	if fb.invited[id] {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": "Invitation already sent",
			"code":  CodeInvitationAlreadySent,
		})
		return
	}
	fb.invited[id] = true
	writeJSON(w, http.StatusCreated, map[string]any{"id": 900 + id})
}

func (fb *fakeBackend) listInvitations(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	writeJSON(w, http.StatusOK, fb.invitations)
}

func (fb *fakeBackend) removeInvitation(id int64) {
	kept := fb.invitations[:0]
	for _, inv := range fb.invitations {
		if inv.ID != id {
			kept = append(kept, inv)
		}
	}
	fb.invitations = kept
}

func (fb *fakeBackend) acceptInvitation(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	id := pathID(r)
	fb.accepted = append(fb.accepted, id)
	fb.removeInvitation(id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "accepted"})
}

func (fb *fakeBackend) declineInvitation(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	id := pathID(r)
	fb.declined = append(fb.declined, id)
	fb.removeInvitation(id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "declined"})
}

func (fb *fakeBackend) listEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, []Event{{ID: 1, Title: "Sunday Clinic", Price: 25, MaxParticipants: 8}})
}

func (fb *fakeBackend) payEvent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EventID int64   `json:"eventId"`
		Amount  float64 `json:"amount"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	writeJSON(w, http.StatusOK, map[string]string{"clientSecret": "pi_" + strconv.FormatInt(body.EventID, 10) + "_secret"})
}

func (fb *fakeBackend) listUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, []User{
		{ID: 8, Name: "Ben Okafor", Location: "Porto"},
		{ID: 9, Name: "Cleo", Location: "Lisbon"},
		{ID: 11, Location: "Faro"},
	})
}
