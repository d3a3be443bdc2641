package aceconnect

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loggedIn(t *testing.T, fb *fakeBackend, opts ...ClientOption) *Client {
	t.Helper()
	c := fb.client(opts...)
	_, err := c.Auth.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	return c
}

// ============================================================================
// Auth
// ============================================================================

func TestAuthLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("establishes merged session and persists token", func(t *testing.T) {
		fb := newFakeBackend(t)
		store := NewMemoryTokenStore()
		c := fb.client(WithTokenStore(store))

		sess, err := c.Auth.Login(ctx, testEmail, testPassword)
		require.NoError(t, err)
		assert.Equal(t, testUserID, sess.UserID)
		assert.Equal(t, testToken, sess.Token)
		assert.Equal(t, RolePlayer, sess.Role)
		assert.Equal(t, "Ana", sess.User.Name, "profile fields come from /auth/me")

		saved, _ := store.Load()
		assert.Equal(t, testToken, saved)
		assert.Equal(t, testUserID, c.Session().UserID())
	})

	t.Run("wrong password", func(t *testing.T) {
		fb := newFakeBackend(t)
		c := fb.client()

		_, err := c.Auth.Login(ctx, testEmail, "nope")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrAuth)
		assert.Nil(t, c.Session().Current())
	})

	t.Run("unverified account", func(t *testing.T) {
		fb := newFakeBackend(t)
		c := fb.client()

		_, err := c.Auth.Login(ctx, "new@example.com", testPassword)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.True(t, apiErr.RequiresVerification)
		assert.Equal(t, "Please verify your email", apiErr.Message)
	})

	t.Run("failed login does not drop a live session", func(t *testing.T) {
		fb := newFakeBackend(t)
		c := loggedIn(t, fb)

		_, err := c.Auth.Login(ctx, testEmail, "nope")
		require.Error(t, err)
		assert.NotNil(t, c.Session().Current())
	})
}

func TestAuthRegister(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBackend(t)
	c := fb.client()

	res, err := c.Auth.Register(ctx, &RegisterInput{Email: "zoe@example.com", Password: "pw", Name: "Zoe", NTRPRating: 3.5})
	require.NoError(t, err)
	assert.Equal(t, RolePlayer, res.User.Role)
	assert.Nil(t, c.Session().Current(), "unverified registration must not log in")

	_, err = c.Auth.Register(ctx, &RegisterInput{Email: testEmail, Password: "pw"})
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, c.Auth.VerifyOTP(ctx, "zoe@example.com", "123456"))
	require.NoError(t, c.Auth.ResendOTP(ctx, "zoe@example.com"))
}

func TestAuthRestore(t *testing.T) {
	ctx := context.Background()

	t.Run("no stored token", func(t *testing.T) {
		fb := newFakeBackend(t)
		sess, err := fb.client().Auth.Restore(ctx)
		require.NoError(t, err)
		assert.Nil(t, sess)
	})

	t.Run("valid token", func(t *testing.T) {
		fb := newFakeBackend(t)
		store := NewMemoryTokenStore()
		require.NoError(t, store.Save(testToken))

		c := fb.client(WithTokenStore(store))
		sess, err := c.Auth.Restore(ctx)
		require.NoError(t, err)
		assert.Equal(t, testUserID, sess.UserID)
		assert.Equal(t, "Lisbon", sess.User.Location)
	})

	t.Run("rejected token is cleared", func(t *testing.T) {
		fb := newFakeBackend(t)
		store := NewMemoryTokenStore()
		require.NoError(t, store.Save("stale"))

		c := fb.client(WithTokenStore(store))
		sess, err := c.Auth.Restore(ctx)
		assert.ErrorIs(t, err, ErrAuth)
		assert.Nil(t, sess)
		saved, _ := store.Load()
		assert.Empty(t, saved)
	})
}

func TestAuthFailureInvalidatesSession(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBackend(t)
	store := NewMemoryTokenStore()

	var handled error
	c := loggedIn(t, fb, WithTokenStore(store), WithAuthFailureHandler(func(err error) { handled = err }))

	fb.revokeToken()
	_, err := c.Matchmaking.MyMatches(ctx)
	require.ErrorIs(t, err, ErrAuth)

	assert.Nil(t, c.Session().Current())
	assert.ErrorIs(t, handled, ErrAuth)
	saved, _ := store.Load()
	assert.Empty(t, saved)

	_, err = c.Auth.Me(ctx)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestLogout(t *testing.T) {
	fb := newFakeBackend(t)
	store := NewMemoryTokenStore()
	c := loggedIn(t, fb, WithTokenStore(store))

	require.NoError(t, c.Auth.Logout())
	assert.Nil(t, c.Session().Current())
	saved, _ := store.Load()
	assert.Empty(t, saved)
}

// ============================================================================
// Matchmaking
// ============================================================================

func TestMatchmakingReads(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBackend(t)
	c := loggedIn(t, fb)

	t.Run("messages decode snake_case backlog", func(t *testing.T) {
		msgs, err := c.Matchmaking.Messages(ctx, 1)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, Message{ID: 101, SenderID: 8, Content: "hi", CreatedAt: "2026-01-01T10:00:00Z"}, msgs[0])
	})

	t.Run("empty backlog is an empty slice", func(t *testing.T) {
		msgs, err := c.Matchmaking.Messages(ctx, 2)
		require.NoError(t, err)
		assert.NotNil(t, msgs)
		assert.Empty(t, msgs)
	})

	t.Run("upcoming matches skip completed", func(t *testing.T) {
		matches, err := c.Matchmaking.UpcomingMatches(ctx)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, int64(1), matches[0].ID)
		assert.Equal(t, int64(2), matches[1].ID)
	})

	t.Run("requests carry invitation_sent", func(t *testing.T) {
		reqs, err := c.Matchmaking.Requests(ctx)
		require.NoError(t, err)
		require.Len(t, reqs, 3)
		assert.True(t, reqs[0].InvitationSent)
		assert.False(t, reqs[1].InvitationSent)
	})

	t.Run("my requests", func(t *testing.T) {
		reqs, err := c.Matchmaking.MyRequests(ctx)
		require.NoError(t, err)
		require.Len(t, reqs, 1)
		assert.Equal(t, int64(10), reqs[0].ID)
	})

	t.Run("get missing request", func(t *testing.T) {
		_, err := c.Matchmaking.GetRequest(ctx, 404)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 404, apiErr.StatusCode)
		assert.Equal(t, "Request not found", apiErr.Message)
	})

	t.Run("overview", func(t *testing.T) {
		ov, err := c.Matchmaking.Overview(ctx)
		require.NoError(t, err)
		assert.Len(t, ov.Matches, 2)
		assert.Len(t, ov.Requests, 3)
		assert.Len(t, ov.Invitations, 2)
	})
}

func TestMatchmakingRequestWrites(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBackend(t)
	c := loggedIn(t, fb)

	in := &RequestInput{MatchType: MatchTypeSingles, Location: "Court 4", SkillLevelMin: 3, SkillLevelMax: 4.5, Duration: 90}
	created, err := c.Matchmaking.CreateRequest(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, testUserID, created.UserID)
	assert.Equal(t, "Court 4", created.Location)

	updated, err := c.Matchmaking.UpdateRequest(ctx, 10, in)
	require.NoError(t, err)
	assert.Equal(t, int64(10), updated.ID)

	_, err = c.Matchmaking.CreateRequest(ctx, &RequestInput{MatchType: "mixed"})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 1, fb.callCount("POST /matchmaking/requests"), "invalid input never reaches the server")
}

func TestMatchmakingSendInvitation(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBackend(t)
	c := loggedIn(t, fb)

	require.NoError(t, c.Matchmaking.SendInvitation(ctx, 6, ""))
	err := c.Matchmaking.SendInvitation(ctx, 6, "again")
	require.Error(t, err)
	assert.True(t, IsAlreadySent(err))
	assert.ErrorIs(t, err, ErrConflict)

	fb.mu.Lock()
	defer fb.mu.Unlock()
	require.Len(t, fb.inviteBodies, 2)
	assert.Equal(t, DefaultInvitationMessage, fb.inviteBodies[0]["message"])
	assert.Equal(t, float64(6), fb.inviteBodies[0]["matchRequestId"])
	assert.NotEmpty(t, fb.idempotencyKeys[0])
	assert.NotEqual(t, fb.idempotencyKeys[0], fb.idempotencyKeys[1])
}

func TestMatchmakingInvitationReplies(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBackend(t)
	c := loggedIn(t, fb)

	require.NoError(t, c.Matchmaking.AcceptInvitation(ctx, 31))
	require.NoError(t, c.Matchmaking.DeclineInvitation(ctx, 32))

	fb.mu.Lock()
	defer fb.mu.Unlock()
	assert.Equal(t, []int64{31}, fb.accepted)
	assert.Equal(t, []int64{32}, fb.declined)
}

// ============================================================================
// Profile, Events, Payments, Users, Settings
// ============================================================================

func TestProfileUpdate(t *testing.T) {
	fb := newFakeBackend(t)
	c := loggedIn(t, fb)

	user, err := c.Profile.Update(context.Background(), &ProfileInput{Name: "Ana Silva", Bio: "lefty"})
	require.NoError(t, err)
	assert.Equal(t, "Ana Silva", user.Name)
	assert.Equal(t, "Ana Silva", c.Session().Current().User.Name)
}

func TestEventsAndPayments(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBackend(t)
	c := loggedIn(t, fb)

	events, err := c.Events.List(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Sunday Clinic", events[0].Title)

	_, err = c.Events.Create(ctx, &EventInput{Title: "  "})
	assert.ErrorIs(t, err, ErrValidation)

	intent, err := c.Payments.PayEvent(ctx, 1, 25)
	require.NoError(t, err)
	assert.Equal(t, "pi_1_secret", intent.ClientSecret)
}

func TestUsersAndFilterPlayers(t *testing.T) {
	fb := newFakeBackend(t)
	c := loggedIn(t, fb)

	users, err := c.Users.List(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 3)

	assert.Len(t, FilterPlayers(users, ""), 3)
	byName := FilterPlayers(users, "okafor")
	require.Len(t, byName, 1)
	assert.Equal(t, int64(8), byName[0].ID)
	byLocation := FilterPlayers(users, "LISBON")
	require.Len(t, byLocation, 1)
	assert.Equal(t, int64(9), byLocation[0].ID)
	assert.Empty(t, FilterPlayers(users, "madrid"))
}

func TestSettingsPublic(t *testing.T) {
	fb := newFakeBackend(t)
	settings, err := fb.client().Settings.Public(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ACE TEST", settings["brand_name"])
	assert.Equal(t, DefaultSettings["brand_slogan"], settings["brand_slogan"])
	assert.Equal(t, "ACE CONNECT", DefaultSettings["brand_name"], "defaults are not mutated")
}

func TestNetworkFailure(t *testing.T) {
	c := NewClient(WithBaseURL("http://127.0.0.1:1/api"))
	_, err := c.Events.List(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNetwork))
}

func TestRealtimeURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"https://ace-connect.onrender.com/api", "wss://ace-connect.onrender.com/ws"},
		{"http://localhost:3000/api/", "ws://localhost:3000/ws"},
		{"http://localhost:3000", "ws://localhost:3000/ws"},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			assert.Equal(t, tt.want, NewClient(WithBaseURL(tt.base)).RealtimeURL())
		})
	}
}

func TestRequestInputValidate(t *testing.T) {
	tests := []struct {
		name string
		in   RequestInput
		ok   bool
	}{
		{"singles", RequestInput{MatchType: MatchTypeSingles}, true},
		{"doubles with range", RequestInput{MatchType: MatchTypeDoubles, SkillLevelMin: 3, SkillLevelMax: 4}, true},
		{"missing type", RequestInput{}, false},
		{"inverted range", RequestInput{MatchType: MatchTypeSingles, SkillLevelMin: 5, SkillLevelMax: 3}, false},
		{"negative duration", RequestInput{MatchType: MatchTypeSingles, Duration: -30}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrValidation)
			}
		})
	}
}
