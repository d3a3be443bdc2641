package aceconnect

import "encoding/json"

// ============================================================================
// Identity Types
// ============================================================================

// Role is the account role assigned by the backend.
type Role string

const (
	RolePlayer    Role = "player"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
)

// User is the merged user + profile entity returned by /auth/me and /profile.
// Profile fields are optional extensions of the same record.
type User struct {
	ID                       int64   `json:"id"`
	Email                    string  `json:"email"`
	Role                     Role    `json:"role"`
	IsVerified               bool    `json:"is_verified"`
	ProfileCompleted         bool    `json:"profile_completed"`
	StripeAccountID          string  `json:"stripe_account_id,omitempty"`
	StripeOnboardingComplete bool    `json:"stripe_onboarding_complete,omitempty"`
	Name                     string  `json:"name,omitempty"`
	Bio                      string  `json:"bio,omitempty"`
	Location                 string  `json:"location,omitempty"`
	NTRPRating               float64 `json:"ntrpRating,omitempty"`
	PhotoURL                 string  `json:"photoUrl,omitempty"`
	Latitude                 float64 `json:"latitude,omitempty"`
	Longitude                float64 `json:"longitude,omitempty"`
	XP                       int     `json:"xp,omitempty"`
	Level                    int     `json:"level,omitempty"`
	Streak                   int     `json:"streak,omitempty"`
	Achievements             []any   `json:"achievements,omitempty"`
}

// AuthResult is the response of login and registration.
type AuthResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// RegisterInput is the registration request body.
type RegisterInput struct {
	Email      string  `json:"email"`
	Password   string  `json:"password"`
	Role       Role    `json:"role"`
	Name       string  `json:"name"`
	NTRPRating float64 `json:"ntrpRating"`
}

// ProfileInput is the profile update request body.
type ProfileInput struct {
	Name       string   `json:"name,omitempty"`
	Bio        string   `json:"bio,omitempty"`
	Location   string   `json:"location,omitempty"`
	NTRPRating *float64 `json:"ntrpRating,omitempty"`
	PhotoURL   string   `json:"photoUrl,omitempty"`
}

// ============================================================================
// Matchmaking Types
// ============================================================================

// Match status values.
const (
	MatchStatusPending   = "pending"
	MatchStatusAccepted  = "accepted"
	MatchStatusCompleted = "completed"
	MatchStatusCancelled = "cancelled"
)

// Match is a confirmed pairing between two players; its id names the chat room.
type Match struct {
	ID            int64  `json:"id"`
	OpponentName  string `json:"opponent_name"`
	OpponentPhoto string `json:"opponent_photo,omitempty"`
	MatchType     string `json:"match_type"`
	MatchDate     string `json:"match_date,omitempty"`
	ScheduledTime string `json:"scheduled_time,omitempty"`
	Location      string `json:"location,omitempty"`
	Status        string `json:"status"`
	CreatedAt     string `json:"created_at"`
}

// Message is one chat line. It is immutable once created.
//
// REST backlogs use snake_case keys while the realtime broadcast uses
// camelCase; both decode into the same value.
type Message struct {
	ID        int64  `json:"id"`
	MatchID   int64  `json:"matchId,omitempty"`
	SenderID  int64  `json:"senderId"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
}

// UnmarshalJSON accepts both the REST and the realtime key spellings.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID             int64  `json:"id"`
		MatchID        int64  `json:"matchId"`
		MatchIDSnake   int64  `json:"match_id"`
		SenderID       int64  `json:"senderId"`
		SenderIDSnake  int64  `json:"sender_id"`
		Content        string `json:"content"`
		CreatedAt      string `json:"createdAt"`
		CreatedAtSnake string `json:"created_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Message{
		ID:        raw.ID,
		MatchID:   firstNonZero(raw.MatchID, raw.MatchIDSnake),
		SenderID:  firstNonZero(raw.SenderID, raw.SenderIDSnake),
		Content:   raw.Content,
		CreatedAt: raw.CreatedAt,
	}
	if m.CreatedAt == "" {
		m.CreatedAt = raw.CreatedAtSnake
	}
	return nil
}

func firstNonZero(a, b int64) int64 {
	if a != 0 {
		return a
	}
	return b
}

// Match types.
const (
	MatchTypeSingles = "singles"
	MatchTypeDoubles = "doubles"
)

// Request status values.
const (
	RequestStatusOpen    = "open"
	RequestStatusClosed  = "closed"
	RequestStatusExpired = "expired"
)

// MatchRequest is a read-only mirror of an open request on the server.
type MatchRequest struct {
	ID                 int64   `json:"id"`
	UserID             int64   `json:"user_id"`
	MatchType          string  `json:"match_type"`
	PreferredDate      string  `json:"preferred_date,omitempty"`
	PreferredTime      string  `json:"preferred_time,omitempty"`
	PreferredTimeRange string  `json:"preferred_time_range,omitempty"`
	Duration           int     `json:"duration,omitempty"`
	Location           string  `json:"location,omitempty"`
	Latitude           float64 `json:"latitude,omitempty"`
	Longitude          float64 `json:"longitude,omitempty"`
	SkillLevelMin      float64 `json:"skill_level_min,omitempty"`
	SkillLevelMax      float64 `json:"skill_level_max,omitempty"`
	CourtType          string  `json:"court_type,omitempty"`
	Notes              string  `json:"notes,omitempty"`
	Status             string  `json:"status"`
	CreatedAt          string  `json:"created_at"`

	// Joined fields
	Name               string  `json:"name,omitempty"`
	NTRPRating         float64 `json:"ntrp_rating,omitempty"`
	UserLocation       string  `json:"user_location,omitempty"`
	Distance           float64 `json:"distance,omitempty"`
	CompatibilityScore float64 `json:"compatibility_score,omitempty"`
	InvitationSent     bool    `json:"invitation_sent,omitempty"`
}

// RequestInput is the create/update body for a match request.
type RequestInput struct {
	MatchType     string  `json:"matchType"`
	PreferredDate string  `json:"preferredDate"`
	PreferredTime string  `json:"preferredTime"`
	Duration      int     `json:"duration"`
	Location      string  `json:"location"`
	SkillLevelMin float64 `json:"skillLevelMin"`
	SkillLevelMax float64 `json:"skillLevelMax"`
	Notes         string  `json:"notes,omitempty"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
}

// Invitation status values.
const (
	InvitationStatusPending  = "pending"
	InvitationStatusAccepted = "accepted"
	InvitationStatusDeclined = "declined"
)

// Invitation is an invitation received by the current user.
type Invitation struct {
	ID          int64  `json:"id"`
	SenderName  string `json:"sender_name"`
	SenderPhoto string `json:"sender_photo,omitempty"`
	MatchType   string `json:"match_type"`
	Location    string `json:"location"`
	Message     string `json:"message,omitempty"`
	Status      string `json:"status,omitempty"`
}

// Overview is the matchmaking dashboard snapshot.
type Overview struct {
	Matches     []Match
	Requests    []MatchRequest
	Invitations []Invitation
}

// ============================================================================
// Event & Payment Types
// ============================================================================

// Event is an organizer-hosted session players can pay to join.
type Event struct {
	ID               int64   `json:"id"`
	OrganizerID      int64   `json:"organizer_id"`
	Title            string  `json:"title"`
	Description      string  `json:"description"`
	EventDate        string  `json:"event_date"`
	Location         string  `json:"location"`
	Latitude         float64 `json:"latitude,omitempty"`
	Longitude        float64 `json:"longitude,omitempty"`
	Price            float64 `json:"price"`
	MaxParticipants  int     `json:"max_participants"`
	SkillLevelMin    float64 `json:"skill_level_min,omitempty"`
	SkillLevelMax    float64 `json:"skill_level_max,omitempty"`
	ImageURL         string  `json:"image_url,omitempty"`
	CreatedAt        string  `json:"created_at"`
	OrganizerName    string  `json:"organizer_name,omitempty"`
	ParticipantCount int     `json:"participant_count,omitempty"`
	IsJoined         bool    `json:"is_joined,omitempty"`
}

// EventInput is the create body for an event.
type EventInput struct {
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	EventDate       string  `json:"eventDate"`
	Location        string  `json:"location"`
	Latitude        float64 `json:"latitude,omitempty"`
	Longitude       float64 `json:"longitude,omitempty"`
	Price           float64 `json:"price"`
	MaxParticipants int     `json:"maxParticipants"`
	SkillLevelMin   float64 `json:"skillLevelMin,omitempty"`
	SkillLevelMax   float64 `json:"skillLevelMax,omitempty"`
	ImageURL        string  `json:"imageUrl,omitempty"`
}

// PaymentIntent carries the processor client secret for an event payment.
type PaymentIntent struct {
	ClientSecret string `json:"clientSecret"`
}
