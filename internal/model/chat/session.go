package chat

// SessionStatus describes where a conversation is in its lifecycle.
type SessionStatus string

const (
	StatusLoading SessionStatus = "loading"
	StatusActive  SessionStatus = "active"
	StatusClosed  SessionStatus = "closed"
	StatusError   SessionStatus = "error"
)

// Profile holds the visitor identity attached to a session.
type Profile struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Complete reports whether the profile carries both an email address and a
// non-empty name.
func (p Profile) Complete() bool {
	return p.Email != "" && (p.FirstName != "" || p.LastName != "")
}

// Session captures one persistent conversation with the hosted chat backend.
type Session struct {
	ID         string        `json:"id"`
	Status     SessionStatus `json:"status"`
	ThemeColor string        `json:"themeColor,omitempty"`
	Profile    *Profile      `json:"profile,omitempty"`
}

// ProfileComplete reports whether a profile is present and complete.
func (s Session) ProfileComplete() bool {
	return s.Profile != nil && s.Profile.Complete()
}
