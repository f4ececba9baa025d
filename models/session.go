package models

import "time"

// Session is one persisted refresh token.
//
// Every live refresh token string maps to exactly one row. Rotation deletes the
// row and creates a new one with a new token, so a spent token never matches
// again. A row whose ExpiresAt has passed is dead even before the reaper
// removes it.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	RefreshToken string    `json:"-"`
	UserAgent    *string   `json:"userAgent"`
	IP           *string   `json:"ip"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// IsLive reports whether the session can still be used at now.
func (s *Session) IsLive(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// SessionMeta is the request provenance recorded on a session. Display only.
type SessionMeta struct {
	UserAgent string
	IP        string
}

// SessionSummary is a session as shown to its owner: no token, plus whether it
// is the session the request was made with.
type SessionSummary struct {
	ID        string    `json:"id"`
	UserAgent *string   `json:"userAgent"`
	IP        *string   `json:"ip"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	IsCurrent bool      `json:"isCurrent"`
}

// Summarize strips the token and marks the row current if it holds presented.
func (s *Session) Summarize(presented string) SessionSummary {
	return SessionSummary{
		ID:        s.ID,
		UserAgent: s.UserAgent,
		IP:        s.IP,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		ExpiresAt: s.ExpiresAt,
		IsCurrent: presented != "" && s.RefreshToken == presented,
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// NewSession builds an unsaved session row for userID.
func NewSession(id, userID, refreshToken string, meta SessionMeta, now, expiresAt time.Time) *Session {
	return &Session{
		ID:           id,
		UserID:       userID,
		RefreshToken: refreshToken,
		UserAgent:    optionalString(meta.UserAgent),
		IP:           optionalString(meta.IP),
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    expiresAt,
	}
}
