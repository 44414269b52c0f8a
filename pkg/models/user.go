package models

import "time"

// Role of an authenticated user
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleAssistant Role = "assistant"
	RoleStudent   Role = "student"
)

// TokenResponse is returned by the login endpoint
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	UserID      string `json:"user_id"`
	Role        Role   `json:"role"`
	ExpiresIn   int64  `json:"expires_in,omitempty"`
}

// User represents a platform account
type User struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Role      Role      `json:"role"`
	Disabled  bool      `json:"disabled"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Lecture groups problems of one course unit
type Lecture struct {
	ID        int       `json:"id"`
	Title     string    `json:"title"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Problems  []Problem `json:"problems,omitempty"`
}

// Problem is a programming assignment inside a lecture
type Problem struct {
	LectureID     int    `json:"lecture_id"`
	AssignmentID  int    `json:"assignment_id"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	MaxScore      int    `json:"max_score,omitempty"`
	TimeLimitMS   int    `json:"time_ms,omitempty"`
	MemoryLimitMB int    `json:"memory_mb,omitempty"`
}

// ProgressStatus values of the single-submission progress stream
const (
	ProgressStatusQueued  = "queued"
	ProgressStatusRunning = "running"
	ProgressStatusDone    = "done"
	ProgressStatusError   = "error"
)

// ProgressEvent is one progress report for a single submission
type ProgressEvent struct {
	Status             string      `json:"status"`
	Message            string      `json:"message"`
	ProgressPercentage float64     `json:"progress_percentage"`
	Result             *Submission `json:"result,omitempty"`
}

// IsFinal reports whether no further events follow
func (e ProgressEvent) IsFinal() bool {
	return e.Status == ProgressStatusDone || e.Status == ProgressStatusError
}
