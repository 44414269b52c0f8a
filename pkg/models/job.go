package models

import (
	"time"
)

// JobStatus represents the status of a batch submission
type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
)

// Progress represents the progress of a grading or validation job
type Progress string

const (
	ProgressPending Progress = "pending"
	ProgressQueued  Progress = "queued"
	ProgressRunning Progress = "running"
	ProgressDone    Progress = "done"
)

// Trackable is implemented by every server-owned entity the client
// observes until it reaches a terminal status.
type Trackable interface {
	TrackingID() int
	IsTerminal() bool
}

// BatchSubmission is a server-side evaluation of many student submissions
type BatchSubmission struct {
	ID            int       `json:"id"`
	LectureID     int       `json:"lecture_id"`
	AssignmentID  int       `json:"assignment_id"`
	Status        JobStatus `json:"status"`
	CompleteJudge int       `json:"complete_judge"`
	TotalJudge    int       `json:"total_judge"`
	Message       string    `json:"message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// TrackingID implements Trackable
func (b BatchSubmission) TrackingID() int { return b.ID }

// IsTerminal reports whether the batch has finished judging.
// Only the status field decides; the counters are informational.
func (b BatchSubmission) IsTerminal() bool {
	return b.Status == JobStatusDone
}

// Percent returns judged/total as a 0-100 integer
func (b BatchSubmission) Percent() int {
	if b.TotalJudge <= 0 {
		return 0
	}
	return b.CompleteJudge * 100 / b.TotalJudge
}

// GradingJob is a server-side grading run whose artifacts are shipped as
// compressed file payloads.
type GradingJob struct {
	ID        int           `json:"id"`
	BatchID   int           `json:"batch_id,omitempty"`
	UserID    string        `json:"user_id,omitempty"`
	Progress  Progress      `json:"progress"`
	Score     *float64      `json:"score,omitempty"`
	Files     []FilePayload `json:"files,omitempty"`
	Message   string        `json:"message,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// TrackingID implements Trackable
func (g GradingJob) TrackingID() int { return g.ID }

// IsTerminal implements Trackable
func (g GradingJob) IsTerminal() bool { return g.Progress == ProgressDone }

// ValidationResult is the result of validating a problem package
type ValidationResult struct {
	ID           int           `json:"id"`
	LectureID    int           `json:"lecture_id"`
	AssignmentID int           `json:"assignment_id"`
	Progress     Progress      `json:"progress"`
	Valid        *bool         `json:"valid,omitempty"`
	Files        []FilePayload `json:"files,omitempty"`
	Message      string        `json:"message,omitempty"`
}

// TrackingID implements Trackable
func (v ValidationResult) TrackingID() int { return v.ID }

// IsTerminal implements Trackable
func (v ValidationResult) IsTerminal() bool { return v.Progress == ProgressDone }

// Submission is a single student submission
type Submission struct {
	ID           int        `json:"id"`
	LectureID    int        `json:"lecture_id"`
	AssignmentID int        `json:"assignment_id"`
	UserID       string     `json:"user_id"`
	ResultID     ResultCode `json:"result_id"`
	Score        float64    `json:"score"`
	Message      string     `json:"message,omitempty"`
	SubmittedAt  time.Time  `json:"submitted_at"`
}

// TrackingID implements Trackable
func (s Submission) TrackingID() int { return s.ID }

// IsTerminal implements Trackable
func (s Submission) IsTerminal() bool { return s.ResultID.IsTerminal() }
