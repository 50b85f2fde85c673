package model

import (
	"encoding/json"
	"time"
)

type Survey struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type InputKind string

const (
	InputText     InputKind = "text"
	InputNumber   InputKind = "number"
	InputDate     InputKind = "date"
	InputSelect   InputKind = "select"
	InputRadio    InputKind = "radio"
	InputCheckbox InputKind = "checkbox"
)

// IsChoice reports whether answers of this kind are picked among the question options.
func (k InputKind) IsChoice() bool {
	return k == InputSelect || k == InputRadio || k == InputCheckbox
}

type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type Question struct {
	ID       string    `json:"id"`
	SurveyID string    `json:"survey_id"`
	Order    int       `json:"ui_order"`
	Text     string    `json:"question_text"`
	HelpText string    `json:"help_text,omitempty"`
	Kind     InputKind `json:"input_type"`
	Options  []Option  `json:"options,omitempty"`
	Required bool      `json:"required"`
}

// OptionLabel returns the label of the option with the given value, or the value itself.
func (q Question) OptionLabel(value string) string {
	for _, o := range q.Options {
		if o.Value == value {
			return o.Label
		}
	}
	return value
}

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

type Submission struct {
	ID         string      `json:"id"`
	SurveyID   string      `json:"survey_id"`
	UserID     string      `json:"user_id"`
	Status     Status      `json:"status"`
	Assessment *Assessment `json:"assessment,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// SubmissionSummary is a submission joined with the survey it answers and,
// for admin listings, the user who owns it.
type SubmissionSummary struct {
	Submission
	Survey *SurveyRef `json:"survey,omitempty"`
	User   *UserRef   `json:"user,omitempty"`
}

type SurveyRef struct {
	Title string `json:"title"`
	Slug  string `json:"slug"`
}

type UserRef struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

// Answer is the persisted value of one question within one submission.
// When JSON is set it is the source of truth and Text mirrors it for display.
type Answer struct {
	ID           string          `json:"id,omitempty"`
	SubmissionID string          `json:"submission_id"`
	QuestionID   string          `json:"question_id"`
	Text         *string         `json:"answer_text"`
	JSON         json.RawMessage `json:"answer_json"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type Assessment struct {
	Summary         string        `json:"summary" validate:"required"`
	CareType        string        `json:"care_type" validate:"required"`
	RiskFactors     []string      `json:"risk_factors"`
	EstimatedCost   EstimatedCost `json:"estimated_cost"`
	Recommendations []string      `json:"recommendations"`
}

type EstimatedCost struct {
	Yearly   int64  `json:"yearly" validate:"gte=0"`
	Monthly  int64  `json:"monthly" validate:"gte=0"`
	Location string `json:"location"`
}

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
	Role     Role   `json:"role"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
