// Package review renders a submission read-only: each answered question with
// its formatted answer, and the assessment attached to the submission.
package review

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mbolis/intake-survey/model"
	"github.com/mbolis/intake-survey/store"
	"github.com/mbolis/intake-survey/survey"
	"github.com/pkg/errors"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const NoAnswer = "No answer provided"

type Source interface {
	Submission(ctx context.Context, id string) (model.Submission, error)
	AnswersBySubmission(ctx context.Context, submissionID string) ([]model.Answer, error)
	QuestionsByIDs(ctx context.Context, ids []string) ([]model.Question, error)
}

type Entry struct {
	AnswerID   string `json:"answer_id"`
	QuestionID string `json:"question_id"`
	Question   string `json:"question"`
	HelpText   string `json:"help_text,omitempty"`
	Answer     string `json:"answer"`
}

type Review struct {
	Submission model.Submission `json:"submission"`
	Entries    []Entry          `json:"entries"`
	Assessment *Assessment      `json:"assessment"`
}

type Assessment struct {
	Summary         string   `json:"summary"`
	CareType        string   `json:"care_type"`
	RiskFactors     []string `json:"risk_factors"`
	MonthlyCost     string   `json:"monthly_cost"`
	YearlyCost      string   `json:"yearly_cost"`
	Location        string   `json:"location"`
	Recommendations []string `json:"recommendations"`
}

// Build loads submission id for viewer. Only the owner and administrators may
// see a submission; anyone else gets survey.ErrNotFound.
func Build(ctx context.Context, src Source, id string, viewer model.User) (Review, error) {
	sub, err := src.Submission(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return Review{}, survey.WithKind(survey.ErrNotFound, err)
	}
	if err != nil {
		return Review{}, survey.WithKind(survey.ErrLoadFailure, err)
	}
	if sub.UserID != viewer.ID && !viewer.IsAdmin() {
		return Review{}, survey.WithKind(survey.ErrNotFound, errors.Errorf("review.get_submission: %s is not visible to %s", id, viewer.ID))
	}

	answers, err := src.AnswersBySubmission(ctx, id)
	if err != nil {
		return Review{}, survey.WithKind(survey.ErrLoadFailure, err)
	}

	ids := make([]string, len(answers))
	for i, a := range answers {
		ids[i] = a.QuestionID
	}
	questions, err := src.QuestionsByIDs(ctx, ids)
	if err != nil {
		return Review{}, survey.WithKind(survey.ErrLoadFailure, err)
	}
	byID := make(map[string]model.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	entries := make([]Entry, 0, len(answers))
	for _, a := range answers {
		q, ok := byID[a.QuestionID]
		if !ok {
			continue
		}
		entries = append(entries, Entry{
			AnswerID:   a.ID,
			QuestionID: q.ID,
			Question:   q.Text,
			HelpText:   q.HelpText,
			Answer:     FormatAnswer(a, q),
		})
	}

	return Review{
		Submission: sub,
		Entries:    entries,
		Assessment: FormatAssessment(sub.Assessment),
	}, nil
}

// FormatAnswer renders a stored answer as display text. Lists are joined with
// ", ", other structured values are shown as JSON.
func FormatAnswer(a model.Answer, q model.Question) string {
	if len(a.JSON) > 0 && string(a.JSON) != "null" {
		var items []any
		if err := json.Unmarshal(a.JSON, &items); err == nil {
			parts := make([]string, len(items))
			for i, item := range items {
				parts[i] = formatItem(item, q)
			}
			return strings.Join(parts, ", ")
		}
		var v any
		if err := json.Unmarshal(a.JSON, &v); err == nil {
			compact, _ := json.Marshal(v)
			return string(compact)
		}
		return string(a.JSON)
	}

	if a.Text == nil || *a.Text == "" {
		return NoAnswer
	}
	if q.Kind.IsChoice() {
		return q.OptionLabel(*a.Text)
	}
	return *a.Text
}

func formatItem(item any, q model.Question) string {
	switch v := item.(type) {
	case string:
		if q.Kind.IsChoice() {
			return q.OptionLabel(v)
		}
		return v
	case nil:
		return ""
	case float64, bool:
		return fmt.Sprint(v)
	}
	b, _ := json.Marshal(item)
	return string(b)
}

var printer = message.NewPrinter(language.English)

// FormatAssessment prepares an assessment for display; nil stays nil.
func FormatAssessment(a *model.Assessment) *Assessment {
	if a == nil {
		return nil
	}
	return &Assessment{
		Summary:         a.Summary,
		CareType:        a.CareType,
		RiskFactors:     nonNil(a.RiskFactors),
		MonthlyCost:     Cost(a.EstimatedCost.Monthly),
		YearlyCost:      Cost(a.EstimatedCost.Yearly),
		Location:        a.EstimatedCost.Location,
		Recommendations: nonNil(a.Recommendations),
	}
}

// Cost formats an amount of rupees with thousands separators: "PKR 12,345".
func Cost(amount int64) string {
	return printer.Sprintf("PKR %d", amount)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
