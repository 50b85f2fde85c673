package survey

import (
	"context"
	"sort"

	"github.com/mbolis/intake-survey/model"
	"github.com/mbolis/intake-survey/store"
	"github.com/pkg/errors"
)

// SurveyReader is the part of the data service the loader needs.
type SurveyReader interface {
	SurveyBySlug(ctx context.Context, slug string) (model.Survey, error)
	QuestionsBySurvey(ctx context.Context, surveyID string) ([]model.Question, error)
}

type Loader struct {
	surveys SurveyReader
}

func NewLoader(surveys SurveyReader) *Loader {
	return &Loader{surveys: surveys}
}

// Load resolves a survey and its questions, ordered by display order.
// A missing survey is ErrNotFound, any failure fetching questions ErrLoadFailure.
func (l *Loader) Load(ctx context.Context, slug string) (model.Survey, []model.Question, error) {
	if slug == "" {
		return model.Survey{}, nil, WithKind(ErrNotFound, errors.New("empty survey slug"))
	}

	survey, err := l.surveys.SurveyBySlug(ctx, slug)
	if errors.Is(err, store.ErrNotFound) {
		return model.Survey{}, nil, WithKind(ErrNotFound, err)
	}
	if err != nil {
		return model.Survey{}, nil, WithKind(ErrLoadFailure, err)
	}

	questions, err := l.surveys.QuestionsBySurvey(ctx, survey.ID)
	if err != nil {
		return model.Survey{}, nil, WithKind(ErrLoadFailure, err)
	}
	sort.SliceStable(questions, func(i, j int) bool { return questions[i].Order < questions[j].Order })

	return survey, questions, nil
}
