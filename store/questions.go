package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/mbolis/intake-survey/model"
	"github.com/pkg/errors"
)

const questionColumns = `id, survey_id, ui_order, question_text, help_text, input_type, options, required`

func scanQuestions(rows *sql.Rows, code string) ([]model.Question, error) {
	defer rows.Close()

	questions := []model.Question{}
	for rows.Next() {
		q := model.Question{}
		var kind string
		var opts sql.NullString
		err := rows.Scan(&q.ID, &q.SurveyID, &q.Order, &q.Text, &q.HelpText, &kind, &opts, &q.Required)
		if err != nil {
			return nil, errors.Wrap(err, code+".scan")
		}
		q.Kind = model.InputKind(kind)

		if opts.Valid && opts.String != "" {
			err = json.Unmarshal([]byte(opts.String), &q.Options)
			if err != nil {
				return nil, errors.Wrap(err, code+".parse_options")
			}
		}
		questions = append(questions, q)
	}
	return questions, errors.Wrap(rows.Err(), code+".next")
}

// QuestionsBySurvey returns the questions of a survey in display order.
func (s *Store) QuestionsBySurvey(ctx context.Context, surveyID string) ([]model.Question, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+questionColumns+`
		FROM question
		WHERE survey_id = ?
		ORDER BY ui_order`,
		surveyID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "db.get_questions")
	}
	return scanQuestions(rows, "db.get_questions")
}

// QuestionsByIDs looks up a batch of questions; unknown ids are skipped.
func (s *Store) QuestionsByIDs(ctx context.Context, ids []string) ([]model.Question, error) {
	if len(ids) == 0 {
		return []model.Question{}, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+questionColumns+`
		FROM question
		WHERE id IN (`+placeholders(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return nil, errors.Wrap(err, "db.get_questions_by_id")
	}
	return scanQuestions(rows, "db.get_questions_by_id")
}
