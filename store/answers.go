package store

import (
	"context"
	"database/sql"

	"github.com/mbolis/intake-survey/model"
	"github.com/pkg/errors"
)

const answerColumns = `id, submission_id, question_id, answer_text, answer_json, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnswer(row rowScanner) (model.Answer, error) {
	a := model.Answer{}
	var text, structured sql.NullString
	err := row.Scan(&a.ID, &a.SubmissionID, &a.QuestionID, &text, &structured, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return model.Answer{}, err
	}
	if text.Valid {
		a.Text = &text.String
	}
	a.JSON = rawJSON(structured)
	return a, nil
}

// AnswersBySubmission returns the answers of a submission in creation order.
func (s *Store) AnswersBySubmission(ctx context.Context, submissionID string) ([]model.Answer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+answerColumns+`
		FROM answer
		WHERE submission_id = ?
		ORDER BY created_at`,
		submissionID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "db.get_answers")
	}
	defer rows.Close()

	answers := []model.Answer{}
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, errors.Wrap(err, "db.get_answers.scan")
		}
		answers = append(answers, a)
	}
	return answers, errors.Wrap(rows.Err(), "db.get_answers.next")
}

// UpsertAnswer writes the answer for (SubmissionID, QuestionID). A second write
// for the same pair overwrites the values of the first and keeps its id.
func (s *Store) UpsertAnswer(ctx context.Context, a model.Answer) (model.Answer, error) {
	now := s.now()
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO answer (id, submission_id, question_id, answer_text, answer_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (submission_id, question_id) DO UPDATE SET
			answer_text = excluded.answer_text,
			answer_json = excluded.answer_json,
			updated_at = excluded.updated_at
		RETURNING `+answerColumns,
		newID(),
		a.SubmissionID,
		a.QuestionID,
		a.Text,
		nullJSON(a.JSON),
		now,
		now,
	)
	saved, err := scanAnswer(row)
	if err != nil {
		return model.Answer{}, errors.Wrap(err, "db.upsert_answer")
	}
	return saved, nil
}
