package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/mbolis/intake-survey/model"
	"github.com/pkg/errors"
)

func (s *Store) SurveyBySlug(ctx context.Context, slug string) (model.Survey, error) {
	survey := model.Survey{}
	var createdBy sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, slug, title, description, created_by, created_at
		FROM survey
		WHERE slug = ?`,
		slug,
	).Scan(&survey.ID, &survey.Slug, &survey.Title, &survey.Description, &createdBy, &survey.CreatedAt)
	if err != nil {
		return model.Survey{}, notFound(err, "db.get_survey")
	}
	survey.CreatedBy = createdBy.String
	return survey, nil
}

func (s *Store) ListSurveys(ctx context.Context) ([]model.Survey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, slug, title, description, created_by, created_at
		FROM survey
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "db.get_surveys")
	}
	defer rows.Close()

	surveys := []model.Survey{}
	for rows.Next() {
		survey := model.Survey{}
		var createdBy sql.NullString
		err = rows.Scan(&survey.ID, &survey.Slug, &survey.Title, &survey.Description, &createdBy, &survey.CreatedAt)
		if err != nil {
			return nil, errors.Wrap(err, "db.get_surveys.scan")
		}
		survey.CreatedBy = createdBy.String
		surveys = append(surveys, survey)
	}
	return surveys, errors.Wrap(rows.Err(), "db.get_surveys.next")
}

// CreateSurvey inserts a survey and its questions in one transaction. Question
// ids and the survey id are generated; display orders must be unique.
func (s *Store) CreateSurvey(ctx context.Context, survey model.Survey, questions []model.Question) (model.Survey, []model.Question, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Survey{}, nil, errors.Wrap(err, "db.begin_tx")
	}
	defer tx.Rollback()

	survey.ID = newID()
	survey.CreatedAt = s.now()
	var createdBy any
	if survey.CreatedBy != "" {
		createdBy = survey.CreatedBy
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO survey (id, slug, title, description, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		survey.ID,
		survey.Slug,
		survey.Title,
		survey.Description,
		createdBy,
		survey.CreatedAt,
	)
	if err != nil {
		return model.Survey{}, nil, conflict(err, "db.insert_survey")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO question (id, survey_id, ui_order, question_text, help_text, input_type, options, required)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return model.Survey{}, nil, errors.Wrap(err, "db.insert_survey.questions.prepare")
	}
	defer stmt.Close()

	created := make([]model.Question, len(questions))
	for i, q := range questions {
		q.ID = newID()
		q.SurveyID = survey.ID

		var optionsJson any
		if len(q.Options) > 0 {
			b, err := json.Marshal(q.Options)
			if err != nil {
				return model.Survey{}, nil, errors.Wrap(err, "db.insert_survey.questions.options")
			}
			optionsJson = string(b)
		}
		_, err = stmt.ExecContext(ctx, q.ID, q.SurveyID, q.Order, q.Text, q.HelpText, string(q.Kind), optionsJson, q.Required)
		if err != nil {
			return model.Survey{}, nil, conflict(err, "db.insert_survey.questions.insert")
		}
		created[i] = q
	}

	err = tx.Commit()
	if err != nil {
		return model.Survey{}, nil, errors.Wrap(err, "db.insert_survey.commit")
	}
	return survey, created, nil
}
