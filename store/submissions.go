package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/mbolis/intake-survey/model"
	"github.com/pkg/errors"
)

func decodeAssessment(raw sql.NullString) (*model.Assessment, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	assessment := &model.Assessment{}
	err := json.Unmarshal([]byte(raw.String), assessment)
	if err != nil {
		return nil, err
	}
	return assessment, nil
}

func (s *Store) Submission(ctx context.Context, id string) (model.Submission, error) {
	sub := model.Submission{}
	var status string
	var assessment sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, survey_id, user_id, status, assessment, created_at, updated_at
		FROM submission
		WHERE id = ?`,
		id,
	).Scan(&sub.ID, &sub.SurveyID, &sub.UserID, &status, &assessment, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return model.Submission{}, notFound(err, "db.get_submission")
	}
	sub.Status = model.Status(status)

	sub.Assessment, err = decodeAssessment(assessment)
	if err != nil {
		return model.Submission{}, errors.Wrap(err, "db.get_submission.parse_assessment")
	}
	return sub, nil
}

// InsertSubmission creates a submission for sub.SurveyID and sub.UserID and
// returns the stored row. An empty status defaults to in_progress.
func (s *Store) InsertSubmission(ctx context.Context, sub model.Submission) (model.Submission, error) {
	if sub.Status == "" {
		sub.Status = model.StatusInProgress
	}
	sub.ID = newID()
	sub.CreatedAt = s.now()
	sub.UpdatedAt = sub.CreatedAt
	sub.Assessment = nil

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO submission (id, survey_id, user_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sub.ID,
		sub.SurveyID,
		sub.UserID,
		string(sub.Status),
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	if err != nil {
		return model.Submission{}, errors.Wrap(err, "db.insert_submission")
	}
	return sub, nil
}

func (s *Store) UpdateSubmissionStatus(ctx context.Context, id string, status model.Status) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE submission
		SET
			status = ?,
			updated_at = ?
		WHERE id = ?`,
		string(status),
		s.now(),
		id,
	)
	if err != nil {
		return errors.Wrap(err, "db.update_submission_status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "db.update_submission_status.verify")
	}
	if n < 1 {
		return errors.WithMessage(ErrNotFound, "db.update_submission_status")
	}
	return nil
}

func (s *Store) SetAssessment(ctx context.Context, id string, assessment model.Assessment) error {
	b, err := json.Marshal(assessment)
	if err != nil {
		return errors.Wrap(err, "db.set_assessment.encode")
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE submission
		SET
			assessment = ?,
			updated_at = ?
		WHERE id = ?`,
		string(b),
		s.now(),
		id,
	)
	if err != nil {
		return errors.Wrap(err, "db.set_assessment")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "db.set_assessment.verify")
	}
	if n < 1 {
		return errors.WithMessage(ErrNotFound, "db.set_assessment")
	}
	return nil
}

// UserSubmissions lists the submissions of one user, newest first, with the
// title and slug of their survey.
func (s *Store) UserSubmissions(ctx context.Context, userID string) ([]model.SubmissionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			s.id, s.survey_id, s.user_id, s.status, s.created_at, s.updated_at,
			v.title, v.slug
		FROM submission s
		INNER JOIN survey v ON (v.id = s.survey_id)
		WHERE s.user_id = ?
		ORDER BY s.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "db.get_user_submissions")
	}
	defer rows.Close()

	submissions := []model.SubmissionSummary{}
	for rows.Next() {
		sub := model.SubmissionSummary{Survey: &model.SurveyRef{}}
		var status string
		err = rows.Scan(
			&sub.ID, &sub.SurveyID, &sub.UserID, &status, &sub.CreatedAt, &sub.UpdatedAt,
			&sub.Survey.Title, &sub.Survey.Slug,
		)
		if err != nil {
			return nil, errors.Wrap(err, "db.get_user_submissions.scan")
		}
		sub.Status = model.Status(status)
		submissions = append(submissions, sub)
	}
	return submissions, errors.Wrap(rows.Err(), "db.get_user_submissions.next")
}

// ListSubmissions lists every submission, newest first, joined with its survey
// and owner.
func (s *Store) ListSubmissions(ctx context.Context) ([]model.SubmissionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			s.id, s.survey_id, s.user_id, s.status, s.created_at, s.updated_at,
			v.title, v.slug,
			u.full_name, u.email
		FROM submission s
		INNER JOIN survey v ON (v.id = s.survey_id)
		LEFT OUTER JOIN user u ON (u.id = s.user_id)
		ORDER BY s.created_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "db.get_submissions")
	}
	defer rows.Close()

	submissions := []model.SubmissionSummary{}
	for rows.Next() {
		sub := model.SubmissionSummary{Survey: &model.SurveyRef{}}
		var status string
		var fullName, email sql.NullString
		err = rows.Scan(
			&sub.ID, &sub.SurveyID, &sub.UserID, &status, &sub.CreatedAt, &sub.UpdatedAt,
			&sub.Survey.Title, &sub.Survey.Slug,
			&fullName, &email,
		)
		if err != nil {
			return nil, errors.Wrap(err, "db.get_submissions.scan")
		}
		sub.Status = model.Status(status)
		if email.Valid {
			sub.User = &model.UserRef{FullName: fullName.String, Email: email.String}
		}
		submissions = append(submissions, sub)
	}
	return submissions, errors.Wrap(rows.Err(), "db.get_submissions.next")
}

// DeleteSubmission removes a submission owned by userID together with its answers.
func (s *Store) DeleteSubmission(ctx context.Context, id, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "db.begin_tx")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM answer
		WHERE submission_id IN (
			SELECT id FROM submission WHERE id = ? AND user_id = ?
		)`,
		id,
		userID,
	)
	if err != nil {
		return errors.Wrap(err, "db.delete_submission.answers")
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM submission
		WHERE id = ?
			AND user_id = ?`,
		id,
		userID,
	)
	if err != nil {
		return errors.Wrap(err, "db.delete_submission")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "db.delete_submission.verify")
	}
	if n < 1 {
		return errors.WithMessage(ErrNotFound, "db.delete_submission")
	}

	return errors.Wrap(tx.Commit(), "db.delete_submission.commit")
}
