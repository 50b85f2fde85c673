package store

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mbolis/intake-survey/model"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})

	s := New(db)
	s.now = func() time.Time { return fixedNow }
	return s, mock
}

func TestSurveyBySlug(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("FROM survey")).
		WithArgs("intake-2024").
		WillReturnRows(sqlmock.NewRows([]string{"id", "slug", "title", "description", "created_by", "created_at"}).
			AddRow("s-1", "intake-2024", "Intake", "", nil, fixedNow))

	survey, err := s.SurveyBySlug(ctx, "intake-2024")
	require.NoError(t, err)
	assert.Equal(t, "s-1", survey.ID)
	assert.Equal(t, "Intake", survey.Title)
	assert.Empty(t, survey.CreatedBy)

	mock.ExpectQuery(regexp.QuoteMeta("FROM survey")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err = s.SurveyBySlug(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestQuestionsBySurveyParsesOptions(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY ui_order")).
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "survey_id", "ui_order", "question_text", "help_text", "input_type", "options", "required"}).
			AddRow("q-1", "s-1", 1, "Name?", "", "text", nil, true).
			AddRow("q-2", "s-1", 2, "Mobility?", "", "radio", `[{"label":"Walks","value":"walks"}]`, false))

	questions, err := s.QuestionsBySurvey(context.Background(), "s-1")
	require.NoError(t, err)
	require.Len(t, questions, 2)

	assert.Equal(t, model.InputText, questions[0].Kind)
	assert.Nil(t, questions[0].Options)
	assert.Equal(t, []model.Option{{Label: "Walks", Value: "walks"}}, questions[1].Options)
}

func TestQuestionsByIDs(t *testing.T) {
	s, mock := newMockStore(t)

	questions, err := s.QuestionsByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, questions)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id IN (?,?)")).
		WithArgs("q-1", "q-2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "survey_id", "ui_order", "question_text", "help_text", "input_type", "options", "required"}).
			AddRow("q-1", "s-1", 1, "Name?", "", "text", nil, false))

	questions, err = s.QuestionsByIDs(context.Background(), []string{"q-1", "q-2"})
	require.NoError(t, err)
	assert.Len(t, questions, 1)
}

func TestInsertSubmission(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO submission")).
		WithArgs(sqlmock.AnyArg(), "s-1", "u-1", "in_progress", fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))

	sub, err := s.InsertSubmission(context.Background(), model.Submission{SurveyID: "s-1", UserID: "u-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, model.StatusInProgress, sub.Status)
}

func TestUpdateSubmissionStatus(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE submission")).
		WithArgs("completed", fixedNow, "sub-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, s.UpdateSubmissionStatus(ctx, "sub-1", model.StatusCompleted))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE submission")).
		WithArgs("completed", fixedNow, "sub-404").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := s.UpdateSubmissionStatus(ctx, "sub-404", model.StatusCompleted)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUpsertAnswerSendsStructuredValue(t *testing.T) {
	s, mock := newMockStore(t)

	text := `["x","y"]`
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (submission_id, question_id) DO UPDATE")).
		WithArgs(sqlmock.AnyArg(), "sub-1", "q-1", text, `["x","y"]`, fixedNow, fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"id", "submission_id", "question_id", "answer_text", "answer_json", "created_at", "updated_at"}).
			AddRow("a-1", "sub-1", "q-1", text, `["x","y"]`, fixedNow, fixedNow))

	saved, err := s.UpsertAnswer(context.Background(), model.Answer{
		SubmissionID: "sub-1",
		QuestionID:   "q-1",
		Text:         &text,
		JSON:         []byte(`["x","y"]`),
	})
	require.NoError(t, err)
	assert.Equal(t, "a-1", saved.ID)
	assert.JSONEq(t, `["x","y"]`, string(saved.JSON))
}

func TestUpsertAnswerScalarClearsStructured(t *testing.T) {
	s, mock := newMockStore(t)

	text := "42"
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO answer")).
		WithArgs(sqlmock.AnyArg(), "sub-1", "q-2", text, nil, fixedNow, fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"id", "submission_id", "question_id", "answer_text", "answer_json", "created_at", "updated_at"}).
			AddRow("a-2", "sub-1", "q-2", text, nil, fixedNow, fixedNow))

	saved, err := s.UpsertAnswer(context.Background(), model.Answer{SubmissionID: "sub-1", QuestionID: "q-2", Text: &text})
	require.NoError(t, err)
	assert.Nil(t, saved.JSON)
	require.NotNil(t, saved.Text)
	assert.Equal(t, "42", *saved.Text)
}

func TestDeleteSubmission(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM answer")).
		WithArgs("sub-1", "u-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM submission")).
		WithArgs("sub-1", "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	assert.NoError(t, s.DeleteSubmission(context.Background(), "sub-1", "u-1"))
}

func TestDeleteSubmissionOfSomeoneElse(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM answer")).
		WithArgs("sub-1", "u-2").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM submission")).
		WithArgs("sub-1", "u-2").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.DeleteSubmission(context.Background(), "sub-1", "u-2")
	assert.True(t, errors.Is(err, ErrNotFound))
}
