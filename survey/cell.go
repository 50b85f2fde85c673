package survey

import (
	"context"
	"sync"

	"github.com/mbolis/intake-survey/log"
	"github.com/mbolis/intake-survey/metrics"
	"github.com/mbolis/intake-survey/model"
	"github.com/mbolis/intake-survey/session"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// SubmissionCreator inserts a submission and returns the stored row.
type SubmissionCreator interface {
	InsertSubmission(ctx context.Context, sub model.Submission) (model.Submission, error)
}

// SubmissionCell holds the active submission id of one traversal. It is shared
// by the controller and the question editor on screen.
type SubmissionCell struct {
	creator  SubmissionCreator
	identity session.Provider

	mu       sync.RWMutex
	id       string
	creating singleflight.Group
}

func NewSubmissionCell(creator SubmissionCreator, identity session.Provider) *SubmissionCell {
	return &SubmissionCell{creator: creator, identity: identity}
}

func (c *SubmissionCell) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// Set adopts id as the active submission; "" clears it.
func (c *SubmissionCell) Set(id string) {
	c.mu.Lock()
	c.id = id
	c.mu.Unlock()
}

// Ensure returns the active submission id, creating an in_progress submission
// of surveyID for the current user when none is held. Concurrent callers share
// a single creation and all receive its id.
func (c *SubmissionCell) Ensure(ctx context.Context, surveyID string) (string, error) {
	if id := c.ID(); id != "" {
		return id, nil
	}

	v, err, _ := c.creating.Do(surveyID, func() (any, error) {
		if id := c.ID(); id != "" {
			return id, nil
		}

		user := c.identity.CurrentUser()
		if user == nil {
			return "", ErrUnauthenticated
		}

		sub, err := c.creator.InsertSubmission(ctx, model.Submission{
			SurveyID: surveyID,
			UserID:   user.ID,
			Status:   model.StatusInProgress,
		})
		if err != nil {
			return "", WithKind(ErrSaveFailure, errors.WithMessage(err, "survey.ensure_submission"))
		}

		c.mu.Lock()
		if c.id == "" {
			c.id = sub.ID
		}
		id := c.id
		c.mu.Unlock()

		metrics.SubmissionsCreated.WithLabelValues("first_save").Inc()
		log.WithFields(log.Fields{"submission": sub.ID, "survey": surveyID, "user": user.ID}).
			Debug("survey.ensure_submission: created")
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
