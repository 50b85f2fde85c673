package survey

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mbolis/intake-survey/model"
	"github.com/mbolis/intake-survey/session"
	"github.com/mbolis/intake-survey/store"
	"github.com/pkg/errors"
)

// memStore is an in-memory Store that records every write.
type memStore struct {
	mu sync.Mutex

	surveys     map[string]model.Survey
	questions   map[string][]model.Question
	submissions map[string]model.Submission
	answers     map[[2]string]model.Answer
	nextID      int

	upserts       []model.Answer
	inserts       []model.Submission
	statusUpdates []string
	surveyLoads   int

	failQuestions error
	failInsert    error
	failUpsert    error
	failUpdate    error
	failAnswers   error

	upsertEntered chan struct{}
	upsertGate    chan struct{}
	updateEntered chan struct{}
	updateGate    chan struct{}
}

func newMemStore() *memStore {
	return &memStore{
		surveys:     map[string]model.Survey{},
		questions:   map[string][]model.Question{},
		submissions: map[string]model.Submission{},
		answers:     map[[2]string]model.Answer{},
	}
}

func (s *memStore) id(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%d", prefix, s.nextID)
}

// addSurvey stores a survey whose questions have the given kinds, in order.
func (s *memStore) addSurvey(slug string, kinds ...model.InputKind) (model.Survey, []model.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()

	survey := model.Survey{ID: s.id("survey"), Slug: slug, Title: slug}
	s.surveys[slug] = survey

	questions := make([]model.Question, len(kinds))
	for i, k := range kinds {
		q := model.Question{
			ID:       s.id("q"),
			SurveyID: survey.ID,
			Order:    i + 1,
			Text:     fmt.Sprintf("question %d", i+1),
			Kind:     k,
		}
		if k.IsChoice() {
			q.Options = []model.Option{{Label: "X", Value: "x"}, {Label: "Y", Value: "y"}, {Label: "Z", Value: "z"}}
		}
		questions[i] = q
	}
	s.questions[survey.ID] = questions
	return survey, questions
}

func (s *memStore) addSubmission(surveyID, userID string, status model.Status, answers map[string]string) model.Submission {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := model.Submission{ID: s.id("sub"), SurveyID: surveyID, UserID: userID, Status: status}
	s.submissions[sub.ID] = sub
	for qid, text := range answers {
		text := text
		s.answers[[2]string{sub.ID, qid}] = model.Answer{ID: s.id("a"), SubmissionID: sub.ID, QuestionID: qid, Text: &text}
	}
	return sub
}

func (s *memStore) SurveyBySlug(ctx context.Context, slug string) (model.Survey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surveyLoads++
	survey, ok := s.surveys[slug]
	if !ok {
		return model.Survey{}, errors.WithMessage(store.ErrNotFound, "db.get_survey")
	}
	return survey, nil
}

func (s *memStore) QuestionsBySurvey(ctx context.Context, surveyID string) ([]model.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failQuestions != nil {
		return nil, s.failQuestions
	}
	return append([]model.Question(nil), s.questions[surveyID]...), nil
}

func (s *memStore) setQuestions(surveyID string, questions []model.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions[surveyID] = questions
}

func (s *memStore) Submission(ctx context.Context, id string) (model.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[id]
	if !ok {
		return model.Submission{}, errors.WithMessage(store.ErrNotFound, "db.get_submission")
	}
	return sub, nil
}

func (s *memStore) InsertSubmission(ctx context.Context, sub model.Submission) (model.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsert != nil {
		return model.Submission{}, s.failInsert
	}
	sub.ID = s.id("sub")
	s.submissions[sub.ID] = sub
	s.inserts = append(s.inserts, sub)
	return sub, nil
}

func (s *memStore) UpdateSubmissionStatus(ctx context.Context, id string, status model.Status) error {
	s.mu.Lock()
	entered, gate := s.updateEntered, s.updateGate
	s.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdate != nil {
		return s.failUpdate
	}
	sub, ok := s.submissions[id]
	if !ok {
		return store.ErrNotFound
	}
	sub.Status = status
	s.submissions[id] = sub
	s.statusUpdates = append(s.statusUpdates, id)
	return nil
}

func (s *memStore) AnswersBySubmission(ctx context.Context, submissionID string) ([]model.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAnswers != nil {
		return nil, s.failAnswers
	}
	answers := []model.Answer{}
	for key, a := range s.answers {
		if key[0] == submissionID {
			answers = append(answers, a)
		}
	}
	sort.Slice(answers, func(i, j int) bool { return answers[i].ID < answers[j].ID })
	return answers, nil
}

func (s *memStore) UpsertAnswer(ctx context.Context, a model.Answer) (model.Answer, error) {
	s.mu.Lock()
	entered, gate := s.upsertEntered, s.upsertGate
	s.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpsert != nil {
		return model.Answer{}, s.failUpsert
	}
	key := [2]string{a.SubmissionID, a.QuestionID}
	if prev, ok := s.answers[key]; ok {
		a.ID = prev.ID
	} else {
		a.ID = s.id("a")
	}
	s.answers[key] = a
	s.upserts = append(s.upserts, a)
	return a, nil
}

// block makes UpsertAnswer wait. Each call signals on the first channel and
// proceeds once the second one is sent to.
func (s *memStore) block() (entered <-chan struct{}, release chan<- struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertEntered = make(chan struct{})
	s.upsertGate = make(chan struct{})
	return s.upsertEntered, s.upsertGate
}

// blockUpdates is block for UpdateSubmissionStatus.
func (s *memStore) blockUpdates() (entered <-chan struct{}, release chan<- struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateEntered = make(chan struct{})
	s.updateGate = make(chan struct{})
	return s.updateEntered, s.updateGate
}

func (s *memStore) unblock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertEntered, s.upsertGate = nil, nil
}

func (s *memStore) upsertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.upserts)
}

func (s *memStore) lastUpsert() model.Answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts[len(s.upserts)-1]
}

func (s *memStore) statusUpdateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.statusUpdates)
}

func (s *memStore) status(id string) model.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submissions[id].Status
}

func (s *memStore) fail(set func(s *memStore)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set(s)
}

// fakeClock fires timers only when advanced, on the caller's goroutine.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= c.now {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at < due[j].at })
	for _, t := range due {
		t.f()
	}
}

// Pending counts the timers that are neither stopped nor fired.
func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

var testUser = model.User{ID: "u-1", Email: "ada@example.com", Role: model.RoleUser}

func signedIn() *session.Holder {
	u := testUser
	return session.NewHolder(&u)
}
