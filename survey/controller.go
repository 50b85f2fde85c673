package survey

import (
	"context"
	"sync"
	"time"

	"github.com/mbolis/intake-survey/log"
	"github.com/mbolis/intake-survey/metrics"
	"github.com/mbolis/intake-survey/model"
	"github.com/mbolis/intake-survey/session"
	"github.com/mbolis/intake-survey/store"
	"github.com/pkg/errors"
)

// ErrNotTraversing is returned by question operations when no question is on
// screen: the survey is not loaded, has no questions, or is completed.
var ErrNotTraversing = errors.New("no question on screen")

// NoticeStartingFresh is shown when resuming a submission failed.
const NoticeStartingFresh = "Failed to load existing answers. Starting fresh."

// Store is the data service used by a traversal.
type Store interface {
	SurveyReader
	SubmissionCreator
	AnswerWriter
	Submission(ctx context.Context, id string) (model.Submission, error)
	UpdateSubmissionStatus(ctx context.Context, id string, status model.Status) error
	AnswersBySubmission(ctx context.Context, submissionID string) ([]model.Answer, error)
}

type Intent string

const (
	IntentEdit     Intent = "edit"
	IntentContinue Intent = "continue"
)

// ResumeParams come from the navigation query string. Edit wins when both are set.
type ResumeParams struct {
	Edit     string
	Continue string
}

func (p ResumeParams) target() (string, Intent) {
	switch {
	case p.Edit != "":
		return p.Edit, IntentEdit
	case p.Continue != "":
		return p.Continue, IntentContinue
	}
	return "", ""
}

// ResumeURL is the survey page link that picks sub up again: completed
// submissions are edited (forked), the others continued.
func ResumeURL(slug string, sub model.Submission) string {
	if sub.Status == model.StatusCompleted {
		return "/survey/" + slug + "?edit=" + sub.ID
	}
	return "/survey/" + slug + "?continue=" + sub.ID
}

type Options struct {
	Clock       Clock
	Debounce    time.Duration
	SavedFlash  time.Duration
	SaveTimeout time.Duration
	// OnComplete receives the submission id once it is marked completed.
	// It is called without any controller lock held.
	OnComplete func(submissionID string)
}

// Controller walks one user through the questions of one survey, one question
// at a time, and marks the submission completed past the last question.
type Controller struct {
	store    Store
	loader   *Loader
	identity session.Provider
	cell     *SubmissionCell
	opts     Options
	inflight sync.WaitGroup

	mu        sync.Mutex
	slug      string
	survey    model.Survey
	questions []model.Question
	loaded    bool
	index     int
	answers   map[string]model.Answer
	editor    *Editor
	intent    Intent
	notice    string
	completed bool
	closed    bool

	// completing is set while the completed status is being written.
	completing bool
}

func NewController(s Store, identity session.Provider, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = RealClock
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = DefaultSaveTimeout
	}
	return &Controller{
		store:    s,
		loader:   NewLoader(s),
		identity: identity,
		cell:     NewSubmissionCell(s, identity),
		opts:     opts,
		answers:  map[string]model.Answer{},
	}
}

// Load fetches the survey and its questions. Loading the slug already loaded
// is a no-op; a different slug starts the traversal over.
func (c *Controller) Load(ctx context.Context, slug string) error {
	c.mu.Lock()
	if c.loaded && c.slug == slug {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	survey, questions, err := c.loader.Load(ctx, slug)
	if err != nil {
		log.Debugf("survey.load %q: %v", slug, err)
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if c.loaded && c.slug != slug {
		c.unmountLocked()
		c.index = 0
		c.answers = map[string]model.Answer{}
		c.cell.Set("")
		c.intent = ""
		c.completed = false
		c.completing = false
	}
	c.slug = slug
	c.survey = survey
	c.questions = questions
	c.loaded = true
	completing := c.reconcileLocked()
	c.mu.Unlock()

	c.complete(completing)
	return nil
}

// Reload re-fetches the questions of the loaded survey. If the list shrank
// below the current position the traversal completes.
func (c *Controller) Reload(ctx context.Context) error {
	c.mu.Lock()
	slug, loaded := c.slug, c.loaded
	c.mu.Unlock()
	if !loaded {
		return ErrNotTraversing
	}

	_, questions, err := c.loader.Load(ctx, slug)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed || c.completed || c.completing {
		c.mu.Unlock()
		return nil
	}
	c.questions = questions
	completing := c.reconcileLocked()
	c.mu.Unlock()

	c.complete(completing)
	return nil
}

// Resume adopts an existing submission. With IntentEdit a completed
// submission is forked into a new in_progress one; answers of the source
// submission seed the local state either way. On failure the traversal
// starts fresh and the error is returned.
func (c *Controller) Resume(ctx context.Context, p ResumeParams) error {
	id, intent := p.target()
	if id == "" {
		return nil
	}

	sub, err := c.store.Submission(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return c.startFresh(intent, WithKind(ErrNotFound, err))
	}
	if err != nil {
		return c.startFresh(intent, WithKind(ErrLoadFailure, err))
	}
	if user := c.identity.CurrentUser(); user == nil || user.ID != sub.UserID {
		return c.startFresh(intent, WithKind(ErrNotFound, errors.Errorf("submission %s is not yours", id)))
	}
	c.mu.Lock()
	surveyID := c.survey.ID
	c.mu.Unlock()
	if surveyID != "" && surveyID != sub.SurveyID {
		return c.startFresh(intent, WithKind(ErrNotFound, errors.Errorf("submission %s answers another survey", id)))
	}

	active := sub.ID
	if intent == IntentEdit && sub.Status == model.StatusCompleted {
		forked, err := c.store.InsertSubmission(ctx, model.Submission{
			SurveyID: sub.SurveyID,
			UserID:   sub.UserID,
			Status:   model.StatusInProgress,
		})
		if err != nil {
			return c.startFresh(intent, WithKind(ErrForkFailure, err))
		}
		active = forked.ID
		metrics.SubmissionsCreated.WithLabelValues("fork").Inc()
	}

	rows, err := c.store.AnswersBySubmission(ctx, sub.ID)
	if err != nil {
		return c.startFresh(intent, WithKind(ErrLoadFailure, err))
	}
	answers := make(map[string]model.Answer, len(rows))
	for _, a := range rows {
		answers[a.QuestionID] = a
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.cell.Set(active)
	c.answers = answers
	c.intent = intent
	c.notice = ""
	c.resyncLocked()

	metrics.Resumes.WithLabelValues(string(intent), "ok").Inc()
	log.WithFields(log.Fields{"source": sub.ID, "submission": active, "intent": intent}).
		Debug("survey.resume")
	return nil
}

func (c *Controller) startFresh(intent Intent, err error) error {
	metrics.Resumes.WithLabelValues(string(intent), "failed").Inc()
	log.Errorf("survey.resume: %v", err)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cell.Set("")
	c.answers = map[string]model.Answer{}
	c.intent = ""
	c.notice = NoticeStartingFresh
	c.resyncLocked()
	return err
}

func (c *Controller) resyncLocked() {
	if c.editor == nil {
		return
	}
	if a, ok := c.answers[c.editor.Question().ID]; ok {
		c.editor.Resync(&a)
	} else {
		c.editor.Resync(nil)
	}
}

// Advance moves to the next question, completing past the last one.
func (c *Controller) Advance() {
	c.mu.Lock()
	if !c.traversingLocked() {
		c.mu.Unlock()
		return
	}
	c.index++
	completing := c.reconcileLocked()
	c.mu.Unlock()

	c.complete(completing)
}

// Retreat moves to the previous question; it does nothing on the first one.
func (c *Controller) Retreat() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.traversingLocked() || c.index == 0 {
		return
	}
	c.index--
	c.mountLocked()
}

// Next is the manual advance of the question on screen: save now, move on.
func (c *Controller) Next() error {
	e, err := c.currentEditor()
	if err != nil {
		return err
	}
	e.Advance()
	return nil
}

func (c *Controller) Edit(value any) error {
	e, err := c.currentEditor()
	if err != nil {
		return err
	}
	return e.Edit(value)
}

func (c *Controller) Toggle(option string, checked bool) error {
	e, err := c.currentEditor()
	if err != nil {
		return err
	}
	return e.Toggle(option, checked)
}

// KeyPress forwards a key to the question on screen and reports whether its
// default action was suppressed.
func (c *Controller) KeyPress(key string) (bool, error) {
	e, err := c.currentEditor()
	if err != nil {
		return false, err
	}
	return e.KeyPress(key), nil
}

func (c *Controller) currentEditor() (*Editor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editor == nil {
		return nil, ErrNotTraversing
	}
	return c.editor, nil
}

func (c *Controller) traversingLocked() bool {
	return c.loaded && !c.closed && !c.completed && !c.completing && len(c.questions) > 0
}

// reconcileLocked applies the index-based completion check and mounts the
// question at the current index. Past the last question it returns the
// submission to complete; the caller completes it once c.mu is released.
func (c *Controller) reconcileLocked() string {
	total := len(c.questions)
	if total == 0 || c.closed || c.completed {
		c.unmountLocked()
		c.index = 0
		return ""
	}
	if c.index < total {
		c.mountLocked()
		return ""
	}

	sid := c.cell.ID()
	if sid == "" {
		log.Warn("survey.complete: no active submission")
		c.index = total - 1
		c.mountLocked()
		return ""
	}
	c.completing = true
	c.unmountLocked()
	return sid
}

// complete marks sid completed. It runs without c.mu held; on failure the
// last question is mounted again.
func (c *Controller) complete(sid string) {
	if sid == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.SaveTimeout)
	defer cancel()
	err := c.store.UpdateSubmissionStatus(ctx, sid, model.StatusCompleted)

	c.mu.Lock()
	current := c.completing && c.cell.ID() == sid
	if current {
		c.completing = false
	}
	if err != nil {
		log.WithFields(log.Fields{"submission": sid}).Errorf("survey.complete: %v", err)
		if current && !c.closed {
			c.index = len(c.questions) - 1
			c.mountLocked()
		}
		c.mu.Unlock()
		return
	}
	if current {
		c.completed = true
	}
	c.mu.Unlock()

	metrics.SubmissionsCompleted.Inc()
	c.handoff(sid)
}

func (c *Controller) handoff(sid string) {
	if sid != "" && c.opts.OnComplete != nil {
		c.opts.OnComplete(sid)
	}
}

func (c *Controller) mountLocked() {
	q := c.questions[c.index]
	if c.editor != nil && c.editor.Question().ID == q.ID {
		return
	}
	c.unmountLocked()

	var seed *model.Answer
	if a, ok := c.answers[q.ID]; ok {
		seed = &a
	}
	c.editor = NewEditor(q, seed, c.store, c.cell, EditorConfig{
		Clock:       c.opts.Clock,
		Debounce:    c.opts.Debounce,
		SavedFlash:  c.opts.SavedFlash,
		SaveTimeout: c.opts.SaveTimeout,
		AutoFocus:   true,
		OnSaved:     c.onSaved,
		OnNext:      c.Advance,
		OnPrev:      c.Retreat,
		persisted:   c.recordAnswer,
		inflight:    &c.inflight,
	})
}

func (c *Controller) unmountLocked() {
	if c.editor != nil {
		c.editor.Close()
		c.editor = nil
	}
}

// recordAnswer sees every stored row, including those of retired editors.
// The question on screen is resynced when the row belongs to it.
func (c *Controller) recordAnswer(a model.Answer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.answers[a.QuestionID] = a
	if c.editor != nil && c.editor.Question().ID == a.QuestionID {
		c.editor.Resync(&a)
	}
}

func (c *Controller) onSaved(a model.Answer, submissionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.answers[a.QuestionID] = a
	if c.editor != nil && c.editor.Question().ID == a.QuestionID {
		c.editor.Resync(&a)
	}
}

// SubmissionID is the active submission, or "" before the first save.
func (c *Controller) SubmissionID() string {
	return c.cell.ID()
}

// Answers returns a copy of the last known stored answer of each question.
func (c *Controller) Answers() map[string]model.Answer {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]model.Answer, len(c.answers))
	for k, v := range c.answers {
		out[k] = v
	}
	return out
}

type View struct {
	Survey       model.Survey    `json:"survey"`
	Empty        bool            `json:"empty"`
	Index        int             `json:"index"`
	Total        int             `json:"total"`
	Progress     float64         `json:"progress"`
	Question     *model.Question `json:"question,omitempty"`
	Value        any             `json:"value,omitempty"`
	Status       SaveStatus      `json:"status,omitempty"`
	Focused      bool            `json:"focused,omitempty"`
	Multiline    bool            `json:"multiline,omitempty"`
	SubmissionID string          `json:"submission_id,omitempty"`
	Mode         Intent          `json:"mode,omitempty"`
	Notice       string          `json:"notice,omitempty"`
	Completed    bool            `json:"completed"`
	ReviewURL    string          `json:"review_url,omitempty"`
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		Survey:       c.survey,
		Empty:        c.loaded && len(c.questions) == 0,
		Index:        c.index,
		Total:        len(c.questions),
		SubmissionID: c.cell.ID(),
		Mode:         c.intent,
		Notice:       c.notice,
		Completed:    c.completed,
	}
	if v.Total > 0 {
		v.Progress = float64(c.index+1) / float64(v.Total) * 100
		if v.Progress > 100 {
			v.Progress = 100
		}
	}
	if c.completed {
		v.ReviewURL = "/review/" + v.SubmissionID
	}
	if c.editor != nil {
		st := c.editor.State()
		v.Question = &st.Question
		v.Value = st.Value
		v.Status = st.Status
		v.Focused = st.Focused
		v.Multiline = st.Multiline
	}
	return v
}

// Wait blocks until every save started by the traversal is done.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

// Close unmounts the question on screen and waits for in-flight saves until
// ctx is done.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.unmountLocked()
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "survey.close")
	}
}
