package survey

import (
	"context"
	"sync"
	"time"

	"github.com/mbolis/intake-survey/log"
	"github.com/mbolis/intake-survey/metrics"
	"github.com/mbolis/intake-survey/model"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

type SaveStatus string

const (
	SaveIdle   SaveStatus = "idle"
	SaveSaving SaveStatus = "saving"
	SaveSaved  SaveStatus = "saved"
	SaveError  SaveStatus = "error"
)

const (
	DefaultDebounce    = 800 * time.Millisecond
	DefaultSavedFlash  = 800 * time.Millisecond
	DefaultSaveTimeout = 10 * time.Second
)

var errEditorClosed = errors.New("question editor closed")

// AnswerWriter upserts an answer keyed on (submission, question).
type AnswerWriter interface {
	UpsertAnswer(ctx context.Context, a model.Answer) (model.Answer, error)
}

type EditorConfig struct {
	Clock       Clock
	Debounce    time.Duration
	SavedFlash  time.Duration
	SaveTimeout time.Duration
	AutoFocus   bool

	// OnSaved is called after each applied save with the stored row and the
	// submission it belongs to. Results of stale saves, and of saves that
	// resolve after Close, are not reported.
	OnSaved func(answer model.Answer, submissionID string)
	OnNext  func()
	OnPrev  func()

	// persisted sees every stored row, stale or not.
	persisted func(model.Answer)
	inflight  *sync.WaitGroup
}

func (cfg EditorConfig) withDefaults() EditorConfig {
	if cfg.Clock == nil {
		cfg.Clock = RealClock
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.SavedFlash <= 0 {
		cfg.SavedFlash = DefaultSavedFlash
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = DefaultSaveTimeout
	}
	if cfg.inflight == nil {
		cfg.inflight = &sync.WaitGroup{}
	}
	return cfg
}

// Editor owns the local edit state of the question on screen and persists it.
//
// Edits are debounced; the first save of a traversal lazily creates its
// submission through the shared SubmissionCell. Every edit or resync bumps a
// sequence number, and a save that resolves after a newer one is discarded.
type Editor struct {
	question model.Question
	kind     inputKind
	answers  AnswerWriter
	cell     *SubmissionCell
	cfg      EditorConfig
	debounce *debouncer

	alive  *atomic.Bool
	seq    *atomic.Uint64
	saving *atomic.Int32

	mu       sync.Mutex
	value    any
	answerID string
	status   SaveStatus
	revert   Timer
}

// NewEditor mounts q with the local value seeded from answer, which may be nil.
func NewEditor(q model.Question, answer *model.Answer, answers AnswerWriter, cell *SubmissionCell, cfg EditorConfig) *Editor {
	cfg = cfg.withDefaults()
	e := &Editor{
		question: q,
		kind:     kindOf(q),
		answers:  answers,
		cell:     cell,
		cfg:      cfg,
		debounce: newDebouncer(cfg.Clock, cfg.Debounce),
		alive:    atomic.NewBool(true),
		seq:      atomic.NewUint64(0),
		saving:   atomic.NewInt32(0),
		status:   SaveIdle,
	}
	if answer != nil {
		e.answerID = answer.ID
	}
	e.value = e.seed(answer)
	return e
}

func (e *Editor) seed(a *model.Answer) any {
	if a == nil {
		return e.kind.empty()
	}
	raw := decodeAnswer(a)
	v, err := e.kind.normalize(e.question, raw)
	if err != nil {
		log.Debugf("survey.seed_answer: keeping stored value: %v", err)
		return raw
	}
	return v
}

func (e *Editor) Question() model.Question {
	return e.question
}

// Edit replaces the local value and re-arms the debounced save.
func (e *Editor) Edit(value any) error {
	return e.update(func(any) any { return value })
}

// Toggle checks or unchecks one option of a checkbox question.
func (e *Editor) Toggle(option string, checked bool) error {
	if e.question.Kind != model.InputCheckbox {
		return invalid(e.question, "toggle on a %s question", e.question.Kind)
	}
	return e.update(func(current any) any {
		set, _ := current.([]string)
		return toggle(set, option, checked)
	})
}

func (e *Editor) update(next func(current any) any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.alive.Load() {
		return errEditorClosed
	}
	v, err := e.kind.normalize(e.question, next(e.value))
	if err != nil {
		return err
	}
	e.value = v
	e.seq.Inc()
	e.debounce.Arm(e.flush)
	return nil
}

// Resync reseeds the local value when the identity of the supplied answer
// differs from the one the editor holds. Unsaved edits are dropped.
func (e *Editor) Resync(answer *model.Answer) {
	id := ""
	if answer != nil {
		id = answer.ID
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.alive.Load() || id == e.answerID {
		return
	}
	e.answerID = id
	e.value = e.seed(answer)
	e.seq.Inc()
	e.debounce.Cancel()
}

// Save writes the current local value. It is safe to call concurrently; the
// upsert keeps a single row per question and the last write wins.
func (e *Editor) Save(ctx context.Context) error {
	e.mu.Lock()
	value := e.value
	seq := e.seq.Load()
	e.saving.Inc()
	e.setStatusLocked(SaveSaving)
	e.mu.Unlock()

	saved, sid, err := e.persist(ctx, value)
	e.saving.Dec()
	fields := log.Fields{"question": e.question.ID, "submission": sid}
	if err != nil {
		metrics.AnswerSaves.WithLabelValues("failed").Inc()
		log.WithFields(fields).Errorf("survey.save_answer: %v", err)

		e.mu.Lock()
		if e.alive.Load() && e.seq.Load() == seq {
			e.setStatusLocked(SaveError)
		}
		e.mu.Unlock()
		return err
	}

	if e.cfg.persisted != nil {
		e.cfg.persisted(saved)
	}

	e.mu.Lock()
	if !e.alive.Load() || e.seq.Load() != seq {
		// a newer save or a pending debounce still owns the saving status
		if e.status == SaveSaving && e.saving.Load() == 0 && !e.debounce.Pending() {
			e.setStatusLocked(SaveIdle)
		}
		e.mu.Unlock()
		metrics.AnswerSaves.WithLabelValues("discarded").Inc()
		log.WithFields(fields).Debug("survey.save_answer: result discarded")
		return nil
	}
	e.setStatusLocked(SaveSaved)
	e.scheduleRevertLocked()
	e.mu.Unlock()

	metrics.AnswerSaves.WithLabelValues("saved").Inc()
	if e.cfg.OnSaved != nil {
		e.cfg.OnSaved(saved, sid)
	}
	return nil
}

func (e *Editor) persist(ctx context.Context, value any) (model.Answer, string, error) {
	sid, err := e.cell.Ensure(ctx, e.question.SurveyID)
	if err != nil {
		return model.Answer{}, "", err
	}

	text, structured, err := encodeValue(value)
	if err != nil {
		return model.Answer{}, sid, WithKind(ErrSaveFailure, err)
	}

	saved, err := e.answers.UpsertAnswer(ctx, model.Answer{
		SubmissionID: sid,
		QuestionID:   e.question.ID,
		Text:         &text,
		JSON:         structured,
	})
	if err != nil {
		return model.Answer{}, sid, WithKind(ErrSaveFailure, err)
	}
	return saved, sid, nil
}

func (e *Editor) setStatusLocked(s SaveStatus) {
	e.status = s
	if e.revert != nil && s != SaveSaved {
		e.revert.Stop()
		e.revert = nil
	}
}

func (e *Editor) scheduleRevertLocked() {
	if e.revert != nil {
		e.revert.Stop()
	}
	e.revert = e.cfg.Clock.AfterFunc(e.cfg.SavedFlash, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.alive.Load() && e.status == SaveSaved {
			e.status = SaveIdle
		}
	})
}

// track registers a save about to start, unless the editor is closed.
func (e *Editor) track() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.alive.Load() {
		return false
	}
	e.cfg.inflight.Add(1)
	return true
}

func (e *Editor) detachedSave() {
	defer e.cfg.inflight.Done()
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.SaveTimeout)
	defer cancel()
	_ = e.Save(ctx)
}

// flush runs when the debounce window settles.
func (e *Editor) flush() {
	if e.track() {
		e.detachedSave()
	}
}

// Advance saves immediately and, without waiting for the save, asks to move
// to the next question.
func (e *Editor) Advance() {
	if !e.alive.Load() {
		return
	}
	e.debounce.Cancel()
	if e.track() {
		go e.detachedSave()
	}
	if e.cfg.OnNext != nil {
		e.cfg.OnNext()
	}
}

// Retreat asks to move to the previous question. Pending edits are dropped
// with the editor when it is closed.
func (e *Editor) Retreat() {
	if e.alive.Load() && e.cfg.OnPrev != nil {
		e.cfg.OnPrev()
	}
}

// KeyPress handles a key typed in the input. Enter advances on single-line
// kinds; the return value tells whether the key's default action is suppressed.
func (e *Editor) KeyPress(key string) bool {
	if key != "Enter" || e.kind.multiline() {
		return false
	}
	e.Advance()
	return true
}

// Close tears the editor down: pending timers are cancelled and results of
// in-flight saves are ignored.
func (e *Editor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.alive.CAS(true, false) {
		return
	}
	e.debounce.Cancel()
	if e.revert != nil {
		e.revert.Stop()
		e.revert = nil
	}
}

// Wait blocks until the saves started by this editor are done.
func (e *Editor) Wait() {
	e.cfg.inflight.Wait()
}

type EditorState struct {
	Question  model.Question `json:"question"`
	Value     any            `json:"value"`
	Status    SaveStatus     `json:"status"`
	Focused   bool           `json:"focused"`
	Multiline bool           `json:"multiline"`
}

func (e *Editor) State() EditorState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return EditorState{
		Question:  e.question,
		Value:     e.value,
		Status:    e.status,
		Focused:   e.cfg.AutoFocus,
		Multiline: e.kind.multiline(),
	}
}
