package survey

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mbolis/intake-survey/model"
	"github.com/mbolis/intake-survey/session"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type editorHarness struct {
	store  *memStore
	clock  *fakeClock
	cell   *SubmissionCell
	editor *Editor

	mu    sync.Mutex
	saved []model.Answer
	nexts int
	prevs int
}

func newEditorHarness(t *testing.T, kind model.InputKind, seed *model.Answer) *editorHarness {
	return newEditorHarnessFor(t, kind, seed, signedIn())
}

func newEditorHarnessFor(t *testing.T, kind model.InputKind, seed *model.Answer, identity session.Provider) *editorHarness {
	h := &editorHarness{store: newMemStore(), clock: &fakeClock{}}
	h.cell = NewSubmissionCell(h.store, identity)
	h.editor = NewEditor(question(kind), seed, h.store, h.cell, EditorConfig{
		Clock: h.clock,
		OnSaved: func(a model.Answer, _ string) {
			h.mu.Lock()
			h.saved = append(h.saved, a)
			h.mu.Unlock()
		},
		OnNext: func() {
			h.mu.Lock()
			h.nexts++
			h.mu.Unlock()
		},
		OnPrev: func() {
			h.mu.Lock()
			h.prevs++
			h.mu.Unlock()
		},
	})
	t.Cleanup(func() {
		h.editor.Close()
		h.editor.Wait()
	})
	return h
}

func (h *editorHarness) savedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.saved)
}

func (h *editorHarness) nextCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nexts
}

func TestEditsCoalesceIntoOneSave(t *testing.T) {
	h := newEditorHarness(t, model.InputText, nil)

	for _, v := range []string{"J", "Jo", "Joh", "John"} {
		require.NoError(t, h.editor.Edit(v))
		h.clock.Advance(200 * time.Millisecond)
	}
	assert.Equal(t, 0, h.store.upsertCount())
	assert.Equal(t, SaveIdle, h.editor.State().Status)

	h.clock.Advance(600 * time.Millisecond)
	require.Equal(t, 1, h.store.upsertCount())
	saved := h.store.lastUpsert()
	assert.Equal(t, "John", *saved.Text)
	assert.Nil(t, saved.JSON)
	assert.Equal(t, h.cell.ID(), saved.SubmissionID)
	assert.Len(t, h.store.inserts, 1)

	assert.Equal(t, SaveSaved, h.editor.State().Status)
	assert.Equal(t, 1, h.savedCount())

	h.clock.Advance(800 * time.Millisecond)
	assert.Equal(t, SaveIdle, h.editor.State().Status)
}

func TestSecondSaveReusesSubmission(t *testing.T) {
	h := newEditorHarness(t, model.InputNumber, nil)

	require.NoError(t, h.editor.Edit(41))
	h.clock.Advance(time.Second)
	require.NoError(t, h.editor.Edit("42"))
	h.clock.Advance(time.Second)

	assert.Len(t, h.store.inserts, 1)
	assert.Equal(t, 2, h.store.upsertCount())
	assert.Equal(t, "42", *h.store.lastUpsert().Text)
	assert.Len(t, h.store.answers, 1)
}

func TestStatusIsSavingWhileWriteIsInFlight(t *testing.T) {
	h := newEditorHarness(t, model.InputText, nil)
	entered, release := h.store.block()

	require.NoError(t, h.editor.Edit("a"))
	done := make(chan error)
	go func() { done <- h.editor.Save(context.Background()) }()

	<-entered
	assert.Equal(t, SaveSaving, h.editor.State().Status)
	release <- struct{}{}
	require.NoError(t, <-done)
	assert.Equal(t, SaveSaved, h.editor.State().Status)
}

func TestSaveErrorIsNotRetried(t *testing.T) {
	h := newEditorHarness(t, model.InputText, nil)
	h.store.fail(func(s *memStore) { s.failUpsert = errors.New("connection reset") })

	require.NoError(t, h.editor.Edit("a"))
	h.clock.Advance(time.Second)
	assert.Equal(t, SaveError, h.editor.State().Status)
	assert.Equal(t, 0, h.clock.Pending())
	assert.Equal(t, 0, h.savedCount())

	h.store.fail(func(s *memStore) { s.failUpsert = nil })
	require.NoError(t, h.editor.Edit("ab"))
	h.clock.Advance(time.Second)
	assert.Equal(t, SaveSaved, h.editor.State().Status)
	assert.Equal(t, "ab", *h.store.lastUpsert().Text)
}

func TestSaveWithoutUser(t *testing.T) {
	h := newEditorHarnessFor(t, model.InputText, nil, session.NewHolder(nil))

	require.NoError(t, h.editor.Edit("a"))
	err := h.editor.Save(context.Background())
	assert.True(t, errors.Is(err, ErrUnauthenticated))
	assert.Equal(t, SaveError, h.editor.State().Status)
	assert.Empty(t, h.store.inserts)
	assert.Equal(t, 0, h.store.upsertCount())
}

func TestStructuredAnswer(t *testing.T) {
	h := newEditorHarness(t, model.InputCheckbox, nil)

	require.NoError(t, h.editor.Toggle("walks", true))
	require.NoError(t, h.editor.Toggle("wheelchair", true))
	require.NoError(t, h.editor.Toggle("walks", false))
	require.NoError(t, h.editor.Toggle("walks", true))
	assert.Equal(t, []string{"wheelchair", "walks"}, h.editor.State().Value)

	h.clock.Advance(time.Second)
	saved := h.store.lastUpsert()
	assert.JSONEq(t, `["wheelchair","walks"]`, string(saved.JSON))
	assert.Equal(t, `["wheelchair","walks"]`, *saved.Text)
}

func TestInvalidEditsAreRejected(t *testing.T) {
	h := newEditorHarness(t, model.InputCheckbox, nil)

	err := h.editor.Toggle("flies", true)
	assert.True(t, errors.Is(err, ErrInvalidValue))
	assert.Equal(t, []string{}, h.editor.State().Value)
	assert.Equal(t, 0, h.clock.Pending())

	n := newEditorHarness(t, model.InputNumber, nil)
	assert.True(t, errors.Is(n.editor.Edit("forty"), ErrInvalidValue))
	assert.True(t, errors.Is(n.editor.Toggle("x", true), ErrInvalidValue))
}

func TestStaleSaveIsDiscarded(t *testing.T) {
	h := newEditorHarness(t, model.InputText, nil)
	entered, release := h.store.block()

	require.NoError(t, h.editor.Edit("a"))
	done := make(chan error)
	go func() { done <- h.editor.Save(context.Background()) }()
	<-entered

	require.NoError(t, h.editor.Edit("ab"))
	release <- struct{}{}
	require.NoError(t, <-done)

	assert.Equal(t, 0, h.savedCount())
	assert.Equal(t, "ab", h.editor.State().Value)
	assert.NotEqual(t, SaveSaved, h.editor.State().Status)

	h.store.unblock()
	h.clock.Advance(time.Second)
	require.Equal(t, 1, h.savedCount())
	assert.Equal(t, "ab", *h.saved[0].Text)
	assert.Equal(t, 2, h.store.upsertCount())
	assert.Len(t, h.store.answers, 1)
}

func TestStaleSaveLeavesNewerSaveInFlight(t *testing.T) {
	h := newEditorHarness(t, model.InputText, nil)

	firstEntered, firstRelease := h.store.block()
	require.NoError(t, h.editor.Edit("a"))
	first := make(chan error)
	go func() { first <- h.editor.Save(context.Background()) }()
	<-firstEntered

	secondEntered, secondRelease := h.store.block()
	require.NoError(t, h.editor.Edit("b"))
	go h.clock.Advance(time.Second)
	<-secondEntered
	assert.Equal(t, SaveSaving, h.editor.State().Status)

	firstRelease <- struct{}{}
	require.NoError(t, <-first)
	assert.Equal(t, SaveSaving, h.editor.State().Status)

	secondRelease <- struct{}{}
	h.editor.Wait()
	assert.Equal(t, SaveSaved, h.editor.State().Status)
	require.Equal(t, 1, h.savedCount())
	assert.Equal(t, "b", *h.saved[0].Text)
}

func TestResyncFollowsAnswerIdentity(t *testing.T) {
	before := "before"
	h := newEditorHarness(t, model.InputText, &model.Answer{ID: "a-1", Text: &before})
	assert.Equal(t, "before", h.editor.State().Value)

	other := "other"
	h.editor.Resync(&model.Answer{ID: "a-1", Text: &other})
	assert.Equal(t, "before", h.editor.State().Value)

	require.NoError(t, h.editor.Edit("typing"))
	require.Equal(t, 1, h.clock.Pending())

	h.editor.Resync(&model.Answer{ID: "a-2", Text: &other})
	assert.Equal(t, "other", h.editor.State().Value)
	assert.Equal(t, 0, h.clock.Pending())

	h.editor.Resync(nil)
	assert.Equal(t, "", h.editor.State().Value)
}

func TestEnterAdvancesSingleLineKinds(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newEditorHarness(t, model.InputNumber, nil)
	require.NoError(t, h.editor.Edit(5))

	assert.False(t, h.editor.KeyPress("5"))
	assert.True(t, h.editor.KeyPress("Enter"))
	h.editor.Wait()

	assert.Equal(t, 1, h.nextCount())
	assert.Equal(t, 1, h.store.upsertCount())
	assert.Equal(t, "5", *h.store.lastUpsert().Text)

	h.clock.Advance(time.Second)
	assert.Equal(t, 1, h.store.upsertCount(), "debounced save cancelled by advance")
}

func TestEnterInTextareaIsKeptForNewline(t *testing.T) {
	h := newEditorHarness(t, model.InputText, nil)
	assert.True(t, h.editor.State().Multiline)

	assert.False(t, h.editor.KeyPress("Enter"))
	assert.Equal(t, 0, h.nextCount())
	assert.Equal(t, 0, h.store.upsertCount())
}

func TestAdvanceDoesNotWaitForSave(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newEditorHarness(t, model.InputDate, nil)
	entered, release := h.store.block()
	require.NoError(t, h.editor.Edit("1950-04-12"))

	h.editor.Advance()
	assert.Equal(t, 1, h.nextCount())

	<-entered
	release <- struct{}{}
	h.editor.Wait()
	assert.Equal(t, "1950-04-12", *h.store.lastUpsert().Text)
}

func TestRetreat(t *testing.T) {
	h := newEditorHarness(t, model.InputText, nil)
	h.editor.Retreat()
	assert.Equal(t, 1, h.prevs)
}

func TestClosedEditorIgnoresResults(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newEditorHarness(t, model.InputText, nil)
	entered, release := h.store.block()

	require.NoError(t, h.editor.Edit("a"))
	h.editor.Advance()
	<-entered

	require.NoError(t, h.editor.Edit("ab"))
	h.editor.Close()
	assert.Equal(t, 0, h.clock.Pending())
	assert.ErrorIs(t, h.editor.Edit("abc"), errEditorClosed)

	release <- struct{}{}
	h.editor.Wait()
	assert.Equal(t, 0, h.savedCount())
	assert.Equal(t, 1, h.store.upsertCount())

	h.editor.Advance()
	h.editor.Wait()
	assert.Equal(t, 1, h.nextCount())
}
