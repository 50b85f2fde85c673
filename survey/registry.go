package survey

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/mbolis/intake-survey/metrics"
	"github.com/mbolis/intake-survey/model"
	"github.com/mbolis/intake-survey/session"
	"github.com/pkg/errors"
)

var ErrRegistryClosed = errors.New("traversal registry closed")

type traversal struct {
	id          string
	owner       string
	ctrl        *Controller
	unsubscribe func()
}

type opKind int

const (
	opPut opKind = iota
	opGet
	opRemove
	opDrain
)

type registryOp struct {
	kind   opKind
	id     string
	entry  *traversal
	result chan<- []*traversal
}

// Registry holds the live traversals of the server. The table is owned by a
// single goroutine and only reached through its request channel.
type Registry struct {
	requests chan registryOp
	done     chan struct{}
}

func NewRegistry() *Registry {
	r := &Registry{
		requests: make(chan registryOp),
		done:     make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *Registry) loop() {
	traversals := make(map[string]*traversal)

	for {
		op := <-r.requests
		switch op.kind {
		case opPut:
			traversals[op.entry.id] = op.entry
			op.result <- nil
		case opGet:
			if t, ok := traversals[op.id]; ok {
				op.result <- []*traversal{t}
			} else {
				op.result <- nil
			}
		case opRemove:
			if t, ok := traversals[op.id]; ok {
				delete(traversals, op.id)
				op.result <- []*traversal{t}
			} else {
				op.result <- nil
			}
		case opDrain:
			all := make([]*traversal, 0, len(traversals))
			for _, t := range traversals {
				all = append(all, t)
			}
			op.result <- all
			close(r.done)
			return
		}
	}
}

func (r *Registry) do(op registryOp) ([]*traversal, bool) {
	result := make(chan []*traversal, 1)
	op.result = result
	select {
	case r.requests <- op:
		return <-result, true
	case <-r.done:
		return nil, false
	}
}

// Add registers ctrl for ownerID and returns its id. The traversal is closed
// as soon as identity reports that the owner signed out, and refused with
// ErrUnauthenticated when the owner is already signed out.
func (r *Registry) Add(ownerID string, identity session.Provider, ctrl *Controller) (string, error) {
	t := &traversal{
		id:    uuid.Must(uuid.NewV4()).String(),
		owner: ownerID,
		ctrl:  ctrl,
	}
	t.unsubscribe = identity.Subscribe(func(u *model.User) {
		if u == nil || u.ID != ownerID {
			_ = r.Remove(context.Background(), t.id)
		}
	})

	if _, ok := r.do(registryOp{kind: opPut, entry: t}); !ok {
		t.unsubscribe()
		return "", ErrRegistryClosed
	}
	metrics.Traversals.Inc()

	// a sign-out before the put found nothing to remove
	if u := identity.CurrentUser(); u == nil || u.ID != ownerID {
		_ = r.Remove(context.Background(), t.id)
		return "", WithKind(ErrUnauthenticated, errors.Errorf("owner %s signed out", ownerID))
	}
	return t.id, nil
}

// Get returns the traversal id if it belongs to ownerID.
func (r *Registry) Get(id, ownerID string) (*Controller, bool) {
	found, _ := r.do(registryOp{kind: opGet, id: id})
	if len(found) == 0 || found[0].owner != ownerID {
		return nil, false
	}
	return found[0].ctrl, true
}

// Remove drops a traversal and closes it. Unknown ids are ignored.
func (r *Registry) Remove(ctx context.Context, id string) error {
	found, _ := r.do(registryOp{kind: opRemove, id: id})
	if len(found) == 0 {
		return nil
	}
	return closeTraversal(ctx, found[0])
}

// Close stops the registry and closes every traversal it still holds.
func (r *Registry) Close(ctx context.Context) error {
	all, ok := r.do(registryOp{kind: opDrain})
	if !ok {
		return nil
	}

	var result *multierror.Error
	for _, t := range all {
		if err := closeTraversal(ctx, t); err != nil {
			result = multierror.Append(result, errors.WithMessagef(err, "traversal %s", t.id))
		}
	}
	return result.ErrorOrNil()
}

func closeTraversal(ctx context.Context, t *traversal) error {
	t.unsubscribe()
	metrics.Traversals.Dec()
	return t.ctrl.Close(ctx)
}
