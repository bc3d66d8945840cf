package presence

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dkoval/wirechat/internal/model"
)

type fakeHandle struct {
	id uuid.UUID
}

func (f *fakeHandle) IdentityID() uuid.UUID    { return f.id }
func (f *fakeHandle) Enqueue(model.Event) bool { return true }

func Test_Register_And_Resolve(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	alice := uuid.New()

	h := &fakeHandle{id: alice}
	r.Register(h)

	resolved := r.Resolve(alice)
	req.Len(resolved, 1)
	req.Same(h, resolved[0].(*fakeHandle))

	req.Empty(r.Resolve(uuid.New()), "unknown identity must resolve to an empty set")
}

func Test_Second_Connection_Adds_A_Target(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	alice := uuid.New()

	phone := &fakeHandle{id: alice}
	laptop := &fakeHandle{id: alice}
	r.Register(phone)
	r.Register(laptop)

	req.Len(r.Resolve(alice), 2)
	req.Equal(2, r.Count())
}

func Test_Unregister_Removes_Only_The_Matching_Handle(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	alice := uuid.New()

	phone := &fakeHandle{id: alice}
	laptop := &fakeHandle{id: alice}
	r.Register(phone)
	r.Register(laptop)

	r.Unregister(phone)

	resolved := r.Resolve(alice)
	req.Len(resolved, 1)
	req.Same(laptop, resolved[0].(*fakeHandle))

	// Idempotent: a second unregister of the same handle changes nothing.
	r.Unregister(phone)
	req.Len(r.Resolve(alice), 1)

	r.Unregister(laptop)
	req.Empty(r.Resolve(alice))
	req.Zero(r.Count())
}

func Test_ResolveAll_Spans_Identities(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	r.Register(&fakeHandle{id: uuid.New()})
	r.Register(&fakeHandle{id: uuid.New()})
	r.Register(&fakeHandle{id: uuid.New()})

	req.Len(r.ResolveAll(), 3)
}

func Test_Concurrent_Lifecycles(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	const n = 64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			h := &fakeHandle{id: uuid.New()}
			r.Register(h)
			_ = r.ResolveAll()
			r.Unregister(h)
			r.Unregister(h)
		}()
	}
	wg.Wait()

	req.Zero(r.Count(), "every registered handle must be gone after its lifecycle ends")
}
