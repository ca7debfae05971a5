package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/hubfleet/hubfleet/pkg/log"
	"github.com/hubfleet/hubfleet/pkg/types"
)

// API is the engine operation surface the rest of hubfleet depends on.
// *Client implements it; tests substitute fakes.
type API interface {
	InspectService(ctx context.Context, ref string) (*types.Service, error)
	CreateService(ctx context.Context, spec types.ServiceSpec) (string, error)
	RemoveService(ctx context.Context, id string) error
	ListTasks(ctx context.Context, service string, desired types.TaskState) ([]types.Task, error)
	Ping(ctx context.Context) error
}

// ErrFacadeClosed is returned for calls issued after Close.
var ErrFacadeClosed = errors.New("engine facade closed")

// Result is the resolved value of one facade call.
type Result struct {
	Value any
	Err   error
}

type call struct {
	fn   func(api API) (any, error)
	done chan Result
}

// Facade serializes every engine operation through a single worker so two
// overlapping mutations can never race on the same service identity. The
// underlying connection is dialed lazily by the worker on the first call and
// reused for the life of the process.
type Facade struct {
	dial    func() (API, error)
	calls   chan *call
	closing chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// NewFacade creates a facade around a dial function. The dial function runs
// at most once, on the worker goroutine, when the first call arrives.
func NewFacade(dial func() (API, error)) *Facade {
	f := &Facade{
		dial:    dial,
		calls:   make(chan *call, 16),
		closing: make(chan struct{}),
	}
	f.wg.Add(1)
	go f.worker()
	return f
}

// NewFacadeForConfig is the common construction path: lazily dial the
// configured engine endpoint.
func NewFacadeForConfig(cfg Config) *Facade {
	return NewFacade(func() (API, error) {
		client, err := NewClient(cfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	})
}

func (f *Facade) worker() {
	defer f.wg.Done()
	var (
		api     API
		dialErr error
		dialed  bool
	)
	serve := func(c *call) {
		if !dialed {
			api, dialErr = f.dial()
			dialed = true
			if dialErr != nil {
				logger := log.WithComponent("engine")
				logger.Error().Err(dialErr).Msg("engine connection failed")
			}
		}
		if dialErr != nil {
			c.done <- Result{Err: dialErr}
			return
		}
		value, err := c.fn(api)
		c.done <- Result{Value: value, Err: err}
	}
	for {
		select {
		case c := <-f.calls:
			serve(c)
		case <-f.closing:
			// Resolve anything still queued so no caller hangs.
			for {
				select {
				case c := <-f.calls:
					c.done <- Result{Err: ErrFacadeClosed}
				default:
					return
				}
			}
		}
	}
}

// Do enqueues fn for the worker and returns a future that resolves exactly
// once. The caller may abandon the future; the call still completes against
// the engine, which stays the source of truth.
func (f *Facade) Do(fn func(api API) (any, error)) <-chan Result {
	done := make(chan Result, 1)
	select {
	case f.calls <- &call{fn: fn, done: done}:
	case <-f.closing:
		done <- Result{Err: ErrFacadeClosed}
		return done
	}

	// The send can land after the worker's drain loop has already exited.
	// When that happens every queued call belongs to the shutdown window,
	// so resolving any one of them keeps the invariant that no future is
	// left unresolved: each racing sender enqueued one call and dequeues
	// at most one, and a sender finding the queue empty proves its own
	// call was resolved by another.
	select {
	case <-f.closing:
		select {
		case c := <-f.calls:
			c.done <- Result{Err: ErrFacadeClosed}
		default:
		}
	default:
	}
	return done
}

func (f *Facade) await(ctx context.Context, fn func(api API) (any, error)) (any, error) {
	future := f.Do(fn)
	select {
	case res := <-future:
		return res.Value, res.Err
	case <-ctx.Done():
		// The in-flight call is left to complete; an abandoned flow cannot
		// corrupt engine state, only leave work to reconcile next attempt.
		return nil, ctx.Err()
	}
}

// InspectService looks up a service through the serialized worker.
func (f *Facade) InspectService(ctx context.Context, ref string) (*types.Service, error) {
	v, err := f.await(ctx, func(api API) (any, error) {
		return api.InspectService(ctx, ref)
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.Service), nil
}

// CreateService submits a specification through the serialized worker.
func (f *Facade) CreateService(ctx context.Context, spec types.ServiceSpec) (string, error) {
	v, err := f.await(ctx, func(api API) (any, error) {
		return api.CreateService(ctx, spec)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// RemoveService deletes a service through the serialized worker.
func (f *Facade) RemoveService(ctx context.Context, id string) error {
	_, err := f.await(ctx, func(api API) (any, error) {
		return nil, api.RemoveService(ctx, id)
	})
	return err
}

// ListTasks lists service tasks through the serialized worker.
func (f *Facade) ListTasks(ctx context.Context, service string, desired types.TaskState) ([]types.Task, error) {
	v, err := f.await(ctx, func(api API) (any, error) {
		return api.ListTasks(ctx, service, desired)
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.([]types.Task), nil
}

// Ping probes connectivity through the serialized worker.
func (f *Facade) Ping(ctx context.Context) error {
	_, err := f.await(ctx, func(api API) (any, error) {
		return nil, api.Ping(ctx)
	})
	return err
}

// Close stops accepting calls and waits for the worker to drain.
func (f *Facade) Close() {
	f.once.Do(func() {
		close(f.closing)
	})
	f.wg.Wait()
}

// Process-wide facade lifecycle. The hub process holds exactly one engine
// connection shared by every session; Init wires it once and Shutdown tears
// it down on exit. Components receive the *Facade by injection.
var (
	defaultMu     sync.Mutex
	defaultFacade *Facade
)

// Init returns the process-wide facade, constructing it on first use.
func Init(cfg Config) *Facade {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultFacade == nil {
		defaultFacade = NewFacadeForConfig(cfg)
	}
	return defaultFacade
}

// Shutdown closes the process-wide facade if Init created one.
func Shutdown() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultFacade != nil {
		defaultFacade.Close()
		defaultFacade = nil
	}
}
