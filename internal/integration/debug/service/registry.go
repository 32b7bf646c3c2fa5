package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Errors returned by the registry.
var (
	// ErrServiceNotFound is returned when no service is registered under a name.
	ErrServiceNotFound = errors.New("service not found")

	// ErrDuplicateService is returned when a name is registered twice.
	ErrDuplicateService = errors.New("service already registered")

	// ErrWrongType is returned by Lookup when the service has another type.
	ErrWrongType = errors.New("service has unexpected type")

	// ErrRegistryClosed is returned when registering after ShutdownAll.
	ErrRegistryClosed = errors.New("service registry closed")
)

// Service is a live capability owned by a session.
type Service interface {
	// Shutdown releases the service's resources.
	Shutdown(ctx context.Context) error
}

// Func adapts a shutdown function to Service.
type Func func(ctx context.Context) error

// Shutdown implements Service.
func (f Func) Shutdown(ctx context.Context) error {
	if f == nil {
		return nil
	}
	return f(ctx)
}

// Registry maps capability names to the services of one session.
//
// Services are shut down in reverse registration order unless an explicit
// order is given. Registry is safe for concurrent use, although a session
// only touches it from its executor.
type Registry struct {
	mu     sync.Mutex // protects order, byName and closed
	order  []string
	byName map[string]Service
	closed bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Service)}
}

// Register adds svc under name.
func (r *Registry) Register(name string, svc Service) error {
	if svc == nil {
		return fmt.Errorf("register %q: nil service", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("register %q: %w", name, ErrRegistryClosed)
	}
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("register %q: %w", name, ErrDuplicateService)
	}
	r.byName[name] = svc
	r.order = append(r.order, name)
	return nil
}

// Unregister removes name without shutting it down. It returns the removed
// service, or ErrServiceNotFound.
func (r *Registry) Unregister(name string) (Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	svc, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrServiceNotFound)
	}
	delete(r.byName, name)
	r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == name })
	return svc, nil
}

// Get returns the service registered under name.
func (r *Registry) Get(name string) (Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	svc, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrServiceNotFound)
	}
	return svc, nil
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.order)
}

// Len returns the number of registered services.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Lookup returns the service registered under name as a T.
func Lookup[T any](r *Registry, name string) (T, error) {
	var zero T
	svc, err := r.Get(name)
	if err != nil {
		return zero, err
	}
	typed, ok := svc.(T)
	if !ok {
		return zero, fmt.Errorf("%q is %T: %w", name, svc, ErrWrongType)
	}
	return typed, nil
}

// ShutdownAll shuts every service down and empties the registry. Names in
// order go first, in the given order; the rest follow in reverse
// registration order. Every service is shut down even if some fail; the
// failures are joined.
//
// The registry rejects registrations once ShutdownAll has been called.
func (r *Registry) ShutdownAll(ctx context.Context, order ...string) error {
	r.mu.Lock()
	r.closed = true
	names := shutdownOrder(r.order, order)
	services := make([]Service, 0, len(names))
	for _, n := range names {
		services = append(services, r.byName[n])
	}
	r.order = nil
	r.byName = make(map[string]Service)
	r.mu.Unlock()

	var errs []error
	for i, svc := range services {
		if err := svc.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %q: %w", names[i], err))
		}
	}
	return errors.Join(errs...)
}

// shutdownOrder puts the explicitly ordered names first, skipping unknown
// ones, then the remaining registered names newest first.
func shutdownOrder(registered, explicit []string) []string {
	out := make([]string, 0, len(registered))
	seen := make(map[string]bool, len(registered))
	for _, n := range explicit {
		if !seen[n] && slices.Contains(registered, n) {
			out = append(out, n)
			seen[n] = true
		}
	}
	for i := len(registered) - 1; i >= 0; i-- {
		if n := registered[i]; !seen[n] {
			out = append(out, n)
			seen[n] = true
		}
	}
	return out
}
