package server

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/strikechat/strike-server/pkg/logging"
)

// ResourceCleanup closes a server's components in reverse start order.
//
//	cleanup := NewResourceCleanup(logger)
//	defer cleanup.Cleanup() // unwinds a failed start
//
//	scheduler := scheduler.New()
//	cleanup.AddFunc("scheduler", func() error { scheduler.Close(); return nil })
//
//	transport, err := peer.NewTransport(opts)
//	if err != nil {
//	    return err
//	}
//	cleanup.Add(transport, "transport")
type ResourceCleanup struct {
	mu        sync.Mutex
	resources []namedCloser
	logger    logging.Logger
}

type namedCloser struct {
	close func() error
	name  string
}

// NewResourceCleanup creates an empty cleanup stack. A nil logger discards
// close failures.
func NewResourceCleanup(logger logging.Logger) *ResourceCleanup {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ResourceCleanup{
		resources: make([]namedCloser, 0, 8),
		logger:    logger.With(logging.Component("cleanup")),
	}
}

// Add registers closer under name. A nil closer is ignored.
func (rc *ResourceCleanup) Add(closer io.Closer, name string) {
	if closer == nil {
		return
	}
	rc.AddFunc(name, closer.Close)
}

// AddFunc registers a close function under name
func (rc *ResourceCleanup) AddFunc(name string, fn func() error) {
	if fn == nil {
		return
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.resources = append(rc.resources, namedCloser{close: fn, name: name})
}

// Cleanup closes everything registered, logging failures. Safe to call
// repeatedly.
func (rc *ResourceCleanup) Cleanup() {
	_ = rc.CloseAll()
}

// Clear forgets all registered resources without closing them
func (rc *ResourceCleanup) Clear() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.resources = rc.resources[:0]
}

// CloseAll closes every resource, last registered first, and joins the
// errors. A failing close does not stop the rest.
func (rc *ResourceCleanup) CloseAll() error {
	rc.mu.Lock()
	resources := rc.resources
	rc.resources = nil
	rc.mu.Unlock()

	var errs []error
	for i := len(resources) - 1; i >= 0; i-- {
		r := resources[i]
		if err := r.close(); err != nil {
			rc.logger.Warn("Failed to close resource",
				logging.String("resource", r.name),
				logging.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", r.name, err))
			continue
		}
		rc.logger.Debug("Closed resource", logging.String("resource", r.name))
	}
	return errors.Join(errs...)
}

// Len returns the number of registered resources
func (rc *ResourceCleanup) Len() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.resources)
}
