package alembic

import "go.uber.org/zap"

// Middleware provides hooks around top-level Resolve calls.
// Middleware can be used for logging, metrics, testing, etc.
type Middleware interface {
	// BeforeResolve is called before resolving a key.
	// Return error to abort resolution.
	BeforeResolve(key Key) error

	// AfterResolve is called after resolving a key.
	// Called even if resolution failed (value and err may both be set).
	AfterResolve(key Key, value any, err error) error
}

// middlewareChain manages multiple middleware.
type middlewareChain struct {
	middleware []Middleware
}

func newMiddlewareChain() *middlewareChain {
	return &middlewareChain{middleware: make([]Middleware, 0)}
}

// add appends middleware to the chain.
func (m *middlewareChain) add(middleware Middleware) {
	m.middleware = append(m.middleware, middleware)
}

// clone copies the chain for a sandbox.
func (m *middlewareChain) clone() *middlewareChain {
	return &middlewareChain{middleware: append([]Middleware(nil), m.middleware...)}
}

// beforeResolve calls BeforeResolve on all middleware.
func (m *middlewareChain) beforeResolve(key Key) error {
	for _, mw := range m.middleware {
		if err := mw.BeforeResolve(key); err != nil {
			return err
		}
	}
	return nil
}

// afterResolve calls AfterResolve on all middleware.
func (m *middlewareChain) afterResolve(key Key, value any, err error) error {
	for _, mw := range m.middleware {
		if mwErr := mw.AfterResolve(key, value, err); mwErr != nil {
			return mwErr
		}
	}
	return nil
}

// FuncMiddleware wraps functions as Middleware.
type FuncMiddleware struct {
	BeforeResolveFunc func(key Key) error
	AfterResolveFunc  func(key Key, value any, err error) error
}

// BeforeResolve implements Middleware.
func (f *FuncMiddleware) BeforeResolve(key Key) error {
	if f.BeforeResolveFunc != nil {
		return f.BeforeResolveFunc(key)
	}
	return nil
}

// AfterResolve implements Middleware.
func (f *FuncMiddleware) AfterResolve(key Key, value any, err error) error {
	if f.AfterResolveFunc != nil {
		return f.AfterResolveFunc(key, value, err)
	}
	return nil
}

// loggingMiddleware logs resolution outcomes through the container's logger.
type loggingMiddleware struct {
	logger *zap.Logger
}

// BeforeResolve implements Middleware.
func (l *loggingMiddleware) BeforeResolve(key Key) error {
	l.logger.Debug("resolving dependency", zap.String("key", keyLabel(key)))
	return nil
}

// AfterResolve implements Middleware.
func (l *loggingMiddleware) AfterResolve(key Key, value any, err error) error {
	if err != nil {
		l.logger.Warn("resolution failed",
			zap.String("key", keyLabel(key)),
			zap.Error(err),
		)
		return nil
	}

	l.logger.Debug("resolved dependency", zap.String("key", keyLabel(key)))
	return nil
}
