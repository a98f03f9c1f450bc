package worker

import (
	"github.com/okian/memocred/internal/domain/model"
	"github.com/okian/memocred/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithOnScored registers a callback invoked after each recorded score.
func WithOnScored(fn func(model.CredibilityScore)) Option {
	return func(w *InMemoryWorker) {
		w.onScored = fn
	}
}
