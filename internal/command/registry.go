// Package command holds the named operations exposed to the frontend and dispatches
// invocations to them by name.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownCommand is returned by Invoke for names that were never registered.
var ErrUnknownCommand = errors.New("unknown command")

// Handler runs one command. args is the raw JSON object sent by the caller and may be empty.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// ArgumentError reports arguments that could not be decoded or are missing.
type ArgumentError struct {
	Command string
	Err     error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid args for command %s: %v", e.Command, e.Err)
}

func (e *ArgumentError) Unwrap() error {
	return e.Err
}

// Registry maps command names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds or replaces the handler for name
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Invoke runs the named command
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (any, error) {
	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}

	result, err := h(ctx, args)
	if err != nil {
		var argErr *ArgumentError
		if errors.As(err, &argErr) && argErr.Command == "" {
			argErr.Command = name
		}
		return nil, err
	}
	return result, nil
}

// Names returns the registered command names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// typed adapts a function taking a decoded argument struct into a Handler.
func typed[T any](fn func(ctx context.Context, args T) (any, error)) Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args T
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, &ArgumentError{Err: err}
			}
		}
		return fn(ctx, args)
	}
}

func missing(name string) error {
	return &ArgumentError{Err: fmt.Errorf("missing required key %s", name)}
}
