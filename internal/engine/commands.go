package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/artpar/bluegreen/internal/core/slot"
	"github.com/artpar/bluegreen/internal/shell/bluegreen"
)

// ErrUnknownCommand is returned by Dispatch for a name with no handler.
var ErrUnknownCommand = errors.New("unknown command")

// ErrUsage is returned when a command's arguments are missing or malformed.
var ErrUsage = errors.New("usage")

// Handler processes one workflow command.
type Handler func(ctx context.Context, deps *Deps, data map[string]any) error

// BlueGreen is the slot-level API the handlers drive.
type BlueGreen interface {
	Status(ctx context.Context) (slot.Topology, error)
	FindVersion(ctx context.Context, version string, depth int32) (string, bool, error)
	Deploy(ctx context.Context, target slot.Instance, version string, wait bool) (*bluegreen.Result, error)
	Swap(ctx context.Context, t slot.Topology) error
}

// Prober checks the production health endpoint.
type Prober interface {
	URL() string
	Check(ctx context.Context) (int, error)
}

// Deps holds dependencies available to all command handlers.
type Deps struct {
	BlueGreen BlueGreen
	Health    Prober // optional

	Stdout io.Writer // command output and progress
	Stderr io.Writer // condition and warning lines
	Logger *slog.Logger

	// SearchDepth bounds version-search.
	SearchDepth int32
	// Output selects the status format: "json" (default) or "yaml".
	Output string
}

// Bus dispatches command names to registered handlers.
type Bus struct {
	handlers map[string]Handler
	deps     *Deps
	logger   *slog.Logger
	mu       sync.RWMutex
}

// NewBus creates a new command bus.
func NewBus(deps Deps) *Bus {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Stdout == nil {
		deps.Stdout = io.Discard
	}
	if deps.Stderr == nil {
		deps.Stderr = io.Discard
	}
	if deps.SearchDepth == 0 {
		deps.SearchDepth = DefaultSearchDepth
	}
	return &Bus{
		handlers: make(map[string]Handler),
		deps:     &deps,
		logger:   deps.Logger,
	}
}

// Register registers a handler for a command name.
func (b *Bus) Register(command string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[command] = handler
}

// Commands returns the registered command names in no particular order.
func (b *Bus) Commands() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.handlers))
	for name := range b.handlers {
		names = append(names, name)
	}
	return names
}

// Dispatch runs the handler registered for command.
func (b *Bus) Dispatch(ctx context.Context, command string, data map[string]any) error {
	b.mu.RLock()
	handler, ok := b.handlers[command]
	b.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}

	b.logger.Debug("dispatching command", "command", command)
	if err := handler(ctx, b.deps, data); err != nil {
		b.logger.Debug("command failed", "command", command, "error", err)
		return fmt.Errorf("command %s: %w", command, err)
	}

	return nil
}
