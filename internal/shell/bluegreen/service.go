package bluegreen

import (
	"context"
	"io"
	"log/slog"

	"github.com/artpar/bluegreen/internal/core/slot"
	"github.com/artpar/bluegreen/internal/shell/awsapi"
)

// =============================================================================
// Service - Blue/Green Operations for One Service
// =============================================================================

// Service wires the resolver, artifact resolver, executor and swapper for
// one blue/green service. It holds no state between calls: every Status
// re-reads both backends.
type Service struct {
	cfg       *Config
	resolver  *Resolver
	artifacts *Artifacts
	executor  *Executor
	swapper   *Swapper
}

// NewService creates the blue/green operations for cfg.ServiceName.
// Progress lines are written to out.
func NewService(ecsClient awsapi.ECS, elbClient awsapi.ELB, cfg Config, out io.Writer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	c := cfg.WithDefaults()
	logger = logger.With("service", c.ServiceName)

	artifacts := NewArtifacts(ecsClient, c.ServiceName, logger)
	return &Service{
		cfg:       &c,
		resolver:  NewResolver(ecsClient, elbClient, &c, logger),
		artifacts: artifacts,
		executor:  NewExecutor(ecsClient, artifacts, &c, out, logger),
		swapper:   NewSwapper(elbClient, &c, out, logger),
	}
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return *s.cfg
}

// Status resolves the current production and staging slots.
func (s *Service) Status(ctx context.Context) (slot.Topology, error) {
	return s.resolver.Resolve(ctx)
}

// FindVersion searches the newest depth revisions for version.
func (s *Service) FindVersion(ctx context.Context, version string, depth int32) (string, bool, error) {
	return s.artifacts.FindMatching(ctx, version, depth)
}

// Deploy moves target onto version. See Executor.Deploy.
func (s *Service) Deploy(ctx context.Context, target slot.Instance, version string, wait bool) (*Result, error) {
	return s.executor.Deploy(ctx, target, version, wait)
}

// Swap exchanges production and staging traffic. See Swapper.Swap.
func (s *Service) Swap(ctx context.Context, t slot.Topology) error {
	return s.swapper.Swap(ctx, t)
}
