package bluegreen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"

	"github.com/artpar/bluegreen/internal/core/slot"
	"github.com/artpar/bluegreen/internal/shell/awsapi"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// sleepContext is the real SleepFunc.
func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Result describes a deploy that was issued.
type Result struct {
	TaskDefinitionARN string
	Created           bool // a new revision was registered
	Waited            bool
	Completed         bool
	TimedOut          bool // issued, but completion was not confirmed
	Attempts          int
}

// =============================================================================
// Executor - Points a Slot at a Revision
// =============================================================================

// Executor moves a slot's service onto the revision for a version and
// optionally waits for the rollout.
type Executor struct {
	ecs       awsapi.ECS
	artifacts *Artifacts
	cfg       *Config
	out       io.Writer
	logger    *slog.Logger
	sleep     SleepFunc
}

// NewExecutor creates a deployment executor. Progress lines go to out.
func NewExecutor(ecsClient awsapi.ECS, artifacts *Artifacts, cfg *Config, out io.Writer, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if out == nil {
		out = io.Discard
	}
	return &Executor{
		ecs:       ecsClient,
		artifacts: artifacts,
		cfg:       cfg,
		out:       out,
		logger:    logger.With("component", "executor"),
		sleep:     sleepContext,
	}
}

// Deploy points target at the revision running version, registering one
// cloned from target's current task definition when none of the recent
// revisions match. With wait set it polls the rollout; a rollout that is
// not confirmed in time is reported through Result.TimedOut, not an error.
func (e *Executor) Deploy(ctx context.Context, target slot.Instance, version string, wait bool) (*Result, error) {
	arn, found, err := e.artifacts.FindMatching(ctx, version, e.cfg.DeploySearchDepth)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	if !found {
		fmt.Fprintf(e.out, "... adding new version '%s' to task '%s'\n", version, target.TaskDefinitionARN)
		arn, err = e.artifacts.CloneWithVersion(ctx, target.TaskDefinition, version)
		if err != nil {
			return nil, err
		}
		res.Created = true
	}
	res.TaskDefinitionARN = arn

	fmt.Fprintf(e.out, "... deploying revision %s to service '%s'\n", slot.LastSegment(arn, ":"), target.ServiceARN)

	_, err = e.ecs.UpdateService(ctx, &ecs.UpdateServiceInput{
		Cluster:        aws.String(target.ClusterARN),
		Service:        aws.String(target.ServiceARN),
		TaskDefinition: aws.String(arn),
	})
	if err != nil {
		return nil, backendError("UpdateService", "service", target.ServiceARN, err)
	}
	e.logger.Info("service updated",
		"service", target.Name,
		"version", version,
		"task_definition", arn,
		"created", res.Created,
	)

	if !wait {
		return res, nil
	}

	res.Waited = true
	res.Attempts, err = e.WaitForRollout(ctx, target)
	switch {
	case err == nil:
		res.Completed = true
	case errors.Is(err, ErrDeploymentTimeout):
		res.TimedOut = true
		e.logger.Warn("deployment timed out",
			"service", target.Name,
			"attempts", res.Attempts,
			"poll_interval", e.cfg.PollInterval,
		)
	default:
		return res, err
	}
	return res, nil
}

// WaitForRollout checks the primary deployment of target every PollInterval,
// at most MaxAttempts times. It returns the number of checks made and
// ErrDeploymentTimeout when COMPLETED was never observed.
func (e *Executor) WaitForRollout(ctx context.Context, target slot.Instance) (int, error) {
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		state, err := e.rolloutState(ctx, target)
		if err != nil {
			return attempt, err
		}

		switch state {
		case ecstypes.DeploymentRolloutStateCompleted:
			return attempt, nil
		case ecstypes.DeploymentRolloutStateFailed:
			return attempt, &OpError{
				Op:      "WaitForRollout",
				Entity:  "service",
				ID:      target.ServiceARN,
				Message: "rollout state FAILED",
				Err:     ErrRolloutFailed,
			}
		}

		e.logger.Debug("rollout in progress", "service", target.Name, "state", state, "attempt", attempt)
		if err := e.sleep(ctx, e.cfg.PollInterval); err != nil {
			return attempt, err
		}
	}

	return e.cfg.MaxAttempts, fmt.Errorf("%w: %s not COMPLETED after %d checks every %s",
		ErrDeploymentTimeout, target.ServiceARN, e.cfg.MaxAttempts, e.cfg.PollInterval)
}

func (e *Executor) rolloutState(ctx context.Context, target slot.Instance) (ecstypes.DeploymentRolloutState, error) {
	out, err := e.ecs.DescribeServices(ctx, &ecs.DescribeServicesInput{
		Cluster:  aws.String(target.ClusterARN),
		Services: []string{target.ServiceARN},
	})
	if err != nil {
		return "", backendError("DescribeServices", "service", target.ServiceARN, err)
	}
	if len(out.Services) == 0 {
		return "", invariantError("service", target.ServiceARN, "disappeared during rollout")
	}
	d, ok := primaryDeployment(out.Services[0].Deployments)
	if !ok {
		return "", nil
	}
	return d.RolloutState, nil
}
