package engine

import (
	"context"
	"fmt"

	"github.com/artpar/bluegreen/internal/core/slot"
	"github.com/artpar/bluegreen/internal/core/workflow"
	"github.com/artpar/bluegreen/internal/shell/bluegreen"
)

// DefaultSearchDepth is how many revisions version-search inspects.
const DefaultSearchDepth = 10

// RegisterHandlers registers all command handlers on the bus.
func RegisterHandlers(bus *Bus) {
	// Queries
	bus.Register(workflow.CommandStatus, status)
	bus.Register(workflow.CommandVersionSearch, versionSearch)
	bus.Register(workflow.CommandHealth, health)

	// Deploys
	bus.Register(workflow.CommandStageEnsure, stageEnsure)
	bus.Register(workflow.CommandStageDeploy, stageDeploy)
	bus.Register(workflow.CommandProdDeploy, prodDeploy)

	// Traffic
	bus.Register(workflow.CommandSwap, swap)
	bus.Register(workflow.CommandRollback, rollback)
}

// =============================================================================
// Query Handlers
// =============================================================================

// status reports both slots.
func status(ctx context.Context, deps *Deps, _ map[string]any) error {
	t, err := deps.BlueGreen.Status(ctx)
	if err != nil {
		return err
	}
	return writeStatus(deps.Stdout, t.Status(), deps.Output)
}

// versionSearch reports whether a recent revision runs the version. Not
// finding one is not a failure.
func versionSearch(ctx context.Context, deps *Deps, data map[string]any) error {
	v, err := requireVersion(workflow.CommandVersionSearch, data)
	if err != nil {
		return err
	}
	if _, err := deps.BlueGreen.Status(ctx); err != nil {
		return err
	}

	arn, found, err := deps.BlueGreen.FindVersion(ctx, v, deps.SearchDepth)
	if err != nil {
		return err
	}
	if found {
		fmt.Fprintf(deps.Stdout, "Version %s exists in %s\n", v, arn)
	} else {
		fmt.Fprintf(deps.Stdout, "Cannot find version %s\n", v)
	}
	return nil
}

// health probes the production health-check URL.
func health(ctx context.Context, deps *Deps, _ map[string]any) error {
	if deps.Health == nil {
		return fmt.Errorf("%w: %s: no production health-check URL configured", ErrUsage, workflow.CommandHealth)
	}
	code, err := deps.Health.Check(ctx)
	if err != nil {
		return workflow.Unhealthy(deps.Health.URL(), err)
	}
	fmt.Fprintf(deps.Stdout, "Healthy: %s responded %d\n", deps.Health.URL(), code)
	return nil
}

// =============================================================================
// Deploy Handlers
// =============================================================================

// stageEnsure brings staging up to the production version without waiting.
func stageEnsure(ctx context.Context, deps *Deps, data map[string]any) error {
	v, err := requireVersion(workflow.CommandStageEnsure, data)
	if err != nil {
		return err
	}
	t, err := deps.BlueGreen.Status(ctx)
	if err != nil {
		return err
	}
	if err := workflow.CheckStageEnsure(t, v); err != nil {
		return err
	}

	fmt.Fprintf(deps.Stdout, "StagingOutdated: updating staging from %s to %s...\n", t.Staging.Version, v)
	return deploy(ctx, deps, t.Staging, v, false)
}

// stageDeploy deploys a version to staging and waits for the rollout.
func stageDeploy(ctx context.Context, deps *Deps, data map[string]any) error {
	v, err := requireVersion(workflow.CommandStageDeploy, data)
	if err != nil {
		return err
	}
	t, err := deps.BlueGreen.Status(ctx)
	if err != nil {
		return err
	}
	if err := workflow.CheckStageDeploy(t, v); err != nil {
		return err
	}

	fmt.Fprintf(deps.Stdout, "Deploy: updating staging from %s to %s...\n", t.Staging.Version, v)
	return deploy(ctx, deps, t.Staging, v, true)
}

// prodDeploy deploys a version straight to production and waits.
func prodDeploy(ctx context.Context, deps *Deps, data map[string]any) error {
	v, err := requireVersion(workflow.CommandProdDeploy, data)
	if err != nil {
		return err
	}
	t, err := deps.BlueGreen.Status(ctx)
	if err != nil {
		return err
	}
	if err := workflow.CheckProdDeploy(t, v); err != nil {
		return err
	}

	fmt.Fprintln(deps.Stderr, "WARNING: do not use this in a real pipeline!")
	fmt.Fprintf(deps.Stdout, "Deploy: updating production from %s to %s...\n", t.Production.Version, v)
	if err := deploy(ctx, deps, t.Production, v, true); err != nil {
		return err
	}
	checkProduction(ctx, deps)
	return nil
}

func deploy(ctx context.Context, deps *Deps, target slot.Instance, version string, wait bool) error {
	res, err := deps.BlueGreen.Deploy(ctx, target, version, wait)
	if err != nil {
		return err
	}
	switch {
	case res.Completed:
		fmt.Fprintln(deps.Stdout, "Deployment complete")
	case res.TimedOut:
		fmt.Fprintln(deps.Stderr, "Deployment timed out")
	}
	return nil
}

// =============================================================================
// Traffic Handlers
// =============================================================================

// swap exchanges production and staging.
func swap(ctx context.Context, deps *Deps, _ map[string]any) error {
	t, err := deps.BlueGreen.Status(ctx)
	if err != nil {
		return err
	}
	if err := workflow.CheckSwap(t); err != nil {
		return err
	}

	fmt.Fprintf(deps.Stdout, "Swap: swapping slots: production will now be on %s, staging on %s\n",
		t.Staging.Version, t.Production.Version)
	return swapTraffic(ctx, deps, t)
}

// rollback swaps production back to the version staging still runs.
func rollback(ctx context.Context, deps *Deps, data map[string]any) error {
	v, err := requireVersion(workflow.CommandRollback, data)
	if err != nil {
		return err
	}
	t, err := deps.BlueGreen.Status(ctx)
	if err != nil {
		return err
	}
	if err := workflow.CheckRollback(t, v); err != nil {
		return err
	}

	fmt.Fprintf(deps.Stdout, "Rollback: swapping slots: production will now be on %s, staging on %s\n",
		t.Staging.Version, t.Production.Version)
	return swapTraffic(ctx, deps, t)
}

func swapTraffic(ctx context.Context, deps *Deps, t slot.Topology) error {
	if err := deps.BlueGreen.Swap(ctx, t); err != nil {
		return err
	}
	checkProduction(ctx, deps)
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

// checkProduction probes production after a traffic change. Failures are
// warnings only; nothing is rolled back.
func checkProduction(ctx context.Context, deps *Deps) {
	if deps.Health == nil {
		return
	}
	code, err := deps.Health.Check(ctx)
	if err != nil {
		deps.Logger.Warn("production health check failed", "url", deps.Health.URL(), "status", code, "error", err)
		fmt.Fprintf(deps.Stderr, "WARNING: production health check failed: %v\n", err)
		return
	}
	fmt.Fprintf(deps.Stdout, "Healthy: %s responded %d\n", deps.Health.URL(), code)
}

func requireVersion(command string, data map[string]any) (string, error) {
	v, _ := data["version"].(string)
	if v == "" {
		return "", fmt.Errorf("%w: %s <version>", ErrUsage, command)
	}
	return v, nil
}

// Compile-time check that the shell service satisfies BlueGreen.
var _ BlueGreen = (*bluegreen.Service)(nil)
