// Package workflow holds the precondition gates of the blue/green commands.
// Following the functional core convention - this package contains NO I/O.
//
// Each gate inspects a freshly resolved slot.Topology and either allows the
// command or returns a *PreconditionError naming the condition that stopped
// it. Gates are checked in table order; the first failing one is reported.
package workflow

import (
	"errors"
	"fmt"

	"github.com/artpar/bluegreen/internal/core/slot"
)

// Command names.
const (
	CommandStatus        = "status"
	CommandVersionSearch = "version-search"
	CommandStageEnsure   = "stage-ensure"
	CommandStageDeploy   = "stage-deploy"
	CommandProdDeploy    = "prod-deploy"
	CommandSwap          = "swap"
	CommandRollback      = "rollback"
	CommandHealth        = "health"
)

// Commands lists every command name.
var Commands = []string{
	CommandStatus,
	CommandVersionSearch,
	CommandStageEnsure,
	CommandStageDeploy,
	CommandProdDeploy,
	CommandSwap,
	CommandRollback,
	CommandHealth,
}

// TakesVersion reports whether command requires a version argument.
func TakesVersion(command string) bool {
	switch command {
	case CommandVersionSearch, CommandStageEnsure, CommandStageDeploy, CommandProdDeploy, CommandRollback:
		return true
	}
	return false
}

// Condition names reported when a gate stops a command.
const (
	ConditionProdVersionMismatch    = "ProdVersionMismatch"
	ConditionStagingIsCurrent       = "StagingIsCurrent"
	ConditionProdIsCurrent          = "ProdIsCurrent"
	ConditionSwapIsNoop             = "SwapIsNoop"
	ConditionMatched                = "Matched"
	ConditionRollbackIsNoop         = "RollbackIsNoop"
	ConditionStagingVersionMismatch = "StagingVersionMismatch"
	ConditionUnhealthy              = "Unhealthy"
)

// ErrPreconditionFailed is the class of every gate failure.
var ErrPreconditionFailed = errors.New("precondition failed")

// PreconditionError reports the gate that stopped a command.
type PreconditionError struct {
	Command   string
	Condition string
	Message   string
}

// Error renders the line written to standard error.
func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Condition, e.Message)
}

func (e *PreconditionError) Unwrap() error {
	return ErrPreconditionFailed
}

func failed(command, condition, format string, args ...any) *PreconditionError {
	return &PreconditionError{
		Command:   command,
		Condition: condition,
		Message:   fmt.Sprintf(format, args...),
	}
}

// Unhealthy reports a failed production health check.
func Unhealthy(url string, cause error) *PreconditionError {
	return failed(CommandHealth, ConditionUnhealthy, "%s did not pass its health check: %v", url, cause)
}

// =============================================================================
// Gates (Pure Functions)
// =============================================================================

// CheckStageEnsure allows updating staging only to the version production
// already runs, and only when staging is behind.
func CheckStageEnsure(t slot.Topology, version string) error {
	if t.Production.Version != version {
		return failed(CommandStageEnsure, ConditionProdVersionMismatch,
			"%s is not deployed to production, %s is instead", version, t.Production.Version)
	}
	if t.Staging.Version == version {
		return failed(CommandStageEnsure, ConditionStagingIsCurrent,
			"%s already deployed to staging: nothing to update", t.Staging.Version)
	}
	return nil
}

// CheckStageDeploy allows deploying to staging unless it already runs version.
func CheckStageDeploy(t slot.Topology, version string) error {
	if t.Staging.Version == version {
		return failed(CommandStageDeploy, ConditionStagingIsCurrent,
			"%s already deployed to staging: nothing to update", t.Staging.Version)
	}
	return nil
}

// CheckProdDeploy allows deploying to production unless it already runs version.
func CheckProdDeploy(t slot.Topology, version string) error {
	if t.Production.Version == version {
		return failed(CommandProdDeploy, ConditionProdIsCurrent,
			"%s already deployed to production: nothing to update", t.Production.Version)
	}
	return nil
}

// CheckSwap allows a swap only when it changes the production version.
func CheckSwap(t slot.Topology) error {
	if t.Staging.Version == t.Production.Version {
		return failed(CommandSwap, ConditionSwapIsNoop,
			"production and staging are both on %s: blue/green swap will not change anything", t.Production.Version)
	}
	return nil
}

// CheckRollback allows a swap that puts version, currently on staging,
// back into production.
func CheckRollback(t slot.Topology, version string) error {
	if version == t.Production.Version {
		return failed(CommandRollback, ConditionMatched,
			"production already on %s: nothing to update", t.Production.Version)
	}
	if t.Staging.Version == t.Production.Version {
		return failed(CommandRollback, ConditionRollbackIsNoop,
			"production and staging are both on %s: rollback will not change anything", t.Production.Version)
	}
	if t.Staging.Version != version {
		return failed(CommandRollback, ConditionStagingVersionMismatch,
			"staging is not on %s: cannot rollback to desired version", version)
	}
	return nil
}
