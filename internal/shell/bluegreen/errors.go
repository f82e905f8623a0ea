package bluegreen

import (
	"errors"
	"fmt"

	"github.com/artpar/bluegreen/internal/core/slot"
	"github.com/artpar/bluegreen/internal/shell/awsapi"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrBackendUnavailable is returned when a backend call fails. It is
	// never retried here.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrInvariantViolation is returned when the resolved topology does not
	// hold exactly one production and one staging slot.
	ErrInvariantViolation = slot.ErrInvariantViolation

	// ErrSplitState is returned when both rules answer the same host.
	ErrSplitState = slot.ErrSplitState

	// ErrArtifactCreationFailed is returned when the backend rejects a
	// cloned task definition.
	ErrArtifactCreationFailed = errors.New("artifact creation failed")

	// ErrDeploymentTimeout is returned when a rollout is not confirmed within
	// the polling budget. The service update itself was issued.
	ErrDeploymentTimeout = errors.New("deployment completion not confirmed")

	// ErrRolloutFailed is returned when the backend reports the rollout failed.
	ErrRolloutFailed = errors.New("deployment rollout failed")
)

// OpError wraps errors with the backend operation and object involved.
type OpError struct {
	Op      string // Operation that failed (e.g., "DescribeServices")
	Entity  string // Entity type (e.g., "service", "rule")
	ID      string // Entity ID if applicable
	Message string
	Err     error
}

func (e *OpError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s %s: %s", e.Op, e.Entity, e.ID, e.Message)
	}
	if e.Entity != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Entity, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// backendError classifies a failed backend call as ErrBackendUnavailable,
// keeping the original error reachable.
func backendError(op, entity, id string, err error) *OpError {
	msg := err.Error()
	if code := awsapi.ErrorCode(err); code != "" {
		msg = code + ": " + msg
	}
	return &OpError{
		Op:      op,
		Entity:  entity,
		ID:      id,
		Message: msg,
		Err:     fmt.Errorf("%w: %w", ErrBackendUnavailable, err),
	}
}

// invariantError reports a slot whose backend objects are not wired the
// way a blue/green topology requires.
func invariantError(entity, id, format string, args ...any) *OpError {
	return &OpError{
		Op:      "Resolve",
		Entity:  entity,
		ID:      id,
		Message: fmt.Sprintf(format, args...),
		Err:     ErrInvariantViolation,
	}
}

// SwapError reports a swap whose second rule update failed after the first
// succeeded, leaving both rules answering the same host.
type SwapError struct {
	UpdatedRule   string // rule already rewritten
	PendingRule   string // rule still to rewrite
	PendingHost   string // host PendingRule must answer
	PendingTarget string // target group PendingRule must forward to
	Attempts      int
	Err           error
}

func (e *SwapError) Error() string {
	return fmt.Sprintf("swap incomplete after %d attempts: rule %s was updated but rule %s was not; finish by setting its host-header to %q forwarding to %s: %v",
		e.Attempts, e.UpdatedRule, e.PendingRule, e.PendingHost, e.PendingTarget, e.Err)
}

func (e *SwapError) Unwrap() []error {
	return []error{ErrSplitState, e.Err}
}
