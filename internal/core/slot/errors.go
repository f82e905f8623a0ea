package slot

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvariantViolation is returned when the resolved slots do not form
	// exactly one production and one staging slot.
	ErrInvariantViolation = errors.New("topology invariant violated")

	// ErrSplitState is returned when both routing rules answer the same host,
	// which is what an interrupted swap leaves behind.
	ErrSplitState = fmt.Errorf("split traffic state: %w", ErrInvariantViolation)
)

// SplitStateError describes two rules answering the same host while the
// other configured host is answered by none.
type SplitStateError struct {
	Host        string   // host answered by both rules
	MissingHost string   // host answered by no rule
	Rules       []string // ARNs of the rules answering Host
}

func (e *SplitStateError) Error() string {
	return fmt.Sprintf("rules %s all answer %q and none answers %q: modify the rule whose target group should serve %q back to that host",
		strings.Join(e.Rules, ", "), e.Host, e.MissingHost, e.MissingHost)
}

func (e *SplitStateError) Unwrap() error {
	return ErrSplitState
}
