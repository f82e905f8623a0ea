// Package bluegreen drives blue/green deployments of a container service
// behind a load balancer: it resolves which slot serves production and
// which serves staging, finds or creates the task definition for a version,
// rolls a slot onto it, and swaps traffic between the slots.
//
// This is part of the Imperative Shell - every operation talks to the
// container orchestration and load balancer backends through awsapi.
package bluegreen

import (
	"time"

	"github.com/artpar/bluegreen/internal/core/slot"
)

// Defaults applied to zero Config fields.
const (
	DefaultPollInterval      = 5 * time.Second
	DefaultMaxAttempts       = 60
	DefaultDeploySearchDepth = 5
	DefaultSwapRetries       = 3
	DefaultSwapRetryBackoff  = time.Second
)

// Config is the immutable configuration shared by every component. It is
// built once per invocation and passed by pointer.
type Config struct {
	// ServiceName is the task definition family and the prefix of the slot
	// service names ("<name>-green", "<name>-blue").
	ServiceName string

	// Cluster is the orchestration cluster name or ARN.
	Cluster string

	// ListenerPort selects the load balancer listener holding the routing rules.
	ListenerPort int32

	// Hosts are the production and staging traffic hostnames.
	Hosts slot.Hosts

	// PollInterval is the wait between rollout state checks.
	PollInterval time.Duration

	// MaxAttempts bounds the number of rollout state checks.
	MaxAttempts int

	// DeploySearchDepth is how many recent revisions a deploy inspects
	// before cloning a new one.
	DeploySearchDepth int32

	// SwapRetries bounds attempts at the second rule update of a swap.
	SwapRetries int

	// SwapRetryBackoff is multiplied by the attempt number between retries.
	SwapRetryBackoff time.Duration
}

// WithDefaults returns a copy of c with zero or negative fields set to
// their defaults.
func (c Config) WithDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.DeploySearchDepth <= 0 {
		c.DeploySearchDepth = DefaultDeploySearchDepth
	}
	if c.SwapRetries <= 0 {
		c.SwapRetries = DefaultSwapRetries
	}
	if c.SwapRetryBackoff <= 0 {
		c.SwapRetryBackoff = DefaultSwapRetryBackoff
	}
	return c
}
