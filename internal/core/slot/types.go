package slot

import (
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
)

// =============================================================================
// Slot Types
// =============================================================================

// Color names one of the two slots.
type Color string

const (
	Green Color = "green"
	Blue  Color = "blue"
)

// Colors lists the slots in the order they are queried.
var Colors = []Color{Green, Blue}

// Instance is one slot's resolved state, assembled once per resolve.
type Instance struct {
	// Name is the orchestration service name, e.g. "shop-green".
	Name string

	// Version is the tag of the primary container image.
	Version string

	// TrafficHost is the host header the slot's routing rule answers.
	TrafficHost string

	// Load balancer side
	LoadBalancerARN string
	TargetGroupARN  string
	RuleARN         string

	// Orchestration side
	ClusterARN        string
	ServiceARN        string
	TaskDefinitionARN string
	TaskDefinition    ecstypes.TaskDefinition

	// Last observed primary deployment
	DeploymentStatus string
	RolloutState     string
}

// Hosts holds the configured traffic hostnames that define the two roles.
type Hosts struct {
	Production string
	Staging    string
}

// Topology pairs the slot serving production with the slot serving staging.
// It is rebuilt on every resolve and never cached.
type Topology struct {
	Production Instance
	Staging    Instance
}

// ServiceNames returns the slot service names for a service, green first.
func ServiceNames(service string) []string {
	names := make([]string, 0, len(Colors))
	for _, c := range Colors {
		names = append(names, service+"-"+string(c))
	}
	return names
}
