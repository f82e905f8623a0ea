// Package slot provides the value types and pure functions describing the
// two deployment slots of a blue/green service.
//
// This package contains NO I/O. The imperative shell (internal/shell/bluegreen)
// queries the container and load-balancer backends, assembles one Instance per
// slot, and hands them to Classify to obtain the production/staging Topology.
//
// # Functions
//
//   - Naming: derive slot service names (ServiceNames)
//   - Images: read and rewrite container image tags (ImageTag, WithImageTag)
//   - Rules: match routing rules to target groups (ForwardsTo, FindRule, HostCondition)
//   - Roles: classify slots by traffic host (Classify)
//   - Status: project a Topology for reporting (Topology.Status)
//
// Role is never stored: a slot is production because its rule answers the
// production host, and nothing else.
package slot
