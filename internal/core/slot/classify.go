package slot

import "fmt"

// =============================================================================
// Role Classification (Pure Functions)
// =============================================================================

// Classify assigns production and staging roles by comparing each slot's
// traffic host with the configured hosts. It fails unless exactly one slot
// answers each host.
func Classify(instances []Instance, hosts Hosts) (Topology, error) {
	if len(instances) < 2 {
		return Topology{}, fmt.Errorf("%w: found %d slots, need 2", ErrInvariantViolation, len(instances))
	}

	var production, staging []Instance
	for _, inst := range instances {
		switch inst.TrafficHost {
		case hosts.Production:
			production = append(production, inst)
		case hosts.Staging:
			staging = append(staging, inst)
		}
	}

	if len(production) == 1 && len(staging) == 1 {
		return Topology{Production: production[0], Staging: staging[0]}, nil
	}

	if len(production) > 1 && len(staging) == 0 {
		return Topology{}, &SplitStateError{Host: hosts.Production, MissingHost: hosts.Staging, Rules: ruleARNs(production)}
	}
	if len(staging) > 1 && len(production) == 0 {
		return Topology{}, &SplitStateError{Host: hosts.Staging, MissingHost: hosts.Production, Rules: ruleARNs(staging)}
	}

	return Topology{}, fmt.Errorf("%w: %d slots answer production host %q and %d answer staging host %q",
		ErrInvariantViolation, len(production), hosts.Production, len(staging), hosts.Staging)
}

func ruleARNs(instances []Instance) []string {
	arns := make([]string, 0, len(instances))
	for _, inst := range instances {
		arns = append(arns, inst.RuleARN)
	}
	return arns
}
