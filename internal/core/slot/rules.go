package slot

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
)

// HostHeaderField is the rule condition field holding the traffic host.
const HostHeaderField = "host-header"

// =============================================================================
// Routing Rules (Pure Functions)
// =============================================================================

// ForwardsTo reports whether any forward action of rule targets the target
// group, either directly or through a weighted forward config.
func ForwardsTo(rule elbtypes.Rule, targetGroupARN string) bool {
	for _, action := range rule.Actions {
		if aws.ToString(action.TargetGroupArn) == targetGroupARN {
			return true
		}
		if action.ForwardConfig == nil {
			continue
		}
		for _, tg := range action.ForwardConfig.TargetGroups {
			if aws.ToString(tg.TargetGroupArn) == targetGroupARN {
				return true
			}
		}
	}
	return false
}

// FindRule returns the first rule forwarding to the target group. Rules are
// scanned in the order given; duplicates are not disambiguated.
func FindRule(rules []elbtypes.Rule, targetGroupARN string) (elbtypes.Rule, bool) {
	for _, r := range rules {
		if ForwardsTo(r, targetGroupARN) {
			return r, true
		}
	}
	return elbtypes.Rule{}, false
}

// HostCondition returns the first host-header value of a rule.
func HostCondition(rule elbtypes.Rule) (string, bool) {
	for _, c := range rule.Conditions {
		if aws.ToString(c.Field) != HostHeaderField {
			continue
		}
		if c.HostHeaderConfig != nil && len(c.HostHeaderConfig.Values) > 0 {
			return c.HostHeaderConfig.Values[0], true
		}
		if len(c.Values) > 0 {
			return c.Values[0], true
		}
	}
	return "", false
}
