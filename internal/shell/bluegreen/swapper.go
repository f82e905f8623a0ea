package bluegreen

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	elb "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"

	"github.com/artpar/bluegreen/internal/core/slot"
	"github.com/artpar/bluegreen/internal/shell/awsapi"
)

// =============================================================================
// Swapper - Exchanges Traffic Hosts Between Slots
// =============================================================================

// Swapper exchanges the host conditions of the two slots' rules. Each rule
// keeps forwarding to its own target group; only the host moves.
type Swapper struct {
	elb    awsapi.ELB
	cfg    *Config
	out    io.Writer
	logger *slog.Logger
	sleep  SleepFunc
}

// NewSwapper creates a traffic swapper. Progress lines go to out.
func NewSwapper(elbClient awsapi.ELB, cfg *Config, out io.Writer, logger *slog.Logger) *Swapper {
	if logger == nil {
		logger = slog.Default()
	}
	if out == nil {
		out = io.Discard
	}
	return &Swapper{
		elb:    elbClient,
		cfg:    cfg,
		out:    out,
		logger: logger.With("component", "swapper"),
		sleep:  sleepContext,
	}
}

// Swap runs in two phases. Phase one gives the staging rule the production
// host; if it fails nothing has changed. Phase two gives the production
// rule the staging host and is retried; if it still fails the returned
// *SwapError names the rule and values needed to finish by hand.
func (s *Swapper) Swap(ctx context.Context, t slot.Topology) error {
	s.logRule(t.Staging)
	s.logRule(t.Production)

	if err := s.updateRule(ctx, t.Staging.RuleARN, t.Production.TrafficHost, t.Staging.TargetGroupARN); err != nil {
		return err
	}

	// Phase two always runs at least once, whatever the configured retries.
	retries := max(1, s.cfg.SwapRetries)

	var err error
	attempt := 1
	for ; ; attempt++ {
		err = s.updateRule(ctx, t.Production.RuleARN, t.Staging.TrafficHost, t.Production.TargetGroupARN)
		if err == nil {
			s.logger.Info("swap complete",
				"production_slot", t.Staging.Name,
				"staging_slot", t.Production.Name,
			)
			return nil
		}
		s.logger.Warn("second rule update failed",
			"rule", t.Production.RuleARN,
			"attempt", attempt,
			"error", err,
		)
		if attempt >= retries {
			break
		}
		if serr := s.sleep(ctx, time.Duration(attempt)*s.cfg.SwapRetryBackoff); serr != nil {
			break
		}
	}

	return &SwapError{
		UpdatedRule:   t.Staging.RuleARN,
		PendingRule:   t.Production.RuleARN,
		PendingHost:   t.Staging.TrafficHost,
		PendingTarget: t.Production.TargetGroupARN,
		Attempts:      attempt,
		Err:           err,
	}
}

func (s *Swapper) logRule(inst slot.Instance) {
	fmt.Fprintf(s.out, "Rule '%s' uses HostCondition '%s' and points to target %s\n",
		slot.LastSegment(inst.RuleARN, "/"), inst.TrafficHost, slot.TargetGroupName(inst.TargetGroupARN))
}

// updateRule rewrites a rule to answer host and forward to targetGroupARN.
func (s *Swapper) updateRule(ctx context.Context, ruleARN, host, targetGroupARN string) error {
	fmt.Fprintf(s.out, "... updating conditions on listener '%s' to use HostCondition '%s' and point to target %s\n",
		slot.LastSegment(ruleARN, "/"), host, slot.TargetGroupName(targetGroupARN))

	_, err := s.elb.ModifyRule(ctx, &elb.ModifyRuleInput{
		RuleArn: aws.String(ruleARN),
		Conditions: []elbtypes.RuleCondition{
			{
				Field:            aws.String(slot.HostHeaderField),
				HostHeaderConfig: &elbtypes.HostHeaderConditionConfig{Values: []string{host}},
			},
		},
		Actions: []elbtypes.Action{
			{
				Type:           elbtypes.ActionTypeEnumForward,
				TargetGroupArn: aws.String(targetGroupARN),
			},
		},
	})
	if err != nil {
		return backendError("ModifyRule", "rule", ruleARN, err)
	}
	return nil
}
