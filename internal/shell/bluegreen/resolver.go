package bluegreen

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	elb "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"

	"github.com/artpar/bluegreen/internal/core/artifact"
	"github.com/artpar/bluegreen/internal/core/slot"
	"github.com/artpar/bluegreen/internal/shell/awsapi"
)

// primaryDeploymentStatus marks the deployment a service is converging on.
const primaryDeploymentStatus = "PRIMARY"

// =============================================================================
// Resolver - Builds the Live Topology
// =============================================================================

// Resolver assembles the current Topology from both backends.
type Resolver struct {
	ecs    awsapi.ECS
	elb    awsapi.ELB
	cfg    *Config
	logger *slog.Logger
}

// NewResolver creates a topology resolver.
func NewResolver(ecsClient awsapi.ECS, elbClient awsapi.ELB, cfg *Config, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		ecs:    ecsClient,
		elb:    elbClient,
		cfg:    cfg,
		logger: logger.With("component", "resolver"),
	}
}

// Resolve queries both slots and classifies them into production and
// staging by their rules' host conditions.
func (r *Resolver) Resolve(ctx context.Context) (slot.Topology, error) {
	names := slot.ServiceNames(r.cfg.ServiceName)

	out, err := r.ecs.DescribeServices(ctx, &ecs.DescribeServicesInput{
		Cluster:  aws.String(r.cfg.Cluster),
		Services: names,
	})
	if err != nil {
		return slot.Topology{}, backendError("DescribeServices", "cluster", r.cfg.Cluster, err)
	}
	for _, f := range out.Failures {
		r.logger.Warn("slot service not found",
			"arn", aws.ToString(f.Arn),
			"reason", aws.ToString(f.Reason),
		)
	}

	instances := make([]slot.Instance, 0, len(out.Services))
	for _, svc := range out.Services {
		inst, err := r.resolveSlot(ctx, svc)
		if err != nil {
			return slot.Topology{}, err
		}
		r.logger.Debug("resolved slot",
			"service", inst.Name,
			"version", inst.Version,
			"host", inst.TrafficHost,
			"rollout_state", inst.RolloutState,
		)
		instances = append(instances, inst)
	}

	return slot.Classify(instances, r.cfg.Hosts)
}

// resolveSlot follows service -> task definition and service -> target group
// -> load balancer -> listener -> rule for one slot.
func (r *Resolver) resolveSlot(ctx context.Context, svc ecstypes.Service) (slot.Instance, error) {
	name := aws.ToString(svc.ServiceName)

	if len(svc.LoadBalancers) == 0 || aws.ToString(svc.LoadBalancers[0].TargetGroupArn) == "" {
		return slot.Instance{}, invariantError("service", name, "no target group attached")
	}
	targetGroupARN := aws.ToString(svc.LoadBalancers[0].TargetGroupArn)

	taskDef, err := r.describeTaskDefinition(ctx, aws.ToString(svc.TaskDefinition))
	if err != nil {
		return slot.Instance{}, err
	}

	tgOut, err := r.elb.DescribeTargetGroups(ctx, &elb.DescribeTargetGroupsInput{
		TargetGroupArns: []string{targetGroupARN},
	})
	if err != nil {
		return slot.Instance{}, backendError("DescribeTargetGroups", "target group", targetGroupARN, err)
	}
	if len(tgOut.TargetGroups) == 0 || len(tgOut.TargetGroups[0].LoadBalancerArns) == 0 {
		return slot.Instance{}, invariantError("target group", targetGroupARN, "not attached to a load balancer")
	}
	loadBalancerARN := tgOut.TargetGroups[0].LoadBalancerArns[0]

	listener, err := r.findListener(ctx, loadBalancerARN)
	if err != nil {
		return slot.Instance{}, err
	}

	rules, err := r.listRules(ctx, aws.ToString(listener.ListenerArn))
	if err != nil {
		return slot.Instance{}, err
	}
	rule, ok := slot.FindRule(rules, targetGroupARN)
	if !ok {
		return slot.Instance{}, invariantError("listener", aws.ToString(listener.ListenerArn),
			"no rule forwards to target group %s", targetGroupARN)
	}
	host, ok := slot.HostCondition(rule)
	if !ok {
		return slot.Instance{}, invariantError("rule", aws.ToString(rule.RuleArn), "no host-header condition")
	}

	inst := slot.Instance{
		Name:              name,
		Version:           artifact.Version(taskDef),
		TrafficHost:       host,
		LoadBalancerARN:   loadBalancerARN,
		TargetGroupARN:    targetGroupARN,
		RuleARN:           aws.ToString(rule.RuleArn),
		ClusterARN:        aws.ToString(svc.ClusterArn),
		ServiceARN:        aws.ToString(svc.ServiceArn),
		TaskDefinitionARN: aws.ToString(taskDef.TaskDefinitionArn),
		TaskDefinition:    taskDef,
	}
	if d, ok := primaryDeployment(svc.Deployments); ok {
		inst.DeploymentStatus = aws.ToString(d.Status)
		inst.RolloutState = string(d.RolloutState)
	}
	return inst, nil
}

func (r *Resolver) describeTaskDefinition(ctx context.Context, arn string) (ecstypes.TaskDefinition, error) {
	return describeTaskDefinition(ctx, r.ecs, arn)
}

// findListener returns the load balancer's listener on the configured port.
func (r *Resolver) findListener(ctx context.Context, loadBalancerARN string) (elbtypes.Listener, error) {
	in := &elb.DescribeListenersInput{LoadBalancerArn: aws.String(loadBalancerARN)}
	for {
		out, err := r.elb.DescribeListeners(ctx, in)
		if err != nil {
			return elbtypes.Listener{}, backendError("DescribeListeners", "load balancer", loadBalancerARN, err)
		}
		for _, l := range out.Listeners {
			if aws.ToInt32(l.Port) == r.cfg.ListenerPort {
				return l, nil
			}
		}
		if aws.ToString(out.NextMarker) == "" {
			break
		}
		in.Marker = out.NextMarker
	}
	return elbtypes.Listener{}, invariantError("load balancer", loadBalancerARN,
		"no listener on port %d", r.cfg.ListenerPort)
}

// listRules returns every rule on a listener in backend order.
func (r *Resolver) listRules(ctx context.Context, listenerARN string) ([]elbtypes.Rule, error) {
	var rules []elbtypes.Rule
	in := &elb.DescribeRulesInput{ListenerArn: aws.String(listenerARN)}
	for {
		out, err := r.elb.DescribeRules(ctx, in)
		if err != nil {
			return nil, backendError("DescribeRules", "listener", listenerARN, err)
		}
		rules = append(rules, out.Rules...)
		if aws.ToString(out.NextMarker) == "" {
			return rules, nil
		}
		in.Marker = out.NextMarker
	}
}

// =============================================================================
// Shared Lookups
// =============================================================================

func describeTaskDefinition(ctx context.Context, client awsapi.ECS, arn string) (ecstypes.TaskDefinition, error) {
	out, err := client.DescribeTaskDefinition(ctx, &ecs.DescribeTaskDefinitionInput{
		TaskDefinition: aws.String(arn),
	})
	if err != nil {
		return ecstypes.TaskDefinition{}, backendError("DescribeTaskDefinition", "task definition", arn, err)
	}
	if out.TaskDefinition == nil {
		return ecstypes.TaskDefinition{}, backendError("DescribeTaskDefinition", "task definition", arn,
			fmt.Errorf("empty response"))
	}
	return *out.TaskDefinition, nil
}

// primaryDeployment returns the PRIMARY deployment, or the first one when
// none is marked.
func primaryDeployment(deployments []ecstypes.Deployment) (ecstypes.Deployment, bool) {
	for _, d := range deployments {
		if aws.ToString(d.Status) == primaryDeploymentStatus {
			return d, true
		}
	}
	if len(deployments) > 0 {
		return deployments[0], true
	}
	return ecstypes.Deployment{}, false
}
