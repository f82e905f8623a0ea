package bluegreen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	elb "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/stretchr/testify/require"

	"github.com/artpar/bluegreen/internal/core/slot"
	"github.com/artpar/bluegreen/internal/shell/awsapi"
)

// =============================================================================
// Fixture Constants
// =============================================================================

const (
	testRegionAccount = "us-east-1:123456789012"
	testClusterARN    = "arn:aws:ecs:" + testRegionAccount + ":cluster/prod"
	testLoadBalancer  = "arn:aws:elasticloadbalancing:" + testRegionAccount + ":loadbalancer/app/shop-alb/50dc6c495c0c9188"
	testListenerHTTPS = "arn:aws:elasticloadbalancing:" + testRegionAccount + ":listener/app/shop-alb/50dc6c495c0c9188/f2f7dc8efc522ab2"
	testListenerHTTP  = "arn:aws:elasticloadbalancing:" + testRegionAccount + ":listener/app/shop-alb/50dc6c495c0c9188/0467ef3c8400ae65"
	tgBlue            = "arn:aws:elasticloadbalancing:" + testRegionAccount + ":targetgroup/shop-blue-tg/6d0ecf831eec9f09"
	tgGreen           = "arn:aws:elasticloadbalancing:" + testRegionAccount + ":targetgroup/shop-green-tg/a1b2c3d4e5f60708"
	tgDefault         = "arn:aws:elasticloadbalancing:" + testRegionAccount + ":targetgroup/shop-default/0f0e0d0c0b0a0908"
	ruleBlue          = testListenerHTTPS + "/9683b2d02a6cabee"
	ruleGreen         = testListenerHTTPS + "/1f2e3d4c5b6a7980"
	ruleDefault       = testListenerHTTPS + "/default0000000000"
	ruleHTTPBlue      = testListenerHTTP + "/77aa77aa77aa77aa"

	prodHost    = "shop.example.com"
	stagingHost = "staging.shop.example.com"
	testImage   = "123456789012.dkr.ecr.us-east-1.amazonaws.com/shop"
)

var testHosts = slot.Hosts{Production: prodHost, Staging: stagingHost}

func taskDefARN(family string, revision int32) string {
	return fmt.Sprintf("arn:aws:ecs:%s:task-definition/%s:%d", testRegionAccount, family, revision)
}

func serviceARN(name string) string {
	return fmt.Sprintf("arn:aws:ecs:%s:service/prod/%s", testRegionAccount, name)
}

func familyOf(arn string) string {
	s := slot.LastSegment(arn, "/")
	if i := strings.LastIndex(s, ":"); i >= 0 {
		return s[:i]
	}
	return s
}

func hostRule(arn, host, targetGroup string, priority string) elbtypes.Rule {
	return elbtypes.Rule{
		RuleArn:  aws.String(arn),
		Priority: aws.String(priority),
		Conditions: []elbtypes.RuleCondition{
			{
				Field:            aws.String(slot.HostHeaderField),
				HostHeaderConfig: &elbtypes.HostHeaderConditionConfig{Values: []string{host}},
			},
		},
		Actions: []elbtypes.Action{
			{Type: elbtypes.ActionTypeEnumForward, TargetGroupArn: aws.String(targetGroup)},
		},
	}
}

// =============================================================================
// Fake Orchestration Backend
// =============================================================================

type fakeECS struct {
	services  map[string]*ecstypes.Service
	taskDefs  map[string]ecstypes.TaskDefinition
	revisions []string // registration order, oldest first

	registered []*ecs.RegisterTaskDefinitionInput
	updates    []*ecs.UpdateServiceInput

	describeServicesCalls int
	describeTaskDefCalls  int

	// pollsUntilComplete is how many describes after an update still report
	// IN_PROGRESS; -1 never completes.
	pollsUntilComplete int
	finalRolloutState  ecstypes.DeploymentRolloutState
	pending            map[string]int

	describeServicesErr error
	listErr             error
	registerErr         error
	updateErr           error
}

var _ awsapi.ECS = (*fakeECS)(nil)

func newFakeECS() *fakeECS {
	return &fakeECS{
		services:          map[string]*ecstypes.Service{},
		taskDefs:          map[string]ecstypes.TaskDefinition{},
		pending:           map[string]int{},
		finalRolloutState: ecstypes.DeploymentRolloutStateCompleted,
	}
}

func (f *fakeECS) addTaskDefinition(version string) string {
	revision := int32(len(f.revisions) + 1)
	arn := taskDefARN("shop", revision)
	f.taskDefs[arn] = ecstypes.TaskDefinition{
		TaskDefinitionArn: aws.String(arn),
		Family:            aws.String("shop"),
		Revision:          revision,
		ContainerDefinitions: []ecstypes.ContainerDefinition{
			{
				Name:  aws.String("web"),
				Image: aws.String(testImage + ":" + version),
				Environment: []ecstypes.KeyValuePair{
					{Name: aws.String("LOG_LEVEL"), Value: aws.String("info")},
				},
			},
		},
		Cpu:                     aws.String("256"),
		Memory:                  aws.String("512"),
		NetworkMode:             ecstypes.NetworkModeAwsvpc,
		RequiresCompatibilities: []ecstypes.Compatibility{ecstypes.CompatibilityFargate},
		ExecutionRoleArn:        aws.String("arn:aws:iam::123456789012:role/exec"),
	}
	f.revisions = append(f.revisions, arn)
	return arn
}

func (f *fakeECS) addService(name, taskDef, targetGroup string) {
	f.services[name] = &ecstypes.Service{
		ServiceName:    aws.String(name),
		ServiceArn:     aws.String(serviceARN(name)),
		ClusterArn:     aws.String(testClusterARN),
		TaskDefinition: aws.String(taskDef),
		LoadBalancers: []ecstypes.LoadBalancer{
			{TargetGroupArn: aws.String(targetGroup), ContainerName: aws.String("web"), ContainerPort: aws.Int32(8080)},
		},
		Deployments: []ecstypes.Deployment{
			{Status: aws.String("PRIMARY"), RolloutState: ecstypes.DeploymentRolloutStateCompleted, TaskDefinition: aws.String(taskDef)},
		},
	}
}

func (f *fakeECS) lookupService(ref string) (*ecstypes.Service, bool) {
	if svc, ok := f.services[ref]; ok {
		return svc, true
	}
	for _, svc := range f.services {
		if aws.ToString(svc.ServiceArn) == ref {
			return svc, true
		}
	}
	return nil, false
}

func (f *fakeECS) DescribeServices(_ context.Context, in *ecs.DescribeServicesInput, _ ...func(*ecs.Options)) (*ecs.DescribeServicesOutput, error) {
	f.describeServicesCalls++
	if f.describeServicesErr != nil {
		return nil, f.describeServicesErr
	}

	out := &ecs.DescribeServicesOutput{}
	for _, ref := range in.Services {
		svc, ok := f.lookupService(ref)
		if !ok {
			out.Failures = append(out.Failures, ecstypes.Failure{Arn: aws.String(ref), Reason: aws.String("MISSING")})
			continue
		}
		name := aws.ToString(svc.ServiceName)
		if left, ok := f.pending[name]; ok {
			switch {
			case f.pollsUntilComplete < 0:
			case left == 0:
				svc.Deployments[0].RolloutState = f.finalRolloutState
				delete(f.pending, name)
			default:
				f.pending[name] = left - 1
			}
		}
		copied := *svc
		copied.Deployments = append([]ecstypes.Deployment(nil), svc.Deployments...)
		out.Services = append(out.Services, copied)
	}
	return out, nil
}

func (f *fakeECS) DescribeTaskDefinition(_ context.Context, in *ecs.DescribeTaskDefinitionInput, _ ...func(*ecs.Options)) (*ecs.DescribeTaskDefinitionOutput, error) {
	f.describeTaskDefCalls++
	def, ok := f.taskDefs[aws.ToString(in.TaskDefinition)]
	if !ok {
		return nil, errors.New("ClientException: unable to describe task definition")
	}
	return &ecs.DescribeTaskDefinitionOutput{TaskDefinition: &def}, nil
}

func (f *fakeECS) ListTaskDefinitions(_ context.Context, in *ecs.ListTaskDefinitionsInput, _ ...func(*ecs.Options)) (*ecs.ListTaskDefinitionsOutput, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}

	var arns []string
	for _, arn := range f.revisions {
		if strings.HasPrefix(familyOf(arn), aws.ToString(in.FamilyPrefix)) {
			arns = append(arns, arn)
		}
	}
	if in.Sort == ecstypes.SortOrderDesc {
		for i, j := 0, len(arns)-1; i < j; i, j = i+1, j-1 {
			arns[i], arns[j] = arns[j], arns[i]
		}
	}
	if in.MaxResults != nil && int(*in.MaxResults) < len(arns) {
		arns = arns[:*in.MaxResults]
	}
	return &ecs.ListTaskDefinitionsOutput{TaskDefinitionArns: arns}, nil
}

func (f *fakeECS) RegisterTaskDefinition(_ context.Context, in *ecs.RegisterTaskDefinitionInput, _ ...func(*ecs.Options)) (*ecs.RegisterTaskDefinitionOutput, error) {
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	f.registered = append(f.registered, in)

	revision := int32(len(f.revisions) + 1)
	arn := taskDefARN(aws.ToString(in.Family), revision)
	def := ecstypes.TaskDefinition{
		TaskDefinitionArn:       aws.String(arn),
		Family:                  in.Family,
		Revision:                revision,
		ContainerDefinitions:    in.ContainerDefinitions,
		Cpu:                     in.Cpu,
		Memory:                  in.Memory,
		NetworkMode:             in.NetworkMode,
		RequiresCompatibilities: in.RequiresCompatibilities,
		ExecutionRoleArn:        in.ExecutionRoleArn,
	}
	f.taskDefs[arn] = def
	f.revisions = append(f.revisions, arn)
	return &ecs.RegisterTaskDefinitionOutput{TaskDefinition: &def}, nil
}

func (f *fakeECS) UpdateService(_ context.Context, in *ecs.UpdateServiceInput, _ ...func(*ecs.Options)) (*ecs.UpdateServiceOutput, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.updates = append(f.updates, in)

	svc, ok := f.lookupService(aws.ToString(in.Service))
	if !ok {
		return nil, errors.New("ServiceNotFoundException")
	}
	svc.TaskDefinition = in.TaskDefinition
	svc.Deployments = []ecstypes.Deployment{
		{Status: aws.String("PRIMARY"), RolloutState: ecstypes.DeploymentRolloutStateInProgress, TaskDefinition: in.TaskDefinition},
	}
	f.pending[aws.ToString(svc.ServiceName)] = f.pollsUntilComplete
	return &ecs.UpdateServiceOutput{Service: svc}, nil
}

// =============================================================================
// Fake Load Balancer Backend
// =============================================================================

type fakeELB struct {
	targetGroups map[string]elbtypes.TargetGroup
	listeners    map[string][]elbtypes.Listener // by load balancer
	rules        map[string][]elbtypes.Rule     // by listener

	// rulesPageSize paginates DescribeRules when > 0.
	rulesPageSize int

	modifyCalls []*elb.ModifyRuleInput
	// modifyErrs is consumed one entry per ModifyRule call; nil succeeds.
	modifyErrs []error

	describeTargetGroupsErr error
}

var _ awsapi.ELB = (*fakeELB)(nil)

func newFakeELB() *fakeELB {
	return &fakeELB{
		targetGroups: map[string]elbtypes.TargetGroup{},
		listeners:    map[string][]elbtypes.Listener{},
		rules:        map[string][]elbtypes.Rule{},
	}
}

func (f *fakeELB) DescribeTargetGroups(_ context.Context, in *elb.DescribeTargetGroupsInput, _ ...func(*elb.Options)) (*elb.DescribeTargetGroupsOutput, error) {
	if f.describeTargetGroupsErr != nil {
		return nil, f.describeTargetGroupsErr
	}
	out := &elb.DescribeTargetGroupsOutput{}
	for _, arn := range in.TargetGroupArns {
		if tg, ok := f.targetGroups[arn]; ok {
			out.TargetGroups = append(out.TargetGroups, tg)
		}
	}
	return out, nil
}

func (f *fakeELB) DescribeListeners(_ context.Context, in *elb.DescribeListenersInput, _ ...func(*elb.Options)) (*elb.DescribeListenersOutput, error) {
	return &elb.DescribeListenersOutput{Listeners: f.listeners[aws.ToString(in.LoadBalancerArn)]}, nil
}

func (f *fakeELB) DescribeRules(_ context.Context, in *elb.DescribeRulesInput, _ ...func(*elb.Options)) (*elb.DescribeRulesOutput, error) {
	all := f.rules[aws.ToString(in.ListenerArn)]
	if f.rulesPageSize <= 0 {
		return &elb.DescribeRulesOutput{Rules: all}, nil
	}

	start := 0
	if in.Marker != nil {
		start, _ = strconv.Atoi(*in.Marker)
	}
	end := min(start+f.rulesPageSize, len(all))
	out := &elb.DescribeRulesOutput{Rules: all[start:end]}
	if end < len(all) {
		out.NextMarker = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

func (f *fakeELB) ModifyRule(_ context.Context, in *elb.ModifyRuleInput, _ ...func(*elb.Options)) (*elb.ModifyRuleOutput, error) {
	f.modifyCalls = append(f.modifyCalls, in)
	if len(f.modifyErrs) > 0 {
		err := f.modifyErrs[0]
		f.modifyErrs = f.modifyErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	for listener, rules := range f.rules {
		for i, r := range rules {
			if aws.ToString(r.RuleArn) != aws.ToString(in.RuleArn) {
				continue
			}
			r.Conditions = in.Conditions
			r.Actions = in.Actions
			f.rules[listener][i] = r
			return &elb.ModifyRuleOutput{Rules: []elbtypes.Rule{r}}, nil
		}
	}
	return nil, errors.New("RuleNotFound")
}

func (f *fakeELB) rule(arn string) elbtypes.Rule {
	for _, rules := range f.rules {
		for _, r := range rules {
			if aws.ToString(r.RuleArn) == arn {
				return r
			}
		}
	}
	return elbtypes.Rule{}
}

func (f *fakeELB) setRuleHost(arn, host string) {
	for listener, rules := range f.rules {
		for i, r := range rules {
			if aws.ToString(r.RuleArn) == arn {
				r.Conditions[0].HostHeaderConfig.Values = []string{host}
				f.rules[listener][i] = r
			}
		}
	}
}

// =============================================================================
// Fixture
// =============================================================================

// fakeClock records simulated sleeps.
type fakeClock struct {
	elapsed time.Duration
	sleeps  int
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.elapsed += d
	c.sleeps++
	return nil
}

type fixture struct {
	ecs   *fakeECS
	elb   *fakeELB
	clock *fakeClock
	out   *bytes.Buffer
	cfg   Config
}

// newFixture builds a healthy topology: shop-blue serves production on
// v1.0 (shop:2) and shop-green serves staging on v1.1 (shop:3); shop:1 runs
// v0.9. The load balancer has an HTTP listener whose rule also forwards to
// the blue target group, which must be ignored.
func newFixture() *fixture {
	e := newFakeECS()
	e.addTaskDefinition("v0.9")
	blueDef := e.addTaskDefinition("v1.0")
	greenDef := e.addTaskDefinition("v1.1")
	e.addService("shop-green", greenDef, tgGreen)
	e.addService("shop-blue", blueDef, tgBlue)

	l := newFakeELB()
	for _, tg := range []string{tgBlue, tgGreen, tgDefault} {
		l.targetGroups[tg] = elbtypes.TargetGroup{
			TargetGroupArn:   aws.String(tg),
			LoadBalancerArns: []string{testLoadBalancer},
		}
	}
	l.listeners[testLoadBalancer] = []elbtypes.Listener{
		{ListenerArn: aws.String(testListenerHTTP), Port: aws.Int32(80), LoadBalancerArn: aws.String(testLoadBalancer)},
		{ListenerArn: aws.String(testListenerHTTPS), Port: aws.Int32(443), LoadBalancerArn: aws.String(testLoadBalancer)},
	}
	l.rules[testListenerHTTP] = []elbtypes.Rule{
		hostRule(ruleHTTPBlue, "http."+prodHost, tgBlue, "1"),
	}
	defaultRule := elbtypes.Rule{
		RuleArn:   aws.String(ruleDefault),
		Priority:  aws.String("default"),
		IsDefault: aws.Bool(true),
		Actions:   []elbtypes.Action{{Type: elbtypes.ActionTypeEnumForward, TargetGroupArn: aws.String(tgDefault)}},
	}
	l.rules[testListenerHTTPS] = []elbtypes.Rule{
		hostRule(ruleGreen, stagingHost, tgGreen, "10"),
		hostRule(ruleBlue, prodHost, tgBlue, "20"),
		defaultRule,
	}

	return &fixture{
		ecs:   e,
		elb:   l,
		clock: &fakeClock{},
		out:   &bytes.Buffer{},
		cfg: Config{
			ServiceName:  "shop",
			Cluster:      "prod",
			ListenerPort: 443,
			Hosts:        testHosts,
		},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (fx *fixture) service() *Service {
	s := NewService(fx.ecs, fx.elb, fx.cfg, fx.out, testLogger())
	s.executor.sleep = fx.clock.Sleep
	s.swapper.sleep = fx.clock.Sleep
	return s
}

func (fx *fixture) topology(t *testing.T, s *Service) slot.Topology {
	t.Helper()
	topo, err := s.Status(context.Background())
	require.NoError(t, err)
	return topo
}
