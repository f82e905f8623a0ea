// Package awsapi builds the AWS clients for the container orchestration and
// load balancer backends and exposes the narrow interfaces the blue/green
// engine consumes. This is part of the Imperative Shell - it handles I/O
// with cloud APIs.
package awsapi

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	elb "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
)

// ECS is the subset of the container orchestration API used by the engine.
type ECS interface {
	DescribeServices(ctx context.Context, in *ecs.DescribeServicesInput, optFns ...func(*ecs.Options)) (*ecs.DescribeServicesOutput, error)
	DescribeTaskDefinition(ctx context.Context, in *ecs.DescribeTaskDefinitionInput, optFns ...func(*ecs.Options)) (*ecs.DescribeTaskDefinitionOutput, error)
	ListTaskDefinitions(ctx context.Context, in *ecs.ListTaskDefinitionsInput, optFns ...func(*ecs.Options)) (*ecs.ListTaskDefinitionsOutput, error)
	RegisterTaskDefinition(ctx context.Context, in *ecs.RegisterTaskDefinitionInput, optFns ...func(*ecs.Options)) (*ecs.RegisterTaskDefinitionOutput, error)
	UpdateService(ctx context.Context, in *ecs.UpdateServiceInput, optFns ...func(*ecs.Options)) (*ecs.UpdateServiceOutput, error)
}

// ELB is the subset of the load balancer API used by the engine.
type ELB interface {
	DescribeTargetGroups(ctx context.Context, in *elb.DescribeTargetGroupsInput, optFns ...func(*elb.Options)) (*elb.DescribeTargetGroupsOutput, error)
	DescribeListeners(ctx context.Context, in *elb.DescribeListenersInput, optFns ...func(*elb.Options)) (*elb.DescribeListenersOutput, error)
	DescribeRules(ctx context.Context, in *elb.DescribeRulesInput, optFns ...func(*elb.Options)) (*elb.DescribeRulesOutput, error)
	ModifyRule(ctx context.Context, in *elb.ModifyRuleInput, optFns ...func(*elb.Options)) (*elb.ModifyRuleOutput, error)
}

var (
	_ ECS = (*ecs.Client)(nil)
	_ ELB = (*elb.Client)(nil)
)

// Options selects the region and credentials for the clients.
type Options struct {
	Region string

	// Profile selects a shared config profile. Empty uses the default chain.
	Profile string

	// Static credentials. When AccessKeyID is empty the default
	// credential chain (env, shared config, instance role) is used.
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Clients holds the two backend clients for one region.
type Clients struct {
	ECS ECS
	ELB ELB
}

// NewClients loads the AWS configuration and creates both backend clients.
func NewClients(ctx context.Context, opts Options, logger *slog.Logger) (*Clients, error) {
	if logger == nil {
		logger = slog.Default()
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
	}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(opts.Profile))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, opts.SessionToken),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Debug("aws clients configured",
		"region", cfg.Region,
		"profile", opts.Profile,
		"static_credentials", opts.AccessKeyID != "",
	)

	return newClients(cfg), nil
}

func newClients(cfg aws.Config) *Clients {
	return &Clients{
		ECS: ecs.NewFromConfig(cfg),
		ELB: elb.NewFromConfig(cfg),
	}
}
