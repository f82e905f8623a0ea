package bluegreen

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"

	"github.com/artpar/bluegreen/internal/core/artifact"
	"github.com/artpar/bluegreen/internal/shell/awsapi"
)

// maxListPage is the largest page ListTaskDefinitions accepts.
const maxListPage = 100

// =============================================================================
// Artifacts - Task Definition Lookup and Cloning
// =============================================================================

// Artifacts finds task definition revisions by version and registers new
// ones cloned from an existing revision.
type Artifacts struct {
	ecs    awsapi.ECS
	family string
	logger *slog.Logger
}

// NewArtifacts creates an artifact resolver for a task definition family.
func NewArtifacts(ecsClient awsapi.ECS, family string, logger *slog.Logger) *Artifacts {
	if logger == nil {
		logger = slog.Default()
	}
	return &Artifacts{
		ecs:    ecsClient,
		family: family,
		logger: logger.With("component", "artifacts", "family", family),
	}
}

// FindMatching inspects at most maxDepth of the newest revisions, newest
// first, and returns the ARN of the first one whose primary image tag is
// version. found is false when no revision within the depth matches; older
// matches are deliberately not considered.
func (a *Artifacts) FindMatching(ctx context.Context, version string, maxDepth int32) (arn string, found bool, err error) {
	if maxDepth <= 0 {
		return "", false, nil
	}

	pager := ecs.NewListTaskDefinitionsPaginator(a.ecs, &ecs.ListTaskDefinitionsInput{
		FamilyPrefix: aws.String(a.family),
		Sort:         ecstypes.SortOrderDesc,
		MaxResults:   aws.Int32(min(maxDepth, maxListPage)),
	})

	var inspected int32
	for pager.HasMorePages() && inspected < maxDepth {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return "", false, backendError("ListTaskDefinitions", "family", a.family, err)
		}
		for _, candidate := range page.TaskDefinitionArns {
			if inspected >= maxDepth {
				break
			}
			inspected++

			def, err := describeTaskDefinition(ctx, a.ecs, candidate)
			if err != nil {
				return "", false, err
			}
			if artifact.Version(def) == version {
				a.logger.Debug("found matching revision", "version", version, "arn", candidate, "depth", inspected)
				return candidate, true, nil
			}
		}
	}

	a.logger.Debug("no matching revision", "version", version, "inspected", inspected)
	return "", false, nil
}

// CloneWithVersion registers a new revision copying base with the primary
// container moved to version. Rejected definitions are reported as
// ErrArtifactCreationFailed and not retried.
func (a *Artifacts) CloneWithVersion(ctx context.Context, base ecstypes.TaskDefinition, version string) (string, error) {
	baseARN := aws.ToString(base.TaskDefinitionArn)

	in, err := artifact.CloneInput(base, a.family, version)
	if err != nil {
		return "", &OpError{
			Op:      "CloneWithVersion",
			Entity:  "task definition",
			ID:      baseARN,
			Message: err.Error(),
			Err:     fmt.Errorf("%w: %w", ErrArtifactCreationFailed, err),
		}
	}

	out, err := a.ecs.RegisterTaskDefinition(ctx, in)
	if err != nil {
		if awsapi.IsClientFault(err) {
			return "", &OpError{
				Op:      "RegisterTaskDefinition",
				Entity:  "family",
				ID:      a.family,
				Message: err.Error(),
				Err:     fmt.Errorf("%w: %w", ErrArtifactCreationFailed, err),
			}
		}
		return "", backendError("RegisterTaskDefinition", "family", a.family, err)
	}
	if out.TaskDefinition == nil || aws.ToString(out.TaskDefinition.TaskDefinitionArn) == "" {
		return "", &OpError{
			Op:      "RegisterTaskDefinition",
			Entity:  "family",
			ID:      a.family,
			Message: "no task definition returned",
			Err:     ErrArtifactCreationFailed,
		}
	}

	arn := aws.ToString(out.TaskDefinition.TaskDefinitionArn)
	a.logger.Info("registered task definition",
		"version", version,
		"arn", arn,
		"base", baseARN,
	)
	return arn, nil
}
