// Package artifact plans new task definition revisions from existing ones.
// Following the functional core convention - this package contains NO I/O.
package artifact

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"

	"github.com/artpar/bluegreen/internal/core/slot"
)

// VersionEnvVar is injected into the primary container of every cloned
// revision so the running application can report its version.
const VersionEnvVar = "AC_SERVICE_VERSION"

// ErrNoContainers is returned when a base task definition has no container
// definitions to carry the version.
var ErrNoContainers = errors.New("task definition has no container definitions")

// =============================================================================
// Clone Planning (Pure Functions)
// =============================================================================

// CloneInput builds the register request for a new revision of family that
// copies base and changes only the primary container's image tag and its
// version environment variable. base is not modified.
func CloneInput(base ecstypes.TaskDefinition, family, version string) (*ecs.RegisterTaskDefinitionInput, error) {
	if len(base.ContainerDefinitions) == 0 {
		return nil, ErrNoContainers
	}

	containers := make([]ecstypes.ContainerDefinition, len(base.ContainerDefinitions))
	copy(containers, base.ContainerDefinitions)

	primary := containers[0]
	image, err := slot.WithImageTag(aws.ToString(primary.Image), version)
	if err != nil {
		return nil, fmt.Errorf("primary container %s: %w", aws.ToString(primary.Name), err)
	}
	primary.Image = aws.String(image)
	primary.Environment = WithVersionEnv(primary.Environment, version)
	containers[0] = primary

	compat := base.RequiresCompatibilities
	if len(compat) == 0 {
		compat = base.Compatibilities
	}

	return &ecs.RegisterTaskDefinitionInput{
		Family:                  aws.String(family),
		ContainerDefinitions:    containers,
		Cpu:                     base.Cpu,
		Memory:                  base.Memory,
		EphemeralStorage:        base.EphemeralStorage,
		ExecutionRoleArn:        base.ExecutionRoleArn,
		TaskRoleArn:             base.TaskRoleArn,
		InferenceAccelerators:   base.InferenceAccelerators,
		IpcMode:                 base.IpcMode,
		PidMode:                 base.PidMode,
		NetworkMode:             base.NetworkMode,
		PlacementConstraints:    base.PlacementConstraints,
		ProxyConfiguration:      base.ProxyConfiguration,
		RequiresCompatibilities: compat,
		RuntimePlatform:         base.RuntimePlatform,
		Volumes:                 base.Volumes,
	}, nil
}

// WithVersionEnv returns a copy of env with VersionEnvVar set to version,
// replacing an existing entry in place or appending a new one.
func WithVersionEnv(env []ecstypes.KeyValuePair, version string) []ecstypes.KeyValuePair {
	out := make([]ecstypes.KeyValuePair, 0, len(env)+1)
	replaced := false
	for _, kv := range env {
		if aws.ToString(kv.Name) == VersionEnvVar {
			if replaced {
				continue
			}
			kv.Value = aws.String(version)
			replaced = true
		}
		out = append(out, kv)
	}
	if !replaced {
		out = append(out, ecstypes.KeyValuePair{
			Name:  aws.String(VersionEnvVar),
			Value: aws.String(version),
		})
	}
	return out
}

// Version returns the version a task definition runs: the tag of its
// primary container image.
func Version(def ecstypes.TaskDefinition) string {
	if len(def.ContainerDefinitions) == 0 {
		return ""
	}
	return slot.ImageTag(aws.ToString(def.ContainerDefinitions[0].Image))
}
