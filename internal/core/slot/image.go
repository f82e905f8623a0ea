package slot

import (
	"fmt"
	"strings"

	"github.com/distribution/reference"
)

// =============================================================================
// Image Tags (Pure Functions)
// =============================================================================

// ImageTag returns the tag of a container image reference, which is the
// deployed application version. Unparseable references fall back to the
// text after the last colon.
func ImageTag(image string) string {
	ref, err := reference.Parse(image)
	if err != nil {
		if i := strings.LastIndex(image, ":"); i >= 0 {
			return image[i+1:]
		}
		return ""
	}
	if tagged, ok := ref.(reference.Tagged); ok {
		return tagged.Tag()
	}
	return ""
}

// WithImageTag returns image with its tag replaced by tag. Any digest is
// dropped along with the old tag.
func WithImageTag(image, tag string) (string, error) {
	ref, err := reference.Parse(image)
	if err != nil {
		return "", fmt.Errorf("parse image %q: %w", image, err)
	}
	named, ok := ref.(reference.Named)
	if !ok {
		return "", fmt.Errorf("image %q has no repository name", image)
	}
	tagged, err := reference.WithTag(reference.TrimNamed(named), tag)
	if err != nil {
		return "", fmt.Errorf("tag %q: %w", tag, err)
	}
	return tagged.String(), nil
}

// LastSegment returns the part of s after the last sep.
func LastSegment(s, sep string) string {
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[i+len(sep):]
	}
	return s
}

// TargetGroupName returns the name segment of a target group ARN
// ("...:targetgroup/<name>/<id>").
func TargetGroupName(arn string) string {
	parts := strings.Split(arn, "/")
	if len(parts) < 2 {
		return arn
	}
	return parts[len(parts)-2]
}
