package slot

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testHosts = Hosts{Production: "shop.example.com", Staging: "staging.shop.example.com"}

func instance(name, host, version string) Instance {
	return Instance{
		Name:              name,
		TrafficHost:       host,
		Version:           version,
		RuleARN:           "rule/" + name,
		ServiceARN:        "arn:aws:ecs:us-east-1:123:service/prod/" + name,
		TaskDefinitionARN: "arn:aws:ecs:us-east-1:123:task-definition/shop:7",
	}
}

// =============================================================================
// Classify Tests
// =============================================================================

func TestClassify_AssignsRolesByHost(t *testing.T) {
	topo, err := Classify([]Instance{
		instance("shop-green", testHosts.Staging, "v1.1"),
		instance("shop-blue", testHosts.Production, "v1.0"),
	}, testHosts)
	require.NoError(t, err)

	assert.Equal(t, "shop-blue", topo.Production.Name)
	assert.Equal(t, "v1.0", topo.Production.Version)
	assert.Equal(t, "shop-green", topo.Staging.Name)
	assert.Equal(t, "v1.1", topo.Staging.Version)
}

func TestClassify_TooFewSlots(t *testing.T) {
	_, err := Classify([]Instance{instance("shop-blue", testHosts.Production, "v1")}, testHosts)
	assert.ErrorIs(t, err, ErrInvariantViolation)
	assert.NotErrorIs(t, err, ErrSplitState)
}

func TestClassify_NoMatchingHosts(t *testing.T) {
	_, err := Classify([]Instance{
		instance("shop-green", "other.example.com", "v1"),
		instance("shop-blue", "another.example.com", "v1"),
	}, testHosts)
	assert.ErrorIs(t, err, ErrInvariantViolation)
	assert.NotErrorIs(t, err, ErrSplitState)
}

func TestClassify_OnlyOneRoleMatched(t *testing.T) {
	_, err := Classify([]Instance{
		instance("shop-green", testHosts.Production, "v1"),
		instance("shop-blue", "other.example.com", "v1"),
	}, testHosts)
	assert.ErrorIs(t, err, ErrInvariantViolation)
}

func TestClassify_BothProductionIsSplitState(t *testing.T) {
	_, err := Classify([]Instance{
		instance("shop-green", testHosts.Production, "v1"),
		instance("shop-blue", testHosts.Production, "v2"),
	}, testHosts)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSplitState)
	assert.ErrorIs(t, err, ErrInvariantViolation)

	var split *SplitStateError
	require.True(t, errors.As(err, &split))
	assert.Equal(t, testHosts.Production, split.Host)
	assert.Equal(t, testHosts.Staging, split.MissingHost)
	assert.Equal(t, []string{"rule/shop-green", "rule/shop-blue"}, split.Rules)
}

func TestClassify_BothStagingIsSplitState(t *testing.T) {
	_, err := Classify([]Instance{
		instance("shop-green", testHosts.Staging, "v1"),
		instance("shop-blue", testHosts.Staging, "v2"),
	}, testHosts)

	var split *SplitStateError
	require.True(t, errors.As(err, &split))
	assert.Equal(t, testHosts.Production, split.MissingHost)
}

// =============================================================================
// Status Tests
// =============================================================================

func TestTopologyStatus(t *testing.T) {
	topo := Topology{
		Production: instance("shop-blue", testHosts.Production, "v1.0"),
		Staging:    instance("shop-green", testHosts.Staging, "v1.1"),
	}

	s := topo.Status()
	assert.Equal(t, SlotStatus{
		URL:      testHosts.Production,
		Version:  "v1.0",
		Instance: "shop-blue",
		Revision: "7",
	}, s.Production)
	assert.Equal(t, "shop-green", s.Staging.Instance)
	assert.Equal(t, "v1.1", s.Staging.Version)
}
