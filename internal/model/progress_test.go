package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgress_AtLeast(t *testing.T) {
	assert.True(t, ProgressDBCreated.AtLeast(ProgressProjectCreated))
	assert.True(t, ProgressDBCreated.AtLeast(ProgressDBCreated))
	assert.False(t, ProgressDBCreated.AtLeast(ProgressBackendDeployed))
	assert.True(t, ProgressCompleted.AtLeast(ProgressDomainsConfigured))
	assert.False(t, ProgressPending.AtLeast(ProgressProjectCreated))
}

func TestProgress_UnknownComparesAsPending(t *testing.T) {
	var unknown Progress = "not_a_real_step"
	assert.False(t, unknown.AtLeast(ProgressProjectCreated))
	assert.True(t, ProgressProjectCreated.AtLeast(unknown))
}

func TestProgress_Valid(t *testing.T) {
	assert.True(t, ProgressPending.Valid())
	assert.True(t, ProgressCompleted.Valid())
	assert.False(t, Progress("bogus").Valid())
}

func TestProvisionRequest_AppendDetail(t *testing.T) {
	var p ProvisionRequest
	p.AppendDetail("first")
	p.AppendDetail("second")
	assert.Equal(t, "first\nsecond", p.Detail)
}

func TestProvisionRequest_Terminal(t *testing.T) {
	var p ProvisionRequest
	p.Progress = ProgressDBCreated
	assert.False(t, p.Terminal())

	p.Failed = true
	assert.True(t, p.Terminal())

	p.Failed = false
	p.Progress = ProgressCompleted
	assert.True(t, p.Terminal())
}
