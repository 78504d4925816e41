package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewSessionProvisionerValidatesCronSpecs(t *testing.T) {
	_, err := NewSessionProvisioner(nil, nil, "not a cron", "0 16 * * 1-5")
	assert.Error(t, err)

	_, err = NewSessionProvisioner(nil, nil, "0 9 * * 1-5", "sixteen o'clock")
	assert.Error(t, err)

	_, err = NewSessionProvisioner(nil, nil, "0 9 * * 1-5", "0 16 * * 1-5")
	assert.NoError(t, err)
}

func TestSameDay(t *testing.T) {
	a := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	assert.True(t, sameDay(a, time.Date(2026, 3, 2, 23, 59, 0, 0, time.UTC)))
	assert.False(t, sameDay(a, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)))
	assert.False(t, sameDay(a, time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)))
}
