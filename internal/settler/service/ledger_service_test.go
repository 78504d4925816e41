package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextBalance(t *testing.T) {
	t.Run("credit from zero", func(t *testing.T) {
		after, err := nextBalance(0, 300)
		assert.NoError(t, err)
		assert.Equal(t, int64(300), after)
	})

	t.Run("covered debit", func(t *testing.T) {
		after, err := nextBalance(300, -200)
		assert.NoError(t, err)
		assert.Equal(t, int64(100), after)
	})

	t.Run("debit to exactly zero", func(t *testing.T) {
		after, err := nextBalance(200, -200)
		assert.NoError(t, err)
		assert.Equal(t, int64(0), after)
	})

	t.Run("overdraft rejected", func(t *testing.T) {
		_, err := nextBalance(100, -101)
		assert.ErrorIs(t, err, ErrInsufficientBalance)
	})

	t.Run("zero delta keeps balance", func(t *testing.T) {
		after, err := nextBalance(50, 0)
		assert.NoError(t, err)
		assert.Equal(t, int64(50), after)
	})
}
