package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminChecker(t *testing.T) {
	checker, err := NewAdminChecker([]int64{100, 200})
	require.NoError(t, err)

	isAdmin, err := checker.IsAdmin(context.Background(), 100)
	require.NoError(t, err)
	assert.True(t, isAdmin)

	isAdmin, err = checker.IsAdmin(context.Background(), 300)
	require.NoError(t, err)
	assert.False(t, isAdmin)
}

func TestNewAdminCheckerValidation(t *testing.T) {
	checker, err := NewAdminChecker(nil)
	require.NoError(t, err)
	isAdmin, _ := checker.IsAdmin(context.Background(), 1)
	assert.False(t, isAdmin, "empty list denies everyone")

	_, err = NewAdminChecker([]int64{1, 0})
	assert.Error(t, err)
}
