package utils

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestIsValidUUID(t *testing.T) {
	require.True(t, IsValidUUID(uuid.New().String()))
	require.True(t, IsValidUUID("A94B2C70-1DD2-4D6A-8F3E-0B6C8D9E1A2B"))

	require.False(t, IsValidUUID(""))
	require.False(t, IsValidUUID("not-a-uuid"))
	require.False(t, IsValidUUID("a94b2c701dd24d6a8f3e0b6c8d9e1a2b"))
	require.False(t, IsValidUUID("a94b2c70-1dd2-4d6a-8f3e-0b6c8d9e1a2b-extra"))
}
