package vision

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewHTTPClient_RequiresCredential(t *testing.T) {
	_, err := NewHTTPClient("https://vendor.example", "")
	require.ErrorIs(t, err, ErrAuthMissing)
}

func TestNewHTTPClient_AcceptsCredential(t *testing.T) {
	c, err := NewHTTPClient("https://vendor.example", "sk-real-key")
	require.NoError(t, err)
	require.NotNil(t, c)
}
