package credential

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcrypt_HashVerify(t *testing.T) {
	h := NewBcrypt(bcrypt.MinCost)

	hash, err := h.Hash("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", hash)

	assert.NoError(t, h.Verify(hash, "hunter2"))
	assert.ErrorIs(t, h.Verify(hash, "wrong"), ErrMismatch)
}

func TestNewBcrypt_CostBounds(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewBcrypt(0).Cost)
	assert.Equal(t, bcrypt.DefaultCost, NewBcrypt(99).Cost)
	assert.Equal(t, bcrypt.MinCost, NewBcrypt(bcrypt.MinCost).Cost)
}
