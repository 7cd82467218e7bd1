package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")

	ciphertext, err := Encrypt([]byte("access-token-value"), key)
	require.NoError(t, err)
	assert.NotEqual(t, "access-token-value", ciphertext)

	plaintext, err := Decrypt(ciphertext, key)
	require.NoError(t, err)
	assert.Equal(t, "access-token-value", plaintext)
}

func TestDecryptWrongKey(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	otherKey := []byte("fedcba9876543210fedcba9876543210")

	ciphertext, err := Encrypt([]byte("access-token-value"), key)
	require.NoError(t, err)

	_, err = Decrypt(ciphertext, otherKey)
	assert.Error(t, err)
}

func TestDecryptShortCiphertext(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")

	_, err := Decrypt("dG9vc2hvcnQ=", key)
	assert.Error(t, err)
}
