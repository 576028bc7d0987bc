package config

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPasswordConfig(t *testing.T) {
	tests := []struct {
		name    string
		cost    int
		wantErr bool
	}{
		{"lowest allowed", 10, false},
		{"default", 12, false},
		{"highest allowed", 14, false},
		{"too low", 9, true},
		{"too high", 15, true},
		{"zero", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewPasswordConfig(tt.cost, "")
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "bcrypt cost out of range")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.cost, cfg.BcryptCost)
		})
	}
}

func TestPasswordConfig_HashAndVerify(t *testing.T) {
	cfg, err := NewPasswordConfig(10, "")
	require.NoError(t, err)

	hash, err := cfg.HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)
	assert.True(t, strings.HasPrefix(hash, "$2a$10$"))

	assert.True(t, cfg.VerifyPassword("correct horse", hash))
	assert.False(t, cfg.VerifyPassword("wrong horse", hash))
	assert.False(t, cfg.VerifyPassword("correct horse", "not-a-hash"))

	other, err := cfg.HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "salts differ per hash")
}

func TestPasswordConfig_Pepper(t *testing.T) {
	peppered, err := NewPasswordConfig(10, "pepper-one")
	require.NoError(t, err)
	rotated, err := NewPasswordConfig(10, "pepper-two")
	require.NoError(t, err)
	plain, err := NewPasswordConfig(10, "")
	require.NoError(t, err)

	hash, err := peppered.HashPassword("secret")
	require.NoError(t, err)

	assert.True(t, peppered.VerifyPassword("secret", hash))
	assert.False(t, rotated.VerifyPassword("secret", hash))
	assert.False(t, plain.VerifyPassword("secret", hash))
}

func TestPasswordConfig_TooLong(t *testing.T) {
	cfg, err := NewPasswordConfig(10, "")
	require.NoError(t, err)

	_, err = cfg.HashPassword(strings.Repeat("a", 73))
	assert.Error(t, err, "bcrypt rejects inputs over 72 bytes")
}

func TestPasswordConfig_ConcurrentAccess(t *testing.T) {
	cfg, err := NewPasswordConfig(10, "pepper")
	require.NoError(t, err)
	hash, err := cfg.HashPassword("secret")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, cfg.VerifyPassword("secret", hash))
		}()
	}
	wg.Wait()
}

func BenchmarkHashPassword_Cost10(b *testing.B) {
	cfg, _ := NewPasswordConfig(10, "")
	for b.Loop() {
		_, _ = cfg.HashPassword("benchmark-password")
	}
}
