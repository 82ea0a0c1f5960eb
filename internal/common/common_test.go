package common

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("DB_URL", "file:reports.db")
	t.Setenv("LLM_PROVIDER", "stub")
	t.Setenv("EXTRACT_RETRY_ATTEMPTS", "5")
	t.Setenv("EXTRACT_RETRY_DELAY", "250ms")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")

	cfg := LoadConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, uint(5), cfg.LLM.RetryAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.LLM.RetryDelay)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
}

func TestConfigValidate(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/reports")
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	err := LoadConfig().Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.Equal(t, CodeConfig, CodeOf(err))
}

func TestTaxonomyWrapping(t *testing.T) {
	cause := errors.New("connection refused")

	err := StorageWriteError("waste/x.jpg", cause)
	assert.True(t, errors.Is(err, ErrStorageWrite))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, CodeStorageWrite, CodeOf(err))

	err = LedgerWriteError("insert upload", cause)
	assert.True(t, errors.Is(err, ErrLedgerWrite))
	assert.Equal(t, codes.Unavailable, status.Code(ToGRPC(err)))
}

func TestToGRPC(t *testing.T) {
	assert.Equal(t, codes.NotFound, status.Code(ToGRPC(ErrNotFound)))
	assert.Equal(t, codes.FailedPrecondition, status.Code(ToGRPC(ErrInvalidTransition)))
	assert.Equal(t, codes.Internal, status.Code(ToGRPC(errors.New("boom"))))
	assert.Nil(t, ToGRPC(nil))
}

func TestValidator(t *testing.T) {
	v := NewValidator().
		Field("id", "not-a-uuid", UUID).
		Field("reason", "", Required).
		Field("note", "abcdef", MaxLength(3))
	require.True(t, v.HasErrors())
	assert.Len(t, v.Errors(), 3)
	assert.True(t, IsValidationError(v.Error()))
	assert.Equal(t, codes.InvalidArgument, status.Code(ValidateAndReturnError(v)))

	ok := NewValidator().
		Field("id", "6f1c2a9e-3b5d-4e7f-9a1b-2c3d4e5f6a7b", Required, UUID).
		Field("note", "héllo", MaxLength(5))
	assert.NoError(t, ok.Error())
	assert.NoError(t, ValidateAndReturnError(ok))
}
