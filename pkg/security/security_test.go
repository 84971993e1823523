package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Wikia/interactive-maps-sub000/pkg/core"
)

func TestValidateJobTypeName(t *testing.T) {
	assert.NoError(t, ValidateJobTypeName("fetch"))
	assert.NoError(t, ValidateJobTypeName("tile-batch"))
	assert.NoError(t, ValidateJobTypeName("tiles.optimize_v2"))

	assert.ErrorIs(t, ValidateJobTypeName(""), core.ErrInvalidJobTypeName)
	assert.ErrorIs(t, ValidateJobTypeName("1fetch"), core.ErrInvalidJobTypeName)
	assert.ErrorIs(t, ValidateJobTypeName("tile batch"), core.ErrInvalidJobTypeName)
	assert.ErrorIs(t, ValidateJobTypeName("tile/batch"), core.ErrInvalidJobTypeName)
	assert.ErrorIs(t, ValidateJobTypeName(strings.Repeat("a", MaxJobTypeNameLength+1)), core.ErrJobTypeNameTooLong)
}

func TestSanitizeErrorMessage(t *testing.T) {
	assert.Equal(t, "", SanitizeErrorMessage(""))
	assert.Equal(t, "plain error", SanitizeErrorMessage("plain error"))
	assert.Equal(t, "line1\nline2", SanitizeErrorMessage("line1\nline2"))
	assert.Equal(t, "nulls", SanitizeErrorMessage("nu\x00lls\x01"))

	long := SanitizeErrorMessage(strings.Repeat("x", MaxErrorMessageLength*2))
	assert.Len(t, []rune(long), MaxErrorMessageLength)
	assert.True(t, strings.HasSuffix(long, "..."))
}

func TestClampAttempts(t *testing.T) {
	assert.Equal(t, 1, ClampAttempts(0))
	assert.Equal(t, 1, ClampAttempts(-4))
	assert.Equal(t, 3, ClampAttempts(3))
	assert.Equal(t, MaxAttempts, ClampAttempts(MaxAttempts+50))
}

func TestClampConcurrency(t *testing.T) {
	assert.Equal(t, 1, ClampConcurrency(0))
	assert.Equal(t, 8, ClampConcurrency(8))
	assert.Equal(t, MaxConcurrency, ClampConcurrency(MaxConcurrency*2))
}

func TestValidateUniqueKey(t *testing.T) {
	assert.NoError(t, ValidateUniqueKey(""))
	assert.NoError(t, ValidateUniqueKey("fetch:42"))
	assert.ErrorIs(t, ValidateUniqueKey(strings.Repeat("k", MaxUniqueKeyLength+1)), core.ErrUniqueKeyTooLong)
}
