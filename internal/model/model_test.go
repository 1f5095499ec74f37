package model

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/notehunt/internal/fingerprint"
)

func TestNewSuccess_SetsTimestampWithoutError(t *testing.T) {
	// Given: a file path with a modification time
	path := filepath.Join(t.TempDir(), "a.txt")
	mod := time.Unix(1700000000, 0)

	// When: building a success observation
	obs := NewSuccess(path, mod)

	// Then: the success shape holds
	assert.Equal(t, ObservationSuccess, obs.Status)
	assert.Equal(t, mod, obs.LastModified)
	assert.Nil(t, obs.Err)
	assert.Nil(t, obs.ErrorMessage())
	assert.Equal(t, fingerprint.Of(path), obs.Fingerprint)
	assert.Equal(t, StatusPending, obs.RecordStatus())
}

func TestNewFailure_SetsErrorWithoutTimestamp(t *testing.T) {
	obs := NewFailure(filepath.Join(t.TempDir(), "b.txt"), errors.New("permission denied"))

	assert.Equal(t, ObservationError, obs.Status)
	assert.True(t, obs.LastModified.IsZero())
	require.NotNil(t, obs.ErrorMessage())
	assert.Equal(t, "permission denied", *obs.ErrorMessage())
	assert.Equal(t, StatusError, obs.RecordStatus())
}

func TestNewFailure_NilErrorStillCarriesDetail(t *testing.T) {
	obs := NewFailure("/tmp/c.txt", nil)

	require.Error(t, obs.Err)
	assert.Contains(t, obs.Err.Error(), "/tmp/c.txt")
}

func TestChangeKind_String(t *testing.T) {
	assert.Equal(t, "CREATED", ChangeCreated.String())
	assert.Equal(t, "MODIFIED", ChangeModified.String())
	assert.Equal(t, "DELETED", ChangeDeleted.String())
	assert.Equal(t, "DIR_DELETED", ChangeDirDeleted.String())
	assert.Equal(t, "UNKNOWN", ChangeKind(42).String())
}

func TestParseFileStatus(t *testing.T) {
	for _, st := range AllStatuses {
		got, err := ParseFileStatus(string(st))
		require.NoError(t, err)
		assert.Equal(t, st, got)
	}

	_, err := ParseFileStatus("In_Progress")
	assert.Error(t, err)
}
