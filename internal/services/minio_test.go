package services

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"billetterie_back_end/internal/apperr"
)

func TestCheckEvidence(t *testing.T) {
	require.NoError(t, CheckEvidence("image/png", 1024))
	require.NoError(t, CheckEvidence("application/pdf; charset=binary", 1024))
	require.ErrorIs(t, CheckEvidence("application/zip", 1024), apperr.ErrValidation)
	require.ErrorIs(t, CheckEvidence("image/png", 0), apperr.ErrValidation)
	require.ErrorIs(t, CheckEvidence("image/png", MaxEvidenceSize+1), apperr.ErrValidation)
}

func TestObjectKey(t *testing.T) {
	now := time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)
	key := ObjectKey("admin-1", "Capture.PNG", now)

	require.True(t, strings.HasPrefix(key, "evidence/admin-1/2026-03-01/"), key)
	require.True(t, strings.HasSuffix(key, ".png"), key)
	require.NotEqual(t, key, ObjectKey("admin-1", "Capture.PNG", now))
}
