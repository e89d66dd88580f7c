package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindMatchingThroughWrapping(t *testing.T) {
	err := fmt.Errorf("approbation: %w", DuplicateApprover("déjà signé par %s", "admin-1"))

	require.True(t, errors.Is(err, ErrDuplicateApprover))
	require.False(t, errors.Is(err, ErrInvalidState))
	require.Equal(t, KindDuplicateApprover, KindOf(err))
	require.Equal(t, "déjà signé par admin-1", Public(err))
}

func TestStatusMapping(t *testing.T) {
	cases := map[error]int{
		NotFound("x"):          http.StatusNotFound,
		InvalidState("x"):      http.StatusConflict,
		DuplicateApprover("x"): http.StatusConflict,
		Validation("x"):        http.StatusBadRequest,
		Conflict("x"):          http.StatusConflict,
		errors.New("boom"):     http.StatusInternalServerError,
	}
	for err, want := range cases {
		require.Equal(t, want, Status(err), err.Error())
	}
}

func TestPublicHidesInternalErrors(t *testing.T) {
	require.Equal(t, "Erreur serveur", Public(errors.New("dial tcp 10.0.0.3:9042: refused")))
}
