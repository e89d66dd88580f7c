package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"billetterie_back_end/internal/apperr"
)

func TestReasonLengthPerTier(t *testing.T) {
	require.Error(t, Reason("abcd", Tier1))
	require.NoError(t, Reason("abcde", Tier1))
	require.NoError(t, Reason("  abcde  ", Tier1))

	require.Error(t, Reason("nineteen characters", Tier2))
	require.NoError(t, Reason("exactly twenty chars", Tier2))
	require.NoError(t, Reason(strings.Repeat("é", 20), Tier3), "la longueur se compte en caractères")

	err := Reason("abc", Tier1)
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestEvidencePerTier(t *testing.T) {
	require.NoError(t, Evidence("", Tier1))
	require.Error(t, Evidence("ftp://x", Tier1), "une preuve fournie doit rester une URL valide")

	require.Error(t, Evidence("", Tier2))
	require.Error(t, Evidence("hxxp://nope", Tier2))
	require.Error(t, Evidence("httpnothing", Tier3))
	require.NoError(t, Evidence("https://tickets.example.com/case/42", Tier3))
	require.NoError(t, Evidence("http://intranet/evidence.png", Tier2))
}

func TestSurgeReasonTokens(t *testing.T) {
	for _, ok := range []string{"queue_depth", "payment_latency", "manual", "bot_wave2"} {
		require.NoError(t, SurgeReason(ok), ok)
	}
	for _, bad := range []string{"", "Queue Depth", "queue-depth", "_queue", "queue__depth", "queue_"} {
		require.Error(t, SurgeReason(bad), bad)
	}
}

func TestRejectionReasonDefault(t *testing.T) {
	require.Equal(t, DefaultRejectionReason, RejectionReason("   "))
	require.Equal(t, "fraude", RejectionReason(" fraude "))
}

type sample struct {
	Category string `validate:"omitempty,snake_token"`
	Evidence string `validate:"required,evidence_url"`
	Count    int    `validate:"gte=1"`
}

func TestStructTranslatesFirstError(t *testing.T) {
	err := Struct(sample{Category: "Bad Token", Evidence: "https://x.io/a", Count: 1})
	require.ErrorIs(t, err, apperr.ErrValidation)
	require.Contains(t, err.Error(), "Category")

	err = Struct(sample{Evidence: "https://x.io/a", Count: 0})
	require.Contains(t, err.Error(), "gte=1")

	require.NoError(t, Struct(sample{Evidence: "https://x.io/a", Count: 2}))
}

func TestPositive(t *testing.T) {
	require.Error(t, Positive("count", 0))
	require.Error(t, Positive("count", -4))
	require.NoError(t, Positive("count", 1))
}
