package classifier

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/racealert/race-alert/internal/alert"
)

func TestClassify_EmptyKeywordsAlwaysUnknown(t *testing.T) {
	t.Parallel()

	require.Equal(t, alert.StatusUnknown, Classify("registration is open", nil, nil))
	require.Equal(t, alert.StatusUnknown, Classify("", []string{}, []string{}))
}

func TestClassify_ClosedWinsOverOpen(t *testing.T) {
	t.Parallel()

	got := Classify(
		"registration open but now registration closed",
		[]string{"open"},
		[]string{"closed"},
	)
	require.Equal(t, alert.StatusClosed, got)
}

func TestClassify_OpenKeywordMatches(t *testing.T) {
	t.Parallel()

	got := Classify(
		"great news: registration is open for 2027",
		[]string{"registration is open", "register now"},
		[]string{"registration closed"},
	)
	require.Equal(t, alert.StatusOpen, got)
}

func TestClassify_CaseInsensitive(t *testing.T) {
	t.Parallel()

	got := Classify(
		"REGISTER NOW before spots run out",
		[]string{"Register Now"},
		nil,
	)
	require.Equal(t, alert.StatusOpen, got)
}

func TestClassify_NoMatchIsUnknown(t *testing.T) {
	t.Parallel()

	got := Classify(
		"check back later for details",
		[]string{"registration is open"},
		[]string{"registration closed"},
	)
	require.Equal(t, alert.StatusUnknown, got)
}

func TestClassify_BlankKeywordsIgnored(t *testing.T) {
	t.Parallel()

	// A blank keyword would match every page; it must be skipped.
	got := Classify("nothing relevant here", []string{"", "  "}, []string{" "})
	require.Equal(t, alert.StatusUnknown, got)
}
