package record

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	for _, action := range []string{ActionNone, ActionImport, ActionSkip} {
		parsed, err := ParseAction(action)
		require.NoError(t, err)
		require.Equal(t, action, parsed)
	}

	for _, action := range []string{"", "IMPORT", "delete", "retry"} {
		_, err := ParseAction(action)
		require.Error(t, err, "action %q", action)
	}
}

func TestCanBeImported(t *testing.T) {
	yes := []string{StatusValid, StatusWarning, StatusFixed}
	for _, status := range yes {
		r := &ValidationResult{Status: status}
		require.True(t, r.CanBeImported(), "status %s", status)
	}
	no := []string{StatusPending, StatusError}
	for _, status := range no {
		r := &ValidationResult{Status: status}
		require.False(t, r.CanBeImported(), "status %s", status)
	}
}

func TestEffectiveData(t *testing.T) {
	uploaded := json.RawMessage(`{"code":"C1"}`)
	fixed := json.RawMessage(`{"code":"C1-fixed"}`)

	r := &ValidationResult{RowData: uploaded}
	require.Equal(t, uploaded, r.EffectiveData())

	r.FixedData = fixed
	require.Equal(t, fixed, r.EffectiveData())
}
