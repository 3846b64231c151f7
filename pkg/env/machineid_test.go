package env

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStationID(t *testing.T) {
	id := StationID()
	require.NotEmpty(t, id)
	require.Equal(t, id, StationID())
	if mid, err := MachineID(); err == nil {
		require.Len(t, mid, 64)
		require.Equal(t, mid[:12], id)
	}
}
