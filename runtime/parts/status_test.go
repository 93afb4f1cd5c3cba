package parts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	cases := []struct {
		status    Status
		valid     bool
		streaming bool
		settled   bool
	}{
		{StatusSubmitted, true, false, false},
		{StatusStreaming, true, true, false},
		{StatusReady, true, false, true},
		{StatusError, true, false, true},
		{"done", false, false, false},
		{"", false, false, false},
	}
	for _, c := range cases {
		t.Run(string(c.status), func(t *testing.T) {
			require.Equal(t, c.valid, c.status.Valid())
			require.Equal(t, c.streaming, c.status.Streaming())
			require.Equal(t, c.settled, c.status.Settled())
		})
	}
}
