package delivery

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOfflineBroadcastNeeded(t *testing.T) {
	cases := []struct {
		name       string
		removed    bool
		announced  bool
		superseded bool
		want       bool
	}{
		{"normal teardown", true, true, false, true},
		{"superseded connection", true, true, true, false},
		{"failed before online broadcast", true, false, false, false},
		{"stale unregister", false, true, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want,
				offlineBroadcastNeeded(tc.removed, tc.announced, tc.superseded))
		})
	}
}
