package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatusTerminal(t *testing.T) {
	cases := []struct {
		status   OrderStatus
		terminal bool
	}{
		{StatusExecuted, true},
		{StatusRejected, true},
		{StatusCancelled, true},
		{StatusPending, false},
		{StatusUnknown, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.terminal, tc.status.Terminal(), "status %s", tc.status)
	}
}
