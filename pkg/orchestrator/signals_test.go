//go:build !windows

package orchestrator_test

import (
	"os"
	"testing"
	"time"

	"github.com/aretw0/conduit/pkg/orchestrator"
	"github.com/stretchr/testify/require"
)

func TestSignals_InterruptBecomesEvent(t *testing.T) {
	s := orchestrator.NewSignals()
	defer s.Stop()

	self, err := os.FindProcess(os.Getpid())
	require.NoError(t, err)
	require.NoError(t, self.Signal(os.Interrupt))

	select {
	case <-s.Events():
	case <-time.After(2 * time.Second):
		t.Fatal("no event for SIGINT")
	}
	s.Stop()
}
