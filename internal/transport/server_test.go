package transport

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewServerSetsFixedTimeouts(t *testing.T) {
	s := NewServer(":0", http.NewServeMux(), false)
	require.Equal(t, ":0", s.Addr())
	require.Equal(t, 10*time.Second, s.httpServer.ReadTimeout)
	require.Equal(t, 600*time.Second, s.httpServer.WriteTimeout)
	require.Equal(t, 120*time.Second, s.httpServer.IdleTimeout)
}

func TestServerShutdownOnNeverStartedServerIsNoop(t *testing.T) {
	s := NewServer(":0", http.NewServeMux(), true)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
}
