package sshexec

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTestConnection_UnreachableHostFailsFast(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := TestConnection(ctx, "192.0.2.1:22", "admin", "wrong")
	require.Error(t, err)
}
