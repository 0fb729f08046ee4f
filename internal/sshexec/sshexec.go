// Package sshexec runs a single non-interactive command over SSH, used to
// restart a device's service after certificate installation.
package sshexec

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

const (
	dialTimeout    = 10 * time.Second
	commandTimeout = 5 * time.Minute
)

// Result holds the outcome of one command execution.
type Result struct {
	Stdout string
	Stderr string
}

// TestConnection dials host with the given credentials and closes the
// session without running anything, used to validate device credentials
// before a renewal attempt.
func TestConnection(ctx context.Context, host, user, password string) error {
	client, err := dial(ctx, host, user, password)
	if err != nil {
		return err
	}
	return client.Close()
}

// ExecuteCommand runs command over SSH on host, bounded by the smaller of
// ctx's deadline and the fixed 5-minute command timeout.
func ExecuteCommand(ctx context.Context, host, user, password, command string) (*Result, error) {
	client, err := dial(ctx, host, user, password)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("sshexec: open session: %w", err)
	}
	defer session.Close()

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case err := <-done:
		if err != nil {
			return &Result{Stdout: stdout.String(), Stderr: stderr.String()},
				fmt.Errorf("sshexec: run %q: %w", command, err)
		}
		return &Result{Stdout: stdout.String(), Stderr: stderr.String()}, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("sshexec: command %q timed out: %w", command, ctx.Err())
	}
}

// RestartTomcat runs the fleet-standard service restart command.
func RestartTomcat(ctx context.Context, host, user, password string) (*Result, error) {
	return ExecuteCommand(ctx, host, user, password, "utils service restart Cisco Tomcat")
}

func dial(ctx context.Context, host, user, password string) (*ssh.Client, error) {
	addr := host
	if _, _, err := net.SplitHostPort(host); err != nil {
		addr = net.JoinHostPort(host, "22")
	}

	conn, err := (&net.Dialer{Timeout: dialTimeout}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("sshexec: dial %s: %w", addr, err)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.Password(password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         dialTimeout,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("sshexec: handshake %s: %w", addr, err)
	}

	return ssh.NewClient(clientConn, chans, reqs), nil
}
