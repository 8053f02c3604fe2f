// Copyright 2026 The Foveated Streaming Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// ListenTCP binds a TCP listener at address with SO_REUSEADDR set
// before bind, so a restart racing a lingering socket in TIME_WAIT
// does not fail to rebind.
func ListenTCP(ctx context.Context, address string) (*net.TCPListener, error) {
	config := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var controlErr error
			err := c.Control(func(fd uintptr) {
				controlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return controlErr
		},
	}

	listener, err := config.Listen(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("netutil: listening on %s: %w", address, err)
	}
	return listener.(*net.TCPListener), nil
}

// PrepareConn disables Nagle's algorithm and TCP linger on an accepted
// connection. A non-zero linger delay would otherwise leave a
// RequestSessionDisconnect write racing the kernel's close(2) behavior
// on teardown.
func PrepareConn(conn *net.TCPConn) error {
	if err := conn.SetNoDelay(true); err != nil {
		return fmt.Errorf("netutil: setting TCP_NODELAY: %w", err)
	}
	if err := conn.SetLinger(0); err != nil {
		return fmt.Errorf("netutil: disabling linger: %w", err)
	}
	return nil
}
