package remote

import (
	"context"
	"fmt"
	"net"

	"eyescroll/internal/protocol"
	"eyescroll/internal/scroll"
)

// Send connects to addr, writes the command for d and closes the connection
func Send(ctx context.Context, addr string, d scroll.Direction) error {
	line, err := protocol.FormatCommand(d)
	if err != nil {
		return err
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("remote: dial %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
	}
	if _, err := conn.Write([]byte(line)); err != nil {
		return fmt.Errorf("remote: send to %s: %w", addr, err)
	}
	return nil
}

// DialAddr turns a listen address into one a local client can dial: an
// empty or wildcard host becomes the loopback address.
func DialAddr(listenAddr string) (string, error) {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return "", err
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port), nil
}
