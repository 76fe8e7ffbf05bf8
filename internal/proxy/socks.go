package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	xproxy "golang.org/x/net/proxy"
)

// checkTimeout bounds the whole health check.
const checkTimeout = 2 * time.Second

const (
	socks5Version      = 0x05
	socks5AuthNone     = 0x00
	socks5AuthNoAccept = 0xFF
	socks5CmdConnect   = 0x01
	socks5AddrDomain   = 0x03

	// checkHost is a reserved name that never resolves. The check only needs
	// the proxy to answer the CONNECT, not to reach anything.
	checkHost = "streamscout-check.invalid"
)

// ValidateAddress checks that address is host:port with a port in 1..65535.
func ValidateAddress(address string) error {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return nil
}

// URL returns the socks5:// form of address, as browsers expect it.
func URL(address string) string {
	return "socks5://" + address
}

// NewDialer returns a context-aware SOCKS5 dialer for address.
func NewDialer(address string) (xproxy.ContextDialer, error) {
	if err := ValidateAddress(address); err != nil {
		return nil, err
	}
	d, err := xproxy.SOCKS5("tcp", address, nil, xproxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("create SOCKS5 dialer: %w", err)
	}
	cd, ok := d.(xproxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("SOCKS5 dialer for %s does not support contexts", address)
	}
	return cd, nil
}

// Check performs a SOCKS5 greeting and a CONNECT to a reserved name. Any
// CONNECT reply, including a failure code, proves the proxy is working.
func Check(ctx context.Context, address string) Status {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return StatusTimeout
		}
		return StatusCannotConnect
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return StatusCannotConnect
	}

	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return StatusCannotConnect
	}

	greeting := make([]byte, 2)
	if _, err := io.ReadFull(conn, greeting); err != nil {
		return readFailure(err)
	}
	if greeting[0] != socks5Version || greeting[1] == socks5AuthNoAccept || greeting[1] != socks5AuthNone {
		return StatusWrongType
	}

	req := []byte{socks5Version, socks5CmdConnect, 0x00, socks5AddrDomain, byte(len(checkHost))}
	req = append(req, checkHost...)
	req = append(req, 0x00, 80)
	if _, err := conn.Write(req); err != nil {
		return StatusCannotConnect
	}

	reply := make([]byte, 4)
	if _, err := io.ReadFull(conn, reply); err != nil {
		return readFailure(err)
	}
	if reply[0] != socks5Version {
		return StatusWrongType
	}
	return StatusOK
}

func readFailure(err error) Status {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return StatusTimeout
	}
	return StatusWrongType
}
