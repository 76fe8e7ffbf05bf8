package proxy

import "errors"

var (
	// ErrInvalidAddress is returned when a proxy address is not host:port.
	ErrInvalidAddress = errors.New("invalid proxy address: expected host:port")

	// ErrNotSOCKS5 is returned when the address answers but does not speak SOCKS5.
	ErrNotSOCKS5 = errors.New("proxy does not speak SOCKS5")

	// ErrCannotConnect is returned when no TCP connection to the proxy could be made.
	ErrCannotConnect = errors.New("cannot connect to proxy")

	// ErrTimeout is returned when the proxy handshake times out.
	ErrTimeout = errors.New("timeout connecting to proxy")

	// ErrTorNotRunning is returned when the embedded Tor daemon has not been started.
	ErrTorNotRunning = errors.New("embedded Tor daemon is not running")
)

// Status is the outcome of a proxy health check.
type Status int

const (
	// StatusOK means the proxy completed a SOCKS5 handshake and answered a CONNECT.
	StatusOK Status = iota
	// StatusWrongType means something answered that is not a SOCKS5 proxy.
	StatusWrongType
	// StatusCannotConnect means the TCP connection failed.
	StatusCannotConnect
	// StatusTimeout means the handshake did not finish in time.
	StatusTimeout
)

// String returns a short description of the status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWrongType:
		return "wrong type (not SOCKS5)"
	case StatusCannotConnect:
		return "cannot connect"
	case StatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Err returns the sentinel for a failed status, or nil.
func (s Status) Err() error {
	switch s {
	case StatusOK:
		return nil
	case StatusWrongType:
		return ErrNotSOCKS5
	case StatusCannotConnect:
		return ErrCannotConnect
	case StatusTimeout:
		return ErrTimeout
	default:
		return errors.New("unknown proxy status")
	}
}
