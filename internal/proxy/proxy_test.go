package proxy

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

// serveOnce starts a listener that hands its first connection to handle.
func serveOnce(t *testing.T, handle func(net.Conn)) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0") //nolint:noctx // test code
	if err != nil {
		t.Fatalf("failed to start mock server: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}()
	return listener.Addr().String()
}

// TestValidateAddress tests host:port validation.
func TestValidateAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		address string
		valid   bool
	}{
		{name: "loopback", address: "127.0.0.1:9050", valid: true},
		{name: "hostname", address: "localhost:1080", valid: true},
		{name: "ipv6", address: "[::1]:9050", valid: true},
		{name: "empty", address: "", valid: false},
		{name: "missing port", address: "127.0.0.1", valid: false},
		{name: "empty host", address: ":9050", valid: false},
		{name: "port zero", address: "127.0.0.1:0", valid: false},
		{name: "port too large", address: "127.0.0.1:70000", valid: false},
		{name: "non numeric port", address: "127.0.0.1:socks", valid: false},
		{name: "with scheme", address: "socks5://127.0.0.1:9050", valid: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateAddress(tc.address)
			if tc.valid && err != nil {
				t.Errorf("expected %q to be valid, got %v", tc.address, err)
			}
			if !tc.valid && !errors.Is(err, ErrInvalidAddress) {
				t.Errorf("expected ErrInvalidAddress for %q, got %v", tc.address, err)
			}
		})
	}
}

// TestURL tests the browser proxy URL form.
func TestURL(t *testing.T) {
	t.Parallel()

	if got := URL("127.0.0.1:9050"); got != "socks5://127.0.0.1:9050" {
		t.Errorf("URL() = %q", got)
	}
}

// TestNewDialer tests dialer construction.
func TestNewDialer(t *testing.T) {
	t.Parallel()

	if _, err := NewDialer("127.0.0.1:9050"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := NewDialer("bad"); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("expected ErrInvalidAddress, got %v", err)
	}
}

// TestStatus tests status descriptions and sentinels.
func TestStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status Status
		text   string
		err    error
	}{
		{StatusOK, "OK", nil},
		{StatusWrongType, "wrong type (not SOCKS5)", ErrNotSOCKS5},
		{StatusCannotConnect, "cannot connect", ErrCannotConnect},
		{StatusTimeout, "timeout", ErrTimeout},
	}

	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			t.Parallel()

			if tc.status.String() != tc.text {
				t.Errorf("String() = %q, want %q", tc.status.String(), tc.text)
			}
			if !errors.Is(tc.status.Err(), tc.err) || (tc.err == nil && tc.status.Err() != nil) {
				t.Errorf("Err() = %v, want %v", tc.status.Err(), tc.err)
			}
		})
	}

	if Status(99).String() != "unknown" || Status(99).Err() == nil {
		t.Error("expected unknown status to describe itself and fail")
	}
}

// TestCheck tests the SOCKS5 handshake check.
func TestCheck(t *testing.T) {
	t.Parallel()

	t.Run("cannot connect", func(t *testing.T) {
		t.Parallel()

		listener, err := net.Listen("tcp", "127.0.0.1:0") //nolint:noctx // test code
		if err != nil {
			t.Fatal(err)
		}
		addr := listener.Addr().String()
		listener.Close()

		if status := Check(context.Background(), addr); status != StatusCannotConnect {
			t.Errorf("expected StatusCannotConnect, got %v", status)
		}
	})

	t.Run("not SOCKS5", func(t *testing.T) {
		t.Parallel()

		addr := serveOnce(t, func(conn net.Conn) {
			buf := make([]byte, 3)
			_, _ = conn.Read(buf)
			_, _ = conn.Write([]byte("HTTP/1.1 400 Bad Request\r\n\r\n"))
		})
		if status := Check(context.Background(), addr); status != StatusWrongType {
			t.Errorf("expected StatusWrongType, got %v", status)
		}
	})

	t.Run("requires authentication", func(t *testing.T) {
		t.Parallel()

		addr := serveOnce(t, func(conn net.Conn) {
			buf := make([]byte, 3)
			_, _ = conn.Read(buf)
			_, _ = conn.Write([]byte{0x05, 0xFF})
		})
		if status := Check(context.Background(), addr); status != StatusWrongType {
			t.Errorf("expected StatusWrongType, got %v", status)
		}
	})

	t.Run("working proxy", func(t *testing.T) {
		t.Parallel()

		addr := serveOnce(t, func(conn net.Conn) {
			buf := make([]byte, 3)
			_, _ = conn.Read(buf)
			_, _ = conn.Write([]byte{0x05, 0x00})
			req := make([]byte, 256)
			_, _ = conn.Read(req)
			_, _ = conn.Write([]byte{0x05, 0x04, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
		})
		if status := Check(context.Background(), addr); status != StatusOK {
			t.Errorf("expected StatusOK, got %v", status)
		}
	})

	t.Run("silent server times out", func(t *testing.T) {
		t.Parallel()

		addr := serveOnce(t, func(conn net.Conn) {
			time.Sleep(checkTimeout + time.Second)
		})
		if status := Check(context.Background(), addr); status != StatusTimeout {
			t.Errorf("expected StatusTimeout, got %v", status)
		}
	})
}

// TestEmbeddedTor tests the daemon manager without starting Tor.
func TestEmbeddedTor(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		e := NewEmbeddedTor()
		if e.startupTimeout != DefaultTorStartupTimeout {
			t.Errorf("expected default timeout, got %v", e.startupTimeout)
		}
		if e.IsRunning() || e.SocksAddr() != "" {
			t.Error("expected a stopped daemon")
		}
		if err := e.Stop(); err != nil {
			t.Errorf("Stop() on a stopped daemon: %v", err)
		}
		if _, err := e.Address(); !errors.Is(err, ErrTorNotRunning) {
			t.Errorf("expected ErrTorNotRunning, got %v", err)
		}
	})

	t.Run("startup timeout option", func(t *testing.T) {
		t.Parallel()

		e := NewEmbeddedTor(WithStartupTimeout(30 * time.Second))
		if e.startupTimeout != 30*time.Second {
			t.Errorf("expected 30s, got %v", e.startupTimeout)
		}
	})
}
