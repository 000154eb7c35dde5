// Package cgminer speaks the line-JSON command protocol exposed by
// CGMiner-compatible mining firmware (default port 4028). The protocol is
// strict request/response with no framing: one command per freshly opened
// connection, response read until EOF or a byte cap, often NUL-padded to
// a fixed buffer and sometimes truncated mid-object.
package cgminer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"
)

// DefaultPort is the conventional CGMiner API port.
const DefaultPort = 4028

// DefaultReadCap bounds how much of a response we read. Firmware buffers
// are typically 4-8 KiB; anything past the cap is discarded.
const DefaultReadCap = 8192

// request is the single-line JSON command envelope.
type request struct {
	Command   string `json:"command"`
	Parameter string `json:"parameter,omitempty"`
}

// SendCommand opens a fresh TCP connection to host:port, writes one JSON
// command line, reads up to readCap bytes and closes. Connections are
// never reused across commands: some firmware corrupts its response
// buffer when a second command arrives on the same socket.
func SendCommand(ctx context.Context, host string, port int, command string, readCap int, timeout time.Duration) ([]byte, error) {
	if port == 0 {
		port = DefaultPort
	}
	if readCap <= 0 {
		readCap = DefaultReadCap
	}

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}

	payload, err := json.Marshal(request{Command: command})
	if err != nil {
		return nil, fmt.Errorf("marshal command: %w", err)
	}
	if _, err := conn.Write(payload); err != nil {
		return nil, fmt.Errorf("write command %q: %w", command, err)
	}

	buf := make([]byte, readCap)
	n := 0
	for n < readCap {
		m, err := conn.Read(buf[n:])
		n += m
		if err == io.EOF {
			break
		}
		if err != nil {
			// A timeout after we already received bytes is normal:
			// much firmware never closes its side of the socket.
			if n > 0 {
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					break
				}
			}
			return nil, fmt.Errorf("read response to %q: %w", command, err)
		}
	}

	if n == 0 {
		return nil, fmt.Errorf("empty response to %q from %s", command, addr)
	}
	return buf[:n], nil
}
