package util

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

func GetFreeTcpPort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}

	defer func(l net.Listener) {
		_ = l.Close()
	}(l)

	_, portStr, err := net.SplitHostPort(l.Addr().String())
	if err != nil {
		return 0, err
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port == 0 {
		return 0, fmt.Errorf("could not resolve a port (got %q)", portStr)
	}

	return port, nil
}

// IsTcpPortOpen reports whether something accepts TCP connections on host:port.
func IsTcpPortOpen(host string, port int, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
