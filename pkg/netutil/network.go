// Package netutil holds small network helpers for the hub's startup
// banner, carried over from the teacher's pkg/utils/network.go.
package netutil

import "net"

// GetLocalIP returns the preferred outbound IP of this machine, or "" if
// it cannot be determined.
func GetLocalIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()
	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
