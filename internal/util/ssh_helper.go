package util

import (
	"fmt"
	"net"
	"strings"

	log "github.com/sirupsen/logrus"
)

// getOutboundIP retrieves the preferred outbound IP address of this machine.
// No packets are sent; the UDP dial only selects a route.
func getOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			log.Warnf("Failed to close UDP connection: %v", closeErr)
		}
	}()

	localAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("could not assert UDP address type")
	}
	return localAddr.IP.String(), nil
}

// GetIPAddress returns the outbound IP address, or a placeholder when it cannot be determined.
func GetIPAddress() string {
	ip, err := getOutboundIP()
	if err != nil {
		log.Debugf("Failed to detect outbound IP: %v", err)
		return "<server-address>"
	}
	return ip
}

// SSHTunnelInstructions explains how to forward the loopback callback port when
// the browser runs on a different machine than the CLI.
func SSHTunnelInstructions(port int, host string) string {
	border := strings.Repeat("=", 80)
	var b strings.Builder
	b.WriteString("To authenticate from a remote machine, an SSH tunnel may be required.\n")
	b.WriteString(border + "\n")
	b.WriteString("  Run one of the following commands on your local machine (NOT the server):\n\n")
	fmt.Fprintf(&b, "  ssh -L %d:127.0.0.1:%d <user>@%s -p 22\n", port, port, host)
	fmt.Fprintf(&b, "  ssh -i <path_to_your_key> -L %d:127.0.0.1:%d <user>@%s -p 22\n\n", port, port, host)
	b.WriteString("  NOTE: If your server's SSH port is not 22, please modify the '-p 22' part accordingly.\n")
	b.WriteString(border)
	return b.String()
}
