package registry

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// NormalizeHostPort cuts the http:// https:// prefixes from the input address
// and adds a default port
func NormalizeHostPort(addr, defPort string) string {
	if rest, ok := strings.CutPrefix(addr, "http://"); ok {
		addr = rest
	} else if rest, ok := strings.CutPrefix(addr, "https://"); ok {
		addr = rest
	}
	addr = strings.TrimSuffix(addr, "/")

	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}

	return net.JoinHostPort(addr, defPort)
}

// ParseMember turns an address such as "http://10.0.0.5:7000" into a Member.
func ParseMember(addr string, defPort int) (Member, error) {
	hp := NormalizeHostPort(addr, strconv.Itoa(defPort))
	host, portStr, err := net.SplitHostPort(hp)
	if err != nil {
		return Member{}, fmt.Errorf("member address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return Member{}, fmt.Errorf("member address %q: invalid port %q", addr, portStr)
	}
	return Member{Host: host, Port: port}, nil
}
