package cluster

import (
	"net"
	"strconv"

	"github.com/pkg/errors"
)

// Address is a <host:port> pair identifying a worker process or a data
// location. Host must be a literal IP address when used as a locality lookup
// key; resolving hostnames is the caller's responsibility.
type Address struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func NewAddress(host string, port int) Address {
	return Address{Host: host, Port: port}
}

// ParseAddress parses a "host:port" string into an Address.
func ParseAddress(hostport string) (Address, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return Address{}, errors.Wrapf(err, "split %s", hostport)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Address{}, errors.Wrapf(err, "invalid port in %s", hostport)
	}
	return Address{Host: host, Port: port}, nil
}

func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}
