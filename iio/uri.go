package iio

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/tarm/serial"

	"github.com/nasa-jpl/iiolab/comm"
)

const (
	// DefaultPort is the TCP port iiod listens on
	DefaultPort = 30431

	// DefaultBaud is the serial baud rate used when a serial URI omits it
	DefaultBaud = 115200
)

// ErrUnsupportedURI is generated when a URI has an unknown or malformed backend
var ErrUnsupportedURI = errors.New("unsupported iio uri")

// URI identifies the transport endpoint of an IIO context.
// Exactly one of the backend specific groups of fields is populated,
// selected by Scheme.
type URI struct {
	// Scheme is one of "ip", "serial", "usb"
	Scheme string

	// Host and Port are used by the ip backend
	Host string
	Port int

	// Path, Baud, Bits, Parity and StopBits are used by the serial backend
	Path     string
	Baud     int
	Bits     int
	Parity   byte
	StopBits int

	// Bus, Address and Interface are used by the usb backend
	Bus       int
	Address   int
	Interface int
}

// ParseURI parses a libiio style context URI, e.g.
//
//	ip:analog.local
//	ip:192.168.2.1:30431
//	serial:/dev/ttyUSB0,115200,8n1
//	usb:1.5.0
func ParseURI(s string) (URI, error) {
	scheme, rest, ok := strings.Cut(s, ":")
	if !ok {
		return URI{}, fmt.Errorf("%w: %q has no backend prefix", ErrUnsupportedURI, s)
	}
	switch scheme {
	case "ip":
		return parseIP(rest)
	case "serial":
		return parseSerial(rest)
	case "usb":
		return parseUSB(rest)
	}
	return URI{}, fmt.Errorf("%w: unknown backend %q", ErrUnsupportedURI, scheme)
}

func parseIP(s string) (URI, error) {
	u := URI{Scheme: "ip", Port: DefaultPort}
	if s == "" {
		return u, fmt.Errorf("%w: ip backend needs a host", ErrUnsupportedURI)
	}
	switch {
	case strings.HasPrefix(s, "["):
		host, port, err := net.SplitHostPort(s)
		if err != nil {
			// bracketed without a port
			if strings.HasSuffix(s, "]") {
				u.Host = strings.Trim(s, "[]")
				return u, nil
			}
			return u, fmt.Errorf("%w: %v", ErrUnsupportedURI, err)
		}
		u.Host = host
		u.Port, err = strconv.Atoi(port)
		if err != nil {
			return u, fmt.Errorf("%w: bad port %q", ErrUnsupportedURI, port)
		}
	case strings.Count(s, ":") == 1:
		host, port, _ := strings.Cut(s, ":")
		p, err := strconv.Atoi(port)
		if err != nil || p <= 0 || p > 65535 {
			return u, fmt.Errorf("%w: bad port %q", ErrUnsupportedURI, port)
		}
		u.Host, u.Port = host, p
	default:
		// hostname, IPv4, or bare IPv6
		u.Host = s
	}
	return u, nil
}

func parseSerial(s string) (URI, error) {
	u := URI{Scheme: "serial", Baud: DefaultBaud, Bits: 8, Parity: 'n', StopBits: 1}
	pieces := strings.Split(s, ",")
	u.Path = pieces[0]
	if u.Path == "" {
		return u, fmt.Errorf("%w: serial backend needs a port", ErrUnsupportedURI)
	}
	if len(pieces) > 1 && pieces[1] != "" {
		baud, err := strconv.Atoi(pieces[1])
		if err != nil || baud <= 0 {
			return u, fmt.Errorf("%w: bad baud rate %q", ErrUnsupportedURI, pieces[1])
		}
		u.Baud = baud
	}
	if len(pieces) > 2 {
		cfg := strings.ToLower(pieces[2])
		if len(cfg) < 3 {
			return u, fmt.Errorf("%w: bad serial config %q", ErrUnsupportedURI, pieces[2])
		}
		if cfg[0] < '5' || cfg[0] > '9' {
			return u, fmt.Errorf("%w: bad data bits in %q", ErrUnsupportedURI, pieces[2])
		}
		u.Bits = int(cfg[0] - '0')
		if !strings.ContainsRune("noems", rune(cfg[1])) {
			return u, fmt.Errorf("%w: bad parity in %q", ErrUnsupportedURI, pieces[2])
		}
		u.Parity = cfg[1]
		if cfg[2] != '1' && cfg[2] != '2' {
			return u, fmt.Errorf("%w: bad stop bits in %q", ErrUnsupportedURI, pieces[2])
		}
		u.StopBits = int(cfg[2] - '0')
	}
	if len(pieces) > 3 {
		return u, fmt.Errorf("%w: trailing fields in %q", ErrUnsupportedURI, s)
	}
	return u, nil
}

func parseUSB(s string) (URI, error) {
	u := URI{Scheme: "usb"}
	pieces := strings.Split(s, ".")
	if len(pieces) < 2 || len(pieces) > 3 {
		return u, fmt.Errorf("%w: usb backend needs bus.address[.interface]", ErrUnsupportedURI)
	}
	nums := make([]int, len(pieces))
	for i, p := range pieces {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return u, fmt.Errorf("%w: bad usb field %q", ErrUnsupportedURI, p)
		}
		nums[i] = n
	}
	u.Bus, u.Address = nums[0], nums[1]
	if len(nums) == 3 {
		u.Interface = nums[2]
	}
	return u, nil
}

// String formats the URI back into libiio notation
func (u URI) String() string {
	switch u.Scheme {
	case "ip":
		return "ip:" + net.JoinHostPort(u.Host, strconv.Itoa(u.Port))
	case "serial":
		return fmt.Sprintf("serial:%s,%d,%d%c%d", u.Path, u.Baud, u.Bits, u.Parity, u.StopBits)
	case "usb":
		return fmt.Sprintf("usb:%d.%d.%d", u.Bus, u.Address, u.Interface)
	}
	return ""
}

// SerialConfig converts a serial URI into a tarm/serial configuration
func (u URI) SerialConfig(timeout time.Duration) *serial.Config {
	return &serial.Config{
		Name:        u.Path,
		Baud:        u.Baud,
		ReadTimeout: timeout,
		Size:        byte(u.Bits),
		Parity:      serial.Parity(strings.ToUpper(string(u.Parity))[0]),
		StopBits:    serial.StopBits(u.StopBits),
	}
}

// Maker returns the CreationFunc that opens the transport described by u
func (u URI) Maker(timeout time.Duration) (comm.CreationFunc, error) {
	switch u.Scheme {
	case "ip":
		return comm.BackingOffTCPConnMaker(net.JoinHostPort(u.Host, strconv.Itoa(u.Port)), timeout), nil
	case "serial":
		return comm.SerialConnMaker(u.SerialConfig(timeout)), nil
	case "usb":
		return comm.USBConnMaker(u.Bus, u.Address, u.Interface), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedURI, u.Scheme)
}
