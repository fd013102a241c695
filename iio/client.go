// Package iio implements a client for the iiod protocol spoken by the
// libiio network, serial and USB backends.
//
// The protocol is line oriented ASCII: each command is terminated by \r\n,
// and each reply begins with a decimal integer terminated by \n.  A negative
// integer is a negated errno.  Attribute reads and the context XML follow the
// integer with that many bytes of payload and a trailing newline.  Buffer
// reads stream one or more length-prefixed chunks, the first of which is
// preceded by the active channel mask.
package iio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nasa-jpl/iiolab/comm"
)

const (
	// DefaultTimeout bounds every exchange with the remote
	DefaultTimeout = 5 * time.Second

	// poolIdle is how long an idle connection is kept open
	poolIdle = time.Hour
)

// AttrKind selects which attribute namespace of a device a READ or WRITE targets
type AttrKind int

const (
	// DeviceAttr is a plain device attribute
	DeviceAttr AttrKind = iota
	// ChannelAttr is a channel attribute; Location.Channel must be set
	ChannelAttr
	// DebugAttr is a debugfs attribute such as direct_reg_access
	DebugAttr
	// BufferAttr is a buffer attribute
	BufferAttr
)

// Location addresses an attribute on the remote
type Location struct {
	Device  string
	Kind    AttrKind
	Channel string
	Output  bool
}

func (l Location) String() string {
	switch l.Kind {
	case ChannelAttr:
		dir := "INPUT"
		if l.Output {
			dir = "OUTPUT"
		}
		return l.Device + " " + dir + " " + l.Channel
	case DebugAttr:
		return l.Device + " DEBUG"
	case BufferAttr:
		return l.Device + " BUFFER"
	}
	return l.Device
}

// Version is the reply to VERSION
type Version struct {
	Major, Minor int
	Tag          string
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d (git tag: %s)", v.Major, v.Minor, v.Tag)
}

// session wraps a pooled connection with a persistent reader so that
// buffered bytes are never lost between exchanges
type session struct {
	io.ReadWriteCloser
	r *bufio.Reader
}

type deadliner interface {
	SetDeadline(time.Time) error
}

// Client talks to one iiod instance.  It is safe for concurrent use; each
// exchange holds a connection from the pool for its duration.
type Client struct {
	Pool *comm.Pool

	// Timeout bounds each exchange on transports that support deadlines
	Timeout time.Duration
}

// NewClient creates a client that opens its transport with maker
func NewClient(maker comm.CreationFunc, timeout time.Duration) *Client {
	wrapped := func() (io.ReadWriteCloser, error) {
		conn, err := maker()
		if err != nil {
			return nil, err
		}
		return &session{ReadWriteCloser: conn, r: bufio.NewReaderSize(conn, 64*1024)}, nil
	}
	return &Client{Pool: comm.NewPool(1, poolIdle, wrapped), Timeout: timeout}
}

// Dial parses uri and creates a client for it
func Dial(uri string, timeout time.Duration) (*Client, error) {
	u, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	maker, err := u.Maker(timeout)
	if err != nil {
		return nil, err
	}
	return NewClient(maker, timeout), nil
}

// Close releases the client's connections
func (c *Client) Close() error {
	return c.Pool.Close()
}

// exchange borrows a connection and runs fn on it.  The connection is only
// discarded if fn failed at the transport or framing level.
func (c *Client) exchange(fn func(s *session) error) (err error) {
	rw, err := c.Pool.Get()
	if err != nil {
		return err
	}
	s := rw.(*session)
	defer func() {
		var bad error
		if err != nil && !isRemote(err) {
			bad = err
		}
		c.Pool.ReturnWithError(rw, bad)
	}()
	if d, ok := s.ReadWriteCloser.(deadliner); ok && c.Timeout > 0 {
		if derr := d.SetDeadline(time.Now().Add(c.Timeout)); derr != nil {
			log.WithError(derr).Debug("iiod deadline not set")
		}
	}
	return fn(s)
}

func (s *session) command(format string, args ...interface{}) error {
	line := fmt.Sprintf(format, args...)
	log.WithField("cmd", line).Debug("iiod >")
	_, err := io.WriteString(s, line+"\r\n")
	return err
}

func (s *session) readLine() (string, error) {
	line, err := s.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (s *session) readInt() (int, error) {
	line, err := s.readLine()
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return 0, fmt.Errorf("%w: expected integer, got %q", ErrProtocol, line)
	}
	log.WithField("ret", n).Debug("iiod <")
	return n, nil
}

// readPayload reads a length prefixed payload and its trailing newline
func (s *session) readPayload(op string) ([]byte, error) {
	n, err := s.readInt()
	if err != nil {
		return nil, err
	}
	if err = errnoFrom(op, n); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err = io.ReadFull(s.r, buf); err != nil {
		return nil, err
	}
	nl, err := s.r.ReadByte()
	if err != nil {
		return nil, err
	}
	if nl != '\n' {
		return nil, fmt.Errorf("%w: payload not newline terminated", ErrProtocol)
	}
	return buf, nil
}

func (s *session) status(op string) error {
	n, err := s.readInt()
	if err != nil {
		return err
	}
	return errnoFrom(op, n)
}

// Version asks the remote for its protocol version
func (c *Client) Version() (Version, error) {
	var v Version
	err := c.exchange(func(s *session) error {
		if err := s.command("VERSION"); err != nil {
			return err
		}
		line, err := s.readLine()
		if err != nil {
			return err
		}
		// "0.25 b6028fd"
		num, tag, _ := strings.Cut(line, " ")
		major, minor, ok := strings.Cut(num, ".")
		if !ok {
			return fmt.Errorf("%w: bad version %q", ErrProtocol, line)
		}
		if v.Major, err = strconv.Atoi(major); err != nil {
			return fmt.Errorf("%w: bad version %q", ErrProtocol, line)
		}
		if v.Minor, err = strconv.Atoi(minor); err != nil {
			return fmt.Errorf("%w: bad version %q", ErrProtocol, line)
		}
		v.Tag = strings.TrimSpace(tag)
		return nil
	})
	return v, err
}

// SetTimeout sets the remote's own I/O timeout
func (c *Client) SetTimeout(d time.Duration) error {
	return c.exchange(func(s *session) error {
		if err := s.command("TIMEOUT %d", d.Milliseconds()); err != nil {
			return err
		}
		return s.status("TIMEOUT")
	})
}

// ContextXML fetches the raw XML description of the remote context
func (c *Client) ContextXML() ([]byte, error) {
	var xml []byte
	err := c.exchange(func(s *session) error {
		if err := s.command("PRINT"); err != nil {
			return err
		}
		var err error
		xml, err = s.readPayload("PRINT")
		return err
	})
	return xml, err
}

// Context fetches and decodes the remote context
func (c *Client) Context() (*Context, error) {
	raw, err := c.ContextXML()
	if err != nil {
		return nil, err
	}
	return ParseContext(raw)
}

// ReadAttr reads an attribute value, stripped of NUL and trailing whitespace
func (c *Client) ReadAttr(loc Location, name string) (string, error) {
	var val string
	err := c.exchange(func(s *session) error {
		if err := s.command("READ %s %s", loc, name); err != nil {
			return err
		}
		buf, err := s.readPayload("READ " + name)
		if err != nil {
			return err
		}
		val = strings.TrimRight(string(buf), "\x00\r\n\t ")
		return nil
	})
	return val, err
}

// WriteAttr writes an attribute value.  The value is sent NUL terminated,
// as libiio does.
func (c *Client) WriteAttr(loc Location, name, value string) error {
	payload := append([]byte(value), 0)
	return c.exchange(func(s *session) error {
		if err := s.command("WRITE %s %s %d", loc, name, len(payload)); err != nil {
			return err
		}
		if _, err := s.Write(payload); err != nil {
			return err
		}
		return s.status("WRITE " + name)
	})
}

// Capture opens a buffer of samples samples on device dev with the channels
// in mask enabled, reads nbytes of interleaved data and closes the buffer.
// All three steps happen on one connection.
func (c *Client) Capture(dev string, samples int, mask ChannelMask, nbytes int) ([]byte, error) {
	var data []byte
	err := c.exchange(func(s *session) error {
		if err := s.command("OPEN %s %d %s", dev, samples, mask); err != nil {
			return err
		}
		if err := s.status("OPEN " + dev); err != nil {
			return err
		}
		var err error
		data, err = s.readBuf(dev, nbytes)
		if err != nil && !isRemote(err) {
			return err
		}
		if cerr := s.command("CLOSE %s", dev); cerr != nil {
			return cerr
		}
		if cerr := s.status("CLOSE " + dev); err == nil {
			err = cerr
		}
		return err
	})
	return data, err
}

func (s *session) readBuf(dev string, nbytes int) ([]byte, error) {
	if err := s.command("READBUF %s %d", dev, nbytes); err != nil {
		return nil, err
	}
	data := make([]byte, 0, nbytes)
	first := true
	for len(data) < nbytes {
		n, err := s.readInt()
		if err != nil {
			return nil, err
		}
		if err = errnoFrom("READBUF "+dev, n); err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
		if n > nbytes-len(data) {
			return nil, fmt.Errorf("%w: chunk of %d bytes overruns request", ErrProtocol, n)
		}
		if first {
			// the active mask, sent once
			if _, err = s.readLine(); err != nil {
				return nil, err
			}
			first = false
		}
		start := len(data)
		data = data[:start+n]
		if _, err = io.ReadFull(s.r, data[start:]); err != nil {
			return nil, err
		}
	}
	if len(data) != nbytes {
		return data, fmt.Errorf("%w: buffer short, got %d of %d bytes", ErrProtocol, len(data), nbytes)
	}
	return data, nil
}
