/*Package comm provides the byte-stream transports used to talk to lab hardware.

Every transport is exposed as a CreationFunc, a closure which produces a fresh
io.ReadWriteCloser.  Higher level packages hand a CreationFunc to NewPool and
borrow connections from the pool for the duration of one exchange:

	maker := comm.BackingOffTCPConnMaker("192.168.2.1:30431", 3*time.Second)
	pool := comm.NewPool(1, time.Hour, maker)
	conn, err := pool.Get()
	if err != nil {
		return err
	}
	defer func() { pool.ReturnWithError(conn, err) }()

TCP, serial (RS232 / UART) and USB bulk pipes are supported.
*/
package comm

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	log "github.com/sirupsen/logrus"
	"github.com/tarm/serial"
)

var (
	// ErrNotConnected is generated when a nil connection is used
	ErrNotConnected = errors.New("conn is nil, not connected to remote")

	// ErrNoSerialConf is generated when a serial maker is built without a config
	ErrNoSerialConf = errors.New("serial connection requested without a serial.Config")
)

// CreationFunc is a function which returns a new "connection" to something
// a closure should be used to encapsulate the variables and functions needed
type CreationFunc func() (io.ReadWriteCloser, error)

// TCPSetup opens a new TCP connection with a timeout on connect
func TCPSetup(addr string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		// sample buffers are latency sensitive, small commands should not wait on Nagle
		tcp.SetNoDelay(true)
	}
	return conn, nil
}

// minDialTimeout replaces a non-positive dial timeout, which would otherwise
// leave both the dial and the retry loop unbounded
const minDialTimeout = 5 * time.Second

// retryBudget is how long BackingOffTCPConnMaker keeps retrying
func retryBudget(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		timeout = minDialTimeout
	}
	return 3 * timeout
}

// BackingOffTCPConnMaker returns a CreationFunc which dials addr, retrying
// with an exponential backoff when the remote is slow to answer.
// A refused connection is not retried; nothing is listening.
func BackingOffTCPConnMaker(addr string, timeout time.Duration) CreationFunc {
	if timeout <= 0 {
		timeout = minDialTimeout
	}
	return func() (io.ReadWriteCloser, error) {
		var conn net.Conn
		op := func() error {
			c, err := TCPSetup(addr, timeout)
			if err != nil {
				if strings.Contains(strings.ToLower(err.Error()), "refused") {
					return backoff.Permanent(err)
				}
				log.WithField("addr", addr).Warnf("dial failed, retrying: %v", err)
				return err
			}
			conn = c
			return nil
		}

		err := backoff.Retry(op, &backoff.ExponentialBackOff{
			InitialInterval:     25 * time.Millisecond,
			RandomizationFactor: 0.,
			Multiplier:          2.,
			MaxInterval:         1 * time.Second,
			MaxElapsedTime:      retryBudget(timeout),
			Clock:               backoff.SystemClock})
		if err != nil {
			if perm, ok := err.(*backoff.PermanentError); ok {
				err = perm.Err
			}
			return nil, fmt.Errorf("connect to %s: %w", addr, err)
		}
		return conn, nil
	}
}

// SerialConnMaker returns a CreationFunc which opens the serial port described by conf
func SerialConnMaker(conf *serial.Config) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		if conf == nil {
			return nil, ErrNoSerialConf
		}
		port, err := serial.OpenPort(conf)
		if err != nil {
			return nil, fmt.Errorf("open serial port %s: %w", conf.Name, err)
		}
		return port, nil
	}
}
