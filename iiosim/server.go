// Package iiosim emulates an ADAQ8092 behind an iiod server.
//
// The emulation keeps a register file with the part's field layout, so
// attribute writes are visible through direct_reg_access and vice versa,
// and synthesizes samples from the current test pattern, output format and
// power down state.
package iiosim

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/nasa-jpl/iiolab/iio"
)

// Version is the tag reported in reply to VERSION
const Version = "0.25 iiosim0"

// chunkSize bounds one READBUF chunk and one WRITE payload
const chunkSize = 64 * 1024

// errWriteTooLarge drops a connection whose WRITE payload cannot be consumed
var errWriteTooLarge = errors.New("WRITE payload exceeds limit")

// Server is an emulated iiod.  The zero value is not usable; use New.
type Server struct {
	mu   sync.Mutex
	dev  *device
	fail map[string]syscall.Errno
	cmds []string

	ln     net.Listener
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// New creates a server whose device is freshly powered up
func New() *Server {
	return &Server{
		dev:   newDevice(),
		fail:  map[string]syscall.Errno{},
		conns: map[net.Conn]struct{}{},
	}
}

// ListenAndServe listens on addr and serves until Close
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Start listens on addr and serves in the background, returning the bound
// address.  Use "127.0.0.1:0" for an ephemeral port.
func (s *Server) Start(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	go s.Serve(ln)
	return ln.Addr().String(), nil
}

// Serve accepts connections on ln until Close.  It returns nil after Close.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return net.ErrClosed
	}
	s.ln = ln
	s.mu.Unlock()
	log.WithField("addr", ln.Addr().String()).Info("iiosim listening")
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return err
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		s.wg.Add(1)
		go s.handle(conn)
	}
}

// Close stops the listener and drops every connection
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return err
}

// FailCommand makes every later command with the given verb (READ, OPEN, ...)
// reply with -code.  A zero code clears the fault.
func (s *Server) FailCommand(verb string, code syscall.Errno) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code == 0 {
		delete(s.fail, verb)
		return
	}
	s.fail[verb] = code
}

// Commands returns the command lines received so far, across connections
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.cmds))
	copy(out, s.cmds)
	return out
}

// Reg returns a register of the emulated part
func (s *Server) Reg(addr uint8) uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev.regs[addr]
}

// SetReg writes a register of the emulated part
func (s *Server) SetReg(addr, val uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dev.setReg(addr, val)
}

// Attr reads a device attribute as a client would see it
func (s *Server) Attr(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, code := s.dev.readAttr(name)
	if code != 0 {
		return "", code
	}
	return v, nil
}

// PowerUp returns the emulated part to its power-up state
func (s *Server) PowerUp() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dev.powerUp()
}

// buffer is the state of an OPEN buffer on one connection
type buffer struct {
	samples int
	mask    iio.ChannelMask
}

type session struct {
	r   *bufio.Reader
	w   *bufio.Writer
	buf *buffer
}

func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()
	logger := log.WithField("remote", conn.RemoteAddr().String())
	logger.Info("iiosim client connected")
	ss := &session{r: bufio.NewReader(conn), w: bufio.NewWriter(conn)}
	for {
		line, err := ss.r.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.WithError(err).Warn("iiosim read")
			}
			logger.Info("iiosim client disconnected")
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "EXIT") {
			logger.Info("iiosim client exited")
			return
		}
		if err = s.dispatch(ss, line); err == nil {
			err = ss.w.Flush()
		}
		if err != nil {
			logger.WithError(err).Warn("iiosim connection dropped")
			return
		}
	}
}

func (ss *session) reply(n int) error {
	_, err := fmt.Fprintf(ss.w, "%d\n", n)
	return err
}

func (ss *session) errno(code syscall.Errno) error {
	return ss.reply(-int(code))
}

func (ss *session) payload(p []byte) error {
	if err := ss.reply(len(p)); err != nil {
		return err
	}
	if _, err := ss.w.Write(p); err != nil {
		return err
	}
	return ss.w.WriteByte('\n')
}

// target is the parsed [dev] [INPUT|OUTPUT ch|DEBUG|BUFFER] prefix of READ and WRITE
type target struct {
	dev     string
	kind    iio.AttrKind
	channel string
	output  bool
	attr    string
}

func parseTarget(args []string) (target, bool) {
	var t target
	if len(args) < 2 {
		return t, false
	}
	t.dev, args = args[0], args[1:]
	switch strings.ToUpper(args[0]) {
	case "INPUT", "OUTPUT":
		if len(args) != 3 {
			return t, false
		}
		t.kind = iio.ChannelAttr
		t.output = strings.EqualFold(args[0], "OUTPUT")
		t.channel, t.attr = args[1], args[2]
		return t, true
	case "DEBUG":
		t.kind = iio.DebugAttr
		args = args[1:]
	case "BUFFER":
		t.kind = iio.BufferAttr
		args = args[1:]
	}
	if len(args) != 1 {
		return t, false
	}
	t.attr = args[0]
	return t, true
}

func (s *Server) dispatch(ss *session, line string) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}
	verb := strings.ToUpper(args[0])
	args = args[1:]

	// WRITE payloads are consumed even when the command fails
	var (
		wval string
		werr bool
	)
	if verb == "WRITE" {
		n := -1
		if len(args) >= 3 {
			if v, err := strconv.Atoi(args[len(args)-1]); err == nil {
				n = v
			}
		}
		switch {
		case n < 0:
			werr = true
		case n > chunkSize:
			// the payload is not read, so the stream cannot be resynchronized
			s.mu.Lock()
			s.cmds = append(s.cmds, line)
			s.mu.Unlock()
			if err := ss.errno(syscall.EINVAL); err != nil {
				return err
			}
			if err := ss.w.Flush(); err != nil {
				return err
			}
			return errWriteTooLarge
		default:
			p := make([]byte, n)
			if _, err := io.ReadFull(ss.r, p); err != nil {
				return err
			}
			wval = strings.TrimRight(string(p), "\x00\r\n")
			args = args[:len(args)-1]
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmds = append(s.cmds, line)
	if werr {
		return ss.errno(syscall.EINVAL)
	}
	if code, ok := s.fail[verb]; ok {
		return ss.errno(code)
	}

	switch verb {
	case "VERSION":
		_, err := fmt.Fprintf(ss.w, "%s\n", Version)
		return err
	case "PRINT":
		xml, err := Context().Marshal()
		if err != nil {
			return ss.errno(syscall.EIO)
		}
		return ss.payload(xml)
	case "TIMEOUT":
		if len(args) != 1 {
			return ss.errno(syscall.EINVAL)
		}
		if _, err := strconv.Atoi(args[0]); err != nil {
			return ss.errno(syscall.EINVAL)
		}
		return ss.reply(0)
	case "READ":
		return s.read(ss, args)
	case "WRITE":
		return s.write(ss, args, wval)
	case "OPEN":
		return s.open(ss, args)
	case "READBUF":
		return s.readBuf(ss, args)
	case "CLOSE":
		if len(args) != 1 || !isDevice(args[0]) {
			return ss.errno(syscall.ENODEV)
		}
		if ss.buf == nil {
			return ss.errno(syscall.EBADF)
		}
		ss.buf = nil
		return ss.reply(0)
	}
	return ss.errno(syscall.EINVAL)
}

func (s *Server) read(ss *session, args []string) error {
	t, ok := parseTarget(args)
	if !ok {
		return ss.errno(syscall.EINVAL)
	}
	if !isDevice(t.dev) {
		return ss.errno(syscall.ENODEV)
	}
	var (
		v    string
		code syscall.Errno
	)
	switch t.kind {
	case iio.DeviceAttr:
		v, code = s.dev.readAttr(t.attr)
	case iio.DebugAttr:
		v, code = s.dev.readDebug(t.attr)
	case iio.ChannelAttr:
		if t.output {
			return ss.errno(syscall.ENXIO)
		}
		v, code = s.dev.readChannelAttr(t.attr)
	case iio.BufferAttr:
		if t.attr != "length" {
			return ss.errno(syscall.ENOENT)
		}
		v = "0"
		if ss.buf != nil {
			v = strconv.Itoa(ss.buf.samples)
		}
	}
	if code != 0 {
		return ss.errno(code)
	}
	return ss.payload([]byte(v))
}

func (s *Server) write(ss *session, args []string, value string) error {
	t, ok := parseTarget(args)
	if !ok {
		return ss.errno(syscall.EINVAL)
	}
	if !isDevice(t.dev) {
		return ss.errno(syscall.ENODEV)
	}
	var code syscall.Errno
	switch t.kind {
	case iio.DeviceAttr:
		code = s.dev.writeAttr(t.attr, value)
	case iio.DebugAttr:
		code = s.dev.writeDebug(t.attr, value)
	default:
		code = syscall.EACCES
	}
	if code != 0 {
		return ss.errno(code)
	}
	return ss.reply(len(value) + 1)
}

func (s *Server) open(ss *session, args []string) error {
	if len(args) < 3 || len(args) > 4 {
		return ss.errno(syscall.EINVAL)
	}
	if !isDevice(args[0]) {
		return ss.errno(syscall.ENODEV)
	}
	if ss.buf != nil {
		return ss.errno(syscall.EBUSY)
	}
	samples, err := strconv.Atoi(args[1])
	if err != nil || samples <= 0 {
		return ss.errno(syscall.EINVAL)
	}
	mask, err := iio.ParseChannelMask(args[2])
	if err != nil {
		return ss.errno(syscall.EINVAL)
	}
	ss.buf = &buffer{samples: samples, mask: mask}
	return ss.reply(0)
}

func (s *Server) readBuf(ss *session, args []string) error {
	if len(args) != 2 || !isDevice(args[0]) {
		return ss.errno(syscall.ENODEV)
	}
	if ss.buf == nil {
		return ss.errno(syscall.EBADF)
	}
	nbytes, err := strconv.Atoi(args[1])
	if err != nil || nbytes <= 0 {
		return ss.errno(syscall.EINVAL)
	}
	data, code := s.dev.capture(ss.buf.mask, nbytes)
	if code != 0 {
		return ss.errno(code)
	}
	for first := true; len(data) > 0; first = false {
		n := len(data)
		if n > chunkSize {
			n = chunkSize
		}
		if err = ss.reply(n); err != nil {
			return err
		}
		if first {
			if _, err = fmt.Fprintf(ss.w, "%s\n", ss.buf.mask); err != nil {
				return err
			}
		}
		if _, err = ss.w.Write(data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}
