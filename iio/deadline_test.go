package iio_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasa-jpl/iiolab/iio"
)

// stubbornConn answers every command with a zero status but refuses deadlines
type stubbornConn struct {
	in  *strings.Reader
	out bytes.Buffer
}

func (c *stubbornConn) Read(p []byte) (int, error) { return c.in.Read(p) }
func (c *stubbornConn) Write(p []byte) (int, error) { return c.out.Write(p) }
func (c *stubbornConn) Close() error { return nil }
func (c *stubbornConn) SetDeadline(time.Time) error { return errors.New("deadlines unsupported") }

func TestDeadlineErrorIsLogged(t *testing.T) {
	hook := test.NewGlobal()
	lvl := log.GetLevel()
	log.SetLevel(log.DebugLevel)
	t.Cleanup(func() {
		log.SetLevel(lvl)
		hook.Reset()
	})

	conn := &stubbornConn{in: strings.NewReader("0\n")}
	client := iio.NewClient(func() (io.ReadWriteCloser, error) { return conn, nil }, time.Second)
	defer client.Close()
	require.NoError(t, client.SetTimeout(time.Second))
	assert.Equal(t, "TIMEOUT 1000\r\n", conn.out.String())

	var found bool
	for _, e := range hook.AllEntries() {
		if e.Message == "iiod deadline not set" {
			found = true
			assert.Equal(t, log.DebugLevel, e.Level)
		}
	}
	assert.True(t, found)
}
