package iio

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarm/serial"
)

func TestParseURI(t *testing.T) {
	cases := []struct {
		in   string
		want URI
		str  string
	}{
		{"ip:analog.local", URI{Scheme: "ip", Host: "analog.local", Port: DefaultPort}, "ip:analog.local:30431"},
		{"ip:192.168.2.1:1234", URI{Scheme: "ip", Host: "192.168.2.1", Port: 1234}, "ip:192.168.2.1:1234"},
		{"ip:[fe80::1]:30431", URI{Scheme: "ip", Host: "fe80::1", Port: DefaultPort}, "ip:[fe80::1]:30431"},
		{"ip:[fe80::1]", URI{Scheme: "ip", Host: "fe80::1", Port: DefaultPort}, "ip:[fe80::1]:30431"},
		{"ip:fe80::1", URI{Scheme: "ip", Host: "fe80::1", Port: DefaultPort}, "ip:[fe80::1]:30431"},
		{"serial:/dev/ttyUSB0", URI{Scheme: "serial", Path: "/dev/ttyUSB0", Baud: DefaultBaud, Bits: 8, Parity: 'n', StopBits: 1}, "serial:/dev/ttyUSB0,115200,8n1"},
		{"serial:COM3,9600,7e2", URI{Scheme: "serial", Path: "COM3", Baud: 9600, Bits: 7, Parity: 'e', StopBits: 2}, "serial:COM3,9600,7e2"},
		{"usb:1.5", URI{Scheme: "usb", Bus: 1, Address: 5}, "usb:1.5.0"},
		{"usb:3.32.1", URI{Scheme: "usb", Bus: 3, Address: 32, Interface: 1}, "usb:3.32.1"},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			got, err := ParseURI(c.in)
			require.NoError(t, err)
			if diff := cmp.Diff(c.want, got); diff != "" {
				t.Errorf("(-want +got)\n%s", diff)
			}
			assert.Equal(t, c.str, got.String())
			again, err := ParseURI(got.String())
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestParseURIRejects(t *testing.T) {
	for _, in := range []string{
		"analog.local",
		"local:",
		"xml:/tmp/ctx.xml",
		"ip:",
		"ip:host:notaport",
		"ip:host:70000",
		"serial:",
		"serial:/dev/ttyS0,fast",
		"serial:/dev/ttyS0,9600,8x1",
		"serial:/dev/ttyS0,9600,8n3",
		"usb:1",
		"usb:a.b",
		"usb:1.2.3.4",
	} {
		_, err := ParseURI(in)
		assert.ErrorIs(t, err, ErrUnsupportedURI, in)
	}
}

func TestSerialConfig(t *testing.T) {
	u, err := ParseURI("serial:/dev/ttyACM0,57600,8o2")
	require.NoError(t, err)
	cfg := u.SerialConfig(time.Second)
	assert.Equal(t, "/dev/ttyACM0", cfg.Name)
	assert.Equal(t, 57600, cfg.Baud)
	assert.Equal(t, byte(8), cfg.Size)
	assert.Equal(t, serial.ParityOdd, cfg.Parity)
	assert.Equal(t, serial.Stop2, cfg.StopBits)
	assert.Equal(t, time.Second, cfg.ReadTimeout)
}

func TestMakerRejectsUnknownScheme(t *testing.T) {
	_, err := URI{Scheme: "local"}.Maker(time.Second)
	assert.ErrorIs(t, err, ErrUnsupportedURI)
}
