package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasa-jpl/iiolab/iiosim"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errs bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errs)
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "none.yml")}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func simURI(t *testing.T) (*iiosim.Server, string) {
	sim := iiosim.New()
	addr, err := sim.Start("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { sim.Close() })
	return sim, "ip:" + addr
}

func TestRootWritesFiles(t *testing.T) {
	_, uri := simURI(t)
	dir := t.TempDir()
	png := filepath.Join(dir, "fig.png")
	csvPath := filepath.Join(dir, "cap.csv")
	fits := filepath.Join(dir, "cap.fits")

	out, err := run(t, uri, "--save", png, "--csv", csvPath, "--fits", fits)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "uri: "+uri+"\n"))
	assert.Contains(t, out, "Power Down Mode: normal\n")

	for _, p := range []string{png, fits} {
		st, err := os.Stat(p)
		require.NoError(t, err)
		assert.NotZero(t, st.Size())
	}
	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 257)
	assert.Equal(t, []string{"time", "channel0", "channel1"}, rows[0])
}

func TestRootConnectFailure(t *testing.T) {
	sim, uri := simURI(t)
	sim.Close()
	out, err := run(t, uri, "--save", filepath.Join(t.TempDir(), "x.png"))
	assert.Error(t, err)
	assert.Equal(t, "uri: "+uri+"\n", out)
}

func TestRootRejectsBadLogLevel(t *testing.T) {
	_, err := run(t, "--log-level", "chatty", "version")
	// version skips configuration entirely
	assert.NoError(t, err)
	_, err = run(t, "--log-level", "chatty", "conf")
	assert.Error(t, err)
}

func TestReg(t *testing.T) {
	sim, uri := simURI(t)
	out, err := run(t, "reg", uri, "0x04")
	require.NoError(t, err)
	assert.Equal(t, "0x04: 0x19\n", out)

	out, err = run(t, "reg", uri, "4", "0x01")
	require.NoError(t, err)
	assert.Equal(t, "0x04: 0x01\n", out)
	assert.Equal(t, uint8(0x01), sim.Reg(0x04))

	_, err = run(t, "reg", uri, "0x40")
	assert.Error(t, err)
	_, err = run(t, "reg", uri)
	assert.Error(t, err)
}

func TestParseReg(t *testing.T) {
	for in, want := range map[string]uint8{"0": 0, "0x1A": 0x1A, "26": 26, "0b11": 3} {
		got, err := parseReg(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"ip:analog.local", "256", "-1", ""} {
		_, err := parseReg(in)
		assert.Error(t, err, in)
	}
}

func TestConfAndMkconf(t *testing.T) {
	out, err := run(t, "conf")
	require.NoError(t, err)
	assert.Contains(t, out, "buffersize: 256")

	path := filepath.Join(t.TempDir(), "adaq8092.yml")
	cmd := newRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"--config", path, "mkconf"})
	require.NoError(t, cmd.Execute())
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "adaq8092 version "+Version+"\n", out)
}
