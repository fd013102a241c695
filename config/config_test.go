package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)
	if diff := cmp.Diff(Defaults(), c); diff != "" {
		t.Errorf("(-want +got)\n%s", diff)
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	body := []byte("uri: ip:10.0.0.7\ntimeout: 250ms\nviewer:\n  browser: false\n")
	require.NoError(t, os.WriteFile(path, body, 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ip:10.0.0.7", c.URI)
	assert.Equal(t, 250*time.Millisecond, c.Timeout)
	assert.False(t, c.Viewer.Browser)
	// untouched keys keep their defaults
	assert.Equal(t, "127.0.0.1:0", c.Viewer.Addr)
	assert.Equal(t, 256, c.BufferSize)
	assert.Equal(t, "raw", c.OutputType)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("uri: [unterminated\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsNonPositiveTimeout(t *testing.T) {
	for _, body := range []string{"timeout: 0s\n", "timeout: -1s\n"} {
		path := filepath.Join(t.TempDir(), FileName)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		_, err := Load(path)
		assert.Error(t, err, body)
	}
}

func TestMkconfRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	want := Defaults()
	want.URI = "serial:/dev/ttyUSB0,115200,8n1"
	want.CSV = "capture.csv"
	require.NoError(t, Mkconf(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got)\n%s", diff)
	}
}

func TestWriteUsesDurationStrings(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, Defaults()))
	assert.Contains(t, buf.String(), "timeout: 5s")
	assert.Contains(t, buf.String(), "buffersize: 256")
}
