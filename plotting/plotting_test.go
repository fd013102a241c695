package plotting

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() Figure {
	f := Figure{
		Title:  "ADAQ8092",
		XLabel: "Data Point",
		YLabel: "ADC counts",
		Legend: Legend{Columns: 4},
	}
	for _, label := range []string{"channel0", "channel1"} {
		s := Series{Label: label}
		for i := 0; i < 64; i++ {
			s.X = append(s.X, float64(i))
			s.Y = append(s.Y, float64(i%2))
		}
		f.Series = append(f.Series, s)
	}
	return f
}

func TestRenderPNGDecodes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(sample(), &buf, PNG, 0, 0))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	b := img.Bounds()
	assert.Equal(t, 8*96, b.Dx())
	assert.Equal(t, 5*96, b.Dy())
}

func TestRenderSVG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(sample(), &buf, SVG, 0, 0))
	assert.True(t, strings.Contains(buf.String(), "<svg"))
}

func TestRenderManyLegendRows(t *testing.T) {
	f := sample()
	for i := 0; i < 7; i++ {
		f.Series = append(f.Series, Series{Label: "extra", X: []float64{0, 1}, Y: []float64{1, 0}})
	}
	var buf bytes.Buffer
	assert.NoError(t, Render(f, &buf, PNG, 0, 0))
}

func TestRenderRejectsRaggedSeries(t *testing.T) {
	f := sample()
	f.Series[1].Y = f.Series[1].Y[:3]
	var buf bytes.Buffer
	assert.Error(t, Render(f, &buf, PNG, 0, 0))
	assert.Error(t, Render(sample(), &buf, Format("bmp"), 0, 0))
}

func TestFormatOf(t *testing.T) {
	for path, want := range map[string]Format{"a.png": PNG, "b.JPEG": JPEG, "dir/c.svg": SVG} {
		got, err := FormatOf(path)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := FormatOf("plot.pdf")
	assert.Error(t, err)
}

func TestFileWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fig.png")
	require.NoError(t, FileWriter{Path: path}.Show(context.Background(), sample()))
	fid, err := os.Open(path)
	require.NoError(t, err)
	defer fid.Close()
	_, err = png.Decode(fid)
	assert.NoError(t, err)
}

func TestRouter(t *testing.T) {
	closed := 0
	srv := httptest.NewServer(Router(sample(), func() { closed++ }))
	defer srv.Close()

	for path, ctype := range map[string]string{
		"/":            "text/html; charset=utf-8",
		"/figure.svg":  "image/svg+xml",
		"/figure.png":  "image/png",
		"/figure.json": "application/json",
	} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, ctype, resp.Header.Get("Content-Type"), path)
	}
	resp, err := http.Post(srv.URL+"/close", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 1, closed)

	resp, err = http.Get(srv.URL + "/list-of-routes")
	require.NoError(t, err)
	defer resp.Body.Close()
	var routes []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&routes))
	assert.Contains(t, routes, "POST /close")
	assert.Contains(t, routes, "GET /figure.svg")
}

func TestViewerReturnsAfterClose(t *testing.T) {
	ready := make(chan string, 1)
	var opened string
	v := Viewer{
		Ready: ready,
		Open:  func(url string) error { opened = url; return nil },
	}
	errs := make(chan error, 1)
	go func() { errs <- v.Show(context.Background(), sample()) }()

	url := <-ready
	resp, err := http.Post(url+"close", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()

	select {
	case err := <-errs:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("viewer did not return after close")
	}
	assert.Equal(t, url, opened)
}

func TestViewerReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan string, 1)
	errs := make(chan error, 1)
	go func() { errs <- Viewer{NoBrowser: true, Ready: ready}.Show(ctx, sample()) }()
	<-ready
	cancel()
	select {
	case err := <-errs:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("viewer did not return after cancel")
	}
}
