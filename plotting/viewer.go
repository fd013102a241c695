package plotting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/pkg/browser"
	log "github.com/sirupsen/logrus"
)

// DefaultViewerAddr binds the viewer to an ephemeral loopback port
const DefaultViewerAddr = "127.0.0.1:0"

var page = template.Must(template.New("figure").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body style="font-family: sans-serif; text-align: center">
<img src="figure.svg" alt="{{.Title}}" style="max-width: 100%">
<form method="post" action="close"><button type="submit">Close</button></form>
</body>
</html>
`))

// Viewer is the interactive presenter.  It serves the figure over HTTP,
// opens it in the system browser and blocks until the page's Close button
// is pressed or the context is cancelled.
type Viewer struct {
	// Addr is the listen address, DefaultViewerAddr if empty
	Addr string

	// Open is called with the page URL; nil means the system browser.
	// Set NoBrowser to only log the URL.
	Open      func(url string) error
	NoBrowser bool

	// Ready, if not nil, receives the page URL once the server is listening
	Ready chan<- string
}

// Router builds the HTTP routes for a figure.  closed is called once per
// POST to /close.
func Router(f Figure, closed func()) chi.Router {
	var (
		once sync.Once
		svg  []byte
		err  error
	)
	render := func() ([]byte, error) {
		once.Do(func() {
			var buf bytes.Buffer
			err = Render(f, &buf, SVG, 0, 0)
			svg = buf.Bytes()
		})
		return svg, err
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := page.Execute(w, f); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	r.Get("/figure.svg", func(w http.ResponseWriter, r *http.Request) {
		b, err := render()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Write(b)
	})
	r.Get("/figure.png", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := Render(f, &buf, PNG, 0, 0); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(buf.Bytes())
	})
	r.Get("/figure.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(f); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	r.Post("/close", func(w http.ResponseWriter, r *http.Request) {
		closed()
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("closed, you may close this tab\n"))
	})
	r.Get("/list-of-routes", func(w http.ResponseWriter, req *http.Request) {
		var routes []string
		chi.Walk(r, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
			routes = append(routes, method+" "+route)
			return nil
		})
		sort.Strings(routes)
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(routes); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return r
}

// Show serves f until the page is closed or ctx is done.  Cancellation is
// not an error; the figure was shown.
func (v Viewer) Show(ctx context.Context, f Figure) error {
	addr := v.Addr
	if addr == "" {
		addr = DefaultViewerAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	var once sync.Once
	srv := &http.Server{
		Handler:           Router(f, func() { once.Do(func() { close(done) }) }),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() { errs <- srv.Serve(ln) }()

	url := "http://" + ln.Addr().String() + "/"
	log.WithField("url", url).Info("figure is being served, press Close on the page or Ctrl-C to continue")
	if v.Ready != nil {
		v.Ready <- url
	}
	if !v.NoBrowser {
		open := v.Open
		if open == nil {
			open = browser.OpenURL
		}
		if err := open(url); err != nil {
			log.WithError(err).Warn("could not open a browser, visit the URL by hand")
		}
	}

	select {
	case <-done:
	case <-ctx.Done():
	case err = <-errs:
		return err
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err = srv.Shutdown(shutdown); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
