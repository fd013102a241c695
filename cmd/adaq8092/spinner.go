package main

import (
	"io"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/theckman/yacspin"
)

// spinner shows progress on stderr while the workflow is waiting on the
// device.  It is quiet while the settings table prints and while the
// figure is displayed.
type spinner struct {
	s       *yacspin.Spinner
	running bool
}

var spinMessages = map[string]string{
	"connect": "connecting",
	"acquire": "acquiring",
}

func newSpinner(w io.Writer) *spinner {
	s, err := yacspin.New(yacspin.Config{
		Writer:            w,
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " ",
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
	if err != nil {
		log.WithError(err).Debug("spinner disabled")
		return &spinner{}
	}
	return &spinner{s: s}
}

// step is an acquire.Workflow step hook
func (sp *spinner) step(name string) {
	if sp.s == nil {
		return
	}
	msg, ok := spinMessages[name]
	if !ok {
		sp.stop()
		return
	}
	sp.s.Message(msg)
	if !sp.running {
		if err := sp.s.Start(); err == nil {
			sp.running = true
		}
	}
}

func (sp *spinner) stop() {
	if sp.s == nil || !sp.running {
		return
	}
	sp.s.Stop()
	sp.running = false
}
