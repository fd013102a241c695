package main

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/nasa-jpl/iiolab/acquire"
)

func newWatchCommand(opts *options) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch [uri]",
		Short: "Poll the device settings and log any that change",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return fmt.Errorf("interval must be positive, got %s", interval)
			}
			uri := acquire.ResolveURI(opts.uri(args))
			adc, err := opts.connect(uri)
			if err != nil {
				return fmt.Errorf("connect to %s: %w", uri, err)
			}
			defer adc.Close()

			ctx := cmd.Context()
			lim := rate.NewLimiter(rate.Every(interval), 1)
			last := map[string]string{}
			for {
				if err := lim.Wait(ctx); err != nil {
					// cancelled
					return nil
				}
				for _, in := range acquire.Inspections {
					v, err := adc.ReadAttribute(in.Attr)
					if err != nil {
						return fmt.Errorf("read %s: %w", in.Attr, err)
					}
					prev, seen := last[in.Attr]
					switch {
					case !seen:
						log.WithField(in.Attr, v).Info(in.Label)
					case prev != v:
						log.WithFields(log.Fields{"attr": in.Attr, "was": prev, "now": v}).Warn(in.Label + " changed")
					}
					last[in.Attr] = v
				}
			}
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "time between polls")
	return cmd
}
