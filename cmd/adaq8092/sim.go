package main

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nasa-jpl/iiolab/iiosim"
)

func newSimCommand(opts *options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Run a simulated ADAQ8092 behind an emulated iiod",
		Long: `sim serves a simulated ADAQ8092 over the iiod network protocol until
interrupted.  Point the main command at it with ip:host:port.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = opts.cfg.Sim.Addr
			}
			srv := iiosim.New()
			bound, err := srv.Start(addr)
			if err != nil {
				return err
			}
			log.WithField("addr", bound).Info("simulated ADAQ8092 listening, Ctrl-C to stop")
			<-cmd.Context().Done()
			return srv.Close()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, default from the config file")
	return cmd
}
