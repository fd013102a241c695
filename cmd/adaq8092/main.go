/*Package main is the adaq8092 command.

With no subcommand it connects to an ADAQ8092 over libiio's network
protocol, prints its configuration, captures one buffer from both channels
and plots it.  Subcommands run the simulated device, watch the settings,
poke registers, and manage the configuration file.
*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/astrogo/fitsio"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nasa-jpl/iiolab/acquire"
	"github.com/nasa-jpl/iiolab/adaq8092"
	"github.com/nasa-jpl/iiolab/config"
	"github.com/nasa-jpl/iiolab/oscilloscope"
	"github.com/nasa-jpl/iiolab/plotting"
)

// Version is the version number.  Typically injected via ldflags with git build
var Version = "1"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		log.Error(err)
		stop()
		os.Exit(1)
	}
}

// options are the flags shared by every command
type options struct {
	configPath string
	logLevel   string
	cfg        config.Config
}

// load reads the configuration file and applies the log level
func (o *options) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", o.configPath, err)
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	lvl, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log.SetOutput(cmd.ErrOrStderr())
	log.SetLevel(lvl)
	o.cfg = cfg
	return nil
}

// uri picks the positional URI, then the configured one
func (o *options) uri(args []string) []string {
	if len(args) == 0 && o.cfg.URI != "" {
		return []string{o.cfg.URI}
	}
	return args
}

func (o *options) connect(uri string) (*adaq8092.ADAQ8092, error) {
	return adaq8092.NewWithTimeout(uri, o.cfg.Timeout)
}

func newRootCommand() *cobra.Command {
	var (
		opts      options
		save      string
		csvPath   string
		fitsPath  string
		noBrowser bool
	)
	cmd := &cobra.Command{
		Use:   "adaq8092 [uri]",
		Short: "Capture and plot one buffer from an ADAQ8092",
		Long: `adaq8092 connects to an ADAQ8092 dual channel ADC through an iiod server,
prints its settings, captures one buffer of both channels and plots it.

The URI defaults to ip:analog.local.  ip:host[:port], serial:port,baud,8n1
and usb:bus.addr[.intf] URIs are understood.  The figure is served to the
system browser and the command returns when the page's Close button is
pressed, or it is written to a file with --save.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if save != "" {
				cfg.Save = save
			}
			if csvPath != "" {
				cfg.CSV = csvPath
			}
			if fitsPath != "" {
				cfg.FITS = fitsPath
			}
			if noBrowser {
				cfg.Viewer.Browser = false
			}

			var plt acquire.Plotter = plotting.Viewer{Addr: cfg.Viewer.Addr, NoBrowser: !cfg.Viewer.Browser}
			if cfg.Save != "" {
				plt = plotting.FileWriter{Path: cfg.Save}
			}
			spin := newSpinner(cmd.ErrOrStderr())
			defer spin.stop()
			w := &acquire.Workflow{
				Out: cmd.OutOrStdout(),
				Connect: func(uri string) (acquire.Device, error) {
					adc, err := opts.connect(uri)
					if err != nil {
						return nil, err
					}
					return adc, nil
				},
				Plotter:    plt,
				BufferSize: cfg.BufferSize,
				OutputType: cfg.OutputType,
				Record:     func(wf oscilloscope.Waveform) error { return record(cfg, wf) },
				Step:       spin.step,
			}
			return w.Run(cmd.Context(), opts.uri(args))
		},
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", config.FileName, "configuration file")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level, one of error, warn, info, debug")
	f := cmd.Flags()
	f.StringVar(&save, "save", "", "write the figure to this .png, .jpg or .svg file instead of serving it")
	f.StringVar(&csvPath, "csv", "", "write the capture to this CSV file")
	f.StringVar(&fitsPath, "fits", "", "write the capture to this FITS file")
	f.BoolVar(&noBrowser, "no-browser", false, "serve the figure without opening a browser")

	cmd.AddCommand(
		newSimCommand(&opts),
		newWatchCommand(&opts),
		newRegCommand(&opts),
		newMkconfCommand(&opts),
		newConfCommand(&opts),
		newVersionCommand(),
	)
	return cmd
}

// record writes the optional CSV and FITS copies of a capture
func record(cfg config.Config, wf oscilloscope.Waveform) error {
	if cfg.CSV != "" {
		if err := writeFile(cfg.CSV, func(f *os.File) error {
			return wf.EncodeCSV(f, strings.EqualFold(cfg.OutputType, adaq8092.OutputSI))
		}); err != nil {
			return err
		}
		log.WithField("path", cfg.CSV).Info("wrote CSV")
	}
	if cfg.FITS != "" {
		cards := []fitsio.Card{
			{Name: "INSTRUME", Value: "ADAQ8092", Comment: "digitizer"},
			{Name: "OUTTYPE", Value: cfg.OutputType, Comment: "raw or SI"},
		}
		if err := writeFile(cfg.FITS, func(f *os.File) error {
			return wf.EncodeFITS(f, cards)
		}); err != nil {
			return err
		}
		log.WithField("path", cfg.FITS).Info("wrote FITS")
	}
	return nil
}

func writeFile(path string, enc func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err = enc(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func newMkconfCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mkconf",
		Short: "Write the effective configuration to the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Mkconf(opts.configPath, opts.cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", opts.configPath)
			return nil
		},
	}
}

func newConfCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "conf",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.Write(cmd.OutOrStdout(), opts.cfg)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// skip the config file
		PersistentPreRun: func(cmd *cobra.Command, args []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "adaq8092 version %s\n", Version)
		},
	}
}
