package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nasa-jpl/iiolab/acquire"
	"github.com/nasa-jpl/iiolab/adaq8092"
)

func parseReg(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, err
	}
	return uint8(v), nil
}

func newRegCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reg [uri] <addr> [value]",
		Short: "Read or write a converter register through the debug interface",
		Long: `reg reads the register at addr, or writes value to it and reads it back.
addr and value may be given in decimal or with a 0x prefix.`,
		Args: cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var uriArgs []string
			if _, err := parseReg(args[0]); err != nil {
				uriArgs, args = args[:1], args[1:]
			}
			if len(args) == 0 || len(args) > 2 {
				return errors.New("expected <addr> [value] after the URI")
			}
			addr, err := parseReg(args[0])
			if err != nil {
				return fmt.Errorf("address %q: %w", args[0], err)
			}
			if addr > adaq8092.MaxRegister {
				return fmt.Errorf("%w: register 0x%02X is beyond 0x%02X", adaq8092.ErrInvalidOption, addr, adaq8092.MaxRegister)
			}

			uri := acquire.ResolveURI(opts.uri(uriArgs))
			adc, err := opts.connect(uri)
			if err != nil {
				return fmt.Errorf("connect to %s: %w", uri, err)
			}
			defer adc.Close()

			if len(args) == 2 {
				val, err := parseReg(args[1])
				if err != nil {
					return fmt.Errorf("value %q: %w", args[1], err)
				}
				if err = adc.SetReg(addr, val); err != nil {
					return err
				}
			}
			v, err := adc.Reg(addr)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "0x%02X: 0x%02X\n", addr, v)
			return nil
		},
	}
}
