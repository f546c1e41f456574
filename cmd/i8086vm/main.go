// Command i8086vm disassembles or runs a MINIX a.out 8086 executable.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/toshihiroogino/i8086vm/pkg/config"
	"github.com/toshihiroogino/i8086vm/pkg/decode"
	"github.com/toshihiroogino/i8086vm/pkg/header"
	"github.com/toshihiroogino/i8086vm/pkg/machine"
	"github.com/toshihiroogino/i8086vm/pkg/trace"
)

func main() {
	var disassemble, traceMode bool

	rootCmd := &cobra.Command{
		Use:   "i8086vm <target> [argv...]",
		Short: "Disassemble or run a MINIX a.out 8086 executable",
		// The target path is required but trailing guest argv is optional
		// and guest-defined, so neither ExactArgs nor MinimumNArgs alone
		// says what we mean; a custom func spells it out.
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 {
				return fmt.Errorf("requires a target executable path")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Config{
				Target:    args[0],
				GuestArgv: args,
			}
			switch {
			case disassemble:
				cfg.Mode = config.ModeDisassemble
			case traceMode:
				cfg.Mode = config.ModeTrace
			default:
				cfg.Mode = config.ModeExecute
			}
			return run(cfg)
		},
		SilenceUsage: true,
	}

	rootCmd.Flags().BoolVarP(&disassemble, "disassemble", "d", false, "print a disassembly of the text segment and exit")
	rootCmd.Flags().BoolVarP(&traceMode, "trace", "m", false, "run the program with the trace sink enabled")
	rootCmd.MarkFlagsMutuallyExclusive("disassemble", "trace")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	raw, err := os.ReadFile(cfg.Target)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}

	hdr, err := header.Parse(raw)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	if len(raw) < int(hdr.DataEnd()) {
		return fmt.Errorf("load: file is %d bytes, need at least %d for text+data", len(raw), hdr.DataEnd())
	}
	text := raw[header.Size:hdr.TextEnd()]
	data := raw[hdr.TextEnd():hdr.DataEnd()]

	if cfg.Mode == config.ModeDisassemble {
		return disassemble(text)
	}

	sink := trace.NoOp()
	if cfg.Mode == config.ModeTrace {
		sink = trace.Stdout(os.Stdout)
	}

	m := machine.New(hdr, text, data, cfg.GuestArgv, config.DefaultEnv(), os.Stdout, sink)
	// The guest's exit status is its own concern, reported via ExitStatus()
	// for callers that care; it is not this process's exit code.
	return m.Run()
}

func disassemble(text []byte) error {
	for pos := 0; pos < len(text); {
		op, err := decode.Decode(text, pos)
		if err != nil {
			return err
		}
		raws := op.Raws
		hexBytes := make([]byte, 0, len(raws)*3)
		for _, b := range raws {
			hexBytes = append(hexBytes, []byte(fmt.Sprintf("%02X ", b))...)
		}
		fmt.Printf("%04X: %-24s%s\n", pos, string(hexBytes), op.String())
		pos = op.NextPos()
	}
	return nil
}
