// Command yasmgo is the thin CLI driver (spec.md §6 "CLI surface ...
// listed for completeness only"): it parses flags, builds a
// driver.Config, and runs the Parse/Finalize/Optimize/Output pipeline,
// translating the result into the process exit code.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"yasmgo/internal/diag"
	"yasmgo/internal/driver"
)

var (
	flagObjfmt   string
	flagParser   string
	flagMachine  string
	flagArch     string
	flagDbgfmt   string
	flagListfmt  string
	flagOutput   string
	flagIncludes []string
	flagDefines  []string
	flagWarn     []string
	flagNoWarn   bool
	flagWerror   bool
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "yasmgo <input>",
		Short:         "Modular multi-dialect x86 assembler",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runAssemble,
	}

	f := cmd.Flags()
	f.StringVarP(&flagObjfmt, "objfmt", "f", "bin", "object format: bin, coff, win32, win64, elf32, elf64")
	f.StringVarP(&flagParser, "parser", "p", "nasm", "source dialect: nasm, gas")
	f.StringVarP(&flagMachine, "machine", "m", "x86", "machine: x86, amd64")
	f.StringVarP(&flagArch, "arch", "a", "x86", "architecture backend")
	f.StringVarP(&flagDbgfmt, "dbgfmt", "g", "null", "debug format: null, dwarf2, dwarf2pass, cv8, stabs")
	f.StringVarP(&flagListfmt, "listfmt", "L", "", "list format (unused)")
	f.StringVarP(&flagOutput, "output", "o", "", "output filename")
	f.StringArrayVarP(&flagIncludes, "include", "I", nil, "include directory (repeatable)")
	f.StringArrayVarP(&flagDefines, "define", "D", nil, "preprocessor define (repeatable)")
	f.StringArrayVarP(&flagWarn, "warn", "W", nil, "enable warning class (repeatable)")
	f.BoolVarP(&flagNoWarn, "no-warn", "w", false, "disable all warnings")
	f.BoolVar(&flagWerror, "warning-error", false, "treat warnings as errors")

	return cmd
}

func runAssemble(cmd *cobra.Command, args []string) error {
	cfg := driver.Config{
		ArchKeyword:      flagArch,
		Machine:          flagMachine,
		ParserKeyword:    flagParser,
		ObjfmtKeyword:    flagObjfmt,
		DbgfmtKeyword:    flagDbgfmt,
		ListfmtKeyword:   flagListfmt,
		InputFile:        args[0],
		OutputFile:       flagOutput,
		IncludeDirs:      flagIncludes,
		Defines:          flagDefines,
		WarningsAsErrors: flagWerror,
		NoWarnings:       flagNoWarn,
	}

	sink := diag.NewSink(flagWerror)
	if flagNoWarn {
		sink.SetLevel(logrus.ErrorLevel)
	}

	code, err := driver.Run(cfg, sink)
	if err != nil && code == driver.ExitUsage {
		return err
	}

	os.Exit(int(code))
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "yasmgo:", err)
		os.Exit(2)
	}
}
