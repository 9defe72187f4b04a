// Package driver wires the four mandatory phases (spec.md §5 "The symbol
// table must be populated before Finalize; Finalize must precede
// Optimize; Optimize must precede Output") into the single straight-line
// pipeline a CLI or test harness calls: Parse, Finalize, Optimize,
// Output.
package driver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"yasmgo/internal/arch"
	"yasmgo/internal/arch/x86"
	"yasmgo/internal/diag"
	"yasmgo/internal/directive"
	"yasmgo/internal/loc"
	"yasmgo/internal/object"
	"yasmgo/internal/objfmt"
	"yasmgo/internal/objfmt/bin"
	"yasmgo/internal/objfmt/coff"
	"yasmgo/internal/objfmt/elf"
	"yasmgo/internal/objfmt/win"
	"yasmgo/internal/optimize"
	"yasmgo/internal/parser"
)

// Config is the assembled set of knobs spec.md §6 lists as "Input ...
// plus configuration". Built by a CLI flag parser or directly by a
// test, never read from a config file (there is no such layer here).
type Config struct {
	ArchKeyword    string // spec.md §6 arch_keyword, e.g. "x86"
	Machine        string // arch-specific; for x86, "x86" or "amd64"
	ParserKeyword  string // "nasm" or "gas"
	ObjfmtKeyword  string // "bin", "coff", "win32", "win64", "elf32", "elf64", ...
	DbgfmtKeyword  string // accepted and validated, not wired to any emitter (spec.md §1 lists debug backends as out of scope)
	ListfmtKeyword string

	InputFile  string
	OutputFile string // empty selects per spec.md §6's output-filename rule

	IncludeDirs []string
	Defines     []string

	WarningsAsErrors bool
	NoWarnings       bool
}

// dbgfmtKeywords is spec.md §6's dbgfmt_keyword enum, validated on the
// CLI surface even though no backend consumes it.
var dbgfmtKeywords = map[string]bool{
	"null": true, "dwarf2": true, "dwarf2pass": true, "cv8": true, "stabs": true,
}

// canonicalExt maps an objfmt_keyword to the extension spec.md §6's
// output-filename rule appends when -o is unset. No objfmt package
// exposes this itself, so the table lives here at the one call site
// that needs it.
var canonicalExt = map[string]string{
	"bin":   ".bin",
	"coff":  ".o",
	"win32": ".obj",
	"win64": ".obj",
	"elf32": ".o",
	"elf64": ".o",
}

// ExitCode mirrors spec.md §6's three-value exit-status contract.
type ExitCode int

const (
	ExitOK    ExitCode = 0
	ExitError ExitCode = 1
	ExitUsage ExitCode = 2
)

// Run executes Parse -> Finalize -> Optimize -> Output against cfg,
// returning the process exit code spec.md §6 specifies and the first
// usage-shaped error (if any) separately from diagnostics, which are
// reported through sink.
func Run(cfg Config, sink *diag.Sink) (ExitCode, error) {
	a, err := newArchitecture(cfg)
	if err != nil {
		return ExitUsage, err
	}

	format, err := newObjectFormat(cfg.ObjfmtKeyword)
	if err != nil {
		return ExitUsage, err
	}
	if !format.IsOkObject(a) {
		return ExitUsage, fmt.Errorf("driver: object format %q is not compatible with %q mode%d", cfg.ObjfmtKeyword, a.Name(), a.ModeBits())
	}

	if cfg.DbgfmtKeyword != "" && !dbgfmtKeywords[cfg.DbgfmtKeyword] {
		return ExitUsage, fmt.Errorf("driver: unknown dbgfmt %q", cfg.DbgfmtKeyword)
	}

	in, err := os.Open(cfg.InputFile)
	if err != nil {
		return ExitUsage, errors.Wrapf(err, "driver: opening %q", cfg.InputFile)
	}
	defer in.Close()

	outputFile := selectOutputFile(cfg)

	obj := object.New(cfg.ArchKeyword, cfg.InputFile, outputFile)
	format.AddDefaultSection(obj)
	format.InitSymbols(obj)

	dirs := directive.NewRegistry()
	format.AddDirectives(dirs)

	p, err := parser.New(cfg.ParserKeyword, in, cfg.InputFile, obj, a, dirs, sink)
	if err != nil {
		return ExitUsage, err
	}

	var merr *multierror.Error
	if err := p.Parse(); err != nil {
		merr = multierror.Append(merr, errors.Wrap(err, "parse"))
	}
	if sink.HasErrors() {
		return ExitError, merr.ErrorOrNil()
	}

	undefExtern := cfg.ObjfmtKeyword == "bin"
	obj.Symbols().Finalize(sink, undefExtern)
	if sink.HasErrors() {
		return ExitError, merr.ErrorOrNil()
	}

	if err := optimize.Run(obj, sink); err != nil {
		merr = multierror.Append(merr, errors.Wrap(err, "optimize"))
		return ExitError, merr.ErrorOrNil()
	}
	if sink.HasErrors() {
		return ExitError, merr.ErrorOrNil()
	}

	out, err := os.Create(outputFile)
	if err != nil {
		return ExitUsage, errors.Wrapf(err, "driver: creating %q", outputFile)
	}
	defer out.Close()

	if err := format.Output(out, obj, distAdapter, sink); err != nil {
		merr = multierror.Append(merr, errors.Wrap(err, "output"))
		return ExitError, merr.ErrorOrNil()
	}
	if sink.HasErrors() {
		return ExitError, merr.ErrorOrNil()
	}

	return ExitOK, merr.ErrorOrNil()
}

// distAdapter bridges optimize.Dist's intnum.IntNum result to the
// int64 objfmt.DistFunc expects; both measure the same resolved
// bytecode-offset difference, just in different integer types (spec.md
// §4.5's distance law feeding §4.7's relocation derivation).
func distAdapter(a, b loc.Location) (int64, bool) {
	n, ok := optimize.Dist(a, b)
	if !ok {
		return 0, false
	}
	v, ok := n.GetInt()
	if !ok {
		return 0, false
	}
	return v, true
}

func newArchitecture(cfg Config) (arch.Architecture, error) {
	switch cfg.ArchKeyword {
	case "x86", "":
		a := x86.New()
		switch cfg.Machine {
		case "amd64":
			if err := a.SetModeBits(64); err != nil {
				return nil, err
			}
		case "x86", "":
			if err := a.SetModeBits(32); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("driver: unknown machine %q for arch x86", cfg.Machine)
		}
		return a, nil
	default:
		return nil, fmt.Errorf("driver: unknown arch %q", cfg.ArchKeyword)
	}
}

func newObjectFormat(keyword string) (objfmt.ObjectFormat, error) {
	switch keyword {
	case "bin":
		return bin.New(), nil
	case "coff":
		return coff.New(), nil
	case "win32":
		return win.New32(), nil
	case "win64":
		return win.New64(), nil
	case "elf32":
		return elf.New32(), nil
	case "elf64":
		return elf.New64(), nil
	case "elfx32", "macho32", "macho64", "xdf", "rdf":
		return nil, fmt.Errorf("driver: object format %q is a recognized keyword with no backend implemented", keyword)
	default:
		return nil, fmt.Errorf("driver: unknown objfmt %q", keyword)
	}
}

// selectOutputFile implements spec.md §6's rule verbatim: strip the
// input extension and append the format's canonical one; fall back to
// "yasm.out" on collision with the input name or a basename-less input.
func selectOutputFile(cfg Config) string {
	if cfg.OutputFile != "" {
		return cfg.OutputFile
	}
	ext := canonicalExt[cfg.ObjfmtKeyword]
	base := filepath.Base(cfg.InputFile)
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "yasm.out"
	}
	stripped := strings.TrimSuffix(base, filepath.Ext(base))
	if stripped == "" {
		return "yasm.out"
	}
	candidate := stripped + ext
	if candidate == base {
		return "yasm.out"
	}
	dir := filepath.Dir(cfg.InputFile)
	if dir != "." {
		candidate = filepath.Join(dir, candidate)
	}
	return candidate
}
