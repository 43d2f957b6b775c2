// msajit compiles a kernel description to MIPS32 MSA machine code.
//
//	msajit -listing kernels/add_const.yaml
//	msajit -o add_const.bin -elf add_const.elf -verify 200 kernels/add_const.yaml
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/x/ansi"
	"golang.org/x/term"

	"github.com/tinyrange/msajit/internal/asm/mips"
	"github.com/tinyrange/msajit/internal/ir"
	"github.com/tinyrange/msajit/internal/ir/msa"
)

type options struct {
	out      string
	elf      string
	listing  bool
	unroll   int
	clean    bool
	verbose  bool
	verify   int
	seed     uint64
	maxN     int
	caps     bool
	kernel   string
	logger   *slog.Logger
	stdout   io.Writer
	terminal bool
	width    int
}

func main() {
	var o options
	flag.StringVar(&o.out, "o", "", "write the raw code to this file")
	flag.StringVar(&o.elf, "elf", "", "write a standalone ELF32 image to this file")
	flag.BoolVar(&o.listing, "listing", false, "print the disassembly listing")
	flag.IntVar(&o.unroll, "unroll", -1, "unroll shift (0..2), overrides the kernel's option")
	flag.BoolVar(&o.clean, "clean", false, "pad the code to a 16 byte boundary")
	flag.BoolVar(&o.verbose, "v", false, "enable debug logging")
	flag.IntVar(&o.verify, "verify", 0, "run this many randomized simulator checks")
	flag.Uint64Var(&o.seed, "seed", 1, "seed for -verify")
	flag.IntVar(&o.maxN, "max-n", 300, "largest element count used by -verify")
	flag.BoolVar(&o.caps, "caps", false, "print host capabilities and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] kernel.yaml\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	o.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	o.stdout = os.Stdout
	if fd := int(os.Stdout.Fd()); term.IsTerminal(fd) {
		o.terminal = true
		if w, _, err := term.GetSize(fd); err == nil {
			o.width = w
		}
	}

	if !o.caps {
		if flag.NArg() != 1 {
			flag.Usage()
			os.Exit(2)
		}
		o.kernel = flag.Arg(0)
	}

	if err := run(o); err != nil {
		fmt.Fprintf(os.Stderr, "msajit: %v\n", err)
		os.Exit(1)
	}
}

func run(o options) error {
	if o.caps {
		return printCapabilities(o)
	}

	k, err := ir.LoadKernelFile(o.kernel)
	if err != nil {
		return err
	}
	p, err := k.Program()
	if err != nil {
		return fmt.Errorf("kernel %s: %w", o.kernel, err)
	}

	opts := msa.Options{
		CleanCompile: o.clean || k.Options.Clean,
		UnrollShift:  k.Options.Unroll,
		Listing:      o.listing,
		Logger:       o.logger,
	}
	if o.unroll >= 0 {
		opts.UnrollShift = o.unroll
	}
	code, err := msa.Compile(p, msa.NewRegistry(), opts)
	if err != nil {
		return fmt.Errorf("compile %s: %w", k.Name, err)
	}
	o.logger.Info("compiled",
		slog.String("kernel", k.Name),
		slog.Int("bytes", code.Program.Len()),
		slog.Int("frame", code.FrameSize),
		slog.Int("unroll", opts.UnrollShift))

	if o.listing {
		printListing(o, code.Listing())
	}
	if o.out != "" {
		if err := os.WriteFile(o.out, code.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write code: %w", err)
		}
	}
	if o.elf != "" {
		image, err := mips.StandaloneELF(code.Program)
		if err != nil {
			return fmt.Errorf("build ELF image: %w", err)
		}
		if err := os.WriteFile(o.elf, image, 0o755); err != nil {
			return fmt.Errorf("write ELF image: %w", err)
		}
	}
	if o.verify > 0 {
		if err := verify(o, p, code); err != nil {
			return err
		}
		o.logger.Info("verified", slog.String("kernel", k.Name), slog.Int("runs", o.verify))
	}
	return nil
}

// printListing writes one line per word. On a terminal labels are bold and
// long lines are cut to the window width.
func printListing(o options, lines []string) {
	for _, line := range lines {
		if strings.HasSuffix(line, ":") && o.terminal {
			line = "\x1b[1m" + line + "\x1b[0m"
		}
		if o.width > 0 && ansi.StringWidth(line) > o.width {
			line = ansi.Truncate(line, o.width, "…")
		}
		if !o.terminal {
			line = ansi.Strip(line)
		}
		fmt.Fprintln(o.stdout, line)
	}
}

func printCapabilities(o options) error {
	c := msa.Capabilities()
	fmt.Fprintf(o.stdout, "msa:        %v\n", c.HasMSA)
	fmt.Fprintf(o.stdout, "executable: %v\n", c.Executable)
	for _, arch := range ir.Architectures() {
		b, err := ir.LookupBackend(arch)
		if err != nil {
			return err
		}
		fmt.Fprintf(o.stdout, "backend %-8s executable=%v\n", arch, b.Executable())
	}
	return nil
}
