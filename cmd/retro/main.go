// Package main provides the CLI entry point for Retro on the Nga VM.
//
// Usage:
//
//	retro run program.retro           # Include a source into ngaImage
//	retro run -i                      # Start the listener
//	retro asm -o ngaImage rx.muri     # Assemble a literate image source
//	retro disasm ngaImage             # Disassemble an image
//	retro profile prof.csv            # Print a saved execution profile
//	retro snapshot state.cbor         # Summarize a machine snapshot
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/crcx/retroforth/internal/logging"
	"github.com/crcx/retroforth/pkg/assembler"
	"github.com/crcx/retroforth/pkg/config"
	"github.com/crcx/retroforth/pkg/device"
	"github.com/crcx/retroforth/pkg/profile"
	"github.com/crcx/retroforth/pkg/repl"
	"github.com/crcx/retroforth/pkg/vm"
)

// Version info set via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// cli carries the standard streams through the commands.
type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	c := &cli{stdin: stdin, stdout: stdout, stderr: stderr}
	if len(args) < 1 {
		return c.printUsage()
	}

	switch args[0] {
	case "run":
		return c.runCommand(args[1:])
	case "asm":
		return c.asmCommand(args[1:])
	case "disasm":
		return c.disasmCommand(args[1:])
	case "repl":
		return c.replCommand(args[1:])
	case "profile":
		return c.profileCommand(args[1:])
	case "snapshot":
		return c.snapshotCommand(args[1:])
	case "version":
		fmt.Fprintf(c.stdout, "retro version %s\n", version)
		if commit != "none" {
			fmt.Fprintf(c.stdout, "  commit: %s\n", commit)
		}
		if date != "unknown" {
			fmt.Fprintf(c.stdout, "  built:  %s\n", date)
		}
		return nil
	case "help", "-h", "--help":
		return c.printUsage()
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

// machineFlags are shared by run and repl.
type machineFlags struct {
	image     *string
	memory    *int
	maxSteps  *int64
	config    *string
	logLevel  *string
	logFile   *string
	noLegacy  *bool
	grow      *bool
	scriptArg []string
}

func addMachineFlags(fs *flag.FlagSet) *machineFlags {
	return &machineFlags{
		image:    fs.String("image", "ngaImage", "image file to load"),
		memory:   fs.Int("memory", 0, "memory size in cells (default from config)"),
		maxSteps: fs.Int64("max-steps", 0, "stop after this many bundles (0 = config value)"),
		config:   fs.String("config", "", "configuration file (default ./"+config.FileName+" if present)"),
		logLevel: fs.String("log-level", "", "log level: debug, info, warn, error"),
		logFile:  fs.String("log-file", "", "also write JSON logs to this file"),
		noLegacy: fs.Bool("no-legacy-console", false, "disable the 1000 console opcode"),
		grow:     fs.Bool("grow", false, "enlarge memory when the image does not fit"),
	}
}

// splitScriptArgs separates the arguments after "--", which are handed to
// the image through the scripting device.
func splitScriptArgs(args []string) ([]string, []string) {
	if i := slices.Index(args, "--"); i >= 0 {
		return args[:i], args[i+1:]
	}
	return args, nil
}

// newLogger builds the logger for a command. The returned closer releases
// the log file, if any.
func (c *cli) newLogger(cfg *config.Config, mf *machineFlags) (*slog.Logger, func(), error) {
	levelName := cfg.Log.Level
	if *mf.logLevel != "" {
		levelName = *mf.logLevel
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return nil, nil, err
	}

	path := cfg.Log.File
	if *mf.logFile != "" {
		path = *mf.logFile
	}
	if path == "" {
		return logging.New(c.stderr, level), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return logging.New(c.stderr, level, logging.JSONHandler(f)), func() { f.Close() }, nil
}

// newMachine loads the image named by mf and installs the standard devices.
func (c *cli) newMachine(cfg *config.Config, mf *machineFlags, logger *slog.Logger, scriptName string) (*vm.VM, error) {
	size := cfg.VM.Memory
	if *mf.memory > 0 {
		size = *mf.memory
	}
	mem, err := vm.LoadImage(*mf.image, size, cfg.VM.Grow || *mf.grow)
	if err != nil {
		return nil, err
	}
	logger.Debug("image loaded", "path", *mf.image, "cells", len(mem), "here", mem.Here())

	argv := append([]string{"retro", scriptName}, mf.scriptArg...)
	machine, err := vm.New(mem,
		vm.WithNameOffset(cfg.VM.NameOffset),
		vm.WithDevices(device.Default(device.WithPrecision(cfg.Decimal.Precision))...),
		vm.WithOutput(c.stdout),
		vm.WithLogger(logger),
		vm.WithLegacyConsole(cfg.VM.LegacyConsole && !*mf.noLegacy),
		vm.WithArgs(argv),
	)
	if err != nil {
		return nil, err
	}

	steps := cfg.VM.MaxSteps
	if *mf.maxSteps > 0 {
		steps = *mf.maxSteps
	}
	machine.SetMaxSteps(steps)
	return machine, nil
}

func (c *cli) runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	mf := addMachineFlags(fs)
	interactive := fs.Bool("i", false, "enter the listener after including files")
	updated := fs.String("u", "", "path for the saved image (default: the loaded image)")
	save := fs.Bool("save", false, "save the image after running")
	statsPath := fs.String("stats", "", "write an execution profile (.csv, .jsonl, .parquet)")
	snapPath := fs.String("snapshot", "", "write a machine snapshot after running")

	args, mf.scriptArg = splitScriptArgs(args)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Find(*mf.config)
	if err != nil {
		return err
	}
	logger, closeLog, err := c.newLogger(cfg, mf)
	if err != nil {
		return err
	}
	defer closeLog()

	files := fs.Args()
	scriptName := ""
	if len(files) > 0 {
		scriptName = files[0]
	}
	machine, err := c.newMachine(cfg, mf, logger, scriptName)
	if err != nil {
		return err
	}
	defer device.Close(machine.Devices())

	if *statsPath != "" {
		machine.EnableStats()
	}

	for _, f := range files {
		if err := machine.Include(f); err != nil {
			return err
		}
	}
	if *interactive || len(files) == 0 {
		repl.New(machine).Start(c.stdin, c.stdout)
	}

	if *statsPath != "" {
		df, err := profile.Build(machine.Stats(), machine.Dictionary())
		if err != nil {
			return err
		}
		if err := profile.Export(context.Background(), df, *statsPath); err != nil {
			return err
		}
		logger.Info("profile written", "path", *statsPath)
	}
	if *snapPath != "" {
		if err := machine.WriteSnapshot(*snapPath); err != nil {
			return err
		}
		logger.Info("snapshot written", "path", *snapPath)
	}
	if *save || *updated != "" {
		path := *mf.image
		if *updated != "" {
			path = *updated
		}
		if err := machine.Memory().Save(path, cfg.VM.SaveShrink); err != nil {
			return err
		}
		logger.Info("image saved", "path", path, "shrink", cfg.VM.SaveShrink)
	}
	return nil
}

func (c *cli) replCommand(args []string) error {
	fs := flag.NewFlagSet("repl", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	mf := addMachineFlags(fs)

	args, mf.scriptArg = splitScriptArgs(args)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Find(*mf.config)
	if err != nil {
		return err
	}
	logger, closeLog, err := c.newLogger(cfg, mf)
	if err != nil {
		return err
	}
	defer closeLog()

	machine, err := c.newMachine(cfg, mf, logger, "")
	if err != nil {
		return err
	}
	defer device.Close(machine.Devices())

	r := repl.New(machine)
	r.SetShrink(cfg.VM.SaveShrink)
	r.Start(c.stdin, c.stdout)
	return nil
}

func (c *cli) asmCommand(args []string) error {
	fs := flag.NewFlagSet("asm", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	output := fs.String("o", "ngaImage", "output image")
	listing := fs.Bool("l", false, "print an address listing")
	cfgPath := fs.String("config", "", "configuration file")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: retro asm [-o ngaImage] [-l] <source>")
	}

	cfg, err := config.Find(*cfgPath)
	if err != nil {
		return err
	}

	source, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("reading source: %w", err)
	}
	img, err := assembler.Assemble(string(source),
		assembler.WithFence(cfg.Assembler.Fence),
		assembler.WithImageCells(cfg.Assembler.ImageCells))
	if err != nil {
		return fmt.Errorf("%s: %w", fs.Arg(0), err)
	}

	if err := os.WriteFile(*output, img.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing image: %w", err)
	}
	if *listing {
		fmt.Fprint(c.stdout, img.Listing())
	}
	fmt.Fprintf(c.stdout, "Assembled: %s (%d of %d cells used)\n", *output, img.Used, len(img.Cells))
	return nil
}

func (c *cli) disasmCommand(args []string) error {
	fs := flag.NewFlagSet("disasm", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	from := fs.Int("from", 0, "first cell")
	to := fs.Int("to", 0, "end cell, exclusive (default: here + 1)")
	nameOffset := fs.Int("name-offset", vm.NameOffsetCurrent, "dictionary name field offset")
	output := fs.String("o", "", "output file (default: stdout)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: retro disasm [-from n] [-to n] <image>")
	}

	mem, err := vm.LoadImage(fs.Arg(0), 0, true)
	if err != nil {
		return err
	}
	end := *to
	if end <= 0 {
		end = len(mem.Image(true))
	}

	// Images without a dictionary still disassemble, just without names.
	dict, err := vm.NewDictionary(mem, *nameOffset)
	if err != nil {
		dict = nil
	}
	asm := vm.Disassemble(mem, *from, end, dict)

	if *output != "" {
		if err := os.WriteFile(*output, []byte(asm), 0644); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
		fmt.Fprintf(c.stdout, "Disassembled to: %s\n", *output)
		return nil
	}
	fmt.Fprint(c.stdout, asm)
	return nil
}

func (c *cli) profileCommand(args []string) error {
	fs := flag.NewFlagSet("profile", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	top := fs.Int("top", 20, "rows to show (0 = all)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: retro profile [-top n] <file>")
	}

	ctx := context.Background()
	df, err := profile.Load(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	rows, err := profile.Top(ctx, df, *top)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(c.stdout)
	table.SetHeader([]string{profile.ColKind, profile.ColName, profile.ColAddress, profile.ColCount})
	for _, r := range rows {
		table.Append([]string{r.Kind, r.Name, strconv.FormatInt(r.Address, 10), strconv.FormatInt(r.Count, 10)})
	}
	table.Render()
	return nil
}

func (c *cli) snapshotCommand(args []string) error {
	fs := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	fs.SetOutput(c.stderr)

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: retro snapshot <file>")
	}

	s, err := vm.ReadSnapshot(fs.Arg(0))
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(c.stdout)
	table.SetHeader([]string{"field", "value"})
	table.Append([]string{"version", strconv.Itoa(s.Version)})
	table.Append([]string{"ip", strconv.Itoa(int(s.IP))})
	table.Append([]string{"data depth", strconv.Itoa(len(s.Data))})
	table.Append([]string{"address depth", strconv.Itoa(len(s.Address))})
	table.Append([]string{"memory", strconv.Itoa(s.MemorySize)})
	table.Append([]string{"stored cells", strconv.Itoa(len(s.Memory))})
	table.Append([]string{"name offset", strconv.Itoa(s.NameOffset)})
	table.Render()

	if len(s.Data) > 0 {
		fmt.Fprint(c.stdout, "data:")
		for _, v := range s.Data {
			fmt.Fprintf(c.stdout, " %d", v)
		}
		fmt.Fprintln(c.stdout)
	}
	return nil
}

func (c *cli) printUsage() error {
	fmt.Fprintln(c.stdout, `Retro - a Forth dialect on the Nga virtual machine

Usage:
  retro <command> [arguments]

Commands:
  run [files...]        Include literate sources into an image
  asm <source>          Assemble a literate image source into an image
  disasm <image>        Disassemble an image
  repl                  Start the interactive listener
  profile <file>        Print a saved execution profile
  snapshot <file>       Summarize a machine snapshot
  version               Print version information
  help                  Show this help message

Run and REPL Options:
  -image <file>         Image to load (default: ngaImage)
  -memory <cells>       Memory size in cells
  -max-steps <n>        Stop after n bundles
  -config <file>        Configuration file (default: ./retro.toml)
  -log-level <level>    debug, info, warn or error
  -log-file <file>      Also write JSON logs to a file
  -no-legacy-console    Disable the 1000 console opcode
  -grow                 Enlarge memory when the image does not fit
  -- args...            Arguments passed to the image

Run Options:
  -i                    Enter the listener after including files
  -u <file>             Save the image to this path
  -save                 Save the image after running
  -stats <file>         Write an execution profile (.csv, .jsonl, .parquet)
  -snapshot <file>      Write a machine snapshot after running

Asm Options:
  -o <file>             Output image (default: ngaImage)
  -l                    Print an address listing

Disasm Options:
  -from <n>, -to <n>    Cell range
  -name-offset <n>      Dictionary name field offset (3 or 4)
  -o <file>             Output file (default: stdout)

Examples:
  retro asm -o ngaImage rx.muri
  retro run -i program.retro
  retro run -stats prof.parquet bench.retro -- 100
  retro profile -top 10 prof.parquet`)
	return nil
}
