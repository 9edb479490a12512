package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/xyproto/env/v2"
)

// config holds the ten flags spec.md's External Interfaces section
// defines. Every field except ListTargets has a BFAOTC_* environment-variable
// override consulted as the flag's default before flag.Parse runs, so an explicit
// command-line flag always wins — the same layering xyproto/flapc's
// dependencies.go applies to its own FLAPC_* overrides, generalized here
// from a bespoke os.Getenv call to the typed env.Str/env.Int/env.Bool
// helpers now that a real dependency covers it.
type config struct {
	Quiet           bool
	JSON            bool
	Optimize        bool
	KeepFailed      bool
	ContinueOnError bool
	ListTargets     bool
	SourceExtension string
	OutputSuffix    string
	TapeSize        int
	TargetArch      string

	files []string
}

func parseConfig(args []string) (*config, error) {
	fs := flag.NewFlagSet("bfaotc", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `usage: bfaotc [flags] <file.bf>...

compiles brainfuck source files into standalone ELF executables.`)
		fs.PrintDefaults()
	}

	cfg := &config{}
	fs.BoolVar(&cfg.Quiet, "quiet", env.Bool("BFAOTC_QUIET"), "suppress human-readable error output")
	fs.BoolVar(&cfg.JSON, "json", env.Bool("BFAOTC_JSON"), "emit errors as JSON records on stdout")
	fs.BoolVar(&cfg.Optimize, "optimize", env.Bool("BFAOTC_OPTIMIZE"), "run the IR optimizer")
	fs.BoolVar(&cfg.KeepFailed, "keep-failed", env.Bool("BFAOTC_KEEP_FAILED"), "preserve partial output on failure")
	fs.BoolVar(&cfg.ContinueOnError, "continue-on-error", env.Bool("BFAOTC_CONTINUE_ON_ERROR"), "do not stop on per-file failure")
	fs.BoolVar(&cfg.ListTargets, "list-targets", false, "print compiled-in backend names and exit")
	fs.StringVar(&cfg.SourceExtension, "source-extension", env.Str("BFAOTC_SOURCE_EXTENSION", ".bf"), "required suffix on input filenames")
	fs.StringVar(&cfg.OutputSuffix, "output-suffix", env.Str("BFAOTC_OUTPUT_SUFFIX", ""), "string appended to the output filename after extension stripping")
	fs.IntVar(&cfg.TapeSize, "tape-size", env.Int("BFAOTC_TAPE_SIZE", 8), "tape size, in 4 KiB blocks")
	fs.StringVar(&cfg.TargetArch, "target-arch", env.Str("BFAOTC_TARGET_ARCH", "x86_64"), "one of the compiled-in backend names")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.files = fs.Args()
	return cfg, nil
}
