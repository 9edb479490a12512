// Command bfaotc compiles brainfuck source files directly into standalone
// ELF executables for Linux, picking the target architecture's backend
// (x86-64, AArch64, RISC-V64, or s390x) at compile time rather than
// shelling out to an assembler or linker.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/lcox74/bfaotc/internal/codegen"
	_ "github.com/lcox74/bfaotc/internal/codegen/arm64"
	_ "github.com/lcox74/bfaotc/internal/codegen/riscv64"
	_ "github.com/lcox74/bfaotc/internal/codegen/s390x"
	_ "github.com/lcox74/bfaotc/internal/codegen/x86_64"
	"github.com/lcox74/bfaotc/internal/diag"
	"github.com/lcox74/bfaotc/internal/driver"
	"github.com/lcox74/bfaotc/internal/ir"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run implements the CLI end to end and returns the process exit code
// (already folded into the lowest 8 bits, per spec.md's exit-code rule).
func run(args []string) int {
	cfg, err := parseConfig(args)
	if err != nil {
		return 1
	}

	if cfg.ListTargets {
		for _, name := range codegen.Names() {
			fmt.Println(name)
		}
		return 0
	}

	backend, ok := codegen.Lookup(cfg.TargetArch)
	if !ok {
		reportAll(cfg, []*ir.CompileError{
			ir.NewError(ir.ErrUnknownArch, "unknown target architecture %q", cfg.TargetArch),
		})
		return 1
	}

	if len(cfg.files) == 0 {
		reportAll(cfg, []*ir.CompileError{ir.NewError(ir.ErrNoSourceFiles, "no source files given")})
		return 1
	}

	failed := false
	for _, file := range cfg.files {
		if err := compileFile(cfg, backend, file); err != nil {
			reportAll(cfg, []*ir.CompileError{err})
			failed = true
			if !cfg.ContinueOnError {
				break
			}
		}
	}

	if failed {
		return 1
	}
	return 0
}

// outputPath strips cfg.SourceExtension from file and appends
// cfg.OutputSuffix, or reports BadSourceExtension/MultipleExtensions.
func outputPath(cfg *config, file string) (string, *ir.CompileError) {
	if !strings.HasSuffix(file, cfg.SourceExtension) {
		return "", ir.NewError(ir.ErrBadSourceExtension,
			"%s does not have the required %q extension", file, cfg.SourceExtension).WithFile(file)
	}
	stem := strings.TrimSuffix(file, cfg.SourceExtension)
	// A filename like "prog.bf.bf" still ends with .bf after stripping
	// once, which almost certainly isn't what the caller meant: refuse
	// rather than silently picking one of two plausible output names.
	if strings.HasSuffix(stem, cfg.SourceExtension) {
		return "", ir.NewError(ir.ErrMultipleExtensions,
			"%s has %q more than once; strip all but the last occurrence first", file, cfg.SourceExtension).WithFile(file)
	}
	return stem + cfg.OutputSuffix, nil
}

func compileFile(cfg *config, backend codegen.Backend, file string) *ir.CompileError {
	out, pathErr := outputPath(cfg, file)
	if pathErr != nil {
		return pathErr
	}

	src, readErr := os.ReadFile(file)
	if readErr != nil {
		return ir.NewError(ir.ErrFailedRead, "%v", readErr).WithFile(file)
	}

	artifact, compileErr := driver.CompileSource(src, driver.Options{
		Backend:    backend,
		TapeBlocks: cfg.TapeSize,
		Optimize:   cfg.Optimize,
	})
	if compileErr != nil {
		withFile := compileErr
		if withFile.File == "" {
			withFile = withFile.WithFile(file)
		}
		if cfg.KeepFailed && len(artifact) > 0 {
			_ = os.WriteFile(out, artifact, 0o755)
		}
		return withFile
	}

	if err := os.WriteFile(out, artifact, 0o755); err != nil {
		return ir.NewError(ir.ErrFailedWrite, "%v", err).WithFile(out)
	}
	return nil
}

func reportAll(cfg *config, errs []*ir.CompileError) {
	if !cfg.Quiet {
		_ = diag.WriteHuman(os.Stderr, errs)
	}
	if cfg.JSON {
		_ = diag.WriteJSON(os.Stdout, errs)
	}
}
