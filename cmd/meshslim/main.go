// meshslim simplifies and converts triangle meshes between OBJ, glTF and GLB.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/pflag"

	"github.com/Faultbox/meshslim/internal/config"
	"github.com/Faultbox/meshslim/internal/logger"
)

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// errUsage marks bad invocations; the message is already printed.
var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return exitUsage
	}

	command, args := args[0], args[1:]
	var cmd func(context.Context, *env, []string) error
	switch command {
	case "info":
		cmd = cmdInfo
	case "simplify", "s":
		cmd = cmdSimplify
	case "convert", "c":
		cmd = cmdConvert
	case "batch", "b":
		cmd = cmdBatch
	case "config":
		cmd = cmdConfig
	case "help", "-h", "--help":
		printUsage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		printUsage(stderr)
		return exitUsage
	}

	e := newEnv(command, stdout, stderr)
	err := cmd(ctx, e, args)
	logger.Sync()
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, pflag.ErrHelp):
		return exitOK
	case errors.Is(err, errUsage):
		return exitUsage
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `meshslim - triangle mesh simplifier and converter

Usage:
  meshslim <command> [options]

Commands:
  info <model>                          Show mesh statistics
  simplify <model> [-r ratio] [-o out]  Simplify and export (default glb)
  convert <model> -o <out>              Convert without simplifying
  batch <models...> [-j n] [-d dir]     Simplify many files concurrently
  config [--save[=path]]                Print or save the effective config

Global options:
  --config <file>    Config file (default ./meshslim.yaml, then user config dir)
  --debug            Debug logging
  --log-file <file>  Also write logs to a rotated file
  --charset <name>   Encoding of OBJ text without a BOM (e.g. euc-kr)

Examples:
  meshslim info rock.obj
  meshslim simplify rock.obj -r 0.75 -o rock_lod.glb
  meshslim convert scene.gltf -o scene.obj
  meshslim batch -j 4 -d lods assets/*.glb`)
}

// env is the per-command flag set and output streams.
type env struct {
	name   string
	fs     *pflag.FlagSet
	flags  *config.Flags
	stdout io.Writer
	stderr io.Writer
}

func newEnv(name string, stdout, stderr io.Writer) *env {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	return &env{
		name:   name,
		fs:     fs,
		flags:  config.NewFlags(fs),
		stdout: stdout,
		stderr: stderr,
	}
}

// setup parses args, loads the config and starts logging to stderr.
func (e *env) setup(args []string) (*config.Config, error) {
	if err := e.fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		fmt.Fprintf(e.stderr, "%v\nUsage of %s:\n", err, e.name)
		e.fs.PrintDefaults()
		return nil, errUsage
	}

	cfg, err := config.Load(e.flags)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	opts := cfg.LoggerOptions()
	opts.Console = e.stderr
	if err := logger.Init(opts); err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	logger.Sugar.Debugf("config: %+v", cfg)
	return cfg, nil
}

func (e *env) usage(format string) error {
	fmt.Fprintf(e.stderr, "Usage: meshslim %s\n", format)
	return errUsage
}
