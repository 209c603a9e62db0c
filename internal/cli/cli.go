package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/taskancestry/internal/app"
	"github.com/vk/taskancestry/internal/config"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

const usageHeader = `
taskancestry - reconstructs the task/region ancestry graph of a parallel runtime.

Usage:
  taskancestry serve  [options]
  taskancestry replay [options] TRACE
  taskancestry emit   [options] --target URL TRACE

Commands:
  serve   Accept lifecycle events over socket.io. SIGINT/SIGTERM export the
          graph and exit with the signal number.
  replay  Feed a newline-delimited JSON trace through the tracker, then export.
  emit    Stream a trace to a running 'serve' instance.

Options:
`

// Parse processes command-line arguments. It returns the parsed invocation,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Invocation, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("taskancestry", flag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.Usage = func() {
		fmt.Fprint(output, usageHeader)
		flagSet.PrintDefaults()
	}

	if len(args) == 0 {
		flagSet.Usage()
		return nil, true, nil
	}

	var mode app.Mode
	switch args[0] {
	case "serve", "replay", "emit":
		mode = app.Mode(args[0])
		args = args[1:]
	case "-h", "-help", "--help", "help":
		flagSet.Usage()
		return nil, true, nil
	default:
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("unknown command %q", args[0])}
	}

	configFlag := flagSet.String("config", "", "Path to an HCL configuration file.")
	outputFlag := flagSet.String("output", "", "Path of the exported graph. Defaults to $TASK_TREE_DOTFILE, then ./tree.dot.")
	oFlag := flagSet.String("o", "", "Path of the exported graph (shorthand).")
	formatFlag := flagSet.String("format", "", "Export format. Options: 'dot' or 'msgpack'. Inferred from the output path when empty.")
	extendedFlag := flagSet.Bool("extended-ancestry", false, "Maintain the extended ancestry index.")
	verboseFlag := flagSet.Bool("verbose-diagnostics", false, "Log every ignored event and a summary on shutdown.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	workersFlag := flagSet.Int("workers", 4, "Number of concurrent workers for replay.")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	listenFlag := flagSet.String("listen", ":4000", "Address of the socket.io ingest server.")
	ingestPathFlag := flagSet.String("ingest-path", "/socket.io/", "HTTP path of the socket.io ingest server.")
	targetFlag := flagSet.String("target", "", "URL of the ingest server for 'emit', e.g. http://localhost:4000/socket.io/.")
	snapshotFlag := flagSet.Bool("snapshot", false, "Ask the server for a snapshot after 'emit'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.", "mode", mode)

	inv := &app.Invocation{
		Mode:            mode,
		ConfigPath:      *configFlag,
		Target:          *targetFlag,
		RequestSnapshot: *snapshotFlag,
	}

	// Only explicitly set flags override the config file.
	var overrides config.Overrides
	flagSet.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "output":
			overrides.OutputPath = outputFlag
		case "o":
			// Visit runs in lexical order, so --output wins over -o.
			overrides.OutputPath = oFlag
		case "format":
			overrides.Format = lower(formatFlag)
		case "extended-ancestry":
			overrides.ExtendedAncestry = extendedFlag
		case "verbose-diagnostics":
			overrides.VerboseDiagnostics = verboseFlag
		case "log-format":
			overrides.LogFormat = lower(logFormatFlag)
		case "log-level":
			overrides.LogLevel = lower(logLevelFlag)
		case "workers":
			overrides.Workers = workersFlag
		case "healthcheck-port":
			overrides.HealthcheckPort = healthPortFlag
		case "listen":
			overrides.IngestAddress = listenFlag
		case "ingest-path":
			overrides.IngestPath = ingestPathFlag
		}
	})
	inv.Overrides = overrides

	if v := overrides.LogFormat; v != nil && *v != "text" && *v != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}
	if v := overrides.LogLevel; v != nil {
		switch *v {
		case "debug", "info", "warn", "error":
		default:
			return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
		}
	}
	if *workersFlag < 1 {
		return nil, false, &ExitError{Code: 2, Message: "invalid workers: must be at least 1"}
	}

	switch mode {
	case app.ModeReplay, app.ModeEmit:
		if flagSet.NArg() != 1 {
			return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("%s requires exactly one TRACE argument", mode)}
		}
		inv.TracePath = flagSet.Arg(0)
	case app.ModeServe:
		if flagSet.NArg() != 0 {
			return nil, false, &ExitError{Code: 2, Message: "serve takes no arguments"}
		}
	}
	if mode == app.ModeEmit && inv.Target == "" {
		return nil, false, &ExitError{Code: 2, Message: "emit requires --target"}
	}
	slog.Debug("CLI parameter validation complete.")

	slog.Debug("CLI parser finished successfully.", "invocation", inv)
	return inv, false, nil
}

func lower(s *string) *string {
	v := strings.ToLower(*s)
	return &v
}
