// Command befdump decodes a BEF file and prints its reconstructed IR as
// YAML. The diagnostics the decode recorded are logged to stderr at debug
// level.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/tripwire/beflow/bef"
	"github.com/tripwire/beflow/bef/goldenfmt"
)

func main() {
	policy := flag.String("policy", "lenient", "decode policy: lenient | strict")
	logLevel := flag.String("log-level", "info", "log level: debug | info | warn | error")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: befdump [-policy lenient|strict] [-log-level level] <file.bef>")
		os.Exit(2)
	}
	path := flag.Arg(0)

	logger := newLogger(*logLevel)
	slog.SetDefault(logger)

	var p bef.Policy
	switch *policy {
	case "strict":
		p = bef.Strict
	case "lenient":
		p = bef.Lenient
	default:
		logger.Error("unknown policy", slog.String("policy", *policy))
		os.Exit(1)
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		logger.Error("failed to read input file", slog.String("path", path), slog.Any("error", err))
		os.Exit(1)
	}

	mod, diags, err := bef.Decode(buf, bef.SourceLoc{Filename: path}, bef.WithPolicy(p), bef.WithLogger(logger))
	for _, d := range diags {
		logger.Debug("decode diagnostic", slog.String("severity", d.Severity.String()), slog.String("kind", string(d.Kind)), slog.String("message", d.Message), slog.String("loc", d.Loc.String()))
	}
	if err != nil {
		logger.Error("decode failed", slog.String("path", path), slog.Any("error", err))
		os.Exit(1)
	}

	out, err := goldenfmt.Render(mod)
	if err != nil {
		logger.Error("failed to render module", slog.Any("error", err))
		os.Exit(1)
	}
	fmt.Print(out)
}

// newLogger constructs a *slog.Logger that writes JSON-structured log
// records to stderr at the requested minimum level.
func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
