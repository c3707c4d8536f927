package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jessevdk/go-flags"
)

// Run parses args (bridge flags, then -- and the subprocess command) and
// serves until a signal or a fatal subprocess condition.
func Run(args []string) error {
	options, err := ParseOptions(args)
	if err != nil {
		return err
	}
	logger := newLogger(options.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	service := New(options, logger)
	return service.Run(ctx)
}

// ParseOptions splits args on the -- separator, parses the flag portion and
// initializes defaults plus the optional config file.
func ParseOptions(args []string) (*Options, error) {
	flagArgs, command := splitArgs(args)
	options := &Options{}
	if _, err := flags.ParseArgs(options, flagArgs); err != nil {
		return nil, err
	}
	if len(command) > 0 {
		options.Command = command
	}
	if err := options.Init(context.Background()); err != nil {
		return nil, err
	}
	return options, nil
}

func splitArgs(args []string) (flagArgs, command []string) {
	for i, arg := range args {
		if arg == "--" {
			return args[:i], args[i+1:]
		}
	}
	return args, nil
}

func newLogger(level string) *slog.Logger {
	var leveled slog.Level
	switch strings.ToLower(level) {
	case "debug":
		leveled = slog.LevelDebug
	case "warn":
		leveled = slog.LevelWarn
	case "error":
		leveled = slog.LevelError
	default:
		leveled = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: leveled}))
}

// String renders the effective launch surface for logs.
func (o *Options) String() string {
	return fmt.Sprintf("%v -> %v", o.Addr(), strings.Join(o.Command, " "))
}
