// The tempmail command is a disposable email client for Guerrilla Mail.
// Without a subcommand it opens the terminal UI.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/cockroachdb/errors"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/nhle/tempmail/internal/logging"
	"github.com/nhle/tempmail/internal/model"
	"github.com/nhle/tempmail/internal/theme"
)

const usage = `Usage: tempmail [--config path] [--log-level level] <command> [args]

Commands:
  tui                        open the terminal UI (default)
  address                    print the current address
  check                      poll once and list the inbox
  read <id>                  print one message
  rename <local> [--domain]  change the address local part
  forget [--yes]             drop the mailbox and allocate a new one
  init-config [--force]      write the default config file
`

// env carries what every subcommand needs.
type env struct {
	cfg        *model.AppConfig
	configPath string
	stdout     io.Writer
	stderr     io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "tempmail: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("tempmail", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SetInterspersed(false)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }

	configPath := fs.String("config", model.DefaultConfigPath(), "path to the config file")
	logLevel := fs.String("log-level", "", "override log.level")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	theme.Apply(cfg.Display.Theme)

	e := &env{cfg: cfg, configPath: *configPath, stdout: stdout, stderr: stderr}

	name, rest := "tui", []string(nil)
	if fs.NArg() > 0 {
		name, rest = fs.Arg(0), fs.Args()[1:]
	}

	switch name {
	case "tui":
		return e.runTUI(ctx)
	case "address":
		return e.runAddress(ctx)
	case "check":
		return e.runCheck(ctx)
	case "read":
		return e.runRead(ctx, rest)
	case "rename":
		return e.runRename(ctx, rest)
	case "forget":
		return e.runForget(ctx, rest)
	case "init-config":
		return e.runInitConfig(rest)
	case "help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stderr, usage)
		return errors.Newf("unknown command %q", name)
	}
}

// newLogger builds the logger; the TUI logs to a file since it owns the
// terminal.
func (e *env) newLogger(toFile bool) (*zap.SugaredLogger, error) {
	return logging.New(e.cfg.Log, toFile)
}
