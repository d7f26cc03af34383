package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/cockroachdb/errors"
	flag "github.com/spf13/pflag"

	"github.com/nhle/tempmail/internal/app"
	"github.com/nhle/tempmail/internal/model"
	"github.com/nhle/tempmail/internal/render"
)

// openCore builds the core and starts the mailbox. One-shot commands log
// to stderr and never run the polling loop.
func (e *env) openCore(ctx context.Context) (*app.Core, model.Session, error) {
	logger, err := e.newLogger(false)
	if err != nil {
		return nil, model.Session{}, err
	}
	core, err := app.NewCore(e.cfg, logger, app.CoreOptions{})
	if err != nil {
		return nil, model.Session{}, err
	}
	sess, err := core.Lifecycle.Start(ctx)
	if err != nil {
		_ = core.Close()
		return nil, model.Session{}, errors.Wrap(err, "starting mailbox")
	}
	return core, sess, nil
}

func (e *env) runTUI(ctx context.Context) error {
	logger, err := e.newLogger(true)
	if err != nil {
		return err
	}
	core, err := app.NewCore(e.cfg, logger, app.CoreOptions{Poll: true})
	if err != nil {
		return err
	}
	defer core.Close()

	p := tea.NewProgram(app.New(core), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return errors.Wrap(err, "running terminal UI")
	}
	return nil
}

func (e *env) runAddress(ctx context.Context) error {
	core, sess, err := e.openCore(ctx)
	if err != nil {
		return err
	}
	defer core.Close()

	fmt.Fprintln(e.stdout, sess.Address)
	return nil
}

func (e *env) runCheck(ctx context.Context) error {
	core, sess, err := e.openCore(ctx)
	if err != nil {
		return err
	}
	defer core.Close()

	res, err := core.Sync.PollOnce(ctx)
	if err != nil {
		return errors.Wrap(err, "checking inbox")
	}
	if len(res.Inbox) == 0 {
		fmt.Fprintf(e.stdout, "No messages for %s\n", sess.Address)
		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "FROM", "SUBJECT", "RECEIVED")
	for _, m := range res.Inbox {
		t.Row(m.ID, render.SenderLabel(m.From), m.Subject, render.FormatDate(m.Timestamp))
	}
	fmt.Fprintln(e.stdout, t.Render())
	fmt.Fprintf(e.stdout, "%d message(s), %d new\n", len(res.Inbox), res.Added)
	return nil
}

func (e *env) runRead(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("read", flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	images := fs.Bool("images", e.cfg.Display.ShowImages, "show image references")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: tempmail read <id>")
	}

	core, sess, err := e.openCore(ctx)
	if err != nil {
		return err
	}
	defer core.Close()

	d, err := core.Fetcher.GetDetail(ctx, sess.Token, fs.Arg(0))
	if err != nil {
		return err
	}
	body, err := render.Body(d, render.Options{ShowImages: *images})
	if err != nil {
		return err
	}

	fmt.Fprintf(e.stdout, "From:    %s\n", d.From)
	fmt.Fprintf(e.stdout, "Subject: %s\n", d.Subject)
	if date := render.FormatDate(d.Timestamp); date != "" {
		fmt.Fprintf(e.stdout, "Date:    %s\n", date)
	}
	fmt.Fprintf(e.stdout, "\n%s\n", body)
	return nil
}

func (e *env) runRename(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("rename", flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	domain := fs.String("domain", "", "address domain (default: keep the current one)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: tempmail rename <local> [--domain d]")
	}

	core, _, err := e.openCore(ctx)
	if err != nil {
		return err
	}
	defer core.Close()

	draft, err := core.Lifecycle.BeginEdit()
	if err != nil {
		return err
	}
	draft.LocalPart = fs.Arg(0)
	if *domain != "" {
		draft.Domain = strings.ToLower(*domain)
	}
	if err := core.Lifecycle.UpdateDraft(draft); err != nil {
		return err
	}

	sess, err := core.Lifecycle.Save(ctx)
	if err != nil {
		_ = core.Lifecycle.Cancel()
		return err
	}
	fmt.Fprintln(e.stdout, sess.Address)
	return nil
}

func (e *env) runForget(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("forget", flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	yes := fs.BoolP("yes", "y", false, "do not ask for confirmation")
	if err := fs.Parse(args); err != nil {
		return err
	}

	core, sess, err := e.openCore(ctx)
	if err != nil {
		return err
	}
	defer core.Close()

	if !*yes {
		confirmed := false
		err := huh.NewConfirm().
			Title(fmt.Sprintf("Forget %s?", sess.Address)).
			Description("The inbox is discarded and a new address is allocated.").
			Affirmative("Forget").
			Negative("Keep").
			Value(&confirmed).
			Run()
		if err != nil {
			return errors.Wrap(err, "confirming")
		}
		if !confirmed {
			return nil
		}
	}

	next, err := core.Lifecycle.Invalidate(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, next.Address)
	return nil
}

func (e *env) runInitConfig(args []string) error {
	fs := flag.NewFlagSet("init-config", flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	force := fs.Bool("force", false, "overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := os.Stat(e.configPath); err == nil && !*force {
		return errors.Newf("%s already exists (use --force to overwrite)", e.configPath)
	}
	if err := model.SaveConfig(e.configPath, model.DefaultAppConfig()); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "Wrote %s\n", e.configPath)
	return nil
}
