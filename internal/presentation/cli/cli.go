// Package cli implements the feedkeep command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/alecthomas/kong"

	"github.com/tesso57/feedkeep/internal/application/usecase"
)

// CLI is the command tree.
type CLI struct {
	Config string `help:"Config file path" short:"c" type:"path"`

	Add      AddCmd      `cmd:"" help:"Subscribe to a feed."`
	Remove   RemoveCmd   `cmd:"" help:"Unsubscribe from a feed and drop its stories."`
	List     ListCmd     `cmd:"" help:"List subscriptions with unread counters."`
	Show     ShowCmd     `cmd:"" help:"List a feed's stories, or print one story."`
	Read     ReadCmd     `cmd:"" help:"Print a story and mark it read."`
	Unread   UnreadCmd   `cmd:"" help:"Mark a story unread."`
	ReadAll  ReadAllCmd  `cmd:"" name:"read-all" help:"Mark every story of a feed read."`
	Refresh  RefreshCmd  `cmd:"" help:"Refresh every stale feed once."`
	Watch    WatchCmd    `cmd:"" help:"Refresh feeds on an interval until interrupted."`
	Settings SettingsCmd `cmd:"" help:"Show or change stored settings."`
}

// Run parses args and executes the selected command.
func Run(ctx context.Context, args []string, out, errOut io.Writer) error {
	var root CLI
	parser, err := kong.New(&root,
		kong.Name("feedkeep"),
		kong.Description("Subscribe to RSS/Atom feeds and track what you have read."),
		kong.Writers(out, errOut),
		kong.UsageOnError(),
	)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	app, err := NewApp(ctx, root.Config, out, errOut)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	return kctx.Run(app)
}

// AddCmd subscribes to a feed.
type AddCmd struct {
	URL string `arg:"" help:"Feed URL."`
}

// Run executes the command.
func (c *AddCmd) Run(app *App) error {
	added, err := app.Reader.Add(app.Ctx, c.URL)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(app.Out, "added %s %s (%d stories)\n", added.FeedID, app.styles.title.Render(added.Title), added.Count)
	return err
}

// RemoveCmd unsubscribes from a feed.
type RemoveCmd struct {
	FeedID string `arg:"" name:"feed-id" help:"Feed id."`
}

// Run executes the command.
func (c *RemoveCmd) Run(app *App) error {
	if err := app.Reader.Delete(app.Ctx, c.FeedID); err != nil {
		return err
	}
	_, err := fmt.Fprintf(app.Out, "removed %s\n", c.FeedID)
	return err
}

// ListCmd lists subscriptions.
type ListCmd struct{}

// Run executes the command.
func (c *ListCmd) Run(app *App) error {
	subs, err := app.Reader.Subscriptions(app.Ctx)
	if err != nil {
		return err
	}
	for _, s := range subs {
		counter := app.styles.faint.Render("0")
		if s.Unread > 0 {
			counter = app.styles.unread.Render(fmt.Sprint(s.Unread))
		}
		title := truncate(singleLine(s.Title), titleWidth)
		if _, err := fmt.Fprintf(app.Out, "%s\t%s\t%s\n", s.ID, counter, title); err != nil {
			return err
		}
	}
	return nil
}

// ShowCmd lists a feed's stories or prints one story.
type ShowCmd struct {
	FeedID string `arg:"" optional:"" name:"feed-id" help:"Feed id."`
	Story  string `help:"Print this story without marking it read." placeholder:"STORY-ID"`
}

// Run executes the command.
func (c *ShowCmd) Run(app *App) error {
	if c.Story != "" {
		story, err := app.Reader.Story(app.Ctx, c.Story)
		if err != nil {
			return err
		}
		return printStory(app, story.Title, story.Link, story.Description)
	}
	if c.FeedID == "" {
		return errors.New("show needs a feed id or --story")
	}

	stories, err := app.Reader.Get(app.Ctx, c.FeedID)
	if err != nil {
		return err
	}
	for _, s := range stories {
		mark, title := "[ ]", truncate(singleLine(s.Title), titleWidth)
		if s.Read {
			mark, title = "[x]", app.styles.read.Render(title)
		}
		if _, err := fmt.Fprintf(app.Out, "%s %s\t%s\n", mark, s.ID, title); err != nil {
			return err
		}
	}
	return nil
}

// ReadCmd prints a story and marks it read.
type ReadCmd struct {
	StoryID string `arg:"" name:"story-id" help:"Story id."`
}

// Run executes the command.
func (c *ReadCmd) Run(app *App) error {
	story, err := app.Reader.MarkRead(app.Ctx, c.StoryID)
	if err != nil {
		return err
	}
	return printStory(app, story.Title, story.Link, story.Description)
}

// UnreadCmd marks a story unread.
type UnreadCmd struct {
	StoryID string `arg:"" name:"story-id" help:"Story id."`
}

// Run executes the command.
func (c *UnreadCmd) Run(app *App) error {
	if err := app.Reader.MarkUnread(app.Ctx, c.StoryID); err != nil {
		return err
	}
	_, err := fmt.Fprintf(app.Out, "unread %s\n", c.StoryID)
	return err
}

// ReadAllCmd marks a feed read.
type ReadAllCmd struct {
	FeedID string `arg:"" name:"feed-id" help:"Feed id."`
}

// Run executes the command.
func (c *ReadAllCmd) Run(app *App) error {
	n, err := app.Reader.MarkAllRead(app.Ctx, c.FeedID)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(app.Out, "marked %d stories read\n", n)
	return err
}

// RefreshCmd refreshes every feed once.
type RefreshCmd struct{}

// Run executes the command.
func (c *RefreshCmd) Run(app *App) error {
	report, err := app.Reader.RefreshAll(app.Ctx)
	if err != nil {
		return err
	}
	printReport(app, report)
	if n := len(report.Failures); n > 0 {
		return fmt.Errorf("%d of %d feeds failed to refresh", n, report.Requested)
	}
	return nil
}

// WatchCmd refreshes on an interval until the context ends.
type WatchCmd struct {
	Interval       time.Duration `help:"Refresh interval, overrides refresh.interval_minutes."`
	MetricsAddress string        `name:"metrics-address" help:"Serve Prometheus metrics here, overrides metrics.address."`
}

// Run executes the command.
func (c *WatchCmd) Run(app *App) error {
	interval := c.Interval
	if interval <= 0 {
		interval = app.Settings.Refresh.Interval()
	}
	addr := c.MetricsAddress
	if addr == "" {
		addr = app.Settings.Metrics.Address
	}

	ctx, cancel := context.WithCancel(app.Ctx)
	defer cancel()

	if addr != "" {
		srv, err := serveMetrics(ctx, app, addr)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	app.Logger.Info("watching feeds", "interval", interval)
	return app.Reader.Refresher.Watch(ctx, interval, func(report usecase.RefreshReport, err error) {
		if err != nil {
			app.Logger.Error("refresh cycle failed", "error", err)
			return
		}
		printReport(app, report)
	})
}

func serveMetrics(ctx context.Context, app *App, addr string) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", app.Metrics.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Error("metrics server stopped", "error", err)
		}
	}()
	app.Logger.Info("serving metrics", "address", ln.Addr().String())
	return srv, nil
}

// SettingsCmd groups settings subcommands.
type SettingsCmd struct {
	Elements ElementsCmd `cmd:"" help:"Show or replace extra HTML elements allowed in story content."`
}

// ElementsCmd shows or replaces the rendering allowlist.
type ElementsCmd struct {
	Set   []string `help:"Replace the allowlist." sep:","`
	Reset bool     `help:"Restore the default allowlist."`
}

// Run executes the command.
func (c *ElementsCmd) Run(app *App) error {
	switch {
	case c.Reset:
		if err := usecase.SetAcceptableElements(app.Ctx, app.Store, usecase.DefaultAcceptableElements); err != nil {
			return err
		}
	case len(c.Set) > 0:
		if err := usecase.SetAcceptableElements(app.Ctx, app.Store, c.Set); err != nil {
			return err
		}
	}
	elements, err := usecase.AcceptableElements(app.Ctx, app.Store)
	if err != nil {
		return err
	}
	for _, e := range elements {
		if _, err := fmt.Fprintln(app.Out, e); err != nil {
			return err
		}
	}
	return nil
}

func printStory(app *App, title, link, body string) error {
	_, err := fmt.Fprintf(app.Out, "%s\n%s\n\n%s\n", app.styles.title.Render(title), app.styles.faint.Render(link), body)
	return err
}

func printReport(app *App, report usecase.RefreshReport) {
	for _, r := range report.Refreshed {
		_, _ = fmt.Fprintf(app.Out, "%s\t%s unread\n", app.styles.title.Render(r.Title), app.styles.unread.Render(fmt.Sprint(r.Unread)))
	}
	for _, f := range report.Failures {
		_, _ = fmt.Fprintln(app.Out, app.styles.failed.Render(f.Error()))
	}
	_, _ = fmt.Fprintf(app.Out, "refreshed %d, unchanged %d, failed %d (timed out %d)\n",
		len(report.Refreshed), report.Skipped, len(report.Failures), report.TimedOut)
}
