package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tesso57/feedkeep/internal/application/settings"
	"github.com/tesso57/feedkeep/internal/application/usecase"
	"github.com/tesso57/feedkeep/internal/domain/reading"
	"github.com/tesso57/feedkeep/internal/infrastructure/config"
	"github.com/tesso57/feedkeep/internal/infrastructure/feed"
	"github.com/tesso57/feedkeep/internal/infrastructure/logging"
	"github.com/tesso57/feedkeep/internal/infrastructure/metrics"
	"github.com/tesso57/feedkeep/internal/infrastructure/sanitize"
	"github.com/tesso57/feedkeep/internal/infrastructure/store"
)

// App holds the wired dependencies a command runs against.
type App struct {
	Ctx      context.Context
	Settings settings.Settings
	Store    *store.Store
	Reader   *usecase.Reader
	Metrics  *metrics.Recorder
	Logger   *slog.Logger
	Out      io.Writer

	styles styles
}

// NewApp loads configuration and wires the store, feed source, renderer and reader.
func NewApp(ctx context.Context, configPath string, out, errOut io.Writer) (*App, error) {
	file, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg := file.Settings

	logger, err := logging.New(cfg.Log, errOut)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	elements, err := usecase.AcceptableElements(ctx, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	recorder := metrics.NewRecorder(prometheus.NewRegistry())
	source := feed.NewSource(feed.Options{
		UserAgent:    cfg.Fetch.UserAgent,
		HostInterval: cfg.Fetch.HostInterval(),
	})
	reader := usecase.NewReader(source, st, sanitize.NewRenderer(elements), usecase.RefreshOptions{
		Workers:      cfg.Refresh.Workers,
		FetchTimeout: cfg.Refresh.FetchTimeout(),
		Identity:     reading.IdentityByName(cfg.Identity),
		Logger:       logger,
		Observer:     recorder,
	})

	logger.Debug("app wired",
		"config", file.Path(),
		"store", st.Driver(),
		"workers", cfg.Refresh.Workers,
		"identity", cfg.Identity)

	return &App{
		Ctx:      ctx,
		Settings: cfg,
		Store:    st,
		Reader:   reader,
		Metrics:  recorder,
		Logger:   logger,
		Out:      out,
		styles:   newStyles(out),
	}, nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}
