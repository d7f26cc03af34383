package app

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/nhle/tempmail/internal/credential"
	"github.com/nhle/tempmail/internal/lifecycle"
	"github.com/nhle/tempmail/internal/message"
	"github.com/nhle/tempmail/internal/model"
	"github.com/nhle/tempmail/internal/provider/guerrilla"
	"github.com/nhle/tempmail/internal/store"
	appsync "github.com/nhle/tempmail/internal/sync"
)

// Core bundles the mailbox components shared by the terminal UI and the
// one-shot commands.
type Core struct {
	Config    *model.AppConfig
	Logger    *zap.SugaredLogger
	Store     store.SessionStore
	Gateway   *guerrilla.Gateway
	Lifecycle *lifecycle.Manager
	Sync      *appsync.Synchronizer
	Fetcher   *message.Fetcher
}

// CoreOptions tunes how the components are wired.
type CoreOptions struct {
	// Poll starts the background polling loop whenever a session becomes
	// active. Without it sessions are only bound and PollOnce must be
	// used.
	Poll bool
}

// bindListener forwards identity changes without starting the loop.
type bindListener struct {
	sync *appsync.Synchronizer
}

func (b bindListener) SessionChanged(sess model.Session) {
	b.sync.Bind(sess)
}

// NewCore opens the store and builds every component from cfg. The
// lifecycle manager is not started.
func NewCore(cfg *model.AppConfig, logger *zap.SugaredLogger, opts CoreOptions) (*Core, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	s, err := OpenStore(cfg.Storage)
	if err != nil {
		return nil, err
	}

	gw, err := guerrilla.New(cfg.Provider, nil)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	syncer := appsync.New(gw, s, appsync.Options{
		Interval:           cfg.Sync.PollInterval(),
		SystemSender:       cfg.Provider.SystemSender,
		RefreshMinInterval: cfg.Sync.RefreshMinInterval(),
		Logger:             logger.Named("sync"),
	})

	var listener lifecycle.SessionListener = syncer
	if !opts.Poll {
		listener = bindListener{sync: syncer}
	}

	return &Core{
		Config:    cfg,
		Logger:    logger,
		Store:     s,
		Gateway:   gw,
		Lifecycle: lifecycle.New(gw, s, gw.Domains(), listener, logger.Named("lifecycle")),
		Sync:      syncer,
		Fetcher:   message.NewFetcher(gw, logger.Named("message")),
	}, nil
}

// OpenStore opens the session store selected by cfg.TokenBackend.
func OpenStore(cfg model.StorageConfig) (store.SessionStore, error) {
	base, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	switch cfg.TokenBackend {
	case model.TokenBackendKeyring:
		vault, err := credential.Open(cfg.KeyringDir)
		if err != nil {
			_ = base.Close()
			return nil, err
		}
		return store.NewVaultStore(base, vault), nil
	case model.TokenBackendSQLite, "":
		return base, nil
	default:
		_ = base.Close()
		return nil, errors.Newf("unknown token backend %q", cfg.TokenBackend)
	}
}

// Close stops polling and releases the store.
func (c *Core) Close() error {
	c.Sync.Stop()
	if err := c.Store.Close(); err != nil {
		return errors.Wrap(err, "closing store")
	}
	_ = c.Logger.Sync()
	return nil
}
