package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	gitlabadapter "github.com/ericfisherdev/gitlabpat/internal/adapter/driven/gitlab"
	sqliteadapter "github.com/ericfisherdev/gitlabpat/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/gitlabpat/internal/application"
	"github.com/ericfisherdev/gitlabpat/internal/config"
	"github.com/ericfisherdev/gitlabpat/internal/domain/model"
	"github.com/ericfisherdev/gitlabpat/internal/domain/port/driven"
)

// app is the wired service graph shared by all commands.
type app struct {
	cfg    *config.Config
	db     *sqliteadapter.DB
	logger *slog.Logger

	tokens      *application.TokenCreator
	credentials *application.CredentialService
	users       *application.UserService
}

// openApp loads configuration, opens and migrates the database, and wires
// adapters into services.
func openApp(ctx context.Context, logger *slog.Logger) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if !cfg.HasSecretKey() {
		logger.Warn("GITLABPAT_SECRET_KEY not set, storing credentials will fail")
	}

	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}

	version, err := sqliteadapter.RunMigrations(db.Writer)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Debug("database ready", "path", cfg.DBPath, "schema_version", version)

	credentialStore := sqliteadapter.NewCredentialRepo(db, cfg.SecretKey)
	domainStore := sqliteadapter.NewDomainRepo(db)
	userStore := sqliteadapter.NewUserRepo(db)

	issuer := gitlabadapter.NewIssuer(cfg.HTTPTimeout, logger)
	var verifier driven.TokenVerifier
	if cfg.VerifyTokens {
		verifier = gitlabadapter.NewVerifier(&http.Client{Timeout: cfg.HTTPTimeout})
	}

	return &app{
		cfg:         cfg,
		db:          db,
		logger:      logger,
		tokens:      application.NewTokenCreator(credentialStore, domainStore, issuer, verifier, cfg.DefaultServerURL, cfg.TokenLifetime, logger),
		credentials: application.NewCredentialService(credentialStore, domainStore, logger),
		users:       application.NewUserService(userStore, logger),
	}, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}

// systemContext is the context local commands run under. Whoever can run
// the binary against the database already controls it.
func systemContext(ctx context.Context) context.Context {
	return application.WithPrincipal(ctx, model.SystemPrincipal)
}

// withApp opens the app, runs fn as the system principal, and closes the app.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app) error) error {
	a, err := openApp(ctx, slog.Default())
	if err != nil {
		return fmt.Errorf("open gitlabpat: %w", err)
	}
	defer a.close()
	return fn(systemContext(ctx), a)
}
