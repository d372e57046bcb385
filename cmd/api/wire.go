package main

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"

	appanalysis "github.com/samtaplin/llmneldacoding/internal/application/analysis"
	"github.com/samtaplin/llmneldacoding/internal/config"
	"github.com/samtaplin/llmneldacoding/internal/domain/ai"
	domain "github.com/samtaplin/llmneldacoding/internal/domain/analysis"
	"github.com/samtaplin/llmneldacoding/internal/infra/ai/anthropic"
	"github.com/samtaplin/llmneldacoding/internal/infra/ai/gemini"
	"github.com/samtaplin/llmneldacoding/internal/infra/ai/openai"
	mysqlp "github.com/samtaplin/llmneldacoding/internal/infra/db/mysql"
	"github.com/samtaplin/llmneldacoding/internal/infra/db/postgres"
	"github.com/samtaplin/llmneldacoding/internal/infra/db/sqlite"
	"github.com/samtaplin/llmneldacoding/internal/infra/reference"
	minioStore "github.com/samtaplin/llmneldacoding/internal/infra/storage"
	"github.com/samtaplin/llmneldacoding/internal/middleware"
)

type store struct {
	repo    domain.Repository
	checker middleware.HealthChecker
	minio   *minioStore.Store
	db      *sql.DB
}

func (s *store) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

type migrator interface {
	Migrate(ctx context.Context) error
}

func openStore(ctx context.Context, cfg *config.Config) (*store, error) {
	var (
		st  = &store{}
		err error
	)
	switch cfg.Store.Driver {
	case "minio":
		st.minio, err = newMinio(ctx, cfg)
		if err != nil {
			return nil, err
		}
		st.repo = st.minio
		st.checker = st.minio
		return st, nil
	case "mysql":
		st.db, err = mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err == nil {
			r := mysqlp.NewAnalysisRepository(st.db)
			st.repo, st.checker = r, r
		}
	case "postgres":
		st.db, err = postgres.Connect(ctx, cfg.PostgresDSN())
		if err == nil {
			r := postgres.NewAnalysisRepository(st.db)
			st.repo, st.checker = r, r
		}
	case "sqlite":
		st.db, err = sqlite.Open(ctx, cfg.SQLite.Path)
		if err == nil {
			r := sqlite.NewAnalysisRepository(st.db)
			st.repo, st.checker = r, r
		}
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if m, ok := st.repo.(migrator); ok && cfg.Store.Migrate {
		if err := m.Migrate(ctx); err != nil {
			st.Close()
			return nil, err
		}
	}
	return st, nil
}

func newMinio(ctx context.Context, cfg *config.Config) (*minioStore.Store, error) {
	return minioStore.New(ctx,
		cfg.Minio.Endpoint,
		cfg.Minio.Region,
		cfg.Minio.BucketName,
		cfg.Minio.AccessKey,
		cfg.Minio.SecretKey,
		cfg.Minio.UseSSL,
	)
}

func referenceLoader(ctx context.Context, cfg *config.Config, st *store) (appanalysis.ReferenceLoader, error) {
	rc := cfg.Reference
	if rc.Source != "minio" {
		return reference.FileLoader{Path: rc.Path, MIMEType: rc.MIMEType}, nil
	}
	objects := st.minio
	if objects == nil {
		var err error
		if objects, err = newMinio(ctx, cfg); err != nil {
			return nil, err
		}
	}
	return reference.ObjectLoader{Store: objects, Key: rc.Path, MIMEType: rc.MIMEType}, nil
}

func newClient(ctx context.Context, cfg *config.Config, m config.ModelConfig) (ai.Client, error) {
	key, err := cfg.ProviderKey(m.Provider)
	if err != nil {
		return nil, err
	}
	switch m.Provider {
	case "gemini":
		return gemini.NewClient(ctx, key, m.Model)
	case "openai":
		return openai.NewClient(key, m.Model), nil
	case "anthropic":
		return anthropic.NewClient(key, m.Model), nil
	}
	return nil, eris.Errorf("unknown provider %q", m.Provider)
}
