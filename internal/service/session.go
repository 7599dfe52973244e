package service

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/langchou/fordpass/internal/api/fordpass"
	"github.com/langchou/fordpass/internal/config"
	"github.com/langchou/fordpass/internal/repository"
)

// OpenSession 根据配置创建令牌存储与会话
// 返回的 cleanup 负责关闭数据库连接
func OpenSession(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*fordpass.Session, func(), error) {
	cleanup := func() {}

	// 无论是否持久化，清除令牌时都删除这些文件
	files := fordpass.NewFileStore(cfg.TokenFile)

	var store fordpass.TokenStore
	if cfg.SaveToken {
		switch cfg.TokenBackend {
		case config.TokenBackendPostgres:
			db, err := repository.New(ctx, cfg.DatabaseURL)
			if err != nil {
				return nil, cleanup, fmt.Errorf("connect token database: %w", err)
			}
			if err := db.Migrate(ctx); err != nil {
				db.Close()
				return nil, cleanup, fmt.Errorf("migrate token database: %w", err)
			}
			// TOKEN_FILE 作为记录键
			store = repository.NewTokenRepository(db, cfg.TokenFile)
			cleanup = db.Close
		default:
			store = files
		}
	}

	session, err := fordpass.NewSession(cfg.Credentials(), fordpass.Options{
		Store:           store,
		TokenFiles:      files,
		Logger:          logger.Named("fordpass"),
		HTTPClient:      &http.Client{Timeout: cfg.HTTPTimeout},
		PollInterval:    cfg.CommandPollInterval,
		MaxPollAttempts: cfg.CommandMaxPolls,
	})
	if err != nil {
		cleanup()
		return nil, func() {}, fmt.Errorf("create session: %w", err)
	}

	logger.Info("FordPass session ready",
		zap.String("vin", cfg.VIN),
		zap.String("region", cfg.Region),
		zap.Bool("save_token", cfg.SaveToken),
		zap.String("token_backend", cfg.TokenBackend),
		zap.String("token_file", files.Path()))

	return session, cleanup, nil
}
