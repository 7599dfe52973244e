package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/langchou/fordpass/internal/config"
	"github.com/langchou/fordpass/internal/logging"
	"github.com/langchou/fordpass/internal/service"
)

// opener 根据配置创建车辆客户端
type opener func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (service.VehicleClient, func(), error)

func defaultOpener(ctx context.Context, cfg *config.Config, logger *zap.Logger) (service.VehicleClient, func(), error) {
	session, cleanup, err := service.OpenSession(ctx, cfg, logger)
	if err != nil {
		return nil, cleanup, err
	}
	return session, cleanup, nil
}

// cli 子命令共享的运行时状态
type cli struct {
	open    opener
	envFile string
	debug   bool

	logger  *zap.Logger
	vehicle *service.VehicleService
	cleanup func()
}

func newCLI(open opener) *cli {
	return &cli{open: open, cleanup: func() {}}
}

// close 释放会话资源，命令失败时同样需要调用
func (c *cli) close() {
	c.cleanup()
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}

func (c *cli) rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "fordpass",
		Short:         "FordPass vehicle client",
		Long:          "Query status and send remote commands to a FordPass connected vehicle",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd.Context())
		},
	}

	cmd.PersistentFlags().StringVar(&c.envFile, "env-file", "", "Load settings from this .env file before reading the environment")
	cmd.PersistentFlags().BoolVar(&c.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(c.newStatusCommand())
	cmd.AddCommand(c.newRefreshCommand())
	cmd.AddCommand(c.newCommandCommand("start", "Remote start the engine", (*service.VehicleService).Start))
	cmd.AddCommand(c.newCommandCommand("stop", "Remote stop the engine", (*service.VehicleService).Stop))
	cmd.AddCommand(c.newCommandCommand("lock", "Lock the doors", (*service.VehicleService).Lock))
	cmd.AddCommand(c.newCommandCommand("unlock", "Unlock the doors", (*service.VehicleService).Unlock))
	cmd.AddCommand(c.newGuardCommand())
	cmd.AddCommand(c.newTokenCommand())

	return cmd
}

func (c *cli) setup(ctx context.Context) error {
	if c.envFile != "" {
		if err := godotenv.Load(c.envFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if c.debug {
		cfg.Debug = true
	}
	c.logger = logging.New(cfg.Debug)

	client, cleanup, err := c.open(ctx, cfg, c.logger)
	if err != nil {
		return err
	}
	c.cleanup = cleanup
	c.vehicle = service.NewVehicleService(c.logger.Named("vehicle"), client, 0)
	return nil
}

// printJSON 格式化输出 JSON
func printJSON(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err = buf.WriteTo(w)
	return err
}
