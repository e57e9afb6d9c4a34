package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haierkeys/notegpt-sync-service/internal/dao"
	"github.com/haierkeys/notegpt-sync-service/pkg/protocol"
	"github.com/haierkeys/notegpt-sync-service/pkg/syncclient"
	"github.com/haierkeys/notegpt-sync-service/pkg/writequeue"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type clientFlags struct {
	url    string // Sync endpoint // 同步端点
	token  string // Sync token // 同步 token
	db     string // Local sqlite file, empty keeps state in memory // 本地 sqlite 文件，为空时仅保存在内存
	format string // INIT format // INIT 格式
}

func init() {
	f := new(clientFlags)

	var clientCommand = &cobra.Command{
		Use:   "client --url ws://host:port/v1/sync --token TOKEN [--db file]",
		Short: "Run a headless sync client",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(f)
		},
	}

	fs := clientCommand.Flags()
	fs.StringVar(&f.url, "url", "ws://127.0.0.1:9000/v1/sync", "sync endpoint")
	fs.StringVar(&f.token, "token", "", "sync token")
	fs.StringVar(&f.db, "db", "", "local sqlite file; empty keeps state in memory")
	fs.StringVar(&f.format, "format", "", `INIT format, "flat" for notes only`)
	rootCmd.AddCommand(clientCommand)
}

func runClient(f *clientFlags) error {
	lg := bootstrapLogger
	var store syncclient.LocalStore = syncclient.NewMemoryStore()

	if f.db != "" {
		cfg := dao.DatabaseConfig{Type: "sqlite", Path: f.db, AutoMigrate: true}
		db, err := dao.NewDBEngineWithConfig(cfg, lg)
		if err != nil {
			return err
		}
		wq := writequeue.New(nil, lg)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = wq.Shutdown(ctx)
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}()

		repo, err := dao.NewEntityRepository(dao.New(db, context.Background(),
			dao.WithConfig(&cfg),
			dao.WithLogger(lg),
			dao.WithWriteQueueManager(wq),
		))
		if err != nil {
			return err
		}
		store = repo
		lg.Info("local store opened", zap.String("path", f.db))
	}

	agent, err := syncclient.New(store, syncclient.Options{
		URL:    f.url,
		Token:  f.token,
		Format: f.format,
		Logger: lg,
		OnStatus: func(s syncclient.Status, err error) {
			lg.Info("sync status changed", zap.String("status", string(s)), zap.Error(err))
		},
		OnError: func(e syncclient.MutationError) {
			lg.Warn("mutation rejected", zap.String("type", string(e.Type)), zap.Int("code", e.Code), zap.String("message", e.Message))
		},
		OnRemote: func(m protocol.Message) {
			lg.Info("remote change", zap.String("type", string(m.Header().Type)), zap.String("from", m.Header().ClientID))
		},
	})
	if err != nil {
		return err
	}
	if err := agent.Connect(); err != nil {
		lg.Warn("initial connect failed, retrying", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	lg.Info("client shutting down")
	return agent.Close()
}
