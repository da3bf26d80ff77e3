package cmd

import (
	"context"

	gconfig "github.com/Laisky/go-config/v2"
	gcmd "github.com/Laisky/go-utils/v6/cmd"
	"github.com/Laisky/zap"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	mcpServer "github.com/Laisky/capability-search/internal/mcp"
	"github.com/Laisky/capability-search/internal/web"
	"github.com/Laisky/capability-search/internal/web/search/controller"
	"github.com/Laisky/capability-search/internal/web/search/monitor"
	"github.com/Laisky/capability-search/internal/web/search/service"
	"github.com/Laisky/capability-search/library/log"
	"github.com/Laisky/capability-search/library/throttle"
)

var apiCMD = &cobra.Command{
	Use:   "api",
	Short: "api",
	Long:  `HTTP and MCP API for capability search`,
	Args:  gcmd.NoExtraArgs,
	PreRun: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		if err := initialize(ctx, cmd); err != nil {
			log.Logger.Panic("init", zap.Error(err))
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		runAPI(context.Background())
	},
}

func runAPI(ctx context.Context) {
	_, index, err := setupIndex(ctx)
	if err != nil {
		log.Logger.Panic("setup index", zap.Error(err))
	}

	settings := service.LoadSettingsFromConfig()
	embedder := setupEmbedder(settings)
	recorder := setupRecorder(ctx)

	svc, err := service.New(embedder, index, index, recorder, settings, log.Logger.Named("search_service"))
	if err != nil {
		log.Logger.Panic("new search service", zap.Error(err))
	}

	searchCtl, err := controller.New(svc, recorder, setupThrottle())
	if err != nil {
		log.Logger.Panic("new search controller", zap.Error(err))
	}

	mcpSrv, err := mcpServer.NewServer(svc, log.Logger)
	if err != nil {
		log.Logger.Panic("new mcp server", zap.Error(err))
	}

	web.RunServer(gconfig.Shared.GetString("listen"), searchCtl, mcpSrv)
}

// setupThrottle builds the per-client request throttle, or returns nil
// when throttling is not configured.
func setupThrottle() *throttle.SearchThrottle {
	totalNPerSec := gconfig.Shared.GetInt("settings.search.throttle.total_n_per_sec")
	if totalNPerSec <= 0 {
		return nil
	}

	searchThrottle, err := throttle.NewSearchThrottle(&throttle.SearchThrottleCfg{
		TotalNPerSec:      totalNPerSec,
		TotalBurst:        gconfig.Shared.GetInt("settings.search.throttle.total_burst"),
		EachClientNPerSec: gconfig.Shared.GetInt("settings.search.throttle.each_client_n_per_sec"),
		EachClientBurst:   gconfig.Shared.GetInt("settings.search.throttle.each_client_burst"),
	})
	if err != nil {
		log.Logger.Panic("new search throttle", zap.Error(err))
	}
	return searchThrottle
}

// setupRecorder returns a redis-backed outcome recorder when an address is
// configured, otherwise an in-memory one.
func setupRecorder(ctx context.Context) monitor.Recorder {
	addr := gconfig.Shared.GetString("settings.redis.addr")
	if addr == "" {
		return monitor.NewMemoryRecorder()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		DB:       gconfig.Shared.GetInt("settings.redis.db"),
		Password: gconfig.Shared.GetString("settings.redis.pwd"),
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Logger.Panic("ping redis", zap.Error(err), zap.String("addr", addr))
	}

	recorder, err := monitor.NewRedisRecorder(rdb, log.Logger.Named("search_monitor"))
	if err != nil {
		log.Logger.Panic("new redis recorder", zap.Error(err))
	}
	return recorder
}

func init() {
	rootCMD.AddCommand(apiCMD)
}
