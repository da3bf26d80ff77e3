// Package cmd provides the CLI commands of the capability search service.
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	errors "github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"
	gcmd "github.com/Laisky/go-utils/v6/cmd"
	glog "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/Laisky/capability-search/internal/web/search/dao"
	"github.com/Laisky/capability-search/internal/web/search/service"
	"github.com/Laisky/capability-search/library/config"
	"github.com/Laisky/capability-search/library/db/postgres"
	"github.com/Laisky/capability-search/library/embeddings"
	"github.com/Laisky/capability-search/library/log"
)

var rootCMD = &cobra.Command{
	Use:   "capability-search",
	Short: "capability-search",
	Long:  `hierarchical semantic search service for the capability catalog`,
	Args:  gcmd.NoExtraArgs,
}

func initialize(ctx context.Context, cmd *cobra.Command) error {
	if err := gconfig.Shared.BindPFlags(cmd.Flags()); err != nil {
		return errors.Wrap(err, "bind pflags")
	}

	setupSettings(ctx)
	setupLogger(ctx)

	return nil
}

func setupSettings(_ context.Context) {
	// mode
	if gconfig.Shared.GetBool("debug") {
		fmt.Println("run in debug mode")
		gconfig.Shared.Set("log-level", "debug")
	} else { // prod mode
		fmt.Println("run in prod mode")
	}

	// load configuration
	cfgPath := gconfig.Shared.GetString("config")
	config.LoadFromFile(cfgPath)
}

func setupLogger(_ context.Context) {
	lvl := gconfig.Shared.GetString("log-level")
	if err := log.Logger.ChangeLevel(glog.Level(lvl)); err != nil {
		log.Logger.Panic("change log level", zap.Error(err), zap.String("level", lvl))
	}
}

// setupIndex opens the shared postgres handle and wires the vector index on
// top of it.
func setupIndex(ctx context.Context) (*gorm.DB, *dao.Index, error) {
	db, err := postgres.NewDB(ctx, postgres.DialInfo{
		Addr:   gconfig.Shared.GetString("settings.db.addr"),
		DBName: gconfig.Shared.GetString("settings.db.db"),
		User:   gconfig.Shared.GetString("settings.db.user"),
		Pwd:    gconfig.Shared.GetString("settings.db.pwd"),
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "connect to postgres")
	}

	index, err := dao.NewIndex(db, log.Logger.Named("search_dao"))
	if err != nil {
		return nil, nil, errors.Wrap(err, "new search index")
	}

	return db, index, nil
}

// setupEmbedder builds the embedding client from the search settings.
func setupEmbedder(settings service.Settings) *embeddings.OpenAIEmbedder {
	return embeddings.NewOpenAIEmbedder(
		settings.OpenAIBaseURL,
		settings.EmbeddingModel,
		gconfig.Shared.GetString("settings.openai.api_key"),
		&http.Client{Timeout: 30 * time.Second},
	)
}

func init() {
	rootCMD.PersistentFlags().Bool("debug", false, "run in debug mode")
	rootCMD.PersistentFlags().String("listen", "localhost:8080", "like `localhost:8080`")
	rootCMD.PersistentFlags().StringP("config", "c", "/etc/capability-search/settings.yml", "config file path")
	rootCMD.PersistentFlags().String("log-level", "info", "`debug/info/error`")
}

// Execute execute root command
func Execute() {
	if err := rootCMD.Execute(); err != nil {
		glog.Shared.Panic("start", zap.Error(err))
	}
}
