package cmd

import (
	"context"

	gcmd "github.com/Laisky/go-utils/v6/cmd"
	"github.com/Laisky/zap"
	"github.com/spf13/cobra"

	"github.com/Laisky/capability-search/internal/web/search/catalog"
	"github.com/Laisky/capability-search/internal/web/search/service"
	"github.com/Laisky/capability-search/library/log"
)

var migrateCMD = &cobra.Command{
	Use:   "migrate",
	Short: "migrate",
	Long:  `run database migrations and ingest the capability catalog`,
	Args:  gcmd.NoExtraArgs,
	PreRun: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		if err := initialize(ctx, cmd); err != nil {
			log.Logger.Panic("init", zap.Error(err))
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		// NewIndex runs the schema migrations; the catalog file is optional
		_, index, err := setupIndex(ctx)
		if err != nil {
			log.Logger.Panic("setup index", zap.Error(err))
		}

		catalogPath, err := cmd.Flags().GetString("catalog")
		if err != nil {
			log.Logger.Panic("read catalog flag", zap.Error(err))
		}
		if catalogPath == "" {
			log.Logger.Info("no catalog file given, migrations only")
			return
		}

		cat, err := catalog.Load(catalogPath)
		if err != nil {
			log.Logger.Panic("load catalog", zap.Error(err), zap.String("path", catalogPath))
		}

		embedder := setupEmbedder(service.LoadSettingsFromConfig())
		if err := catalog.Ingest(ctx, cat, embedder, index, log.Logger.Named("catalog_ingest")); err != nil {
			log.Logger.Panic("ingest catalog", zap.Error(err), zap.String("path", catalogPath))
		}
	},
}

func init() {
	migrateCMD.Flags().String("catalog", "", "path to a capability catalog yaml to ingest")
	rootCMD.AddCommand(migrateCMD)
}
