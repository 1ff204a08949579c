package main

import (
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tripforge/geopipeline/internal/country"
	"github.com/tripforge/geopipeline/internal/queue"
	"github.com/tripforge/geopipeline/internal/router"
	"github.com/tripforge/geopipeline/internal/store"
)

var routerCmd = &cobra.Command{
	Use:   "router",
	Short: "Route inbound candidates to storage and geocoder tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("router"); err != nil {
			return err
		}
		ctx := cmd.Context()

		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return eris.Wrap(err, "loading aws config")
		}

		mapper, err := country.Load(cfg.Data.Dir)
		if err != nil {
			return err
		}

		reader := queue.NewStreamReader(kinesis.NewFromConfig(awsCfg))
		payloads, err := reader.Drain(ctx, cfg.Stream.InputStream)
		if err != nil {
			return err
		}
		if len(payloads) == 0 {
			zap.L().Info("no inbound candidates")
			return nil
		}

		candidates := router.ParseCandidates(payloads, mapper)

		db := store.NewDynamoStore(
			dynamodb.NewFromConfig(awsCfg),
			cfg.Store.GeocodesTable,
			cfg.Store.TransferTable,
			cfg.Environment,
		)
		publisher := queue.NewPublisher(sqs.NewFromConfig(awsCfg), kinesis.NewFromConfig(awsCfg))

		h := router.NewHandler(db, publisher, cfg.Queue.GeocoderQueue, cfg.Router.Providers)
		return h.Process(ctx, candidates)
	},
}

func init() {
	rootCmd.AddCommand(routerCmd)
}
