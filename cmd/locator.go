package main

import (
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tripforge/geopipeline/internal/locator"
	"github.com/tripforge/geopipeline/internal/queue"
	"github.com/tripforge/geopipeline/internal/store"
)

var locatorCmd = &cobra.Command{
	Use:   "locator",
	Short: "Resolve consolidated coordinates to trivago localities",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("locator"); err != nil {
			return err
		}
		ctx := cmd.Context()

		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return eris.Wrap(err, "loading aws config")
		}

		reader := queue.NewStreamReader(kinesis.NewFromConfig(awsCfg))
		records, err := reader.Drain(ctx, cfg.Stream.OutputStream)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			zap.L().Info("no consolidations to locate")
			return nil
		}

		client := locator.NewClient(locator.Options{
			APIID:       cfg.Locator.APIID,
			APIKey:      cfg.Locator.APIKey,
			Region:      cfg.Locator.Region,
			Environment: cfg.Environment,
			Credentials: awsCfg.Credentials,
		})
		db := store.NewDynamoStore(
			dynamodb.NewFromConfig(awsCfg),
			cfg.Store.GeocodesTable,
			cfg.Store.TransferTable,
			cfg.Environment,
		)

		return locator.NewWorker(client, db).Process(ctx, records)
	},
}

func init() {
	rootCmd.AddCommand(locatorCmd)
}
