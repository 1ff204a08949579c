package main

import (
	"path/filepath"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tripforge/geopipeline/internal/consolidate"
	"github.com/tripforge/geopipeline/internal/fallback"
	"github.com/tripforge/geopipeline/internal/model"
	"github.com/tripforge/geopipeline/internal/queue"
	"github.com/tripforge/geopipeline/internal/ruleset"
	"github.com/tripforge/geopipeline/internal/store"
	"github.com/tripforge/geopipeline/internal/task"
)

var consolidatorCmd = &cobra.Command{
	Use:   "consolidator",
	Short: "Elect one coordinate per entity from its candidate pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("consolidator"); err != nil {
			return err
		}
		ctx := cmd.Context()

		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return eris.Wrap(err, "loading aws config")
		}

		geocoders, err := ruleset.Load(cfg.Data.Dir, "geocoders", cfg.Rulesets.GeocoderVersion)
		if err != nil {
			return err
		}
		partners, err := ruleset.Load(cfg.Data.Dir, "partners", cfg.Rulesets.PartnerVersion)
		if err != nil {
			return err
		}
		cityFallback, err := fallback.Load(cfg.Data.Dir)
		if err != nil {
			return err
		}

		decoder, err := task.NewDecoder[model.ConsolidatorTask](filepath.Join(cfg.Data.SchemaDir, "consolidator.json"))
		if err != nil {
			return err
		}

		db := store.NewDynamoStore(
			dynamodb.NewFromConfig(awsCfg),
			cfg.Store.GeocodesTable,
			cfg.Store.TransferTable,
			cfg.Environment,
		)
		sqsClient := sqs.NewFromConfig(awsCfg)
		publisher := queue.NewPublisher(sqsClient, kinesis.NewFromConfig(awsCfg))
		consumer := queue.NewConsumer(sqsClient)

		consolidator := consolidate.NewConsolidator(
			consolidate.Rulesets{Geocoders: geocoders, Partners: partners},
			cityFallback,
			cfg.Environment,
		)
		worker := consolidate.NewWorker(consolidator, db, publisher, cfg.Stream.OutputStream)

		for {
			messages, err := consumer.Receive(ctx, cfg.Queue.InputQueue, 10)
			if err != nil {
				return err
			}
			if len(messages) == 0 {
				zap.L().Info("consolidator queue drained")
				return nil
			}

			payloads := make([][]byte, len(messages))
			for i, m := range messages {
				payloads[i] = []byte(m.Body)
			}
			if err := worker.Process(ctx, decoder.DecodeAll(payloads)); err != nil {
				return err
			}
			if err := consumer.Delete(ctx, cfg.Queue.InputQueue, messages); err != nil {
				return err
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(consolidatorCmd)
}
