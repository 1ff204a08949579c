package main

import (
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/tripforge/geopipeline/internal/queue"
	"github.com/tripforge/geopipeline/internal/streamer"
)

var streamerCmd = &cobra.Command{
	Use:   "streamer",
	Short: "Publish expired transfer entries to the geo data stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("streamer"); err != nil {
			return err
		}
		ctx := cmd.Context()

		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return eris.Wrap(err, "loading aws config")
		}

		publisher := queue.NewPublisher(nil, kinesis.NewFromConfig(awsCfg))
		s := streamer.NewStreamer(
			dynamodbstreams.NewFromConfig(awsCfg),
			publisher,
			cfg.Stream.CandidateGeoData,
		)
		return s.Run(ctx, cfg.Stream.TransferStreamARN)
	},
}

func init() {
	rootCmd.AddCommand(streamerCmd)
}
