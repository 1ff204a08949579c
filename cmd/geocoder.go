package main

import (
	"context"
	"encoding/json"
	"path/filepath"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tripforge/geopipeline/internal/dispatch"
	"github.com/tripforge/geopipeline/internal/keyvault"
	"github.com/tripforge/geopipeline/internal/model"
	"github.com/tripforge/geopipeline/internal/queue"
	"github.com/tripforge/geopipeline/internal/resilience"
	"github.com/tripforge/geopipeline/internal/store"
	"github.com/tripforge/geopipeline/internal/task"
	"github.com/tripforge/geopipeline/pkg/geocode"
)

var geocoderCmd = &cobra.Command{
	Use:   "geocoder",
	Short: "Run queued geocoder tasks against the external providers",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("geocoder"); err != nil {
			return err
		}
		ctx := cmd.Context()

		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return eris.Wrap(err, "loading aws config")
		}

		vault, err := keyvault.Load(ctx, secretsmanager.NewFromConfig(awsCfg), cfg.Secrets.Name, cfg.Secrets.Key)
		if err != nil {
			return err
		}
		providerCfg, err := geocode.LoadConfig(filepath.Join(cfg.Data.Dir, "config.yml"))
		if err != nil {
			return err
		}

		deps := geocode.Deps{Config: providerCfg, Vault: vault}
		dispatcher := dispatch.New(func(name string) (geocode.Adapter, error) {
			return geocode.New(name, deps)
		}, vault, resilience.NewQuotaGuard())

		decoder, err := task.NewDecoder[model.GeocoderTask](filepath.Join(cfg.Data.SchemaDir, "geocoder.json"))
		if err != nil {
			return err
		}

		sqsClient := sqs.NewFromConfig(awsCfg)
		db := store.NewDynamoStore(
			dynamodb.NewFromConfig(awsCfg),
			cfg.Store.GeocodesTable,
			cfg.Store.TransferTable,
			cfg.Environment,
		)
		w := geocodeWorker{
			consumer:  queue.NewConsumer(sqsClient),
			publisher: queue.NewPublisher(sqsClient, kinesis.NewFromConfig(awsCfg)),
			decoder:   decoder,
			dispatch:  dispatcher,
			store:     db,
			queueURL:  cfg.Queue.GeocoderQueue,
		}
		return w.run(ctx)
	},
}

type taskReceiver interface {
	Receive(ctx context.Context, queueURL string, max int32) ([]queue.Message, error)
	Delete(ctx context.Context, queueURL string, messages []queue.Message) error
}

type taskSender interface {
	SendMessages(ctx context.Context, queueURL string, bodies []string) error
}

type taskDispatcher interface {
	Process(ctx context.Context, tasks []model.GeocoderTask) dispatch.Outcome
}

type candidateWriter interface {
	PutCandidates(ctx context.Context, candidates []model.Candidate) error
}

type geocodeWorker struct {
	consumer  taskReceiver
	publisher taskSender
	decoder   *task.Decoder[model.GeocoderTask]
	dispatch  taskDispatcher
	store     candidateWriter
	queueURL  string
}

// run drains the task queue, geocoding batch by batch until the queue is
// empty. A batch that only produced reschedules means the remaining tasks are
// quota blocked; continuing would receive and re-enqueue the same tasks in a
// hot loop, so the drain stops until quota recovers.
func (w geocodeWorker) run(ctx context.Context) error {
	for {
		messages, err := w.consumer.Receive(ctx, w.queueURL, 10)
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			zap.L().Info("geocoder queue drained")
			return nil
		}
		deferred, err := w.processBatch(ctx, messages)
		if err != nil {
			return err
		}
		if deferred {
			zap.L().Info("tasks deferred pending quota reset")
			return nil
		}
	}
}

func (w geocodeWorker) processBatch(ctx context.Context, messages []queue.Message) (bool, error) {
	payloads := make([][]byte, len(messages))
	for i, m := range messages {
		payloads[i] = []byte(m.Body)
	}
	tasks := w.decoder.DecodeAll(payloads)

	out := w.dispatch.Process(ctx, tasks)
	if len(out.Results) > 0 {
		if err := w.store.PutCandidates(ctx, out.Results); err != nil {
			return false, err
		}
	}
	if err := w.reschedule(ctx, out.Reschedules); err != nil {
		return false, err
	}
	if err := w.consumer.Delete(ctx, w.queueURL, messages); err != nil {
		return false, err
	}

	deferred := len(tasks) > 0 && len(out.Results) == 0 && len(out.Reschedules) == len(tasks)
	return deferred, nil
}

// reschedule puts quota-blocked tasks back on the queue for a later run.
func (w geocodeWorker) reschedule(ctx context.Context, tasks []model.GeocoderTask) error {
	if len(tasks) == 0 {
		return nil
	}
	bodies := make([]string, len(tasks))
	for i, t := range tasks {
		body, err := json.Marshal(t)
		if err != nil {
			return eris.Wrapf(err, "encoding reschedule for %s", t.Key())
		}
		bodies[i] = string(body)
	}
	if err := w.publisher.SendMessages(ctx, w.queueURL, bodies); err != nil {
		return eris.Wrap(err, "rescheduling tasks")
	}
	zap.L().Info("rescheduled tasks", zap.Int("count", len(bodies)))
	return nil
}

func init() {
	rootCmd.AddCommand(geocoderCmd)
}
