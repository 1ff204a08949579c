// Package queue sends pipeline messages to SQS and Kinesis with batched,
// failed-entry-only retries.
package queue

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	kinesistypes "github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

const (
	// sqsBatchSize is the SQS SendMessageBatch limit.
	sqsBatchSize = 10

	// kinesisBatchSize is the Kinesis PutRecords limit.
	kinesisBatchSize = 500

	// sendConcurrency bounds parallel batch sends.
	sendConcurrency = 4

	// retryPause spaces successive retries of failed entries.
	retryPause = 100 * time.Millisecond
)

// SQSAPI is the queue surface the publisher needs.
type SQSAPI interface {
	SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
}

// KinesisAPI is the stream surface the publisher needs.
type KinesisAPI interface {
	PutRecords(ctx context.Context, params *kinesis.PutRecordsInput, optFns ...func(*kinesis.Options)) (*kinesis.PutRecordsOutput, error)
}

// Record is one Kinesis record with its partition key.
type Record struct {
	PartitionKey string
	Data         []byte
}

// Publisher fans batches out to SQS queues and Kinesis streams.
type Publisher struct {
	sqs     SQSAPI
	kinesis KinesisAPI
}

// NewPublisher wires a publisher to its AWS clients. Either client may be nil
// when the corresponding transport is unused.
func NewPublisher(sqsClient SQSAPI, kinesisClient KinesisAPI) *Publisher {
	return &Publisher{sqs: sqsClient, kinesis: kinesisClient}
}

// SendMessages delivers message bodies to an SQS queue in batches of ten,
// retrying only the entries the service rejected. Batches run four ways in
// parallel.
func (p *Publisher) SendMessages(ctx context.Context, queueURL string, bodies []string) error {
	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(sendConcurrency)

	for start := 0; start < len(bodies); start += sqsBatchSize {
		chunk := bodies[start:min(start+sqsBatchSize, len(bodies))]
		eg.Go(func() error {
			return p.sendChunk(gCtx, queueURL, chunk)
		})
	}
	return eg.Wait()
}

func (p *Publisher) sendChunk(ctx context.Context, queueURL string, bodies []string) error {
	for len(bodies) > 0 {
		entries := make([]sqstypes.SendMessageBatchRequestEntry, len(bodies))
		for i, body := range bodies {
			entries[i] = sqstypes.SendMessageBatchRequestEntry{
				Id:          aws.String(strconv.Itoa(i)),
				MessageBody: aws.String(body),
			}
		}

		out, err := p.sqs.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
			QueueUrl: aws.String(queueURL),
			Entries:  entries,
		})
		if err != nil {
			return eris.Wrapf(err, "sending batch to %s", queueURL)
		}

		var failed []string
		for _, f := range out.Failed {
			idx, convErr := strconv.Atoi(aws.ToString(f.Id))
			if convErr != nil || idx < 0 || idx >= len(bodies) {
				continue
			}
			failed = append(failed, bodies[idx])
		}
		bodies = failed

		if len(bodies) > 0 {
			if err := pause(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// PutRecords streams records to Kinesis in batches of five hundred, retrying
// only the records the service rejected. Batches run four ways in parallel.
func (p *Publisher) PutRecords(ctx context.Context, streamName string, records []Record) error {
	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(sendConcurrency)

	for start := 0; start < len(records); start += kinesisBatchSize {
		chunk := records[start:min(start+kinesisBatchSize, len(records))]
		eg.Go(func() error {
			return p.putChunk(gCtx, streamName, chunk)
		})
	}
	return eg.Wait()
}

func (p *Publisher) putChunk(ctx context.Context, streamName string, records []Record) error {
	for len(records) > 0 {
		entries := make([]kinesistypes.PutRecordsRequestEntry, len(records))
		for i, r := range records {
			entries[i] = kinesistypes.PutRecordsRequestEntry{
				Data:         r.Data,
				PartitionKey: aws.String(r.PartitionKey),
			}
		}

		out, err := p.kinesis.PutRecords(ctx, &kinesis.PutRecordsInput{
			StreamName: aws.String(streamName),
			Records:    entries,
		})
		if err != nil {
			return eris.Wrapf(err, "putting records to %s", streamName)
		}

		var failed []Record
		for i, result := range out.Records {
			if result.ErrorCode != nil {
				failed = append(failed, records[i])
			}
		}
		records = failed

		if len(records) > 0 {
			if err := pause(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func pause(ctx context.Context) error {
	timer := time.NewTimer(retryPause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
