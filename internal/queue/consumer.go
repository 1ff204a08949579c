package queue

import (
	"context"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	kinesistypes "github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rotisserie/eris"
)

// ReceiverAPI is the SQS surface the consumer needs.
type ReceiverAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessageBatch(ctx context.Context, params *sqs.DeleteMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error)
}

// Message is one received queue message with its deletion handle.
type Message struct {
	Body          string
	ReceiptHandle string
}

// Consumer pulls task messages from SQS.
type Consumer struct {
	api ReceiverAPI
}

// NewConsumer wires a consumer to its SQS client.
func NewConsumer(api ReceiverAPI) *Consumer {
	return &Consumer{api: api}
}

// Receive fetches up to max messages with long polling.
func (c *Consumer) Receive(ctx context.Context, queueURL string, max int32) ([]Message, error) {
	if max > sqsBatchSize {
		max = sqsBatchSize
	}
	out, err := c.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(queueURL),
		MaxNumberOfMessages: max,
		WaitTimeSeconds:     20,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "receiving from %s", queueURL)
	}

	messages := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		messages = append(messages, Message{
			Body:          aws.ToString(m.Body),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
		})
	}
	return messages, nil
}

// Delete removes processed messages from the queue.
func (c *Consumer) Delete(ctx context.Context, queueURL string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	entries := make([]sqstypes.DeleteMessageBatchRequestEntry, len(messages))
	for i, m := range messages {
		entries[i] = sqstypes.DeleteMessageBatchRequestEntry{
			Id:            aws.String(strconv.Itoa(i)),
			ReceiptHandle: aws.String(m.ReceiptHandle),
		}
	}
	if _, err := c.api.DeleteMessageBatch(ctx, &sqs.DeleteMessageBatchInput{
		QueueUrl: aws.String(queueURL),
		Entries:  entries,
	}); err != nil {
		return eris.Wrapf(err, "deleting from %s", queueURL)
	}
	return nil
}

// StreamReaderAPI is the Kinesis read surface the reader needs.
type StreamReaderAPI interface {
	ListShards(ctx context.Context, params *kinesis.ListShardsInput, optFns ...func(*kinesis.Options)) (*kinesis.ListShardsOutput, error)
	GetShardIterator(ctx context.Context, params *kinesis.GetShardIteratorInput, optFns ...func(*kinesis.Options)) (*kinesis.GetShardIteratorOutput, error)
	GetRecords(ctx context.Context, params *kinesis.GetRecordsInput, optFns ...func(*kinesis.Options)) (*kinesis.GetRecordsOutput, error)
}

// StreamReader drains the currently available records of a Kinesis stream.
type StreamReader struct {
	api StreamReaderAPI
}

// NewStreamReader wires a reader to its Kinesis client.
func NewStreamReader(api StreamReaderAPI) *StreamReader {
	return &StreamReader{api: api}
}

// Drain reads every shard from the horizon until no more records are
// returned, and collects the record payloads.
func (r *StreamReader) Drain(ctx context.Context, streamName string) ([][]byte, error) {
	shards, err := r.api.ListShards(ctx, &kinesis.ListShardsInput{
		StreamName: aws.String(streamName),
	})
	if err != nil {
		return nil, eris.Wrapf(err, "listing shards of %s", streamName)
	}

	var payloads [][]byte
	for _, shard := range shards.Shards {
		shardPayloads, err := r.drainShard(ctx, streamName, aws.ToString(shard.ShardId))
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, shardPayloads...)
	}
	return payloads, nil
}

func (r *StreamReader) drainShard(ctx context.Context, streamName, shardID string) ([][]byte, error) {
	iter, err := r.api.GetShardIterator(ctx, &kinesis.GetShardIteratorInput{
		StreamName:        aws.String(streamName),
		ShardId:           aws.String(shardID),
		ShardIteratorType: kinesistypes.ShardIteratorTypeTrimHorizon,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "opening shard %s", shardID)
	}

	var payloads [][]byte
	cursor := iter.ShardIterator
	for cursor != nil {
		out, err := r.api.GetRecords(ctx, &kinesis.GetRecordsInput{
			ShardIterator: cursor,
		})
		if err != nil {
			return nil, eris.Wrapf(err, "reading shard %s", shardID)
		}
		for _, record := range out.Records {
			payloads = append(payloads, record.Data)
		}
		if len(out.Records) == 0 {
			break
		}
		cursor = out.NextShardIterator
	}
	return payloads, nil
}
