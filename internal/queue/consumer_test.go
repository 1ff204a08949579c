package queue

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	kinesistypes "github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReceiver struct {
	receiveInputs []*sqs.ReceiveMessageInput
	deleteInputs  []*sqs.DeleteMessageBatchInput
	messages      []sqstypes.Message
}

func (f *fakeReceiver) ReceiveMessage(_ context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.receiveInputs = append(f.receiveInputs, in)
	return &sqs.ReceiveMessageOutput{Messages: f.messages}, nil
}

func (f *fakeReceiver) DeleteMessageBatch(_ context.Context, in *sqs.DeleteMessageBatchInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error) {
	f.deleteInputs = append(f.deleteInputs, in)
	return &sqs.DeleteMessageBatchOutput{}, nil
}

func TestReceiveCapsBatchSize(t *testing.T) {
	api := &fakeReceiver{messages: []sqstypes.Message{
		{Body: aws.String(`{"a":1}`), ReceiptHandle: aws.String("rh-1")},
	}}
	c := NewConsumer(api)

	messages, err := c.Receive(context.Background(), "queue-url", 50)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, `{"a":1}`, messages[0].Body)
	assert.Equal(t, int32(10), api.receiveInputs[0].MaxNumberOfMessages)
}

func TestDeleteBatches(t *testing.T) {
	api := &fakeReceiver{}
	c := NewConsumer(api)

	err := c.Delete(context.Background(), "queue-url", []Message{
		{ReceiptHandle: "rh-1"},
		{ReceiptHandle: "rh-2"},
	})
	require.NoError(t, err)
	require.Len(t, api.deleteInputs, 1)
	assert.Len(t, api.deleteInputs[0].Entries, 2)
}

func TestDeleteEmpty(t *testing.T) {
	api := &fakeReceiver{}
	c := NewConsumer(api)
	require.NoError(t, c.Delete(context.Background(), "queue-url", nil))
	assert.Empty(t, api.deleteInputs)
}

type fakeStreamReader struct {
	getCalls int
}

func (f *fakeStreamReader) ListShards(_ context.Context, _ *kinesis.ListShardsInput, _ ...func(*kinesis.Options)) (*kinesis.ListShardsOutput, error) {
	return &kinesis.ListShardsOutput{Shards: []kinesistypes.Shard{{ShardId: aws.String("shard-0")}}}, nil
}

func (f *fakeStreamReader) GetShardIterator(_ context.Context, _ *kinesis.GetShardIteratorInput, _ ...func(*kinesis.Options)) (*kinesis.GetShardIteratorOutput, error) {
	return &kinesis.GetShardIteratorOutput{ShardIterator: aws.String("iter-0")}, nil
}

func (f *fakeStreamReader) GetRecords(_ context.Context, _ *kinesis.GetRecordsInput, _ ...func(*kinesis.Options)) (*kinesis.GetRecordsOutput, error) {
	f.getCalls++
	if f.getCalls > 1 {
		return &kinesis.GetRecordsOutput{}, nil
	}
	return &kinesis.GetRecordsOutput{
		Records: []kinesistypes.Record{
			{Data: []byte("one")},
			{Data: []byte("two")},
		},
		NextShardIterator: aws.String("iter-1"),
	}, nil
}

func TestDrainCollectsAllRecords(t *testing.T) {
	r := NewStreamReader(&fakeStreamReader{})

	payloads, err := r.Drain(context.Background(), "stream")
	require.NoError(t, err)
	require.Len(t, payloads, 2)
	assert.Equal(t, []byte("one"), payloads[0])
}
