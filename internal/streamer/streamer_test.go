package streamer

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripforge/geopipeline/internal/pb"
	"github.com/tripforge/geopipeline/internal/queue"
)

type fakeStreams struct {
	records  []types.Record
	getCalls int
}

func (f *fakeStreams) DescribeStream(_ context.Context, _ *dynamodbstreams.DescribeStreamInput, _ ...func(*dynamodbstreams.Options)) (*dynamodbstreams.DescribeStreamOutput, error) {
	return &dynamodbstreams.DescribeStreamOutput{
		StreamDescription: &types.StreamDescription{
			Shards: []types.Shard{{ShardId: aws.String("shard-0")}},
		},
	}, nil
}

func (f *fakeStreams) GetShardIterator(_ context.Context, _ *dynamodbstreams.GetShardIteratorInput, _ ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetShardIteratorOutput, error) {
	return &dynamodbstreams.GetShardIteratorOutput{ShardIterator: aws.String("iter-0")}, nil
}

func (f *fakeStreams) GetRecords(_ context.Context, _ *dynamodbstreams.GetRecordsInput, _ ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetRecordsOutput, error) {
	f.getCalls++
	if f.getCalls > 1 {
		return &dynamodbstreams.GetRecordsOutput{}, nil
	}
	return &dynamodbstreams.GetRecordsOutput{
		Records:           f.records,
		NextShardIterator: aws.String("iter-1"),
	}, nil
}

type fakeBroadcaster struct {
	stream  string
	records []queue.Record
}

func (f *fakeBroadcaster) PutRecords(_ context.Context, streamName string, records []queue.Record) error {
	f.stream = streamName
	f.records = append(f.records, records...)
	return nil
}

func removeRecord(image map[string]types.AttributeValue) types.Record {
	return types.Record{
		EventName: types.OperationTypeRemove,
		Dynamodb:  &types.StreamRecord{OldImage: image},
	}
}

func locatedImage() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"entity":          &types.AttributeValueMemberS{Value: "candidate_accommodation:42"},
		"entity_id":       &types.AttributeValueMemberN{Value: "42"},
		"locality_id":     &types.AttributeValueMemberN{Value: "1001"},
		"country_id":      &types.AttributeValueMemberN{Value: "104"},
		"longitude":       &types.AttributeValueMemberN{Value: "13.38"},
		"latitude":        &types.AttributeValueMemberN{Value: "52.516"},
		"valid_geo_point": &types.AttributeValueMemberBOOL{Value: true},
	}
}

func bareImage() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"entity":    &types.AttributeValueMemberS{Value: "candidate_accommodation:7"},
		"timestamp": &types.AttributeValueMemberN{Value: "1700000000"},
	}
}

func TestRunStreamsRemoveEvents(t *testing.T) {
	api := &fakeStreams{records: []types.Record{
		removeRecord(locatedImage()),
		{EventName: types.OperationTypeInsert, Dynamodb: &types.StreamRecord{}},
		removeRecord(bareImage()),
	}}
	broadcaster := &fakeBroadcaster{}
	s := NewStreamer(api, broadcaster, "geo-data-out")

	require.NoError(t, s.Run(context.Background(), "arn:stream"))
	require.Len(t, broadcaster.records, 2)
	assert.Equal(t, "geo-data-out", broadcaster.stream)
	assert.Equal(t, "candidate_accommodation:42", broadcaster.records[0].PartitionKey)

	located, err := pb.UnmarshalCandidateGeoData(broadcaster.records[0].Data)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), located.CandidateID)
	assert.Equal(t, uint64(1001), located.LocalityID)
	assert.Equal(t, uint64(200), located.LocalityNS)
	assert.Equal(t, uint64(200), located.CountryNS)
	assert.True(t, located.ValidGeoPoint)

	// rows the locator never touched stream out with only the id
	bare, err := pb.UnmarshalCandidateGeoData(broadcaster.records[1].Data)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), bare.CandidateID)
	assert.Zero(t, bare.LocalityID)
	assert.Zero(t, bare.LocalityNS)
}

func TestGeoDataNamespaceDerivation(t *testing.T) {
	row := TransferRow{Entity: "candidate_accommodation:1", LocalityID: 5}
	g := row.GeoData()
	assert.Equal(t, uint64(200), g.LocalityNS)
	assert.Zero(t, g.CountryNS)
	assert.Zero(t, g.AdministrativeDivisionNS)
}

func TestCandidateIDFallsBackToAttribute(t *testing.T) {
	row := TransferRow{EntityID: 9}
	assert.Equal(t, uint64(9), row.CandidateID())
}
