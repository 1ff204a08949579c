// Package streamer pushes expired transfer rows out as candidate geo data
// protobuf records. Rows the locator never enriched stream out with only the
// candidate id, which signals that no locality was found.
package streamer

import (
	"context"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	streamsattr "github.com/aws/aws-sdk-go-v2/feature/dynamodbstreams/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tripforge/geopipeline/internal/pb"
	"github.com/tripforge/geopipeline/internal/queue"
)

// presentNS is the namespace marker stamped on every id that is present.
const presentNS = 200

// TransferRow is the expired transfer table image.
type TransferRow struct {
	Entity                   string  `dynamodbav:"entity"`
	EntityID                 uint64  `dynamodbav:"entity_id"`
	LocalityID               uint64  `dynamodbav:"locality_id"`
	AdministrativeDivisionID uint64  `dynamodbav:"administrative_division_id"`
	CountryID                uint64  `dynamodbav:"country_id"`
	Longitude                float64 `dynamodbav:"longitude"`
	Latitude                 float64 `dynamodbav:"latitude"`
	ValidGeoPoint            bool    `dynamodbav:"valid_geo_point"`
}

// CandidateID extracts the numeric id from the entity key, falling back to
// the entity_id attribute.
func (r TransferRow) CandidateID() uint64 {
	if i := strings.LastIndexByte(r.Entity, ':'); i >= 0 {
		if id, err := strconv.ParseUint(r.Entity[i+1:], 10, 64); err == nil {
			return id
		}
	}
	return r.EntityID
}

// GeoData converts the row to its outbound message. Namespace fields are
// derived from id presence, never trusted from storage.
func (r TransferRow) GeoData() pb.CandidateGeoData {
	g := pb.CandidateGeoData{
		CandidateID:              r.CandidateID(),
		LocalityID:               r.LocalityID,
		AdministrativeDivisionID: r.AdministrativeDivisionID,
		CountryID:                r.CountryID,
		Longitude:                r.Longitude,
		Latitude:                 r.Latitude,
		ValidGeoPoint:            r.ValidGeoPoint,
	}
	if g.LocalityID != 0 {
		g.LocalityNS = presentNS
	}
	if g.AdministrativeDivisionID != 0 {
		g.AdministrativeDivisionNS = presentNS
	}
	if g.CountryID != 0 {
		g.CountryNS = presentNS
	}
	return g
}

// Key returns the stream partition key of the row.
func (r TransferRow) Key() string {
	if r.Entity != "" {
		return r.Entity
	}
	return "candidate_accommodation:" + strconv.FormatUint(r.CandidateID(), 10)
}

// StreamsAPI is the DynamoDB streams surface the streamer needs.
type StreamsAPI interface {
	DescribeStream(ctx context.Context, params *dynamodbstreams.DescribeStreamInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.DescribeStreamOutput, error)
	GetShardIterator(ctx context.Context, params *dynamodbstreams.GetShardIteratorInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetShardIteratorOutput, error)
	GetRecords(ctx context.Context, params *dynamodbstreams.GetRecordsInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetRecordsOutput, error)
}

// Broadcaster publishes geo data records downstream.
type Broadcaster interface {
	PutRecords(ctx context.Context, streamName string, records []queue.Record) error
}

// Streamer drains expiry events from the transfer table's change stream and
// broadcasts them as protobuf.
type Streamer struct {
	api          StreamsAPI
	broadcaster  Broadcaster
	outputStream string
}

// NewStreamer wires the streamer to its change stream source and output.
func NewStreamer(api StreamsAPI, broadcaster Broadcaster, outputStream string) *Streamer {
	return &Streamer{api: api, broadcaster: broadcaster, outputStream: outputStream}
}

// CollectExpired reads every shard of the change stream from the horizon and
// returns the old images of removed rows. Events that fail to deserialise
// are logged and dropped.
func (s *Streamer) CollectExpired(ctx context.Context, streamARN string) ([]TransferRow, error) {
	describe, err := s.api.DescribeStream(ctx, &dynamodbstreams.DescribeStreamInput{
		StreamArn: aws.String(streamARN),
	})
	if err != nil {
		return nil, eris.Wrapf(err, "describing stream %s", streamARN)
	}

	var rows []TransferRow
	for _, shard := range describe.StreamDescription.Shards {
		shardRows, err := s.drainShard(ctx, streamARN, aws.ToString(shard.ShardId))
		if err != nil {
			return nil, err
		}
		rows = append(rows, shardRows...)
	}
	return rows, nil
}

func (s *Streamer) drainShard(ctx context.Context, streamARN, shardID string) ([]TransferRow, error) {
	iter, err := s.api.GetShardIterator(ctx, &dynamodbstreams.GetShardIteratorInput{
		StreamArn:         aws.String(streamARN),
		ShardId:           aws.String(shardID),
		ShardIteratorType: types.ShardIteratorTypeTrimHorizon,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "opening shard %s", shardID)
	}

	var rows []TransferRow
	cursor := iter.ShardIterator
	for cursor != nil {
		out, err := s.api.GetRecords(ctx, &dynamodbstreams.GetRecordsInput{
			ShardIterator: cursor,
		})
		if err != nil {
			return nil, eris.Wrapf(err, "reading shard %s", shardID)
		}

		for _, record := range out.Records {
			if record.EventName != types.OperationTypeRemove || record.Dynamodb == nil {
				continue
			}
			var row TransferRow
			if err := streamsattr.UnmarshalMap(record.Dynamodb.OldImage, &row); err != nil {
				zap.L().Warn("undecodable transfer row", zap.Error(err))
				continue
			}
			rows = append(rows, row)
		}

		if len(out.Records) == 0 {
			break
		}
		cursor = out.NextShardIterator
	}
	return rows, nil
}

// Stream broadcasts the rows as serialised candidate geo data.
func (s *Streamer) Stream(ctx context.Context, rows []TransferRow) error {
	if len(rows) == 0 {
		return nil
	}

	records := make([]queue.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, queue.Record{
			PartitionKey: row.Key(),
			Data:         pb.MarshalCandidateGeoData(row.GeoData()),
		})
	}

	if err := s.broadcaster.PutRecords(ctx, s.outputStream, records); err != nil {
		return eris.Wrap(err, "broadcasting geo data")
	}
	zap.L().Info("streamed candidates", zap.Int("count", len(records)))
	return nil
}

// Run drains the change stream once and broadcasts what it found.
func (s *Streamer) Run(ctx context.Context, streamARN string) error {
	rows, err := s.CollectExpired(ctx, streamARN)
	if err != nil {
		return err
	}
	return s.Stream(ctx, rows)
}
