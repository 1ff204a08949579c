package store

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/tripforge/geopipeline/internal/model"
)

// batchWriteSize is DynamoDB's BatchWriteItem limit.
const batchWriteSize = 25

// transferTTL is how long transfer entries live before the table expires
// them.
const transferTTL = 3 * time.Hour

// transferConcurrency bounds parallel conditional writes on the transfer
// table.
const transferConcurrency = 4

// DynamoAPI is the DynamoDB surface the store needs.
type DynamoAPI interface {
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// DynamoStore implements Store on two DynamoDB tables: the geocodes table
// keyed (entity, provider) and the transfer table keyed (entity).
type DynamoStore struct {
	api           DynamoAPI
	geocodesTable string
	transferTable string
	environment   string
	now           func() time.Time
}

// NewDynamoStore wires the store to its tables.
func NewDynamoStore(api DynamoAPI, geocodesTable, transferTable, environment string) *DynamoStore {
	return &DynamoStore{
		api:           api,
		geocodesTable: geocodesTable,
		transferTable: transferTable,
		environment:   environment,
		now:           time.Now,
	}
}

// candidateItem is the stored shape of a candidate row. Empty optional
// fields are dropped, matching DynamoDB's dislike of empty strings.
type candidateItem struct {
	Entity      string         `dynamodbav:"entity"`
	Provider    string         `dynamodbav:"provider"`
	EntityID    uint64         `dynamodbav:"entity_id"`
	EntityType  string         `dynamodbav:"entity_type"`
	Longitude   *float64       `dynamodbav:"longitude,omitempty"`
	Latitude    *float64       `dynamodbav:"latitude,omitempty"`
	Accuracy    string         `dynamodbav:"accuracy,omitempty"`
	Confidence  string         `dynamodbav:"confidence,omitempty"`
	Quality     string         `dynamodbav:"quality,omitempty"`
	Score       *float64       `dynamodbav:"score,omitempty"`
	City        string         `dynamodbav:"city,omitempty"`
	CountryCode string         `dynamodbav:"country_code,omitempty"`
	BatchID     string         `dynamodbav:"batch_id,omitempty"`
	Meta        map[string]any `dynamodbav:"meta,omitempty"`
	Timestamp   int64          `dynamodbav:"timestamp,omitempty"`
}

func toItem(c model.Candidate) candidateItem {
	return candidateItem{
		Entity:      c.Key(),
		Provider:    c.Provider,
		EntityID:    c.EntityID,
		EntityType:  string(c.EntityType),
		Longitude:   c.Longitude,
		Latitude:    c.Latitude,
		Accuracy:    c.Accuracy,
		Confidence:  c.Confidence,
		Quality:     c.Quality,
		Score:       c.Score,
		City:        c.City,
		CountryCode: c.CountryCode,
		BatchID:     c.BatchID,
		Meta:        sanitizeMeta(c.Meta),
		Timestamp:   c.Timestamp,
	}
}

func fromItem(item candidateItem) model.Candidate {
	c := model.Candidate{
		Entity:      item.Entity,
		EntityID:    item.EntityID,
		EntityType:  model.EntityType(item.EntityType),
		Provider:    item.Provider,
		Longitude:   item.Longitude,
		Latitude:    item.Latitude,
		Accuracy:    item.Accuracy,
		Confidence:  item.Confidence,
		Quality:     item.Quality,
		Score:       item.Score,
		City:        item.City,
		CountryCode: item.CountryCode,
		BatchID:     item.BatchID,
		Meta:        item.Meta,
		Timestamp:   item.Timestamp,
	}

	// older rows carry locality only inside meta
	if c.City == "" || c.CountryCode == "" {
		addr := metaAddress(item.Meta)
		if c.City == "" {
			c.City, _ = addr["city"].(string)
		}
		if c.CountryCode == "" {
			c.CountryCode, _ = addr["country_code"].(string)
		}
	}
	return c
}

// metaAddress resolves the address of the returned coordinate, falling back
// through the historical meta layouts.
func metaAddress(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	if out, ok := meta["address_out"].(map[string]any); ok && len(out) > 0 {
		return out
	}
	if in, ok := meta["address"].(map[string]any); ok && len(in) > 0 {
		return in
	}
	return meta
}

// sanitizeMeta strips empty strings and nil values recursively.
func sanitizeMeta(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			if val == "" {
				continue
			}
			out[k] = val
		case map[string]any:
			out[k] = sanitizeMeta(val)
		case map[string]string:
			sub := make(map[string]any, len(val))
			for sk, sv := range val {
				if sv != "" {
					sub[sk] = sv
				}
			}
			out[k] = sub
		default:
			out[k] = v
		}
	}
	return out
}

// CandidatesByEntity queries all provider rows of an entity, paginating and
// backing off on throttling.
func (s *DynamoStore) CandidatesByEntity(ctx context.Context, entityKey string) ([]model.Candidate, error) {
	var candidates []model.Candidate

	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.geocodesTable),
		KeyConditionExpression: aws.String("entity = :entity"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":entity": &types.AttributeValueMemberS{Value: entityKey},
		},
	}

	for {
		var out *dynamodb.QueryOutput
		err := withThrottleRetry(ctx, throttleRetries, func(ctx context.Context) error {
			var qErr error
			out, qErr = s.api.Query(ctx, input)
			return qErr
		})
		if err != nil {
			return nil, eris.Wrapf(err, "querying candidates for %s", entityKey)
		}

		for _, raw := range out.Items {
			var item candidateItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, eris.Wrapf(err, "decoding candidate row for %s", entityKey)
			}
			candidates = append(candidates, fromItem(item))
		}

		if out.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return candidates, nil
}

// PutCandidates batch-upserts candidate rows, re-emitting unprocessed items
// and backing off on throttling.
func (s *DynamoStore) PutCandidates(ctx context.Context, candidates []model.Candidate) error {
	var requests []types.WriteRequest
	for _, c := range candidates {
		av, err := attributevalue.MarshalMap(toItem(c))
		if err != nil {
			return eris.Wrapf(err, "encoding candidate %s/%s", c.Key(), c.Provider)
		}
		requests = append(requests, types.WriteRequest{
			PutRequest: &types.PutRequest{Item: av},
		})
	}
	return s.batchWrite(ctx, s.geocodesTable, requests)
}

// PutConsolidations writes winner rows under "consolidated_<environment>".
// Outside production the rows expire after three hours.
func (s *DynamoStore) PutConsolidations(ctx context.Context, consolidations []model.Consolidation) error {
	provider := model.ConsolidatedProvider(s.environment)

	var candidates []model.Candidate
	for _, result := range consolidations {
		c := model.Candidate{
			Entity:     result.Entity,
			EntityID:   result.EntityID,
			EntityType: result.EntityType,
			Provider:   provider,
			BatchID:    result.BatchID,
			Longitude:  model.Float(result.Longitude),
			Latitude:   model.Float(result.Latitude),
			Score:      model.Float(result.Score),
			Meta: map[string]any{
				"city":         result.Meta.City,
				"country_code": result.Meta.CountryCode,
			},
		}
		if s.environment != "prod" {
			c.Timestamp = s.now().Unix() + int64(transferTTL.Seconds())
		}
		candidates = append(candidates, c)
	}
	return s.PutCandidates(ctx, candidates)
}

func (s *DynamoStore) batchWrite(ctx context.Context, table string, requests []types.WriteRequest) error {
	for len(requests) > 0 {
		chunk := requests
		if len(chunk) > batchWriteSize {
			chunk = chunk[:batchWriteSize]
		}
		requests = requests[len(chunk):]

		pending := chunk
		for attempt := 0; len(pending) > 0; attempt++ {
			if attempt > 0 {
				// unprocessed items signal pressure on the table; pause
				// before re-emitting
				if err := throttleSleep(ctx, attempt-1); err != nil {
					return err
				}
			}

			var out *dynamodb.BatchWriteItemOutput
			err := withThrottleRetry(ctx, throttleRetries, func(ctx context.Context) error {
				var wErr error
				out, wErr = s.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
					RequestItems: map[string][]types.WriteRequest{table: pending},
				})
				return wErr
			})
			if err != nil {
				return eris.Wrapf(err, "batch writing to %s", table)
			}
			pending = out.UnprocessedItems[table]
		}
	}
	return nil
}

// RegisterEntities inserts transfer entries with a three hour TTL, skipping
// keys that are already registered. Writes run four ways in parallel.
func (s *DynamoStore) RegisterEntities(ctx context.Context, entityKeys []string) error {
	expiration := s.now().Add(transferTTL).Unix()

	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(transferConcurrency)

	for _, key := range entityKeys {
		eg.Go(func() error {
			_, err := s.api.PutItem(gCtx, &dynamodb.PutItemInput{
				TableName: aws.String(s.transferTable),
				Item: map[string]types.AttributeValue{
					"entity":    &types.AttributeValueMemberS{Value: key},
					"timestamp": &types.AttributeValueMemberN{Value: model.FormatDecimal(float64(expiration))},
				},
				ConditionExpression: aws.String("attribute_not_exists(entity)"),
			})
			if err != nil && !isConditionalCheckFailed(err) {
				return eris.Wrapf(err, "registering %s", key)
			}
			return nil
		})
	}
	return eg.Wait()
}

// UpdateTransfer merges fields into a registered transfer entry. Entries that
// already expired are left alone.
func (s *DynamoStore) UpdateTransfer(ctx context.Context, entityKey string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	expr := "SET "
	values := make(map[string]types.AttributeValue, len(fields))
	names := make(map[string]string, len(fields))
	first := true
	for field, value := range fields {
		av, err := attributevalue.Marshal(value)
		if err != nil {
			return eris.Wrapf(err, "encoding transfer field %s", field)
		}
		if !first {
			expr += ", "
		}
		expr += "#" + field + " = :" + field
		names["#"+field] = field
		values[":"+field] = av
		first = false
	}

	_, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.transferTable),
		Key:                       map[string]types.AttributeValue{"entity": &types.AttributeValueMemberS{Value: entityKey}},
		ConditionExpression:       aws.String("attribute_exists(entity)"),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil && !isConditionalCheckFailed(err) {
		return eris.Wrapf(err, "updating transfer entry %s", entityKey)
	}
	return nil
}

func isConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
