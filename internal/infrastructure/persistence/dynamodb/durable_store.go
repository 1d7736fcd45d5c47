// Package dynamodb implements the durable persistence port over DynamoDB.
// The cache layer flushes view-count deltas and offer status transitions
// here; everything read-heavy stays in the cache tier.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/cache"
	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/config"
	apperrors "github.com/saleemjadallah/Jiran-Backend-sub000/internal/errors"
)

// batchGetLimit is DynamoDB's BatchGetItem item ceiling per request.
const batchGetLimit = 100

// NewClient builds a DynamoDB client for the configured region.
func NewClient(ctx context.Context, cfg config.DynamoDB) (*dynamodb.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithRetryMaxAttempts(cfg.MaxRetries),
	)
	if err != nil {
		return nil, apperrors.Wrap("load aws config", err)
	}
	return dynamodb.NewFromConfig(awsCfg), nil
}

// Store implements cache.DurableStore over the products and offers tables.
type Store struct {
	client        *dynamodb.Client
	productsTable string
	offersTable   string
	logger        *zap.Logger
}

// NewStore builds the durable store.
func NewStore(client *dynamodb.Client, cfg config.DynamoDB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		client:        client,
		productsTable: cfg.ProductsTable,
		offersTable:   cfg.OffersTable,
		logger:        logger,
	}
}

var _ cache.DurableStore = (*Store)(nil)

// offerItem is the projected shape read back from the offers table.
type offerItem struct {
	ID     string `dynamodbav:"id"`
	Status string `dynamodbav:"status"`
}

// AddProductViews applies each delta with an atomic ADD so concurrent
// flushers never lose increments. Deltas for deleted products fail
// individually via the existence condition.
func (s *Store) AddProductViews(ctx context.Context, deltas map[string]int64) (map[string]error, error) {
	failed := make(map[string]error)
	for productID, delta := range deltas {
		if err := ctx.Err(); err != nil {
			return failed, apperrors.Wrap("add product views", err)
		}
		_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName: aws.String(s.productsTable),
			Key: map[string]types.AttributeValue{
				"id": &types.AttributeValueMemberS{Value: productID},
			},
			UpdateExpression:    aws.String("ADD view_count :delta"),
			ConditionExpression: aws.String("attribute_exists(id)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":delta": &types.AttributeValueMemberN{Value: strconv.FormatInt(delta, 10)},
			},
		})
		if err != nil {
			failed[productID] = classifyItemError(err, "product no longer exists")
		}
	}
	return failed, nil
}

// MarkOffersExpired transitions each offer from pending to expired with a
// conditional update. Offers that already left pending fail individually
// and stay out of the error path of their batch siblings.
func (s *Store) MarkOffersExpired(ctx context.Context, offerIDs []string) (map[string]error, error) {
	cond := expression.Name("status").Equal(expression.Value(cache.OfferStatusPending))
	update := expression.Set(expression.Name("status"), expression.Value(cache.OfferStatusExpired))
	expr, err := expression.NewBuilder().WithCondition(cond).WithUpdate(update).Build()
	if err != nil {
		return nil, apperrors.Wrap("build expiry expression", err)
	}

	failed := make(map[string]error)
	for _, offerID := range offerIDs {
		if err := ctx.Err(); err != nil {
			return failed, apperrors.Wrap("mark offers expired", err)
		}
		_, uerr := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName: aws.String(s.offersTable),
			Key: map[string]types.AttributeValue{
				"id": &types.AttributeValueMemberS{Value: offerID},
			},
			UpdateExpression:          expr.Update(),
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		})
		if uerr != nil {
			failed[offerID] = classifyItemError(uerr, "offer not in pending state")
		}
	}
	return failed, nil
}

// GetOfferStatuses reads current statuses in BatchGetItem chunks. Offers
// that no longer exist are simply absent from the result.
func (s *Store) GetOfferStatuses(ctx context.Context, offerIDs []string) (map[string]string, error) {
	statuses := make(map[string]string, len(offerIDs))

	proj := expression.NamesList(expression.Name("id"), expression.Name("status"))
	expr, err := expression.NewBuilder().WithProjection(proj).Build()
	if err != nil {
		return nil, apperrors.Wrap("build status projection", err)
	}

	for start := 0; start < len(offerIDs); start += batchGetLimit {
		end := start + batchGetLimit
		if end > len(offerIDs) {
			end = len(offerIDs)
		}
		chunk := offerIDs[start:end]

		dedupKeys := make([]map[string]types.AttributeValue, 0, len(chunk))
		for _, id := range chunk {
			dedupKeys = append(dedupKeys, map[string]types.AttributeValue{
				"id": &types.AttributeValueMemberS{Value: id},
			})
		}

		request := map[string]types.KeysAndAttributes{
			s.offersTable: {
				Keys:                     dedupKeys,
				ProjectionExpression:     expr.Projection(),
				ExpressionAttributeNames: expr.Names(),
			},
		}

		// Unprocessed keys are retried until the batch drains.
		for len(request) > 0 {
			out, err := s.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
				RequestItems: request,
			})
			if err != nil {
				return nil, apperrors.Wrap("batch get offer statuses", err)
			}
			for _, item := range out.Responses[s.offersTable] {
				var offer offerItem
				if uerr := attributevalue.UnmarshalMap(item, &offer); uerr != nil {
					s.logger.Warn("skipping malformed offer item", zap.Error(uerr))
					continue
				}
				statuses[offer.ID] = offer.Status
			}
			request = out.UnprocessedKeys
		}
	}
	return statuses, nil
}

// classifyItemError maps a per-item DynamoDB failure onto the cache error
// taxonomy. Conditional failures become conflicts; everything else keeps
// its AWS error code for the logs.
func classifyItemError(err error, conflictMsg string) error {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return apperrors.NewConflict("dynamodb.update", conflictMsg)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apperrors.NewUnavailable(
			fmt.Sprintf("dynamodb.update[%s]", apiErr.ErrorCode()), err)
	}
	return apperrors.NewUnavailable("dynamodb.update", err)
}
