// Package eventbridge forwards coalesced document change batches to an
// EventBridge bus so the wider product's notification fan-out can
// consume them.
package eventbridge

import (
	"context"
	"encoding/json"
	"time"

	"taskhub-backend/application/services"
	"taskhub-backend/domain/document"
	appErrors "taskhub-backend/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"
)

// putEventsLimit is the PutEvents per-call entry cap
const putEventsLimit = 10

// detailType labels every published change event
const detailType = "document.change"

// EventBridgeAPI is the subset of the EventBridge client used by the
// publisher.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// Publisher publishes document change batches to an event bus
type Publisher struct {
	client  EventBridgeAPI
	busName string
	source  string
	logger  *zap.Logger
}

// NewPublisher creates a change-batch publisher
func NewPublisher(client EventBridgeAPI, busName, source string, logger *zap.Logger) *Publisher {
	return &Publisher{
		client:  client,
		busName: busName,
		source:  source,
		logger:  logger,
	}
}

// changeDetail is the JSON payload of one published change
type changeDetail struct {
	Kind       string                 `json:"kind"`
	Collection string                 `json:"collection"`
	ID         string                 `json:"id"`
	Version    uint64                 `json:"version"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
	OccurredAt string                 `json:"occurred_at"`
}

// PublishChangeBatch publishes one entry per changed document, chunked
// to the PutEvents entry limit.
func (p *Publisher) PublishChangeBatch(ctx context.Context, batch services.ChangeBatch) error {
	entries, err := p.buildEntries(batch)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	for start := 0; start < len(entries); start += putEventsLimit {
		end := start + putEventsLimit
		if end > len(entries) {
			end = len(entries)
		}

		out, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
			Entries: entries[start:end],
		})
		if err != nil {
			return appErrors.NewExternalError("eventbridge", err)
		}
		if out.FailedEntryCount > 0 {
			p.logger.Warn("Some change events failed to publish",
				zap.Int32("failed", out.FailedEntryCount),
				zap.Int("total", end-start),
			)
		}
	}

	p.logger.Debug("Change batch published",
		zap.Int("entries", len(entries)),
		zap.String("bus", p.busName),
	)
	return nil
}

func (p *Publisher) buildEntries(batch services.ChangeBatch) ([]types.PutEventsRequestEntry, error) {
	var entries []types.PutEventsRequestEntry
	appendDocs := func(kind string, docs []*document.Document) error {
		for _, doc := range docs {
			detail, err := json.Marshal(changeDetail{
				Kind:       kind,
				Collection: doc.Collection,
				ID:         doc.ID,
				Version:    doc.Version,
				Fields:     fieldsToAny(doc.Fields),
				OccurredAt: doc.UpdatedAt.Format(time.RFC3339Nano),
			})
			if err != nil {
				return appErrors.NewInternalError("failed to marshal change detail").WithCause(err)
			}
			entries = append(entries, types.PutEventsRequestEntry{
				EventBusName: aws.String(p.busName),
				Source:       aws.String(p.source),
				DetailType:   aws.String(detailType),
				Detail:       aws.String(string(detail)),
			})
		}
		return nil
	}

	if err := appendDocs("added", batch.Added); err != nil {
		return nil, err
	}
	if err := appendDocs("modified", batch.Modified); err != nil {
		return nil, err
	}
	if err := appendDocs("removed", batch.Removed); err != nil {
		return nil, err
	}
	return entries, nil
}

func fieldsToAny(fields map[string]document.Value) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for name, v := range fields {
		out[name] = v.ToAny()
	}
	return out
}
