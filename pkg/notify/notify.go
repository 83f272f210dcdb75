// Package notify signals the downstream transformation job that a batch has
// landed. Delivery failures are never fatal to the ingestion itself; the
// downstream system owns its own retry/queueing policy.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/pulseworks/artistpulse/pkg/catalog"
)

// EventType is the CloudEvents type emitted when a batch lands.
const EventType = "com.artistpulse.batch.landed"

// eventSource identifies this service as the CloudEvents producer.
const eventSource = "artistpulse/ingestd"

// BatchRef identifies a landed batch to the downstream job.
type BatchRef struct {
	Entity       string         `json:"entity"`
	Bucket       string         `json:"bucket,omitempty"`
	Key          string         `json:"key"`
	Window       catalog.Window `json:"window"`
	InvocationID string         `json:"invocation_id"`
	Records      int            `json:"records"`
}

// Notifier delivers the landed-batch signal.
type Notifier interface {
	Notify(ctx context.Context, ref BatchRef) error
}

// CloudEventsNotifier emits a CloudEvent over HTTP to the downstream job
// runner's trigger endpoint.
type CloudEventsNotifier struct {
	client    cloudevents.Client
	targetURL string
	bucket    string
}

func NewCloudEventsNotifier(targetURL, bucket string) (*CloudEventsNotifier, error) {
	if targetURL == "" {
		return nil, fmt.Errorf("target URL is required")
	}
	client, err := cloudevents.NewClientHTTP()
	if err != nil {
		return nil, fmt.Errorf("failed to create cloudevents client: %w", err)
	}
	return &CloudEventsNotifier{client: client, targetURL: targetURL, bucket: bucket}, nil
}

func (n *CloudEventsNotifier) Notify(ctx context.Context, ref BatchRef) error {
	if ref.Bucket == "" {
		ref.Bucket = n.bucket
	}

	event := cloudevents.NewEvent()
	event.SetID(ref.InvocationID)
	event.SetSource(eventSource)
	event.SetType(EventType)
	event.SetSubject(ref.Key)
	if err := event.SetData(cloudevents.ApplicationJSON, ref); err != nil {
		return fmt.Errorf("failed to encode notify payload: %w", err)
	}

	result := n.client.Send(cloudevents.ContextWithTarget(ctx, n.targetURL), event)
	if cloudevents.IsUndelivered(result) || cloudevents.IsNACK(result) {
		return fmt.Errorf("failed to deliver batch notification: %w", result)
	}
	return nil
}

// LogNotifier logs the signal instead of delivering it. Used when no
// downstream trigger is configured.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, ref BatchRef) error {
	n.log.Info("downstream notify (no trigger configured)", "entity", ref.Entity, "key", ref.Key, "window", ref.Window.String(), "records", ref.Records)
	return nil
}

// MockNotifier records notify calls for tests.
type MockNotifier struct {
	Refs []BatchRef
	Err  error
}

func (n *MockNotifier) Notify(ctx context.Context, ref BatchRef) error {
	n.Refs = append(n.Refs, ref)
	return n.Err
}
