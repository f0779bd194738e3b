package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/oklog/ulid/v2"
	"google.golang.org/api/googleapi"
)

// ObjectWriter stores a single immutable object.
type ObjectWriter interface {
	WriteObject(ctx context.Context, bucket, object, contentType string, data []byte, metadata map[string]string) error
}

// GCSWriter writes objects to Cloud Storage. Objects are create-only; rewriting an existing
// name is treated as success because archived payloads never change.
type GCSWriter struct {
	client *storage.Client
}

// NewGCSWriter wraps client.
func NewGCSWriter(client *storage.Client) (*GCSWriter, error) {
	if client == nil {
		return nil, errors.New("storage: client is required")
	}
	return &GCSWriter{client: client}, nil
}

// WriteObject implements ObjectWriter.
func (w *GCSWriter) WriteObject(ctx context.Context, bucket, object, contentType string, data []byte, metadata map[string]string) error {
	obj := w.client.Bucket(bucket).Object(object).If(storage.Conditions{DoesNotExist: true})
	writer := obj.NewWriter(ctx)
	writer.ContentType = contentType
	writer.Metadata = metadata
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("storage: write %s: %w", object, err)
	}
	if err := writer.Close(); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
			return nil
		}
		return fmt.Errorf("storage: close %s: %w", object, err)
	}
	return nil
}

// Archive keeps raw webhook bodies and order snapshots in a bucket for audit.
type Archive struct {
	writer ObjectWriter
	bucket string
}

// NewArchive returns an Archive writing to bucket.
func NewArchive(writer ObjectWriter, bucket string) (*Archive, error) {
	if writer == nil {
		return nil, errors.New("storage: writer is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage: bucket is required")
	}
	return &Archive{writer: writer, bucket: bucket}, nil
}

// ArchiveWebhook stores the verified raw body. Callbacks without a vendor event id get a ULID.
func (a *Archive) ArchiveWebhook(ctx context.Context, provider, eventID string, receivedAt time.Time, body []byte) (string, error) {
	if strings.TrimSpace(eventID) == "" {
		eventID = ulid.Make().String()
	}
	object, err := BuildObjectPath(PurposeWebhookPayload, PathParams{Provider: provider, EventID: eventID, OccurredAt: receivedAt})
	if err != nil {
		return "", err
	}
	meta := map[string]string{"provider": provider, "eventId": eventID, "receivedAt": receivedAt.UTC().Format(time.RFC3339)}
	if err := a.writer.WriteObject(ctx, a.bucket, object, "application/json", body, meta); err != nil {
		return "", err
	}
	return object, nil
}

// ArchiveOrderSnapshot stores payload as JSON under the order's snapshot prefix.
func (a *Archive) ArchiveOrderSnapshot(ctx context.Context, orderID, reason string, at time.Time, payload any) (string, error) {
	object, err := BuildObjectPath(PurposeOrderSnapshot, PathParams{OrderID: orderID, Reason: reason, OccurredAt: at})
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("storage: marshal snapshot: %w", err)
	}
	if err := a.writer.WriteObject(ctx, a.bucket, object, "application/json", data, map[string]string{"orderId": orderID, "reason": reason}); err != nil {
		return "", err
	}
	return object, nil
}
