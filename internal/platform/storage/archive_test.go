package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type recordingWriter struct {
	bucket, object, contentType string
	data                        []byte
	metadata                    map[string]string
	err                         error
}

func (w *recordingWriter) WriteObject(_ context.Context, bucket, object, contentType string, data []byte, metadata map[string]string) error {
	w.bucket, w.object, w.contentType, w.data, w.metadata = bucket, object, contentType, data, metadata
	return w.err
}

func TestArchiveWebhook(t *testing.T) {
	writer := &recordingWriter{}
	archive, err := NewArchive(writer, "store-webhooks")
	if err != nil {
		t.Fatalf("new archive: %v", err)
	}
	object, err := archive.ArchiveWebhook(context.Background(), "shiprocket", "evt_9", archivedAt, []byte(`{"awb":"1"}`))
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if object != "webhooks/shiprocket/2025/02/03/evt_9.json" || writer.bucket != "store-webhooks" {
		t.Fatalf("unexpected destination %s/%s", writer.bucket, object)
	}
	if writer.metadata["provider"] != "shiprocket" || string(writer.data) != `{"awb":"1"}` {
		t.Fatalf("unexpected write %+v", writer)
	}
}

func TestArchiveWebhookGeneratesIDWhenMissing(t *testing.T) {
	writer := &recordingWriter{}
	archive, _ := NewArchive(writer, "b")
	object, err := archive.ArchiveWebhook(context.Background(), "razorpay", "", archivedAt, []byte(`{}`))
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !strings.HasPrefix(object, "webhooks/razorpay/2025/02/03/") || len(writer.metadata["eventId"]) != 26 {
		t.Fatalf("expected generated ulid, got %s", object)
	}
}

func TestArchiveOrderSnapshot(t *testing.T) {
	writer := &recordingWriter{}
	archive, _ := NewArchive(writer, "b")
	object, err := archive.ArchiveOrderSnapshot(context.Background(), "ord1", "cancel", archivedAt, map[string]any{"status": "cancelled"})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if object != "orders/ord1/snapshots/cancel-20250203T040506Z.json" || string(writer.data) != `{"status":"cancelled"}` {
		t.Fatalf("unexpected snapshot %s %s", object, writer.data)
	}
}

func TestArchivePropagatesWriteErrors(t *testing.T) {
	archive, _ := NewArchive(&recordingWriter{err: errors.New("boom")}, "b")
	if _, err := archive.ArchiveWebhook(context.Background(), "razorpay", "e", archivedAt, nil); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := NewArchive(nil, "b"); err == nil {
		t.Fatalf("expected writer required")
	}
	if _, err := NewArchive(&recordingWriter{}, " "); err == nil {
		t.Fatalf("expected bucket required")
	}
}
