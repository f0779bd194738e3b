package storage

import (
	"testing"
	"time"
)

var archivedAt = time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)

func TestBuildWebhookPayloadPath(t *testing.T) {
	path, err := BuildObjectPath(PurposeWebhookPayload, PathParams{Provider: "razorpay", EventID: "evt_1", OccurredAt: archivedAt})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "webhooks/razorpay/2025/02/03/evt_1.json"; path != want {
		t.Fatalf("expected %s, got %s", want, path)
	}
}

func TestBuildOrderSnapshotPath(t *testing.T) {
	path, err := BuildObjectPath(PurposeOrderSnapshot, PathParams{OrderID: "ord1", Reason: "refund", OccurredAt: archivedAt})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "orders/ord1/snapshots/refund-20250203T040506Z.json"; path != want {
		t.Fatalf("expected %s, got %s", want, path)
	}
}

func TestBuildObjectPathRejectsInvalidSegment(t *testing.T) {
	cases := []PathParams{
		{Provider: "../x", EventID: "e", OccurredAt: archivedAt},
		{Provider: "razorpay", EventID: "a/b", OccurredAt: archivedAt},
		{Provider: "razorpay", EventID: "e"},
	}
	for _, params := range cases {
		if _, err := BuildObjectPath(PurposeWebhookPayload, params); err == nil {
			t.Fatalf("expected error for %+v", params)
		}
	}
	if _, err := BuildObjectPath("unknown", PathParams{}); err == nil {
		t.Fatalf("expected unsupported purpose error")
	}
}
