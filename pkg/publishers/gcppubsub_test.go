package publishers

import (
	"context"
	"os"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
)

func TestGCPPubSubPublisherPublishes(t *testing.T) {
	// Use the in-memory Pub/Sub emulator.
	server := pstest.NewServer()
	defer server.Close()
	defer os.Unsetenv("PUBSUB_EMULATOR_HOST")
	os.Setenv("PUBSUB_EMULATOR_HOST", server.Addr)

	ctx := context.Background()
	client, err := pubsub.NewClient(ctx, "test-project")
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	if _, err := client.CreateTopic(ctx, "extractions"); err != nil {
		t.Fatalf("create topic: %v", err)
	}

	pub, err := newGCPPubSubPublisher(ctx, PublisherConfig{
		ID:   "gcp-1",
		Type: TypePubSub,
		PubSub: &GCPPublisherConfig{
			ProjectID: "test-project",
			Topic:     "extractions",
		},
	}, nil)
	if err != nil {
		t.Fatalf("newGCPPubSubPublisher: %v", err)
	}

	err = pub.Publish(ctx, Event{
		ExtractionID: "rec-1",
		DocumentType: "car_license",
		Status:       "completed",
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func TestGCPPubSubPublisherMissingTopic(t *testing.T) {
	server := pstest.NewServer()
	defer server.Close()
	defer os.Unsetenv("PUBSUB_EMULATOR_HOST")
	os.Setenv("PUBSUB_EMULATOR_HOST", server.Addr)

	_, err := newGCPPubSubPublisher(context.Background(), PublisherConfig{
		ID:   "gcp-1",
		Type: TypePubSub,
		PubSub: &GCPPublisherConfig{
			ProjectID: "test-project",
			Topic:     "missing",
		},
	}, nil)
	if err == nil {
		t.Fatalf("expected error for missing topic")
	}
}
