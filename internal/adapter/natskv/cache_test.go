package natskv_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/curatd/curatd/internal/adapter/natskv"
	"github.com/curatd/curatd/internal/port/cache/cachetest"
)

func TestCache_Compliance(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(nc.Close)

	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatalf("jetstream: %v", err)
	}

	ctx := context.Background()
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: "test-natskv-" + t.Name(),
		TTL:    time.Minute,
	})
	if err != nil {
		t.Fatalf("create bucket: %v", err)
	}

	cachetest.RunComplianceTests(t, natskv.New(kv), nil)
}
