package blobdraft

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/pickup/internal/core/basket"
)

func sampleCart() basket.Cart {
	return basket.Cart{
		Lines:               []basket.Line{{ProductID: "apple", DisplayName: "Apple", Unit: "kg", UnitPrice: 300, Quantity: 1.5}},
		SourceOrderID:       "o-1",
		SourcePickupDateKey: "20240118",
		LastModified:        time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
	}
}

func TestStore_RoundTrip(t *testing.T) {
	s, fake := newMockStore(t, "drafts/")
	ctx := context.Background()

	_, ok, err := s.LoadDraft(ctx, "buyer-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SaveDraft(ctx, "buyer-1", sampleCart()))
	require.Contains(t, fake.objects, "drafts/buyer-1.json")

	var stored basket.Cart
	require.NoError(t, json.Unmarshal(fake.objects["drafts/buyer-1.json"], &stored))
	assert.Equal(t, "o-1", stored.SourceOrderID)

	got, ok, err := s.LoadDraft(ctx, "buyer-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sampleCart(), got)

	require.NoError(t, s.ClearDraft(ctx, "buyer-1"))
	require.NoError(t, s.ClearDraft(ctx, "buyer-1"))
	_, ok, err = s.LoadDraft(ctx, "buyer-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_Buyers(t *testing.T) {
	s, fake := newMockStore(t, "drafts/")
	ctx := context.Background()

	for _, id := range []string{"carol", "alice", "bob"} {
		require.NoError(t, s.SaveDraft(ctx, id, sampleCart()))
	}
	fake.objects["other/dave.json"] = []byte("{}")

	buyers, err := s.Buyers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "carol"}, buyers)
}

func TestStore_Errors(t *testing.T) {
	s, fake := newMockStore(t, "")
	ctx := context.Background()

	fake.objects["broken.json"] = []byte("not json")
	_, _, err := s.LoadDraft(ctx, "broken")
	require.Error(t, err)

	fake.fail = true
	_, _, err = s.LoadDraft(ctx, "buyer-1")
	require.Error(t, err)
	require.Error(t, s.SaveDraft(ctx, "buyer-1", sampleCart()))
}

func TestNew(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err, "bucket is required")

	s, err := New(context.Background(),
		Config{Bucket: "bkt", Endpoint: "https://mock.s3.local", PathStyle: true, Prefix: "p/"},
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	require.NoError(t, err)
	assert.Equal(t, "p/buyer-1.json", s.Key("buyer-1"))
}
