package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextHook_Run(t *testing.T) {
	tests := []struct {
		name      string
		setupCtx  func() context.Context
		wantKeys  []string
		wantEmpty []string
	}{
		{
			name: "buyer and order",
			setupCtx: func() context.Context {
				ctx := WithBuyerID(context.Background(), "buyer-1")
				return WithOrderID(ctx, "order-1")
			},
			wantKeys: []string{"buyer_id", "order_id"},
		},
		{
			name: "only buyer",
			setupCtx: func() context.Context {
				return WithBuyerID(context.Background(), "buyer-1")
			},
			wantKeys:  []string{"buyer_id"},
			wantEmpty: []string{"order_id"},
		},
		{
			name:      "no context values",
			setupCtx:  context.Background,
			wantEmpty: []string{"buyer_id", "order_id"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			logger := zerolog.New(&buf).Hook(ContextHook{})
			logger.Info().Ctx(tt.setupCtx()).Msg("test")

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

			for _, key := range tt.wantKeys {
				assert.Contains(t, entry, key)
			}
			for _, key := range tt.wantEmpty {
				assert.NotContains(t, entry, key)
			}
		})
	}
}
