package util_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github/chapool/wallet-core/internal/util"
)

func TestLogFromContext(t *testing.T) {
	var buf bytes.Buffer
	ctx := util.WithLogger(context.Background(), zerolog.New(&buf).With().Str("request_id", "r-1").Logger())

	util.LogFromContext(ctx).Info().Msg("hello")
	assert.Contains(t, buf.String(), `"request_id":"r-1"`)
	assert.Contains(t, buf.String(), `"message":"hello"`)
}

func TestLogFromContextFallsBackToGlobal(t *testing.T) {
	l := util.LogFromContext(context.Background())
	assert.NotNil(t, l)
	assert.NotEqual(t, zerolog.Disabled, l.GetLevel())
}
