package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DATABASE_URL", "sqlite://file:"+t.Name()+"?mode=memory&cache=shared")
	t.Setenv("LOG_LEVEL", "silent")
	t.Setenv("STORE_LANGCODES", "1:en,2:ar")

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStockGet(t *testing.T) {
	out, err := run(t, "stock", "get", "24-MB01")
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "24-MB01", got["sku"])
	assert.Equal(t, 0.0, got["quantity"])
	assert.Equal(t, false, got["in_stock"])
}

func TestQueueProcessEmpty(t *testing.T) {
	out, err := run(t, "queue", "process")
	require.NoError(t, err)
	assert.JSONEq(t, `{"handled": 0}`, out)
}

func TestPromotionsRejectsUnknownType(t *testing.T) {
	_, err := run(t, "promotions", "--type", "coupon")
	assert.ErrorContains(t, err, "unknown promotion type")
}

func TestStockGetNeedsSKU(t *testing.T) {
	_, err := run(t, "stock", "get")
	assert.Error(t, err)
}
