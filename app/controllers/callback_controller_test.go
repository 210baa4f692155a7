package controllers

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlexBoolUnmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{in: `1`, want: true},
		{in: `"1"`, want: true},
		{in: `true`, want: true},
		{in: `"true"`, want: true},
		{in: `0`, want: false},
		{in: `"0"`, want: false},
		{in: `false`, want: false},
		{in: `"false"`, want: false},
		{in: `""`, want: false},
	}

	for _, tt := range tests {
		var b flexBool
		err := json.Unmarshal([]byte(tt.in), &b)
		assert.NoError(t, err, "input %s", tt.in)
		assert.Equal(t, tt.want, bool(b), "input %s", tt.in)
	}
}

func TestCallbackPayloadDecode(t *testing.T) {
	raw := []byte(`{
		"pending": "1",
		"coin": "btc",
		"address_in": "1PaymentAddr",
		"txid_in": "tx-in-1",
		"txid_out": "tx-out-1",
		"value_coin": "0.0001",
		"value_forwarded_coin": "0.000099",
		"fee_coin": "0.000001",
		"confirmations": 3,
		"parameters": {
			"subscription_id": "sub-1",
			"email": "alice@example.com"
		}
	}`)

	var payload callbackPayload
	assert.NoError(t, json.Unmarshal(raw, &payload))
	assert.True(t, bool(payload.Pending))
	assert.Equal(t, "btc", payload.Coin)
	assert.Equal(t, "tx-in-1", payload.TxidIn)
	assert.Equal(t, "0.0001", payload.ValueCoin.String())
	assert.Equal(t, "sub-1", payload.Parameters["subscription_id"])
	assert.Equal(t, "alice@example.com", payload.Parameters["email"])
}
