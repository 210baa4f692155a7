package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/coinsub/coinsub/internal/pkg/billing"
)

// callbackAck is the plain success marker the forwarding service expects.
// Anything else makes it retry indefinitely.
const callbackAck = "*ok*"

var callbackReconciler *billing.Reconciler

// InitializeCallbackController wires the payment callback endpoint. Called
// once at startup.
func InitializeCallbackController(rec *billing.Reconciler) {
	callbackReconciler = rec
}

// flexBool tolerates the forwarding service's shifting encodings of the
// pending flag: true/false, 0/1 and their string forms.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	switch string(bytes.Trim(data, `"`)) {
	case "1", "true":
		*b = true
	default:
		*b = false
	}
	return nil
}

type callbackPayload struct {
	Pending        flexBool          `json:"pending"`
	Coin           string            `json:"coin"`
	AddressIn      string            `json:"address_in"`
	TxidIn         string            `json:"txid_in"`
	TxidOut        string            `json:"txid_out"`
	ValueCoin      decimal.Decimal   `json:"value_coin"`
	ValueForwarded decimal.Decimal   `json:"value_forwarded_coin"`
	FeeCoin        decimal.Decimal   `json:"fee_coin"`
	Confirmations  int               `json:"confirmations"`
	Parameters     map[string]string `json:"parameters"`
}

// HandlePaymentCallback absorbs a pending/confirmed notification from the
// forwarding service. The response is always the plain acknowledgment:
// internal failures are logged with full context and left to the remote
// side's redelivery, which the reconciler absorbs idempotently. The
// acknowledgment is only written after the local transaction has committed
// or been abandoned.
func HandlePaymentCallback(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)

	var payload callbackPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		log.Errorf("undecodable payment callback: %v payload=%s", err, string(rawBody))
		return c.SendString(callbackAck)
	}

	n := billing.Notification{
		Pending:        bool(payload.Pending),
		Coin:           payload.Coin,
		AddressIn:      payload.AddressIn,
		TxidIn:         payload.TxidIn,
		TxidOut:        payload.TxidOut,
		Value:          payload.ValueCoin,
		ValueForwarded: payload.ValueForwarded,
		Fee:            payload.FeeCoin,
		Confirmations:  payload.Confirmations,
		SubscriptionID: payload.Parameters["subscription_id"],
		Email:          payload.Parameters["email"],
		RawJSON:        string(rawBody),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := callbackReconciler.Process(ctx, n); err != nil {
		log.Errorf("payment callback failed: subscription=%s txid=%s err=%v payload=%s",
			n.SubscriptionID, n.TxidIn, err, string(rawBody))
	}
	return c.SendString(callbackAck)
}
