package chain

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/R3E-Network/ledgerfeed/pkg/logger"
)

// WSConfirmer waits for confirmations through a signatureSubscribe subscription
// instead of polling.
type WSConfirmer struct {
	url        string
	commitment string
	dialer     *websocket.Dialer
	statuses   StatusChecker
	log        *logger.Logger
}

// StatusChecker looks up the current status of a signature. A nil status means
// the node has not seen it yet.
type StatusChecker interface {
	GetSignatureStatus(ctx context.Context, signature string) (*SignatureStatus, error)
}

// NewWSConfirmer creates a websocket confirmer for the node at url.
func NewWSConfirmer(url, commitment string, log *logger.Logger) *WSConfirmer {
	if log == nil {
		log = logger.NewDefault("chain-ws")
	}
	return &WSConfirmer{
		url:        url,
		commitment: commitment,
		dialer:     websocket.DefaultDialer,
		log:        log,
	}
}

// WithStatusCheck makes the confirmer look the signature up once the
// subscription is registered, catching transactions that landed before it.
func (w *WSConfirmer) WithStatusCheck(sc StatusChecker) *WSConfirmer {
	w.statuses = sc
	return w
}

type wsMessage struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
	Params *struct {
		Subscription uint64 `json:"subscription"`
		Result       struct {
			Context RPCContext `json:"context"`
			Value   struct {
				Err json.RawMessage `json:"err"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params,omitempty"`
}

// WaitForSignature subscribes to signature and returns once the node notifies it.
// The subscription is one-shot on the node side, so the connection is closed afterwards.
func (w *WSConfirmer) WaitForSignature(ctx context.Context, signature string) (*Confirmation, error) {
	conn, _, err := w.dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", w.url, err)
	}
	defer conn.Close()

	// Unblock ReadJSON when the caller gives up.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	sub := RPCRequest{
		JSONRPC: "2.0",
		Method:  "signatureSubscribe",
		Params:  []interface{}{signature, map[string]string{"commitment": w.commitment}},
		ID:      "1",
	}
	if err := conn.WriteJSON(sub); err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	var subscription uint64
	subscribed := false
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read notification: %w", err)
		}

		if msg.Error != nil {
			return nil, msg.Error
		}

		if !subscribed && len(msg.Result) > 0 {
			if err := json.Unmarshal(msg.Result, &subscription); err != nil {
				return nil, fmt.Errorf("subscription id: %w", err)
			}
			subscribed = true
			if conf, done, err := w.checkStatus(ctx, signature); done {
				return conf, err
			}
			continue
		}

		if msg.Method != "signatureNotification" || msg.Params == nil {
			continue
		}
		if subscribed && msg.Params.Subscription != subscription {
			continue
		}

		res := msg.Params.Result
		if len(res.Value.Err) > 0 && string(res.Value.Err) != "null" {
			return nil, fmt.Errorf("transaction %s failed: %s", signature, string(res.Value.Err))
		}
		w.log.WithField("signature", signature).WithField("slot", res.Context.Slot).Debug("signature notification")
		return &Confirmation{Signature: signature, Slot: res.Context.Slot}, nil
	}
}

// checkStatus reports done when the signature already failed or reached the
// wanted commitment. Lookup errors fall through to waiting on the subscription.
func (w *WSConfirmer) checkStatus(ctx context.Context, signature string) (*Confirmation, bool, error) {
	if w.statuses == nil {
		return nil, false, nil
	}
	status, err := w.statuses.GetSignatureStatus(ctx, signature)
	if err != nil {
		w.log.WithField("signature", signature).WithError(err).Debug("status check failed")
		return nil, false, nil
	}
	if status == nil {
		return nil, false, nil
	}
	if status.Failed() {
		return nil, true, fmt.Errorf("transaction %s failed: %s", signature, string(status.Err))
	}
	if !reaches(status.ConfirmationStatus, w.commitment) {
		return nil, false, nil
	}
	w.log.WithField("signature", signature).WithField("slot", status.Slot).Debug("signature confirmed before notification")
	return &Confirmation{Signature: signature, Slot: status.Slot}, true, nil
}
