package chain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/R3E-Network/ledgerfeed/internal/errors"
	"github.com/R3E-Network/ledgerfeed/internal/ledger"
)

// DefaultTxWaitTimeout is the default timeout for waiting for confirmation.
const DefaultTxWaitTimeout = 2 * time.Minute

// DefaultPollInterval is the default interval for polling signature status.
const DefaultPollInterval = 2 * time.Second

// TxSigner assembles and signs a transaction carrying ix. Key handling lives
// outside this package.
type TxSigner interface {
	SignTransaction(ctx context.Context, ix ledger.Instruction, signer ledger.Identity, recentBlockhash string) ([]byte, error)
}

// Confirmer waits until a submitted signature reaches the client's commitment.
type Confirmer interface {
	WaitForSignature(ctx context.Context, signature string) (*Confirmation, error)
}

// =============================================================================
// Transaction Submission
// =============================================================================

// GetLatestBlockhash returns a recent blockhash for transaction assembly.
func (c *Client) GetLatestBlockhash(ctx context.Context) (string, error) {
	result, err := c.Call(ctx, "getLatestBlockhash", []interface{}{map[string]string{"commitment": c.commitment}})
	if err != nil {
		return "", err
	}

	var bh LatestBlockhashResult
	if err := json.Unmarshal(result, &bh); err != nil {
		return "", err
	}
	return bh.Value.Blockhash, nil
}

// SendRawTransaction broadcasts a signed transaction and returns its signature.
func (c *Client) SendRawTransaction(ctx context.Context, tx []byte) (string, error) {
	opts := map[string]interface{}{
		"encoding":            "base64",
		"preflightCommitment": c.commitment,
	}
	result, err := c.Call(ctx, "sendTransaction", []interface{}{base64.StdEncoding.EncodeToString(tx), opts})
	if err != nil {
		return "", err
	}

	var signature string
	if err := json.Unmarshal(result, &signature); err != nil {
		return "", err
	}
	return signature, nil
}

// GetSignatureStatus returns the status of signature, or nil if the node has not seen it.
func (c *Client) GetSignatureStatus(ctx context.Context, signature string) (*SignatureStatus, error) {
	opts := map[string]bool{"searchTransactionHistory": true}
	result, err := c.Call(ctx, "getSignatureStatuses", []interface{}{[]string{signature}, opts})
	if err != nil {
		return nil, err
	}

	var statuses SignatureStatusesResult
	if err := json.Unmarshal(result, &statuses); err != nil {
		return nil, err
	}
	if len(statuses.Value) == 0 {
		return nil, nil
	}
	return statuses.Value[0], nil
}

// WaitForSignature polls the signature status until it reaches the client's
// commitment or ctx is done. An unknown signature is treated as transient.
func (c *Client) WaitForSignature(ctx context.Context, signature string) (*Confirmation, error) {
	pollInterval := c.pollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			status, err := c.GetSignatureStatus(ctx, signature)
			if err != nil {
				return nil, err
			}
			if status == nil {
				continue
			}
			if status.Failed() {
				return nil, fmt.Errorf("transaction %s failed: %s", signature, string(status.Err))
			}
			if !reaches(status.ConfirmationStatus, c.commitment) {
				continue
			}
			return &Confirmation{Signature: signature, Slot: status.Slot}, nil
		}
	}
}

// Submit signs ix, broadcasts it and waits for confirmation.
func (c *Client) Submit(ctx context.Context, ix ledger.Instruction, signer ledger.Identity) (*Confirmation, error) {
	if c.signer == nil {
		return nil, errors.Submission("no transaction signer configured", nil)
	}

	blockhash, err := c.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, errors.Submission("fetch recent blockhash", err)
	}

	tx, err := c.signer.SignTransaction(ctx, ix, signer, blockhash)
	if err != nil {
		return nil, errors.Submission("sign "+ix.Name, err)
	}

	signature, err := c.SendRawTransaction(ctx, tx)
	if err != nil {
		return nil, classifySubmitError(ix.Name, err)
	}

	waitTimeout := c.waitTimeout
	if waitTimeout <= 0 {
		waitTimeout = DefaultTxWaitTimeout
	}
	wctx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()

	conf, err := c.confirmer.WaitForSignature(wctx, signature)
	if err != nil {
		return nil, classifySubmitError(ix.Name, fmt.Errorf("wait for %s: %w", signature, err))
	}

	if conf.BlockTime == 0 {
		if ts, err := c.GetBlockTime(ctx, conf.Slot); err == nil {
			conf.BlockTime = ts
		} else {
			c.log.WithError(err).WithField("slot", conf.Slot).Debug("block time unavailable")
		}
	}

	c.log.WithField("instruction", ix.Name).
		WithField("signature", signature).
		WithField("slot", conf.Slot).
		Info("submission confirmed")
	return conf, nil
}

// classifySubmitError maps a node rejection to the error taxonomy. The program
// reports an occupied record address as "already in use".
func classifySubmitError(name string, err error) error {
	text := err.Error()
	var rpcErr *RPCError
	if stderrors.As(err, &rpcErr) {
		text += " " + string(rpcErr.Data)
	}
	if strings.Contains(text, "already in use") {
		return errors.AlreadyExists(name+": record address already occupied", err)
	}
	return errors.Submission(name+" rejected", err)
}
