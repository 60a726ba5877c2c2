package txn

import (
	"context"
	"encoding/json"

	"github.com/vertix-social/vertix/internal/broker"
	"github.com/vertix-social/vertix/internal/verr"
)

// Call performs the Transaction RPC: marshal tx, send it to the
// Transaction exchange with a direct-reply-to, and decode the
// TransactionResponse. Shared by every caller that re-enters the engine:
// the HTTP API and the inbound activity processor alike.
func Call(ctx context.Context, conn *broker.Conn, tx Transaction) (TransactionResponse, error) {
	body, err := json.Marshal(tx)
	if err != nil {
		return TransactionResponse{}, verr.Wrap(verr.Serialization, "marshal transaction", err)
	}
	raw, err := conn.RemoteCall(ctx, TransactionMessage, body)
	if err != nil {
		return TransactionResponse{}, verr.Wrap(verr.Broker, "transaction rpc", err)
	}
	var resp TransactionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return TransactionResponse{}, verr.Wrap(verr.Serialization, "unmarshal transaction response", err)
	}
	return resp, nil
}
