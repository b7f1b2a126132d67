package client

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"github.com/devwraithe/simple-faucet-token/pkg/rpc"
	"github.com/devwraithe/simple-faucet-token/pkg/types"
)

// Client calls a faucet node's JSON-RPC API. Failed calls return the
// server's *jsonrpc.RPCError.
type Client struct {
	rpc jsonrpc.RPCClient
}

// New creates a client for the node at endpoint, e.g. "http://127.0.0.1:8899".
func New(endpoint string) *Client {
	return &Client{rpc: jsonrpc.NewClient(endpoint)}
}

type contextual[T any] struct {
	Context rpc.Context `json:"context"`
	Value   T           `json:"value"`
}

// GetBalance returns the lamports held by pubkey.
func (c *Client) GetBalance(ctx context.Context, pubkey types.Pubkey) (uint64, error) {
	var out contextual[uint64]
	if err := c.rpc.CallForInto(ctx, &out, "getBalance", []interface{}{pubkey.String()}); err != nil {
		return 0, fmt.Errorf("getBalance: %w", err)
	}
	return out.Value, nil
}

// GetFaucetState returns the faucet record at pubkey, or of the node's own
// faucet when pubkey is nil.
func (c *Client) GetFaucetState(ctx context.Context, pubkey *types.Pubkey) (*rpc.FaucetStateResult, error) {
	params := []interface{}{}
	if pubkey != nil {
		params = append(params, pubkey.String())
	}
	var out contextual[rpc.FaucetStateResult]
	if err := c.rpc.CallForInto(ctx, &out, "getFaucetState", params); err != nil {
		return nil, fmt.Errorf("getFaucetState: %w", err)
	}
	return &out.Value, nil
}

// RequestAirdrop asks the node's faucet to pay requester.
func (c *Client) RequestAirdrop(ctx context.Context, requester types.Pubkey) (*rpc.AirdropResult, error) {
	var out rpc.AirdropResult
	if err := c.rpc.CallForInto(ctx, &out, "requestAirdrop", []interface{}{requester.String()}); err != nil {
		return nil, fmt.Errorf("requestAirdrop: %w", err)
	}
	return &out, nil
}

// SendInstruction submits a signed instruction. Every signer of the
// instruction must have a signature.
func (c *Client) SendInstruction(ctx context.Context, signed *types.SignedInstruction) (*rpc.InstructionResult, error) {
	signers := signed.Instruction.Signers()
	sigs := make([]string, len(signers))
	for i, pk := range signers {
		sig, ok := signed.Signatures[pk]
		if !ok {
			return nil, fmt.Errorf("sendInstruction: missing signature for %s", pk)
		}
		sigs[i] = sig.String()
	}

	var out rpc.InstructionResult
	params := []interface{}{rpc.EncodeBase64(signed.Instruction.Message()), sigs}
	if err := c.rpc.CallForInto(ctx, &out, "sendInstruction", params); err != nil {
		return nil, fmt.Errorf("sendInstruction: %w", err)
	}
	return &out, nil
}

// GetVersion returns the node's version and faucet program address.
func (c *Client) GetVersion(ctx context.Context) (*rpc.VersionResult, error) {
	var out rpc.VersionResult
	if err := c.rpc.CallForInto(ctx, &out, "getVersion", []interface{}{}); err != nil {
		return nil, fmt.Errorf("getVersion: %w", err)
	}
	return &out, nil
}

// GetHealth returns nil when the node reports healthy.
func (c *Client) GetHealth(ctx context.Context) error {
	var out string
	if err := c.rpc.CallForInto(ctx, &out, "getHealth", []interface{}{}); err != nil {
		return fmt.Errorf("getHealth: %w", err)
	}
	return nil
}
