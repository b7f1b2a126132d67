package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/devwraithe/simple-faucet-token/pkg/metrics"
	"github.com/devwraithe/simple-faucet-token/pkg/runtime"
	"github.com/devwraithe/simple-faucet-token/pkg/svm/programs/faucet"
	"github.com/devwraithe/simple-faucet-token/pkg/types"
)

// Handler is the function signature for RPC method handlers.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, *RPCError)

// FaucetInfo identifies the faucet a node serves.
type FaucetInfo struct {
	ProgramID types.Pubkey
	Faucet    types.Pubkey
	Version   string
}

// Handlers manages RPC method handlers and provides access to node state.
type Handlers struct {
	executor *runtime.Executor
	info     FaucetInfo
	health   *metrics.HealthChecker
	metrics  *metrics.Metrics
	airdrops *keyedLimiter
	logger   *zap.Logger

	// slot counts instructions committed through this server.
	slot atomic.Uint64

	handlers map[string]Handler
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(executor *runtime.Executor, info FaucetInfo) *Handlers {
	h := &Handlers{
		executor: executor,
		info:     info,
		logger:   zap.NewNop(),
		handlers: make(map[string]Handler),
	}

	h.registerHandlers()

	return h
}

// SetLogger sets the logger used for airdrop and instruction events.
func (h *Handlers) SetLogger(logger *zap.Logger) {
	if logger != nil {
		h.logger = logger
	}
}

// SetMetrics sets the metrics recorder. Nil disables metrics.
func (h *Handlers) SetMetrics(m *metrics.Metrics) {
	h.metrics = m
}

// SetHealthChecker makes getHealth report the checker's status.
func (h *Handlers) SetHealthChecker(hc *metrics.HealthChecker) {
	h.health = hc
}

// SetAirdropLimit limits requestAirdrop per requester. A zero rate disables
// limiting.
func (h *Handlers) SetAirdropLimit(perSecond float64, burst int) {
	if perSecond <= 0 {
		h.airdrops = nil
		return
	}
	h.airdrops = newKeyedLimiter(rate.Limit(perSecond), burst)
}

// Slot returns the number of instructions committed through these handlers.
func (h *Handlers) Slot() uint64 {
	return h.slot.Load()
}

// GetHandler returns the handler for a method, or nil if not found.
func (h *Handlers) GetHandler(method string) Handler {
	return h.handlers[method]
}

// Methods returns the registered method names.
func (h *Handlers) Methods() []string {
	methods := make([]string, 0, len(h.handlers))
	for m := range h.handlers {
		methods = append(methods, m)
	}
	return methods
}

// registerHandlers registers all RPC method handlers.
func (h *Handlers) registerHandlers() {
	h.handlers["getAccountInfo"] = h.handleGetAccountInfo
	h.handlers["getBalance"] = h.handleGetBalance
	h.handlers["getFaucetState"] = h.handleGetFaucetState
	h.handlers["getHealth"] = h.handleGetHealth
	h.handlers["getVersion"] = h.handleGetVersion
	h.handlers["requestAirdrop"] = h.handleRequestAirdrop
	h.handlers["sendInstruction"] = h.handleSendInstruction
}

func (h *Handlers) context() Context {
	return Context{Slot: h.slot.Load()}
}

// parseParams decodes the positional params array, requiring at least minLen
// entries.
func parseParams(params json.RawMessage, minLen int) ([]json.RawMessage, *RPCError) {
	var rawParams []json.RawMessage
	if len(params) > 0 {
		if err := json.Unmarshal(params, &rawParams); err != nil {
			return nil, NewRPCError(InvalidParams, "invalid params: expected array")
		}
	}
	if len(rawParams) < minLen {
		return nil, NewRPCError(InvalidParams, fmt.Sprintf("expected at least %d params, got %d", minLen, len(rawParams)))
	}
	return rawParams, nil
}

func parsePubkeyParam(raw json.RawMessage) (types.Pubkey, *RPCError) {
	var pubkeyStr string
	if err := json.Unmarshal(raw, &pubkeyStr); err != nil {
		return types.ZeroPubkey, NewRPCError(InvalidParams, "invalid pubkey parameter")
	}
	pubkey, err := DecodePubkey(pubkeyStr)
	if err != nil {
		return types.ZeroPubkey, NewRPCError(InvalidParams, fmt.Sprintf("invalid pubkey: %v", err))
	}
	return pubkey, nil
}

func (h *Handlers) getAccount(pubkey types.Pubkey) (*types.Account, *RPCError) {
	account, err := h.executor.AccountsDB().GetAccount(pubkey)
	if err != nil {
		return nil, NewRPCError(InternalError, fmt.Sprintf("failed to get account: %v", err))
	}
	return account, nil
}

// handleGetAccountInfo handles the getAccountInfo RPC method.
// Params: [pubkey, {encoding, dataSlice}]
func (h *Handlers) handleGetAccountInfo(_ context.Context, params json.RawMessage) (interface{}, *RPCError) {
	rawParams, rpcErr := parseParams(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	pubkey, rpcErr := parsePubkeyParam(rawParams[0])
	if rpcErr != nil {
		return nil, rpcErr
	}

	encoding := EncodingBase64
	var dataSlice *DataSlice
	if len(rawParams) > 1 {
		var options AccountInfoOptions
		if err := json.Unmarshal(rawParams[1], &options); err != nil {
			return nil, NewRPCError(InvalidParams, "invalid options parameter")
		}
		if options.Encoding != "" {
			if err := ValidateEncoding(options.Encoding); err != nil {
				return nil, NewRPCError(UnsupportedEncoding, err.Error())
			}
			encoding = options.Encoding
		}
		dataSlice = options.DataSlice
	}

	account, rpcErr := h.getAccount(pubkey)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if account == nil {
		return ContextualResult{Context: h.context(), Value: nil}, nil
	}

	result := AccountInfoResult{
		Lamports:   uint64(account.Lamports),
		Owner:      account.Owner.String(),
		Executable: account.Executable,
		Space:      account.DataLen(),
	}

	if encoding == EncodingJSONParsed && account.Owner == h.info.ProgramID {
		if state, err := faucet.DecodeState(account.Data); err == nil {
			result.Data = ParsedAccountData{
				Program: "faucet",
				Parsed:  stateValue(state),
				Space:   account.DataLen(),
			}
			return ContextualResult{Context: h.context(), Value: result}, nil
		}
	}

	encodedData, err := EncodeAccountData(SliceData(account.Data, dataSlice), encoding)
	if err != nil {
		return nil, NewRPCError(InvalidParams, fmt.Sprintf("failed to encode data: %v", err))
	}
	result.Data = encodedData

	return ContextualResult{Context: h.context(), Value: result}, nil
}

// handleGetBalance handles the getBalance RPC method.
// Params: [pubkey]
func (h *Handlers) handleGetBalance(_ context.Context, params json.RawMessage) (interface{}, *RPCError) {
	rawParams, rpcErr := parseParams(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	pubkey, rpcErr := parsePubkeyParam(rawParams[0])
	if rpcErr != nil {
		return nil, rpcErr
	}

	account, rpcErr := h.getAccount(pubkey)
	if rpcErr != nil {
		return nil, rpcErr
	}

	var balance uint64
	if account != nil {
		balance = uint64(account.Lamports)
	}

	return ContextualResult{Context: h.context(), Value: balance}, nil
}

func stateValue(state *faucet.FaucetState) FaucetStateValue {
	v := FaucetStateValue{
		State:              state.State.String(),
		DistributionAmount: state.DistributionAmount,
	}
	if state.IsInitialized() {
		v.Administrator = state.Admin.String()
	}
	return v
}

// loadFaucetState reads and decodes the faucet record at pubkey.
func (h *Handlers) loadFaucetState(pubkey types.Pubkey) (*types.Account, *faucet.FaucetState, *RPCError) {
	account, rpcErr := h.getAccount(pubkey)
	if rpcErr != nil {
		return nil, nil, rpcErr
	}
	if account == nil {
		return nil, nil, NewRPCError(FaucetNotInitialized, fmt.Sprintf("faucet account %s not found", pubkey))
	}
	if account.Owner != h.info.ProgramID {
		return nil, nil, NewRPCError(InvalidParams, fmt.Sprintf("account %s is not owned by the faucet program", pubkey))
	}
	state, err := faucet.DecodeState(account.Data)
	if err != nil {
		return nil, nil, NewRPCError(InternalError, err.Error())
	}
	return account, state, nil
}

// handleGetFaucetState handles the getFaucetState RPC method.
// Params: [pubkey?] defaulting to the served faucet.
func (h *Handlers) handleGetFaucetState(_ context.Context, params json.RawMessage) (interface{}, *RPCError) {
	rawParams, rpcErr := parseParams(params, 0)
	if rpcErr != nil {
		return nil, rpcErr
	}
	pubkey := h.info.Faucet
	if len(rawParams) > 0 {
		if pubkey, rpcErr = parsePubkeyParam(rawParams[0]); rpcErr != nil {
			return nil, rpcErr
		}
	}

	account, state, rpcErr := h.loadFaucetState(pubkey)
	if rpcErr != nil {
		return nil, rpcErr
	}

	return ContextualResult{
		Context: h.context(),
		Value: FaucetStateResult{
			Pubkey:            pubkey.String(),
			Lamports:          uint64(account.Lamports),
			RentExemptMinimum: uint64(h.executor.Rent().MinimumBalance(account.DataLen())),
			FaucetStateValue:  stateValue(state),
		},
	}, nil
}

// handleGetHealth handles the getHealth RPC method.
// Params: none
func (h *Handlers) handleGetHealth(ctx context.Context, _ json.RawMessage) (interface{}, *RPCError) {
	if h.health == nil {
		return HealthResult("ok"), nil
	}
	status := h.health.Check(ctx)
	if !status.Healthy {
		return nil, NewRPCErrorWithData(NodeUnhealthy, "Node is unhealthy", status.Message)
	}
	return HealthResult("ok"), nil
}

// handleGetVersion handles the getVersion RPC method.
// Params: none
func (h *Handlers) handleGetVersion(_ context.Context, _ json.RawMessage) (interface{}, *RPCError) {
	return VersionResult{
		FaucetCore: h.info.Version,
		ProgramID:  h.info.ProgramID.String(),
	}, nil
}

// handleRequestAirdrop handles the requestAirdrop RPC method. It runs
// RequestTokens from the served faucet to the requester.
// Params: [requester]
func (h *Handlers) handleRequestAirdrop(_ context.Context, params json.RawMessage) (interface{}, *RPCError) {
	rawParams, rpcErr := parseParams(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	requester, rpcErr := parsePubkeyParam(rawParams[0])
	if rpcErr != nil {
		return nil, rpcErr
	}

	if !h.airdrops.Allow(requester.String()) {
		h.metrics.IncRateLimited()
		h.logger.Info("airdrop rate limited", zap.Stringer("requester", requester))
		return nil, NewRPCError(AirdropRateLimited, fmt.Sprintf("airdrop rate limit exceeded for %s", requester))
	}

	ix := faucet.NewRequestTokensInstruction(h.info.ProgramID, h.info.Faucet, requester)
	res, err := h.executor.Execute(&types.SignedInstruction{Instruction: ix})
	if err != nil {
		return nil, instructionError(err, res.Logs)
	}
	h.slot.Add(1)

	_, state, rpcErr := h.loadFaucetState(h.info.Faucet)
	if rpcErr != nil {
		return nil, rpcErr
	}
	account, rpcErr := h.getAccount(requester)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var balance uint64
	if account != nil {
		balance = uint64(account.Lamports)
	}

	h.logger.Info("airdrop sent",
		zap.Stringer("requester", requester),
		zap.Uint64("amount", state.DistributionAmount),
		zap.Uint64("balance", balance))

	return AirdropResult{
		Requester: requester.String(),
		Amount:    state.DistributionAmount,
		Balance:   balance,
		Logs:      res.Logs,
	}, nil
}

// handleSendInstruction handles the sendInstruction RPC method.
// Params: [base64 message, [base58 signature, ...]] with one signature per
// distinct signer, in account order.
func (h *Handlers) handleSendInstruction(_ context.Context, params json.RawMessage) (interface{}, *RPCError) {
	rawParams, rpcErr := parseParams(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}

	var encoded string
	if err := json.Unmarshal(rawParams[0], &encoded); err != nil {
		return nil, NewRPCError(InvalidParams, "invalid message parameter")
	}
	msg, err := DecodeBase64(encoded)
	if err != nil {
		return nil, NewRPCError(InvalidParams, fmt.Sprintf("invalid base64 message: %v", err))
	}
	ix, err := types.ParseMessage(msg)
	if err != nil {
		return nil, NewRPCError(InvalidParams, err.Error())
	}

	var sigStrs []string
	if len(rawParams) > 1 {
		if err := json.Unmarshal(rawParams[1], &sigStrs); err != nil {
			return nil, NewRPCError(InvalidParams, "invalid signatures parameter: expected array")
		}
	}
	signers := ix.Signers()
	if len(sigStrs) != len(signers) {
		return nil, NewRPCError(InvalidParams, fmt.Sprintf("expected %d signatures, got %d", len(signers), len(sigStrs)))
	}

	signed := &types.SignedInstruction{
		Instruction: *ix,
		Signatures:  make(map[types.Pubkey]types.Signature, len(signers)),
	}
	for i, s := range sigStrs {
		sig, err := DecodeSignature(s)
		if err != nil {
			return nil, NewRPCError(InvalidParams, fmt.Sprintf("invalid signature %d: %v", i, err))
		}
		signed.Signatures[signers[i]] = sig
	}

	res, err := h.executor.Execute(signed)
	if err != nil {
		return nil, instructionError(err, res.Logs)
	}
	h.slot.Add(1)

	written := make([]string, 0, len(res.Deltas))
	for _, d := range res.Deltas {
		written = append(written, d.Pubkey.String())
	}
	return InstructionResult{
		Logs:            res.Logs,
		UnitsConsumed:   uint64(res.ComputeUnits),
		AccountsWritten: written,
	}, nil
}

// instructionError maps an execution failure to a SendTransactionError
// carrying the program error code and logs.
func instructionError(err error, logs []string) *RPCError {
	code := faucet.ErrorCode(err)
	var ixErr *runtime.InstructionError
	if !errors.As(err, &ixErr) {
		code = faucet.CodeUnknown
	}
	return NewRPCErrorWithData(SendTransactionError,
		fmt.Sprintf("instruction failed: %v", err),
		InstructionErrorData{
			Err:  err.Error(),
			Code: uint32(code),
			Name: code.String(),
			Logs: logs,
		})
}

// FaucetHealthCheck reports whether the served faucet account exists, is
// initialized and holds at least one distribution above its rent minimum.
func (h *Handlers) FaucetHealthCheck() metrics.HealthCheckFunc {
	return func(_ context.Context) metrics.Check {
		check := metrics.Check{Name: "faucet", Healthy: true}
		account, state, rpcErr := h.loadFaucetState(h.info.Faucet)
		switch {
		case rpcErr != nil:
			check.Healthy = false
			check.Message = rpcErr.Message
		case !state.IsInitialized():
			check.Healthy = false
			check.Message = "faucet not initialized"
		default:
			minBalance := uint64(h.executor.Rent().MinimumBalance(account.DataLen()))
			if uint64(account.Lamports) < minBalance+state.DistributionAmount {
				check.Healthy = false
				check.Message = fmt.Sprintf("faucet balance %d cannot cover a distribution of %d", account.Lamports, state.DistributionAmount)
			}
		}
		return check
	}
}
