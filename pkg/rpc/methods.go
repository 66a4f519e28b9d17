package rpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/fortiblox/X1-Clicker/internal/types"
	"github.com/fortiblox/X1-Clicker/pkg/accounts"
	"github.com/fortiblox/X1-Clicker/pkg/journal"
	"github.com/fortiblox/X1-Clicker/pkg/svm/executor"
	"github.com/fortiblox/X1-Clicker/pkg/svm/message"
	"github.com/fortiblox/X1-Clicker/pkg/svm/programs/clicker"
)

// Version information.
const (
	SolanaCore = "clicker-1.0.0"
	FeatureSet = 0
)

// maxSignatureStatuses bounds one getSignatureStatuses call.
const maxSignatureStatuses = 256

func parseArgs(params json.RawMessage, min int) ([]json.RawMessage, *RPCError) {
	var args []json.RawMessage
	if len(params) > 0 {
		if err := json.Unmarshal(params, &args); err != nil {
			return nil, InvalidParamsError("invalid params")
		}
	}
	if len(args) < min {
		return nil, InvalidParamsErrorf("expected at least %d params, got %d", min, len(args))
	}
	return args, nil
}

func parsePubkey(arg json.RawMessage) (types.Pubkey, *RPCError) {
	var s string
	if err := json.Unmarshal(arg, &s); err != nil {
		return types.Pubkey{}, InvalidParamsError("invalid pubkey")
	}
	pubkey, err := types.PubkeyFromBase58(s)
	if err != nil {
		return types.Pubkey{}, InvalidParamsError("invalid pubkey format")
	}
	return pubkey, nil
}

func parseSignature(s string) (types.Signature, *RPCError) {
	sig, err := types.SignatureFromBase58(s)
	if err != nil {
		return types.Signature{}, InvalidParamsErrorf("invalid signature %q", s)
	}
	return sig, nil
}

// parseConfig decodes the optional config object at args[i].
func parseConfig(args []json.RawMessage, i int, v interface{}) *RPCError {
	if len(args) <= i {
		return nil
	}
	if err := json.Unmarshal(args[i], v); err != nil {
		return InvalidParamsError("invalid config")
	}
	return nil
}

func (s *Server) currentSlot() uint64 {
	return s.accountsDB.GetSlot()
}

func (s *Server) checkMinContextSlot(min *uint64) *RPCError {
	if current := s.currentSlot(); min != nil && *min > current {
		return MinContextSlotError(*min, current)
	}
	return nil
}

// Account Methods

// getAccountInfo retrieves account information.
func (s *Server) getAccountInfo(params json.RawMessage) (interface{}, *RPCError) {
	args, rpcErr := parseArgs(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	pubkey, rpcErr := parsePubkey(args[0])
	if rpcErr != nil {
		return nil, rpcErr
	}
	var config AccountInfoConfig
	if rpcErr := parseConfig(args, 1, &config); rpcErr != nil {
		return nil, rpcErr
	}
	encoding, ok := ParseEncoding(string(config.Encoding))
	if !ok {
		return nil, InvalidParamsErrorf("unsupported encoding %q", config.Encoding)
	}
	if rpcErr := s.checkMinContextSlot(config.MinContextSlot); rpcErr != nil {
		return nil, rpcErr
	}

	slot := s.currentSlot()
	account, err := s.accountsDB.GetAccount(pubkey)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		return ResponseWithContext{Context: Context{Slot: slot}, Value: nil}, nil
	}
	if err != nil {
		return nil, InternalServerErrorf("failed to get account: %v", err)
	}

	data, err := EncodeAccountData(ApplyDataSlice(account.Data, config.DataSlice), encoding)
	if err != nil {
		return nil, InternalServerErrorf("failed to encode account data: %v", err)
	}
	return ResponseWithContext{
		Context: Context{Slot: slot},
		Value: &AccountInfo{
			Data:       data,
			Executable: account.Executable,
			Lamports:   account.Lamports,
			Owner:      account.Owner.String(),
			RentEpoch:  account.RentEpoch,
			Space:      uint64(len(account.Data)),
		},
	}, nil
}

// getBalance retrieves account balance.
func (s *Server) getBalance(params json.RawMessage) (interface{}, *RPCError) {
	args, rpcErr := parseArgs(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	pubkey, rpcErr := parsePubkey(args[0])
	if rpcErr != nil {
		return nil, rpcErr
	}
	var config BalanceConfig
	if rpcErr := parseConfig(args, 1, &config); rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := s.checkMinContextSlot(config.MinContextSlot); rpcErr != nil {
		return nil, rpcErr
	}

	slot := s.currentSlot()
	account, err := s.accountsDB.GetAccount(pubkey)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		return ResponseWithContext{Context: Context{Slot: slot}, Value: uint64(0)}, nil
	}
	if err != nil {
		return nil, InternalServerErrorf("failed to get account: %v", err)
	}
	return ResponseWithContext{Context: Context{Slot: slot}, Value: account.Lamports}, nil
}

// getMinimumBalanceForRentExemption returns the rent-exempt minimum for a
// data length.
func (s *Server) getMinimumBalanceForRentExemption(params json.RawMessage) (interface{}, *RPCError) {
	args, rpcErr := parseArgs(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var dataLen uint64
	if err := json.Unmarshal(args[0], &dataLen); err != nil {
		return nil, InvalidParamsError("invalid data length")
	}
	if dataLen > accounts.MaxAccountDataSize {
		return nil, InvalidParamsErrorf("data length %d exceeds %d", dataLen, accounts.MaxAccountDataSize)
	}
	return executor.MinimumBalance(dataLen), nil
}

// Clicker Methods

// getUserStateAddress derives a user's record address.
func (s *Server) getUserStateAddress(params json.RawMessage) (interface{}, *RPCError) {
	args, rpcErr := parseArgs(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	user, rpcErr := parsePubkey(args[0])
	if rpcErr != nil {
		return nil, rpcErr
	}
	addr, bump, err := clicker.UserStateAddress(user, s.ledger.ClickerProgramID())
	if err != nil {
		return nil, InternalServerErrorf("failed to derive address: %v", err)
	}
	return UserStateAddress{Address: addr.String(), Bump: bump}, nil
}

// getUserState returns a user's decoded record, or null if the user has
// not been initialized.
func (s *Server) getUserState(params json.RawMessage) (interface{}, *RPCError) {
	args, rpcErr := parseArgs(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	user, rpcErr := parsePubkey(args[0])
	if rpcErr != nil {
		return nil, rpcErr
	}
	slot := s.currentSlot()
	info, err := ReadUserState(s.accountsDB, user, s.ledger.ClickerProgramID())
	if err != nil {
		return nil, InternalServerErrorf("failed to read user state: %v", err)
	}
	if info == nil {
		return ResponseWithContext{Context: Context{Slot: slot}, Value: nil}, nil
	}
	return ResponseWithContext{Context: Context{Slot: slot}, Value: *info}, nil
}

// ReadUserState loads user's record from db. It returns nil without error
// when the derived account is missing or not owned by programID.
func ReadUserState(db accounts.DB, user, programID types.Pubkey) (*UserStateInfo, error) {
	addr, _, err := clicker.UserStateAddress(user, programID)
	if err != nil {
		return nil, fmt.Errorf("derive address: %w", err)
	}
	account, err := db.GetAccount(addr)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if account.Owner != programID {
		return nil, nil
	}
	state, err := clicker.UnmarshalUserState(account.Data)
	if err != nil {
		return nil, err
	}
	return &UserStateInfo{Address: addr.String(), UserState: state}, nil
}

// Transaction Methods

func (s *Server) decodeTransactionArgs(params json.RawMessage) ([]byte, *RPCError) {
	args, rpcErr := parseArgs(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var encoded string
	if err := json.Unmarshal(args[0], &encoded); err != nil {
		return nil, InvalidParamsError("invalid transaction")
	}
	var config SendTransactionConfig
	if rpcErr := parseConfig(args, 1, &config); rpcErr != nil {
		return nil, rpcErr
	}
	raw, err := DecodeTransaction(encoded, config.Encoding)
	if err != nil {
		return nil, InvalidParamsErrorf("failed to decode transaction: %v", err)
	}
	return raw, nil
}

func resultMeta(res *executor.ExecutionResult) *TransactionMeta {
	meta := &TransactionMeta{
		Err:                  ToTransactionError(res.Err),
		LogMessages:          res.Logs,
		ComputeUnitsConsumed: res.ComputeUnitsUsed,
	}
	if !res.DeltaHash.IsZero() {
		meta.DeltaHash = res.DeltaHash.String()
	}
	return meta
}

// sendTransaction executes a signed wire transaction. Failed executions
// are still journaled and are reported through meta.err, not as an RPC
// error.
func (s *Server) sendTransaction(params json.RawMessage) (interface{}, *RPCError) {
	raw, rpcErr := s.decodeTransactionArgs(params)
	if rpcErr != nil {
		return nil, rpcErr
	}

	res, err := s.ledger.ExecuteRaw(raw)
	if err != nil {
		switch {
		case errors.Is(err, message.ErrSignatureVerificationFail), errors.Is(err, message.ErrSignatureCount):
			return nil, SignatureVerificationError(err)
		case errors.Is(err, executor.ErrInvalidTransaction), errors.Is(err, executor.ErrAlreadyProcessed):
			return nil, PreflightFailureError(err)
		default:
			return nil, InternalServerErrorf("failed to execute transaction: %v", err)
		}
	}
	return SendTransactionResult{
		Signature: res.Signature.String(),
		Slot:      res.Slot,
		Meta:      resultMeta(res),
	}, nil
}

// simulateTransaction runs a wire transaction without committing it.
func (s *Server) simulateTransaction(params json.RawMessage) (interface{}, *RPCError) {
	raw, rpcErr := s.decodeTransactionArgs(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	tx, err := message.DeserializeTransaction(raw)
	if err != nil {
		return nil, InvalidParamsErrorf("failed to decode transaction: %v", err)
	}

	res, err := s.ledger.Simulate(tx)
	if err != nil {
		if errors.Is(err, executor.ErrInvalidTransaction) {
			return nil, PreflightFailureError(err)
		}
		return nil, InternalServerErrorf("failed to simulate transaction: %v", err)
	}
	return ResponseWithContext{
		Context: Context{Slot: res.Slot},
		Value: SimulationResult{
			Err:           ToTransactionError(res.Err),
			Logs:          res.Logs,
			UnitsConsumed: res.ComputeUnitsUsed,
			Accounts:      lo.Map(res.ModifiedAccounts, func(k types.Pubkey, _ int) string { return k.String() }),
		},
	}, nil
}

// requestAirdrop credits lamports from the faucet.
func (s *Server) requestAirdrop(params json.RawMessage) (interface{}, *RPCError) {
	args, rpcErr := parseArgs(params, 2)
	if rpcErr != nil {
		return nil, rpcErr
	}
	pubkey, rpcErr := parsePubkey(args[0])
	if rpcErr != nil {
		return nil, rpcErr
	}
	var lamports uint64
	if err := json.Unmarshal(args[1], &lamports); err != nil {
		return nil, InvalidParamsError("invalid lamports")
	}

	res, err := s.ledger.Airdrop(pubkey, lamports)
	if err != nil {
		if errors.Is(err, executor.ErrInvalidAirdrop) || errors.Is(err, executor.ErrLamportOverflow) {
			return nil, InvalidParamsError(err.Error())
		}
		return nil, InternalServerErrorf("airdrop failed: %v", err)
	}
	return res.Signature.String(), nil
}

// getTransaction retrieves a journaled transaction by signature.
func (s *Server) getTransaction(params json.RawMessage) (interface{}, *RPCError) {
	args, rpcErr := parseArgs(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var sigStr string
	if err := json.Unmarshal(args[0], &sigStr); err != nil {
		return nil, InvalidParamsError("invalid signature")
	}
	sig, rpcErr := parseSignature(sigStr)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var config TransactionConfig
	if rpcErr := parseConfig(args, 1, &config); rpcErr != nil {
		return nil, rpcErr
	}

	rec, err := s.journal.Get(sig)
	if errors.Is(err, journal.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, InternalServerErrorf("failed to get transaction: %v", err)
	}

	resp := &TransactionResponse{
		Slot:        rec.Slot,
		BlockTime:   &rec.BlockTime,
		Kind:        rec.Kind.String(),
		AccountKeys: lo.Map(rec.AccountKeys, func(k types.Pubkey, _ int) string { return k.String() }),
		Meta: &TransactionMeta{
			Err:                  ToTransactionError(rec.Err),
			LogMessages:          rec.Logs,
			ComputeUnitsConsumed: rec.ComputeUnitsConsumed,
		},
	}
	if len(rec.Raw) > 0 {
		resp.Transaction = EncodeTransaction(rec.Raw, config.Encoding)
	}
	if !rec.DeltaHash.IsZero() {
		resp.Meta.DeltaHash = rec.DeltaHash.String()
	}
	return resp, nil
}

// getSignatureStatuses retrieves the status of signatures. Unknown
// signatures map to null.
func (s *Server) getSignatureStatuses(params json.RawMessage) (interface{}, *RPCError) {
	args, rpcErr := parseArgs(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var sigStrs []string
	if err := json.Unmarshal(args[0], &sigStrs); err != nil {
		return nil, InvalidParamsError("invalid signatures")
	}
	if len(sigStrs) > maxSignatureStatuses {
		return nil, InvalidParamsErrorf("too many signatures: %d > %d", len(sigStrs), maxSignatureStatuses)
	}
	var config SignatureStatusConfig
	if rpcErr := parseConfig(args, 1, &config); rpcErr != nil {
		return nil, rpcErr
	}

	statuses := make([]*SignatureStatus, len(sigStrs))
	for i, str := range sigStrs {
		sig, rpcErr := parseSignature(str)
		if rpcErr != nil {
			return nil, rpcErr
		}
		rec, err := s.journal.Get(sig)
		if errors.Is(err, journal.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, InternalServerErrorf("failed to get transaction: %v", err)
		}
		// Commits are final as soon as they are journaled.
		statuses[i] = &SignatureStatus{
			Slot:               rec.Slot,
			Err:                ToTransactionError(rec.Err),
			ConfirmationStatus: "finalized",
		}
	}
	return ResponseWithContext{Context: Context{Slot: s.currentSlot()}, Value: statuses}, nil
}

// getSignaturesForAddress returns an address's history, newest first.
func (s *Server) getSignaturesForAddress(params json.RawMessage) (interface{}, *RPCError) {
	args, rpcErr := parseArgs(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	pubkey, rpcErr := parsePubkey(args[0])
	if rpcErr != nil {
		return nil, rpcErr
	}
	var config SignaturesForAddressConfig
	if rpcErr := parseConfig(args, 1, &config); rpcErr != nil {
		return nil, rpcErr
	}

	opts := &journal.QueryOptions{Limit: config.Limit}
	if config.Before != "" {
		before, rpcErr := parseSignature(config.Before)
		if rpcErr != nil {
			return nil, rpcErr
		}
		opts.Before = &before
	}

	infos, err := s.journal.SignaturesForAddress(pubkey, opts)
	if errors.Is(err, journal.ErrNotFound) {
		return nil, InvalidParamsError("before signature not found")
	}
	if err != nil {
		return nil, NewRPCError(TransactionHistoryNotAvailable, err.Error())
	}
	return lo.Map(infos, func(info journal.SignatureInfo, _ int) SignatureInfo {
		return ToSignatureInfo(info)
	}), nil
}

// ToSignatureInfo converts a journal history entry to its wire form.
func ToSignatureInfo(info journal.SignatureInfo) SignatureInfo {
	return SignatureInfo{
		Signature: info.Signature.String(),
		Slot:      info.Slot,
		Err:       ToTransactionError(info.Err),
		BlockTime: lo.ToPtr(info.BlockTime),
	}
}

// Cluster Methods

func (s *Server) getSlot(params json.RawMessage) (interface{}, *RPCError) {
	return s.currentSlot(), nil
}

func (s *Server) getHealth(params json.RawMessage) (interface{}, *RPCError) {
	if !s.IsHealthy() {
		return nil, ErrNodeUnhealthy
	}
	return "ok", nil
}

func (s *Server) getVersion(params json.RawMessage) (interface{}, *RPCError) {
	return VersionInfo{SolanaCore: SolanaCore, FeatureSet: FeatureSet}, nil
}

func (s *Server) getLatestBlockhash(params json.RawMessage) (interface{}, *RPCError) {
	slot := s.currentSlot()
	return ResponseWithContext{
		Context: Context{Slot: slot},
		Value: LatestBlockhash{
			Blockhash:            s.ledger.LatestBlockhash().String(),
			LastValidBlockHeight: slot + 150,
		},
	}, nil
}
