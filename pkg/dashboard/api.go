package dashboard

import (
	"net/http"
	"runtime"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/fortiblox/X1-Clicker/internal/types"
	"github.com/fortiblox/X1-Clicker/pkg/journal"
	"github.com/fortiblox/X1-Clicker/pkg/rpc"
	"github.com/fortiblox/X1-Clicker/pkg/svm/programs/clicker"
)

// API response types

// StatusResponse is the response for GET /api/status.
type StatusResponse struct {
	Slot          uint64  `json:"slot"`
	JournalSlot   uint64  `json:"journalSlot"`
	Transactions  uint64  `json:"transactions"`
	AccountsCount uint64  `json:"accountsCount"`
	ProgramID     string  `json:"programId"`
	Uptime        string  `json:"uptime"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

// TransactionBrief is a brief transaction summary.
type TransactionBrief struct {
	Signature string `json:"signature"`
	Slot      uint64 `json:"slot"`
	BlockTime int64  `json:"blockTime"`
	Kind      string `json:"kind"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Accounts  int    `json:"accounts"`
}

// TransactionResponse is the response for GET /api/transactions/:sig.
type TransactionResponse struct {
	TransactionBrief
	ComputeUnitsConsumed uint64   `json:"computeUnitsConsumed"`
	AccountKeys          []string `json:"accountKeys"`
	LogMessages          []string `json:"logMessages,omitempty"`
	DeltaHash            string   `json:"deltaHash,omitempty"`
}

// UserResponse is the response for GET /api/users/:pubkey.
type UserResponse struct {
	Pubkey   string             `json:"pubkey"`
	Lamports uint64             `json:"lamports"`
	State    *rpc.UserStateInfo `json:"state"`
}

// MetricsResponse is the response for GET /api/metrics.
type MetricsResponse struct {
	// Memory stats
	MemAlloc     uint64 `json:"memAlloc"`
	MemSys       uint64 `json:"memSys"`
	MemHeapInuse uint64 `json:"memHeapInuse"`
	NumGC        uint32 `json:"numGC"`

	// Runtime stats
	NumGoroutine int    `json:"numGoroutine"`
	NumCPU       int    `json:"numCPU"`
	GoVersion    string `json:"goVersion"`

	// Ledger stats
	AccountsCount uint64 `json:"accountsCount"`
	Transactions  uint64 `json:"transactions"`
	Slot          uint64 `json:"slot"`
}

func briefOf(rec *journal.Record) TransactionBrief {
	b := TransactionBrief{
		Signature: rec.Signature.String(),
		Slot:      rec.Slot,
		BlockTime: rec.BlockTime,
		Kind:      rec.Kind.String(),
		Success:   rec.Succeeded(),
		Accounts:  len(rec.AccountKeys),
	}
	if rec.Err != nil {
		b.Error = rec.Err.Message
		if rec.Err.CustomCode != nil {
			b.Error = clicker.CustomErrorString(*rec.Err.CustomCode)
			if pe, ok := clicker.ErrorForCode(*rec.Err.CustomCode); ok {
				b.Error += ": " + pe.Msg
			}
		}
	}
	return b
}

func transactionOf(rec *journal.Record) *TransactionResponse {
	resp := &TransactionResponse{
		TransactionBrief:     briefOf(rec),
		ComputeUnitsConsumed: rec.ComputeUnitsConsumed,
		AccountKeys:          lo.Map(rec.AccountKeys, func(k types.Pubkey, _ int) string { return k.String() }),
		LogMessages:          rec.Logs,
	}
	if !rec.DeltaHash.IsZero() {
		resp.DeltaHash = rec.DeltaHash.String()
	}
	return resp
}

// handleAPIStatus handles GET /api/status.
func (d *Dashboard) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, d.status())
}

// handleAPIRecent handles GET /api/transactions.
func (d *Dashboard) handleAPIRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := d.config.RecentLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	recent := d.recentTransactions(limit)
	if recent == nil {
		recent = []TransactionBrief{}
	}
	writeJSON(w, recent)
}

// handleAPITransaction handles GET /api/transactions/:sig.
func (d *Dashboard) handleAPITransaction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sigStr := strings.TrimPrefix(r.URL.Path, "/api/transactions/")
	if sigStr == "" {
		writeError(w, "Signature required", http.StatusBadRequest)
		return
	}
	if _, err := types.SignatureFromBase58(sigStr); err != nil {
		writeError(w, "Invalid signature", http.StatusBadRequest)
		return
	}

	tx, err := d.lookupTransaction(sigStr)
	if err != nil {
		writeError(w, "Transaction not found", http.StatusNotFound)
		return
	}
	writeJSON(w, tx)
}

// handleAPIUser handles GET /api/users/:pubkey.
func (d *Dashboard) handleAPIUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	pubkeyStr := strings.TrimPrefix(r.URL.Path, "/api/users/")
	if pubkeyStr == "" {
		writeError(w, "Public key required", http.StatusBadRequest)
		return
	}
	if _, err := types.PubkeyFromBase58(pubkeyStr); err != nil {
		writeError(w, "Invalid public key", http.StatusBadRequest)
		return
	}

	user, err := d.lookupUser(pubkeyStr)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, user)
}

// handleAPIMetrics handles GET /api/metrics.
func (d *Dashboard) handleAPIMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	mem := getMemStats()
	accountsCount, _ := d.accounts.AccountsCount()
	writeJSON(w, MetricsResponse{
		MemAlloc:      mem.Alloc,
		MemSys:        mem.Sys,
		MemHeapInuse:  mem.HeapInuse,
		NumGC:         mem.NumGC,
		NumGoroutine:  runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		GoVersion:     runtime.Version(),
		AccountsCount: accountsCount,
		Transactions:  d.journal.Count(),
		Slot:          d.accounts.GetSlot(),
	})
}
