// Package dashboard provides an embedded web dashboard for a clicker ledger.
//
// The dashboard provides:
// - Ledger status (slot, transactions, accounts, uptime)
// - Recent transactions from the journal
// - User lookup: wallet balance and clicker state
// - Transaction detail by signature, with program logs
//
// Templates are compiled into the binary, so the dashboard needs no files.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fortiblox/X1-Clicker/internal/types"
	"github.com/fortiblox/X1-Clicker/pkg/accounts"
	"github.com/fortiblox/X1-Clicker/pkg/journal"
	"github.com/fortiblox/X1-Clicker/pkg/rpc"
)

// Config holds dashboard configuration options.
type Config struct {
	// BindAddress is the address to bind the HTTP server to.
	// Default: "127.0.0.1"
	BindAddress string

	// Port is the port to listen on.
	// Default: 8080
	Port int

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration

	// IdleTimeout is the maximum time to wait for the next request.
	IdleTimeout time.Duration

	// RecentLimit is how many transactions the overview lists.
	RecentLimit int
}

// DefaultConfig returns the default dashboard configuration.
func DefaultConfig() Config {
	return Config{
		BindAddress:  "127.0.0.1",
		Port:         8080,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		RecentLimit:  25,
	}
}

// Journal is the part of the journal the dashboard reads.
type Journal interface {
	Get(sig types.Signature) (*journal.Record, error)
	SignaturesForSlot(slot uint64) ([]types.Signature, error)
	LatestSlot() uint64
	Count() uint64
}

// Dashboard is the web dashboard server.
type Dashboard struct {
	config    Config
	server    *http.Server
	journal   Journal
	accounts  accounts.DB
	programID types.Pubkey

	// Cached templates
	templates *template.Template

	// State
	mu        sync.RWMutex
	running   bool
	startTime time.Time
}

// New creates a new dashboard server for the clicker program at programID.
func New(config Config, j Journal, accts accounts.DB, programID types.Pubkey) (*Dashboard, error) {
	// Apply defaults
	def := DefaultConfig()
	if config.BindAddress == "" {
		config.BindAddress = def.BindAddress
	}
	if config.Port == 0 {
		config.Port = def.Port
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = def.ReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = def.WriteTimeout
	}
	if config.IdleTimeout == 0 {
		config.IdleTimeout = def.IdleTimeout
	}
	if config.RecentLimit <= 0 {
		config.RecentLimit = def.RecentLimit
	}

	d := &Dashboard{
		config:    config,
		journal:   j,
		accounts:  accts,
		programID: programID,
		startTime: time.Now(),
	}

	tmpl, err := d.parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	d.templates = tmpl

	return d, nil
}

// parseTemplates parses all embedded templates.
func (d *Dashboard) parseTemplates() (*template.Template, error) {
	funcMap := template.FuncMap{
		"formatDuration": formatDuration,
		"formatNumber":   formatNumber,
		"formatTime":     formatTime,
		"formatSOL":      formatSOL,
		"truncateHash":   truncateHash,
	}

	tmpl := template.New("").Funcs(funcMap)
	if _, err := tmpl.New("layout").Parse(layoutTemplate); err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	pages := map[string]string{
		"home":        homeTemplate,
		"users":       usersTemplate,
		"transaction": transactionTemplate,
	}
	for name, content := range pages {
		if _, err := tmpl.New(name).Parse(content); err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
	}
	return tmpl, nil
}

// Handler returns the dashboard's routes.
func (d *Dashboard) Handler() http.Handler {
	mux := http.NewServeMux()

	// Page routes
	mux.HandleFunc("/", d.handleHome)
	mux.HandleFunc("/users", d.handleUsers)
	mux.HandleFunc("/transactions/", d.handleTransaction)

	// API routes
	mux.HandleFunc("/api/status", d.handleAPIStatus)
	mux.HandleFunc("/api/transactions", d.handleAPIRecent)
	mux.HandleFunc("/api/transactions/", d.handleAPITransaction)
	mux.HandleFunc("/api/users/", d.handleAPIUser)
	mux.HandleFunc("/api/metrics", d.handleAPIMetrics)

	return mux
}

// Start serves the dashboard until ctx is done.
func (d *Dashboard) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("dashboard already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.server = &http.Server{
		Addr:         d.Address(),
		Handler:      d.Handler(),
		ReadTimeout:  d.config.ReadTimeout,
		WriteTimeout: d.config.WriteTimeout,
		IdleTimeout:  d.config.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	srv := d.server
	d.mu.Unlock()

	go func() {
		<-ctx.Done()
		d.Stop()
	}()

	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully stops the dashboard server.
func (d *Dashboard) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	srv := d.server
	d.mu.Unlock()

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
	return nil
}

// Address returns the address the dashboard is listening on.
func (d *Dashboard) Address() string {
	return net.JoinHostPort(d.config.BindAddress, strconv.Itoa(d.config.Port))
}

// handleHome renders the overview page.
func (d *Dashboard) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	d.renderPage(w, "home", map[string]interface{}{
		"Status": d.status(),
		"Recent": d.recentTransactions(d.config.RecentLimit),
	})
}

// handleUsers renders the user lookup page.
func (d *Dashboard) handleUsers(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	data := map[string]interface{}{"Query": query}
	if query != "" {
		user, err := d.lookupUser(query)
		if err != nil {
			data["SearchErr"] = err.Error()
		} else {
			data["User"] = user
		}
	}
	d.renderPage(w, "users", data)
}

// handleTransaction renders transaction details.
func (d *Dashboard) handleTransaction(w http.ResponseWriter, r *http.Request) {
	// Extract signature from path: /transactions/{signature}
	sigStr := strings.TrimPrefix(r.URL.Path, "/transactions/")
	if sigStr == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	tx, err := d.lookupTransaction(sigStr)
	if err != nil {
		d.renderPage(w, "transaction", map[string]interface{}{
			"Error":     err.Error(),
			"Signature": sigStr,
		})
		return
	}
	d.renderPage(w, "transaction", map[string]interface{}{
		"Transaction": tx,
		"Signature":   sigStr,
	})
}

// status collects the current ledger status.
func (d *Dashboard) status() StatusResponse {
	d.mu.RLock()
	uptime := time.Since(d.startTime)
	d.mu.RUnlock()

	accountsCount, _ := d.accounts.AccountsCount()
	return StatusResponse{
		Slot:          d.accounts.GetSlot(),
		JournalSlot:   d.journal.LatestSlot(),
		Transactions:  d.journal.Count(),
		AccountsCount: accountsCount,
		ProgramID:     d.programID.String(),
		Uptime:        formatDuration(uptime),
		UptimeSeconds: uptime.Seconds(),
	}
}

// recentTransactions walks the journal back from its latest slot.
func (d *Dashboard) recentTransactions(limit int) []TransactionBrief {
	var out []TransactionBrief
	for slot := d.journal.LatestSlot(); slot > 0 && len(out) < limit; slot-- {
		sigs, err := d.journal.SignaturesForSlot(slot)
		if err != nil {
			break
		}
		for _, sig := range sigs {
			rec, err := d.journal.Get(sig)
			if err != nil {
				continue
			}
			out = append(out, briefOf(rec))
			if len(out) == limit {
				break
			}
		}
	}
	return out
}

// lookupUser resolves a base58 address to its wallet and clicker state.
func (d *Dashboard) lookupUser(query string) (*UserResponse, error) {
	user, err := types.PubkeyFromBase58(query)
	if err != nil {
		return nil, fmt.Errorf("invalid public key: %w", err)
	}
	resp := &UserResponse{Pubkey: user.String()}
	acc, err := d.accounts.GetAccount(user)
	switch {
	case err == nil:
		resp.Lamports = acc.Lamports
	case !errors.Is(err, accounts.ErrAccountNotFound):
		return nil, err
	}
	resp.State, err = rpc.ReadUserState(d.accounts, user, d.programID)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// lookupTransaction loads a journal record by base58 signature.
func (d *Dashboard) lookupTransaction(sigStr string) (*TransactionResponse, error) {
	sig, err := types.SignatureFromBase58(sigStr)
	if err != nil {
		return nil, fmt.Errorf("invalid signature: %w", err)
	}
	rec, err := d.journal.Get(sig)
	if err != nil {
		return nil, fmt.Errorf("transaction not found: %w", err)
	}
	return transactionOf(rec), nil
}

// renderPage renders a page template inside the layout.
func (d *Dashboard) renderPage(w http.ResponseWriter, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	// First render the content template into a buffer
	var contentBuf strings.Builder
	if err := d.templates.ExecuteTemplate(&contentBuf, name, data); err != nil {
		http.Error(w, fmt.Sprintf("Template error: %v", err), http.StatusInternalServerError)
		return
	}

	pageData := map[string]interface{}{
		"PageName": name,
		"Content":  template.HTML(contentBuf.String()),
	}
	if err := d.templates.ExecuteTemplate(w, "layout", pageData); err != nil {
		http.Error(w, fmt.Sprintf("Template error: %v", err), http.StatusInternalServerError)
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// Template helper functions

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dd %dh", int(d.Hours()/24), int(d.Hours())%24)
}

func formatNumber(n uint64) string {
	switch {
	case n < 1000:
		return strconv.FormatUint(n, 10)
	case n < 1000000:
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	case n < 1000000000:
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
	return fmt.Sprintf("%.1fB", float64(n)/1000000000)
}

func formatTime(unix int64) string {
	if unix == 0 {
		return "N/A"
	}
	return time.Unix(unix, 0).UTC().Format("2006-01-02 15:04:05 UTC")
}

func formatSOL(lamports uint64) string {
	return strconv.FormatFloat(float64(lamports)/1e9, 'f', -1, 64) + " SOL"
}

func truncateHash(s string, n int) string {
	if len(s) <= n*2+3 {
		return s
	}
	return s[:n] + "..." + s[len(s)-n:]
}

// getMemStats returns current memory statistics.
func getMemStats() runtime.MemStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m
}
