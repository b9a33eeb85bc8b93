package handler_test

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jmerrifield20/pohledger/internal/accounts"
	"github.com/jmerrifield20/pohledger/internal/bank"
	"github.com/jmerrifield20/pohledger/internal/genesis"
	"github.com/jmerrifield20/pohledger/internal/node/handler"
	"github.com/jmerrifield20/pohledger/internal/node/service"
	"github.com/jmerrifield20/pohledger/internal/poh"
	"github.com/jmerrifield20/pohledger/internal/runtime"
	"github.com/jmerrifield20/pohledger/internal/system"
	"github.com/jmerrifield20/pohledger/pkg/txn"
)

type testNode struct {
	router   *gin.Engine
	recorder *poh.Recorder
	keyring  *genesis.Keyring
}

func setupRouter(t *testing.T, limit gin.HandlerFunc) *testNode {
	t.Helper()
	gin.SetMode(gin.TestMode)

	keyring, err := genesis.NewKeyring(5)
	if err != nil {
		t.Fatal(err)
	}
	store := accounts.NewStore(keyring.Accounts(100_000_000_000))
	recorder := poh.NewRecorder(poh.GenesisHash("solana-genesis"), poh.Config{HashesPerTick: 10}, zap.NewNop())
	engine := runtime.NewEngine(runtime.NewRegistry(), zap.NewNop())
	svc := service.NewLedgerService(store, engine, recorder, keyring, zap.NewNop())

	r := gin.New()
	r.Use(handler.RequestLogger(zap.NewNop()))
	v1 := r.Group("/api/v1")
	handler.NewTransactionHandler(svc, limit, zap.NewNop()).Register(v1)
	handler.NewChainHandler(svc, zap.NewNop()).Register(v1)
	return &testNode{router: r, recorder: recorder, keyring: keyring}
}

func (n *testNode) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	n.router.ServeHTTP(w, req)

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

// ── Transfer ──────────────────────────────────────────────────────────────

func TestTransfer_200(t *testing.T) {
	n := setupRouter(t, nil)

	w, resp := n.do(t, http.MethodPost, "/api/v1/transfer", map[string]any{"from": 1, "to": 2, "lamports": 1_000_000_000})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if resp["ok"] != true {
		t.Errorf("expected ok=true, got %v", resp)
	}
	last := n.recorder.LastHash()
	if resp["entry_hash"] != last.Hex() {
		t.Errorf("entry_hash = %v, want %s", resp["entry_hash"], last.Hex())
	}

	from, _ := n.keyring.Lookup(1)
	w, resp = n.do(t, http.MethodGet, "/api/v1/accounts/"+from.ID.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if bal := uint64(resp["balance"].(float64)); bal != 99_000_000_000 {
		t.Errorf("balance = %d, want 99_000_000_000", bal)
	}
}

func TestTransfer_400_insufficientFunds(t *testing.T) {
	n := setupRouter(t, nil)

	w, resp := n.do(t, http.MethodPost, "/api/v1/transfer", map[string]any{"from": 1, "to": 2, "lamports": uint64(100_000_000_001)})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if resp["ok"] != false || resp["error"] == nil {
		t.Errorf("expected {ok:false, error}, got %v", resp)
	}
	if n.recorder.Len() != 0 {
		t.Error("failed transfer appended a chain entry")
	}
}

func TestTransfer_400_badBody(t *testing.T) {
	n := setupRouter(t, nil)
	bodies := []any{
		`{"from": 1, "to": 2}`,
		`{"from": 300, "to": 2, "lamports": 1}`,
		`{"from": -1, "to": 2, "lamports": 1}`,
		`not json`,
	}
	for _, body := range bodies {
		w, _ := n.do(t, http.MethodPost, "/api/v1/transfer", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %v: expected 400, got %d", body, w.Code)
		}
	}
}

func TestTransfer_400_unknownAccount(t *testing.T) {
	n := setupRouter(t, nil)
	w, _ := n.do(t, http.MethodPost, "/api/v1/transfer", map[string]any{"from": 1, "to": 9, "lamports": 1})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestTransfer_429_rateLimited(t *testing.T) {
	n := setupRouter(t, handler.RateLimiter(1, 1))
	body := map[string]any{"from": 1, "to": 2, "lamports": 1}

	if w, _ := n.do(t, http.MethodPost, "/api/v1/transfer", body); w.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", w.Code)
	}
	w, _ := n.do(t, http.MethodPost, "/api/v1/transfer", body)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

// ── Submit ────────────────────────────────────────────────────────────────

func TestSubmit_200_callerSigned(t *testing.T) {
	n := setupRouter(t, nil)
	from, _ := n.keyring.Lookup(3)
	to, _ := n.keyring.Lookup(4)

	tx := txn.NewTransaction(txn.Message{
		Header:          txn.MessageHeader{RequiredSignatures: 1, ReadonlyUnsignedCount: 1},
		AccountKeys:     []txn.Identifier{from.ID, to.ID, system.ProgramID},
		RecentChainHash: n.recorder.LastHash(),
		Instructions: []txn.CompiledInstruction{{
			ProgramIndex:   2,
			AccountIndices: txn.IndexList{0, 1},
			Data:           system.Encode(system.Transfer{Lamports: 7}),
		}},
	}, nil)
	if err := bank.Sign(tx, map[txn.Identifier]ed25519.PrivateKey{from.ID: from.Private}); err != nil {
		t.Fatal(err)
	}

	w, resp := n.do(t, http.MethodPost, "/api/v1/transactions", tx)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if resp["signature"] != tx.Signatures[0].String() {
		t.Errorf("signature = %v, want %s", resp["signature"], tx.Signatures[0])
	}
	if mod, _ := resp["modified"].([]any); len(mod) != 2 {
		t.Errorf("modified = %v", resp["modified"])
	}
}

func TestSubmit_400_unsigned(t *testing.T) {
	n := setupRouter(t, nil)
	from, _ := n.keyring.Lookup(3)
	tx := txn.NewTransaction(txn.Message{
		Header:      txn.MessageHeader{RequiredSignatures: 1},
		AccountKeys: []txn.Identifier{from.ID},
	}, nil)

	w, resp := n.do(t, http.MethodPost, "/api/v1/transactions", tx)
	if w.Code != http.StatusBadRequest || resp["ok"] != false {
		t.Fatalf("expected 400 ok=false, got %d %v", w.Code, resp)
	}
}

// ── Accounts ──────────────────────────────────────────────────────────────

func TestAccounts_list(t *testing.T) {
	n := setupRouter(t, nil)

	w, resp := n.do(t, http.MethodGet, "/api/v1/accounts", nil)
	if w.Code != http.StatusOK || int(resp["count"].(float64)) != 5 {
		t.Fatalf("expected 5 accounts, got %d %v", w.Code, resp)
	}

	w, resp = n.do(t, http.MethodGet, "/api/v1/accounts/genesis", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	list := resp["accounts"].([]any)
	first := list[0].(map[string]any)
	kp, _ := n.keyring.Lookup(1)
	if first["number"].(float64) != 1 || first["id"] != kp.ID.String() {
		t.Errorf("genesis account 1 = %v", first)
	}
}

func TestGetAccount_errors(t *testing.T) {
	n := setupRouter(t, nil)
	if w, _ := n.do(t, http.MethodGet, "/api/v1/accounts/not-base58-0OIl", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad id: expected 400, got %d", w.Code)
	}
	unknown := genesis.Derive(77).ID.String()
	if w, _ := n.do(t, http.MethodGet, "/api/v1/accounts/"+unknown, nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown id: expected 404, got %d", w.Code)
	}
}

// ── Chain ─────────────────────────────────────────────────────────────────

func TestChainOverview_200(t *testing.T) {
	n := setupRouter(t, nil)
	n.recorder.Tick()
	n.recorder.Tick()

	w, resp := n.do(t, http.MethodGet, "/api/v1/chain", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if int(resp["entries"].(float64)) != 2 {
		t.Errorf("entries = %v, want 2", resp["entries"])
	}
	if resp["genesis"] != poh.GenesisHash("solana-genesis").Hex() {
		t.Errorf("genesis = %v", resp["genesis"])
	}
}

func TestChainVerify_200(t *testing.T) {
	n := setupRouter(t, nil)
	n.recorder.Tick()
	n.do(t, http.MethodPost, "/api/v1/transfer", map[string]any{"from": 1, "to": 2, "lamports": 5})

	w, resp := n.do(t, http.MethodGet, "/api/v1/chain/verify", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp["valid"] != true {
		t.Errorf("expected valid=true, got %v", resp)
	}
}

func TestChainEntry(t *testing.T) {
	n := setupRouter(t, nil)
	n.recorder.Tick()

	w, resp := n.do(t, http.MethodGet, "/api/v1/chain/entries/0", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp["hash_count"].(float64) != 10 {
		t.Errorf("hash_count = %v, want 10", resp["hash_count"])
	}

	if w, _ := n.do(t, http.MethodGet, "/api/v1/chain/entries/5", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if w, _ := n.do(t, http.MethodGet, "/api/v1/chain/entries/abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// ── Middleware ────────────────────────────────────────────────────────────

func TestRequestLogger_setsRequestID(t *testing.T) {
	n := setupRouter(t, nil)

	w, _ := n.do(t, http.MethodGet, "/api/v1/chain", nil)
	if _, err := uuid.Parse(w.Header().Get(handler.RequestIDHeader)); err != nil {
		t.Errorf("response should carry a generated request ID, got %q", w.Header().Get(handler.RequestIDHeader))
	}

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/chain", nil)
	req.Header.Set(handler.RequestIDHeader, id)
	rec := httptest.NewRecorder()
	n.router.ServeHTTP(rec, req)
	if rec.Header().Get(handler.RequestIDHeader) != id {
		t.Errorf("inbound request ID not propagated")
	}
}

func TestMetricsHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handler.PrometheusMiddleware())
	r.GET("/metrics", handler.MetricsHandler())
	handler.RecordTransaction(service.ResultCommitted)
	handler.RecordEntry(true, 10)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	for _, name := range []string{"ledger_transactions_total", "ledger_poh_entries_total", "ledger_poh_hashes_total"} {
		if !bytes.Contains(w.Body.Bytes(), []byte(name)) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
