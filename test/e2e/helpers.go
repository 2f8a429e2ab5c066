//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"

	"github.com/cloo-solutions/stockrag/internal/api/handlers"
	"github.com/cloo-solutions/stockrag/internal/enrichment"
	"github.com/cloo-solutions/stockrag/internal/generation"
	"github.com/cloo-solutions/stockrag/internal/repository"
	"github.com/cloo-solutions/stockrag/internal/server"
	"github.com/cloo-solutions/stockrag/internal/service"
	"github.com/cloo-solutions/stockrag/internal/storage"
	"github.com/cloo-solutions/stockrag/internal/testutil"
)

const (
	adminToken = "e2e-admin-token"
	embedDims  = 64
)

// E2ETestEnv holds the containers and the wired daemon under test.
type E2ETestEnv struct {
	T          *testing.T
	Ctx        context.Context
	PostgresC  *testutil.PostgresContainer
	RustFSC    *testutil.RustFSContainer
	Pool       *pgxpool.Pool
	Server     *httptest.Server
	Sessions   *service.SessionStore
	HTTPClient *http.Client
}

// SetupE2EEnv starts pgvector and RustFS, wires every service against them
// with deterministic model stand-ins, and serves the router.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	archive, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     testutil.RustFSCredential,
		SecretAccessKey: testutil.RustFSCredential,
		Bucket:          "e2e-sessions",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if err := archive.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	embedReady := service.NewReadiness()
	embedReady.MarkReady()
	genReady := service.NewReadiness()
	genReady.MarkReady()

	reg := prometheus.NewRegistry()
	metrics := service.NewMetrics(reg)

	indexing := service.NewIndexingService(repository.NewChunkRepository(pool), bagOfWords{}, service.IndexConfig{}, embedReady, logger)

	sources := repository.NewRecordSources(pool)
	listers := make([]service.RecordLister, 0, len(sources))
	for _, s := range sources {
		listers = append(listers, s)
	}
	registry, err := service.NewSyncRegistry(listers...)
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}

	cfg := service.DefaultSyncConfig()
	cfg.BackoffBase = 10 * time.Millisecond
	cfg.RecoveryPause = 10 * time.Millisecond
	syncSvc := service.NewSyncService(registry, repository.NewSyncStatusRepository(pool), indexing,
		enrichment.New(), cfg, metrics, logger)
	if err := syncSvc.Init(ctx); err != nil {
		t.Fatalf("failed to init sync service: %v", err)
	}

	retrieval := service.NewRetrievalService(indexing, logger)
	sessions := service.NewSessionStore(service.DefaultSessionConfig(), archive, logger)
	chat := service.NewChatService(sessions, retrieval, cannedGenerator{}, genReady, service.DefaultChatConfig(), metrics, logger)

	router := server.NewRouter(server.RouterConfig{
		AdminToken:    adminToken,
		Logger:        logger,
		Gatherer:      reg,
		SyncHandler:   handlers.NewSyncHandler(syncSvc),
		SearchHandler: handlers.NewSearchHandler(retrieval),
		ChatHandler:   handlers.NewChatHandler(chat),
	})

	return &E2ETestEnv{
		T:          t,
		Ctx:        ctx,
		PostgresC:  pgC,
		RustFSC:    s3C,
		Pool:       pool,
		Server:     httptest.NewServer(router),
		Sessions:   sessions,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (e *E2ETestEnv) Cleanup() {
	if e.Server != nil {
		e.Server.Close()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		_ = e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		_ = e.PostgresC.Terminate(e.Ctx)
	}
}

// Seed writes a small inventory into the business tables.
func (e *E2ETestEnv) Seed() {
	now := time.Now().UTC()
	stmts := []struct {
		sql  string
		args []any
	}{
		{`INSERT INTO users (id, name, email, role) VALUES ($1, $2, $3, $4)`,
			[]any{"u1", "Ana Torres", "ana@example.com", "admin"}},
		{`INSERT INTO clients (id, name, company, city, balance, credit_limit) VALUES ($1, $2, $3, $4, $5, $6)`,
			[]any{"c1", "Carlos Ruiz", "Ferreteria Ruiz", "Lima", 18000, 10000}},
		{`INSERT INTO suppliers (id, name, city, category) VALUES ($1, $2, $3, $4)`,
			[]any{"s1", "Aceros del Sur", "Arequipa", "steel"}},
		{`INSERT INTO products (id, name, sku, category, quantity, min_stock, unit_price, supplier_id) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			[]any{"p1", "Steel bolts M8", "BOLT-M8", "hardware", 3, 50, 0.25, "s1"}},
		{`INSERT INTO purchases (id, reference, supplier_id, status, total_amount, item_count) VALUES ($1, $2, $3, $4, $5, $6)`,
			[]any{"po1", "PO-2001", "s1", "pending", 4200, 12}},
		{`INSERT INTO invoices (id, number, client_id, status, total_amount, issued_at, due_date) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			[]any{"i1", "INV-1001", "c1", "sent", 15000, now.AddDate(0, -2, 0), now.AddDate(0, 0, -20)}},
		{`INSERT INTO invoices (id, number, client_id, status, total_amount, paid_amount, issued_at, due_date) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			[]any{"i2", "INV-1002", "c1", "paid", 300, 300, now.AddDate(0, -1, 0), now.AddDate(0, 0, -5)}},
	}
	for _, s := range stmts {
		if _, err := e.Pool.Exec(e.Ctx, s.sql, s.args...); err != nil {
			e.T.Fatalf("seed failed: %v", err)
		}
	}
}

// APIResponse is the envelope of a successful call.
type APIResponse struct {
	StatusCode int
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
	Code       string          `json:"code"`
}

func (e *E2ETestEnv) Get(path string) (*APIResponse, error) {
	return e.do(http.MethodGet, path, nil, "")
}

func (e *E2ETestEnv) Post(path string, body any, token string) (*APIResponse, error) {
	return e.do(http.MethodPost, path, body, token)
}

func (e *E2ETestEnv) Delete(path, token string) (*APIResponse, error) {
	return e.do(http.MethodDelete, path, nil, token)
}

func (e *E2ETestEnv) do(method, path string, body any, token string) (*APIResponse, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(e.Ctx, method, e.Server.URL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	out := &APIResponse{StatusCode: resp.StatusCode}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	if resp.StatusCode >= 400 {
		return out, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, out.Error)
	}
	return out, nil
}

// bagOfWords hashes tokens into a fixed vector so texts sharing words are
// close under cosine similarity.
type bagOfWords struct{}

func (bagOfWords) Name() string                   { return "bag-of-words" }
func (bagOfWords) Ping(ctx context.Context) error { return nil }

func (b bagOfWords) EmbedText(ctx context.Context, text string) ([]float32, error) {
	out, err := b.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (bagOfWords) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, embedDims)
		v[0] = 0.1
		for _, tok := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(strings.Trim(tok, ".,:;?!()")))
			v[1+int(h.Sum32()%(embedDims-1))]++
		}
		out[i] = v
	}
	return out, nil
}

type cannedGenerator struct{}

const cannedReply = "Invoice INV-1001 is overdue."

func (cannedGenerator) Name() string                   { return "canned" }
func (cannedGenerator) Model() string                  { return "canned-1" }
func (cannedGenerator) Ping(ctx context.Context) error { return nil }

func (cannedGenerator) Generate(ctx context.Context, prompt string, params generation.SamplingParams) (string, error) {
	return cannedReply, nil
}
