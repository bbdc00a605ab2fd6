package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/erpcore/internal/audit"
	"github.com/smallbiznis/erpcore/internal/authorization"
	"github.com/smallbiznis/erpcore/internal/clock"
	"github.com/smallbiznis/erpcore/internal/config"
	"github.com/smallbiznis/erpcore/internal/events"
	"github.com/smallbiznis/erpcore/internal/logger"
	"github.com/smallbiznis/erpcore/internal/manufacturing"
	mfgdomain "github.com/smallbiznis/erpcore/internal/manufacturing/domain"
	"github.com/smallbiznis/erpcore/internal/migration"
	"github.com/smallbiznis/erpcore/internal/observability"
	"github.com/smallbiznis/erpcore/internal/ratelimit"
	"github.com/smallbiznis/erpcore/internal/seed"
	"github.com/smallbiznis/erpcore/internal/sequence"
	seqdomain "github.com/smallbiznis/erpcore/internal/sequence/domain"
	"github.com/smallbiznis/erpcore/internal/server"
	"github.com/smallbiznis/erpcore/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const (
	e2eTenantID    int64 = 7001
	e2eOwnerUserID int64 = 1
	e2eActor             = "user:1"
)

type testEnv struct {
	app         *fx.App
	db          *gorm.DB
	sequenceSvc seqdomain.Service
	defaults    *config.SequenceDefaultsHolder
	bus         events.Bus
	baseURL     string
	httpSrv     *httptest.Server
	tmpDir      string
}

var env *testEnv

func TestMain(m *testing.M) {
	if strings.TrimSpace(os.Getenv("ERPCORE_E2E")) == "" {
		fmt.Fprintln(os.Stderr, "skipping e2e tests: set ERPCORE_E2E=1 to run")
		os.Exit(0)
	}
	gin.SetMode(gin.TestMode)

	tmpDir, err := os.MkdirTemp("", "erpcore-e2e")
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create temp dir:", err)
		os.Exit(1)
	}
	setDefaultEnv(tmpDir)

	env, err = startEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start test environment:", err)
		os.RemoveAll(tmpDir)
		os.Exit(1)
	}
	env.tmpDir = tmpDir

	code := m.Run()
	env.shutdown()
	os.Exit(code)
}

func TestE2E_HealthCheck(t *testing.T) {
	resp, err := http.Get(env.baseURL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
}

func TestE2E_SeedProvisionsPresetSequences(t *testing.T) {
	resetDatabase(t, env.db)

	resp, body := doJSON(t, http.MethodGet, "/v1/sequences", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.StatusCode, string(body))
	}
	var out struct {
		Data []seqdomain.Response `json:"data"`
	}
	decode(t, body, &out)

	names := map[string]bool{}
	for _, seq := range out.Data {
		names[seq.Name] = true
	}
	for _, want := range []string{"invoice", "purchase_order", "quotation", "work_order"} {
		if !names[want] {
			t.Fatalf("expected preset %q to be seeded, got %v", want, names)
		}
	}
}

func TestE2E_SequenceGenerateOverrideAndLogs(t *testing.T) {
	resetDatabase(t, env.db)

	subCtx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	sub, err := env.bus.Subscribe(subCtx, events.TopicSequenceGenerated)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	first := generate(t, "quotation", nil)
	second := generate(t, "quotation", nil)
	if first != "QT-0001" || second != "QT-0002" {
		t.Fatalf("expected QT-0001 and QT-0002, got %s and %s", first, second)
	}

	workOrder := generate(t, "work_order", map[string]any{"department": "assembly"})
	if workOrder != "WO-ASSEMBLY-000001" {
		t.Fatalf("expected WO-ASSEMBLY-000001, got %s", workOrder)
	}

	select {
	case msg := <-sub:
		msg.Ack()
		event, err := events.Decode(msg)
		if err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if event.TenantID != e2eTenantID {
			t.Fatalf("expected event for tenant %d, got %d", e2eTenantID, event.TenantID)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("expected sequence.generated event")
	}

	resp, body := doJSON(t, http.MethodPost, "/v1/sequences/quotation/override", map[string]any{
		"value":  "QT-0002",
		"reason": "manual correction",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected duplicate override to conflict, got %d: %s", resp.StatusCode, string(body))
	}

	resp, body = doJSON(t, http.MethodPost, "/v1/sequences/quotation/override", map[string]any{
		"value":  "QT-LEGACY-17",
		"reason": "imported from legacy system",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected override to be created, got %d: %s", resp.StatusCode, string(body))
	}

	resp, body = doJSON(t, http.MethodGet, "/v1/sequences/quotation/logs?override=true", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for logs, got %d: %s", resp.StatusCode, string(body))
	}
	var logs seqdomain.ListLogsResponse
	decode(t, body, &logs)
	if len(logs.Logs) != 1 || logs.Logs[0].GeneratedNumber != "QT-LEGACY-17" {
		t.Fatalf("expected one override log entry, got %+v", logs.Logs)
	}

	if n := countRows(t, env.db, "serial_number_logs", "tenant_id = ? AND sequence_name = ?", e2eTenantID, "quotation"); n != 3 {
		t.Fatalf("expected 3 quotation log rows, got %d", n)
	}
	if n := countRows(t, env.db, "audit_logs", "tenant_id = ? AND action = ?", e2eTenantID, "sequence.override"); n != 1 {
		t.Fatalf("expected one sequence.override audit entry, got %d", n)
	}
}

func TestE2E_SequenceResetAndPreview(t *testing.T) {
	resetDatabase(t, env.db)

	generate(t, "quotation", nil)
	generate(t, "quotation", nil)

	resp, body := doJSON(t, http.MethodPost, "/v1/sequences/quotation/reset", map[string]any{
		"new_value": 100,
		"reason":    "align with legacy numbering",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected reset to succeed, got %d: %s", resp.StatusCode, string(body))
	}

	resp, body = doJSON(t, http.MethodGet, "/v1/sequences/quotation/preview", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected preview to succeed, got %d: %s", resp.StatusCode, string(body))
	}
	var preview struct {
		Data seqdomain.PreviewResult `json:"data"`
	}
	decode(t, body, &preview)
	if preview.Data.Value != "QT-0101" {
		t.Fatalf("expected preview QT-0101, got %s", preview.Data.Value)
	}

	// preview never consumes a number
	if got := generate(t, "quotation", nil); got != "QT-0101" {
		t.Fatalf("expected QT-0101 after reset, got %s", got)
	}
}

func TestE2E_BOMLifecycleAndExplosion(t *testing.T) {
	resetDatabase(t, env.db)

	bike := createProduct(t, "BIKE", "finished_good", "0")
	frame := createProduct(t, "FRAME", "sub_assembly", "0")
	tube := createProduct(t, "TUBE", "raw_material", "2.5")
	wheel := createProduct(t, "WHEEL", "component", "10")

	frameBOM := createBOM(t, frame)
	addItem(t, frameBOM, tube, "4")
	activateBOM(t, frameBOM)

	bikeBOM := createBOM(t, bike)
	addItem(t, bikeBOM, frame, "1")
	addItem(t, bikeBOM, wheel, "2")
	activateBOM(t, bikeBOM)

	resp, body := doJSON(t, http.MethodPost, "/v1/boms/"+bikeBOM+"/items", map[string]any{
		"component_product_id": tube,
		"quantity":             "1",
		"uom":                  "pcs",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected active bom to reject new items, got %d: %s", resp.StatusCode, string(body))
	}

	resp, body = doJSON(t, http.MethodGet, "/v1/boms/"+bikeBOM+"/explode?quantity=10", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected explosion to succeed, got %d: %s", resp.StatusCode, string(body))
	}
	var explosion struct {
		Data mfgdomain.ExplosionResult `json:"data"`
	}
	decode(t, body, &explosion)
	totals := map[string]decimal.Decimal{}
	for _, req := range explosion.Data.Requirements {
		totals[req.ProductCode] = req.TotalQuantity
	}
	if len(totals) != 2 || !totals["TUBE"].Equal(decimal.NewFromInt(40)) || !totals["WHEEL"].Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected 40 TUBE and 20 WHEEL, got %v", totals)
	}

	resp, body = doJSON(t, http.MethodGet, "/v1/boms/"+bikeBOM+"/cost", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected cost to succeed, got %d: %s", resp.StatusCode, string(body))
	}
	var cost struct {
		Data mfgdomain.CostBreakdown `json:"data"`
	}
	decode(t, body, &cost)
	if len(cost.Data.Lines) != 2 || !cost.Data.MaterialCost.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected two cost lines totalling 20, got %+v", cost.Data)
	}

	resp, body = doJSON(t, http.MethodGet, "/v1/products/"+tube+"/where-used", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected where-used to succeed, got %d: %s", resp.StatusCode, string(body))
	}
	if !strings.Contains(string(body), frameBOM) {
		t.Fatalf("expected frame bom %s in where-used, got %s", frameBOM, string(body))
	}

	if n := countRows(t, env.db, "audit_logs", "tenant_id = ? AND action = ?", e2eTenantID, "bom.activate"); n != 2 {
		t.Fatalf("expected two bom.activate audit entries, got %d", n)
	}
}

func TestE2E_RequestsWithoutTenantAreRejected(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, env.baseURL+"/v1/sequences", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status 400 without %s, got %d", server.HeaderOrg, resp.StatusCode)
	}
}

func startEnv() (*testEnv, error) {
	var (
		srv         *server.Server
		dbConn      *gorm.DB
		sequenceSvc seqdomain.Service
		defaults    *config.SequenceDefaultsHolder
		bus         events.Bus
	)

	app := fx.New(
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(func(cfg config.Config) (*snowflake.Node, error) {
			return snowflake.NewNode(cfg.SnowflakeNode)
		}),
		db.Module,
		clock.Module,
		migration.Module,
		authorization.Module,
		audit.Module,
		events.Module,
		ratelimit.Module,
		sequence.Module,
		manufacturing.Module,
		fx.Provide(server.NewEngine),
		fx.Provide(server.NewServer),
		fx.Populate(&srv, &dbConn, &sequenceSvc, &defaults, &bus),
		fx.NopLogger,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return nil, err
	}

	httpSrv := httptest.NewServer(srv.Engine())

	return &testEnv{
		app:         app,
		db:          dbConn,
		sequenceSvc: sequenceSvc,
		defaults:    defaults,
		bus:         bus,
		baseURL:     httpSrv.URL,
		httpSrv:     httpSrv,
	}, nil
}

func (e *testEnv) shutdown() {
	if e == nil {
		return
	}
	if e.httpSrv != nil {
		e.httpSrv.Close()
	}
	if e.app != nil {
		_ = e.app.Stop(context.Background())
	}
	if e.tmpDir != "" {
		_ = os.RemoveAll(e.tmpDir)
	}
}

func setDefaultEnv(tmpDir string) {
	setEnvIfEmpty("ENVIRONMENT", "test")
	setEnvIfEmpty("LOG_LEVEL", "error")
	setEnvIfEmpty("DATABASE_TYPE", "sqlite")
	setEnvIfEmpty("DATABASE_NAME", filepath.Join(tmpDir, "erpcore.db"))
	setEnvIfEmpty("RUN_MIGRATIONS", "true")
	setEnvIfEmpty("SEQUENCE_DEFAULTS_PATH", filepath.Join("..", "..", "sequences.yml"))
}

func setEnvIfEmpty(key, value string) {
	if strings.TrimSpace(os.Getenv(key)) != "" {
		return
	}
	_ = os.Setenv(key, value)
}

// resetDatabase empties every tenant table and seeds the test tenant again.
func resetDatabase(t *testing.T, dbConn *gorm.DB) {
	t.Helper()
	if err := truncateAllTables(dbConn); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	if _, err := seed.EnsureTenant(context.Background(), dbConn, env.sequenceSvc, env.defaults.Get(), e2eTenantID, e2eOwnerUserID); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
}

func truncateAllTables(dbConn *gorm.DB) error {
	if db.IsPostgres(dbConn) {
		type tableRow struct {
			Name string `gorm:"column:tablename"`
		}
		var rows []tableRow
		if err := dbConn.Raw(
			`SELECT tablename FROM pg_tables WHERE schemaname = 'public' AND tablename NOT IN ('schema_migrations', 'casbin_rule')`,
		).Scan(&rows).Error; err != nil {
			return err
		}
		tables := make([]string, 0, len(rows))
		for _, row := range rows {
			if strings.TrimSpace(row.Name) == "" {
				continue
			}
			tables = append(tables, `"`+row.Name+`"`)
		}
		if len(tables) == 0 {
			return nil
		}
		stmt := fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", strings.Join(tables, ", "))
		return dbConn.Exec(stmt).Error
	}

	session := dbConn.Session(&gorm.Session{AllowGlobalUpdate: true})
	for _, model := range migration.Models() {
		if err := session.Unscoped().Delete(model).Error; err != nil {
			return err
		}
	}
	return nil
}

func generate(t *testing.T, name string, values map[string]any) string {
	t.Helper()
	var payload any
	if values != nil {
		payload = map[string]any{"context": values}
	}
	resp, body := doJSON(t, http.MethodPost, "/v1/sequences/"+name+"/generate", payload)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected generate %s to succeed, got %d: %s", name, resp.StatusCode, string(body))
	}
	var out struct {
		Data struct {
			Value string `json:"value"`
		} `json:"data"`
	}
	decode(t, body, &out)
	return out.Data.Value
}

func createProduct(t *testing.T, code, productType, cost string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, "/v1/products", map[string]any{
		"code":          code,
		"name":          strings.ToLower(code),
		"type":          productType,
		"uom":           "pcs",
		"standard_cost": cost,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected product %s to be created, got %d: %s", code, resp.StatusCode, string(body))
	}
	var out struct {
		Data mfgdomain.ProductResponse `json:"data"`
	}
	decode(t, body, &out)
	return out.Data.ID
}

func createBOM(t *testing.T, productID string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, "/v1/boms", map[string]any{"product_id": productID})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected bom to be created, got %d: %s", resp.StatusCode, string(body))
	}
	var out struct {
		Data mfgdomain.BOMResponse `json:"data"`
	}
	decode(t, body, &out)
	if out.Data.Status != mfgdomain.BOMStatusDraft {
		t.Fatalf("expected new bom to be draft, got %s", out.Data.Status)
	}
	return out.Data.ID
}

func addItem(t *testing.T, bomID, componentID, quantity string) {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, "/v1/boms/"+bomID+"/items", map[string]any{
		"component_product_id": componentID,
		"quantity":             quantity,
		"uom":                  "pcs",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected item to be added, got %d: %s", resp.StatusCode, string(body))
	}
}

func activateBOM(t *testing.T, bomID string) {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, "/v1/boms/"+bomID+"/activate", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected bom %s to activate, got %d: %s", bomID, resp.StatusCode, string(body))
	}
}

func countRows(t *testing.T, dbConn *gorm.DB, table string, where string, args ...any) int64 {
	t.Helper()
	var count int64
	if err := dbConn.Table(table).Where(where, args...).Count(&count).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}

func decode(t *testing.T, body []byte, out any) {
	t.Helper()
	if err := json.Unmarshal(body, out); err != nil {
		t.Fatalf("decode response: %v: %s", err, string(body))
	}
}

func doJSON(t *testing.T, method, path string, payload any) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("encode json: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, env.baseURL+path, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(server.HeaderOrg, fmt.Sprintf("%d", e2eTenantID))
	req.Header.Set(server.HeaderActor, e2eActor)

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, data
}
