package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	auditdomain "github.com/smallbiznis/erpcore/internal/audit/domain"
	auditrepository "github.com/smallbiznis/erpcore/internal/audit/repository"
	auditservice "github.com/smallbiznis/erpcore/internal/audit/service"
	"github.com/smallbiznis/erpcore/internal/authorization"
	"github.com/smallbiznis/erpcore/internal/clock"
	"github.com/smallbiznis/erpcore/internal/config"
	"github.com/smallbiznis/erpcore/internal/events"
	"github.com/smallbiznis/erpcore/internal/observability/metrics"
	"github.com/smallbiznis/erpcore/internal/sequence/domain"
	"github.com/smallbiznis/erpcore/internal/sequence/lock"
	"github.com/smallbiznis/erpcore/internal/sequence/pattern"
	"github.com/smallbiznis/erpcore/internal/sequence/repository"
	"github.com/smallbiznis/erpcore/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tenantID int64 = 10

type fakeAuthz struct {
	denied map[string]bool
}

func (f fakeAuthz) Authorize(_ context.Context, actor string, _ int64, _ string, action string) error {
	if actor == "" {
		return authorization.ErrInvalidActor
	}
	if f.denied[action] {
		return authorization.ErrForbidden
	}
	return nil
}

// flakyCounter fails the first n increments with a lock timeout.
type flakyCounter struct {
	domain.CounterRepository
	failures atomic.Int32
}

func (f *flakyCounter) LockAndIncrement(ctx context.Context, cfg domain.SequenceConfig, now time.Time, issue domain.IssueFunc) (domain.IncrementResult, error) {
	if f.failures.Add(-1) >= 0 {
		return domain.IncrementResult{}, domain.ErrLockTimeout
	}
	return f.CounterRepository.LockAndIncrement(ctx, cfg, now, issue)
}

type harness struct {
	svc      domain.Service
	db       *gorm.DB
	clock    *clock.FakeClock
	events   *events.Recorder
	counter  domain.CounterRepository
	authz    *fakeAuthz
	wrapWith func(domain.CounterRepository) domain.CounterRepository
}

type harnessOption func(*harness, *config.Config)

func withRetries(n int) harnessOption {
	return func(_ *harness, cfg *config.Config) { cfg.Sequence.LockRetries = n }
}

func withCounterWrapper(wrap func(domain.CounterRepository) domain.CounterRepository) harnessOption {
	return func(h *harness, _ *config.Config) { h.wrapWith = wrap }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	conn, err := db.NewTest(t.Name())
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Sequence{}, &domain.SerialNumberLog{}, &auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	h := &harness{
		db:     conn,
		clock:  clock.NewFakeClock(time.Date(2024, 11, 15, 9, 30, 0, 0, time.UTC)),
		events: events.NewRecorder(),
		authz:  &fakeAuthz{denied: map[string]bool{}},
	}
	cfg := config.Config{Sequence: config.SequenceConfig{
		LockBackend:   config.LockBackendLocal,
		LockTimeoutMS: 5000,
		LockRetries:   3,
	}}
	for _, opt := range opts {
		opt(h, &cfg)
	}

	seqMetrics := metrics.NewSequenceMetricsForTest(prometheus.NewRegistry())
	repo := repository.ProvideSequenceRepository()
	counter := repository.NewCounterStore(repository.CounterStoreParams{
		DB:      conn,
		Log:     zap.NewNop(),
		Config:  cfg,
		Repo:    repo,
		Locker:  lock.NewLocalLocker(),
		Metrics: seqMetrics,
	})
	if h.wrapWith != nil {
		counter = h.wrapWith(counter)
	}
	h.counter = counter

	audit := auditservice.NewService(auditservice.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepository.Provide(),
		Clock: h.clock,
	})

	h.svc = New(Params{
		DB:         conn,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      h.clock,
		Config:     cfg,
		Defaults:   config.NewStaticSequenceDefaults(config.DefaultSequenceDefaults()),
		Registry:   pattern.NewDefaultRegistry(),
		Repo:       repo,
		LogRepo:    repository.ProvideLogRepository(),
		Counter:    counter,
		Authz:      h.authz,
		AuditSvc:   audit,
		Events:     h.events,
		SeqMetrics: seqMetrics,
	})
	return h
}

func (h *harness) create(t *testing.T, req domain.CreateRequest) *domain.Response {
	t.Helper()
	req.TenantID = tenantID
	if req.Actor == "" {
		req.Actor = "system"
	}
	resp, err := h.svc.CreateSequence(context.Background(), req)
	require.NoError(t, err)
	return resp
}

func (h *harness) generate(t *testing.T, name string, ctx map[string]any) domain.GeneratedNumber {
	t.Helper()
	number, err := h.svc.Generate(context.Background(), domain.GenerateRequest{
		TenantID:     tenantID,
		SequenceName: name,
		Context:      ctx,
		Actor:        "user:1",
	})
	require.NoError(t, err)
	return number
}

func int64Ptr(v int64) *int64 { return &v }
func intPtr(v int) *int       { return &v }

func TestGenerateMonthlyResetScenario(t *testing.T) {
	h := newHarness(t)
	h.create(t, domain.CreateRequest{Name: "quotation", Pattern: "QT-{COUNTER:4}", ResetPeriod: "monthly"})

	assert.Equal(t, "QT-0001", h.generate(t, "quotation", nil).Value())
	assert.Equal(t, "QT-0002", h.generate(t, "quotation", nil).Value())

	h.clock.Set(time.Date(2024, 12, 1, 0, 0, 5, 0, time.UTC))
	first := h.generate(t, "quotation", nil)
	assert.Equal(t, "QT-0001", first.Value())
	assert.Equal(t, true, first.Metadata()["reset"])

	assert.Equal(t, []string{
		events.TopicSequenceGenerated,
		events.TopicSequenceGenerated,
		events.TopicSequenceReset,
		events.TopicSequenceGenerated,
	}, h.events.Topics())

	resets := h.events.Events(events.TopicSequenceReset)
	require.Len(t, resets, 1)
	assert.Equal(t, int64(2), resets[0].Payload["previous"])
}

func TestGenerateYearMonthPattern(t *testing.T) {
	h := newHarness(t)
	h.create(t, domain.CreateRequest{Name: "invoice"})

	number := h.generate(t, "invoice", nil)
	assert.Equal(t, "INV-202411-00001", number.Value())
	assert.Equal(t, int64(1), number.Counter())
}

func TestGenerateCountResetRecyclesToOne(t *testing.T) {
	h := newHarness(t)
	h.create(t, domain.CreateRequest{Name: "batch", Pattern: "B-{COUNTER}", ResetPeriod: "count", ResetLimit: int64Ptr(100)})

	_, err := h.svc.Reset(context.Background(), domain.ResetRequest{
		TenantID: tenantID, SequenceName: "batch", NewValue: 99, Reason: "test setup", Actor: "system",
	})
	require.NoError(t, err)

	preview, err := h.svc.Preview(context.Background(), domain.PreviewRequest{TenantID: tenantID, SequenceName: "batch"})
	require.NoError(t, err)
	assert.True(t, preview.WillResetOnNext)
	assert.Equal(t, int64(1), preview.NextCounter)
	require.NotNil(t, preview.RemainingCount)
	assert.Equal(t, int64(1), *preview.RemainingCount)
	assert.Equal(t, domain.TriggerCount, preview.ResetTrigger)

	number := h.generate(t, "batch", nil)
	assert.Equal(t, int64(1), number.Counter())
	assert.Equal(t, "B-0001", number.Value())
}

func TestPreviewDoesNotMutate(t *testing.T) {
	h := newHarness(t)
	h.create(t, domain.CreateRequest{Name: "po", Pattern: "PO-{YEAR}-{COUNTER}", ResetPeriod: "yearly", StepSize: int64Ptr(5)})
	h.generate(t, "po", nil)

	req := domain.PreviewRequest{TenantID: tenantID, SequenceName: "po"}
	first, err := h.svc.Preview(context.Background(), req)
	require.NoError(t, err)
	second, err := h.svc.Preview(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(5), first.CurrentValue)
	assert.Equal(t, int64(10), first.NextCounter)
	assert.Equal(t, "PO-2024-0010", first.Value)
	require.NotNil(t, first.NextResetAt)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), *first.NextResetAt)
	assert.Nil(t, first.RemainingCount)

	assert.Equal(t, first.Value, h.generate(t, "po", nil).Value())
}

func TestGenerateValidatesContext(t *testing.T) {
	h := newHarness(t)
	h.create(t, domain.CreateRequest{Name: "wo", Pattern: "WO-{DEPARTMENT:UPPER}-{COUNTER}"})

	_, err := h.svc.Generate(context.Background(), domain.GenerateRequest{
		TenantID: tenantID, SequenceName: "wo", Context: map[string]any{"department": []string{"x"}},
	})
	var validationErr *pattern.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.ErrorIs(t, err, domain.ErrInvalidContext)
	assert.NotEmpty(t, validationErr.Result.Errors)

	number := h.generate(t, "wo", map[string]any{"department": "ops"})
	assert.Equal(t, "WO-OPS-0001", number.Value())

	state, err := h.svc.GetSequence(context.Background(), tenantID, "wo")
	require.NoError(t, err)
	assert.Equal(t, int64(1), state.CurrentValue)
}

func TestGenerateUnknownSequence(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Generate(context.Background(), domain.GenerateRequest{TenantID: tenantID, SequenceName: "nope"})
	assert.ErrorIs(t, err, domain.ErrSequenceNotFound)

	_, err = h.svc.Generate(context.Background(), domain.GenerateRequest{TenantID: 0, SequenceName: "nope"})
	assert.ErrorIs(t, err, domain.ErrInvalidTenant)
}

func TestConcurrentGenerateIsUnique(t *testing.T) {
	h := newHarness(t)
	h.create(t, domain.CreateRequest{Name: "ticket", Pattern: "T-{COUNTER:6}"})

	const callers = 100
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		values = map[string]struct{}{}
		errs   []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			number, err := h.svc.Generate(context.Background(), domain.GenerateRequest{TenantID: tenantID, SequenceName: "ticket"})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			values[number.Value()] = struct{}{}
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	want := make(map[string]struct{}, callers)
	for i := 1; i <= callers; i++ {
		want[fmt.Sprintf("T-%06d", i)] = struct{}{}
	}
	assert.Equal(t, want, values)
	assert.Len(t, h.events.Events(events.TopicSequenceGenerated), callers)

	state, err := h.svc.GetSequence(context.Background(), tenantID, "ticket")
	require.NoError(t, err)
	assert.Equal(t, int64(callers), state.CurrentValue)
}

func TestGenerateRetriesLockTimeout(t *testing.T) {
	flaky := &flakyCounter{}
	flaky.failures.Store(2)
	h := newHarness(t, withCounterWrapper(func(inner domain.CounterRepository) domain.CounterRepository {
		flaky.CounterRepository = inner
		return flaky
	}))
	h.create(t, domain.CreateRequest{Name: "retry", Pattern: "R-{COUNTER}"})

	assert.Equal(t, "R-0001", h.generate(t, "retry", nil).Value())
}

func TestGenerateGivesUpAfterRetries(t *testing.T) {
	flaky := &flakyCounter{}
	flaky.failures.Store(10)
	h := newHarness(t, withRetries(1), withCounterWrapper(func(inner domain.CounterRepository) domain.CounterRepository {
		flaky.CounterRepository = inner
		return flaky
	}))
	h.create(t, domain.CreateRequest{Name: "retry", Pattern: "R-{COUNTER}"})

	_, err := h.svc.Generate(context.Background(), domain.GenerateRequest{TenantID: tenantID, SequenceName: "retry"})
	assert.ErrorIs(t, err, domain.ErrLockTimeout)
	assert.Empty(t, h.events.Events(events.TopicSequenceGenerated))
}

func TestOverride(t *testing.T) {
	h := newHarness(t)
	h.create(t, domain.CreateRequest{Name: "receipt", Pattern: "RC-{COUNTER}"})
	h.generate(t, "receipt", nil)

	_, err := h.svc.Override(context.Background(), domain.OverrideRequest{
		TenantID: tenantID, SequenceName: "receipt", Value: "RC-0001", Reason: "reissue", Actor: "user:1",
	})
	var dup *domain.DuplicateNumberError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "RC-0001", dup.Value)

	entry, err := h.svc.Override(context.Background(), domain.OverrideRequest{
		TenantID: tenantID, SequenceName: "receipt", Value: "RC-9000", Reason: "legacy import", Actor: "user:1",
	})
	require.NoError(t, err)
	assert.True(t, entry.Override)
	require.NotNil(t, entry.CounterValue)
	assert.Equal(t, int64(9000), *entry.CounterValue)
	assert.Equal(t, "user", entry.CauserType)
	assert.Equal(t, "1", entry.CauserID)

	// The counter is untouched by overrides.
	assert.Equal(t, "RC-0002", h.generate(t, "receipt", nil).Value())
	assert.Len(t, h.events.Events(events.TopicSequenceOverridden), 1)

	var audits int64
	require.NoError(t, h.db.Model(&auditdomain.AuditLog{}).Where("action = ?", "sequence.override").Count(&audits).Error)
	assert.Equal(t, int64(1), audits)
}

func TestGenerateStepsOverOverriddenNumbers(t *testing.T) {
	h := newHarness(t)
	h.create(t, domain.CreateRequest{Name: "receipt", Pattern: "RC-{COUNTER}"})
	assert.Equal(t, "RC-0001", h.generate(t, "receipt", nil).Value())

	for _, value := range []string{"RC-0002", "RC-0003"} {
		_, err := h.svc.Override(context.Background(), domain.OverrideRequest{
			TenantID: tenantID, SequenceName: "receipt", Value: value, Reason: "manual booking", Actor: "user:1",
		})
		require.NoError(t, err)
	}

	next := h.generate(t, "receipt", nil)
	assert.Equal(t, "RC-0004", next.Value())
	assert.Equal(t, int64(4), next.Counter())
	assert.Equal(t, "RC-0005", h.generate(t, "receipt", nil).Value())

	state, err := h.svc.GetSequence(context.Background(), tenantID, "receipt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), state.CurrentValue)

	var issued int64
	require.NoError(t, h.db.Model(&domain.SerialNumberLog{}).
		Where("tenant_id = ? AND sequence_name = ?", tenantID, "receipt").
		Count(&issued).Error)
	assert.Equal(t, int64(5), issued)
}

func TestOverrideAndResetRequireAuthorization(t *testing.T) {
	h := newHarness(t)
	h.create(t, domain.CreateRequest{Name: "receipt", Pattern: "RC-{COUNTER}"})
	h.authz.denied[authorization.ActionSequenceOverride] = true
	h.authz.denied[authorization.ActionSequenceReset] = true

	_, err := h.svc.Override(context.Background(), domain.OverrideRequest{
		TenantID: tenantID, SequenceName: "receipt", Value: "RC-5", Reason: "x", Actor: "user:2",
	})
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	_, err = h.svc.Reset(context.Background(), domain.ResetRequest{TenantID: tenantID, SequenceName: "receipt", Actor: "user:2"})
	assert.ErrorIs(t, err, authorization.ErrForbidden)
	assert.Empty(t, h.events.Topics())
}

func TestOverrideRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	h.create(t, domain.CreateRequest{Name: "receipt", Pattern: "RC-{COUNTER}"})

	_, err := h.svc.Override(context.Background(), domain.OverrideRequest{
		TenantID: tenantID, SequenceName: "receipt", Value: "  ", Reason: "x", Actor: "system",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidOverride)

	_, err = h.svc.Override(context.Background(), domain.OverrideRequest{
		TenantID: tenantID, SequenceName: "receipt", Value: "RC-1", Actor: "system",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidOverride)
}

func TestResetRejectsNegative(t *testing.T) {
	h := newHarness(t)
	h.create(t, domain.CreateRequest{Name: "receipt", Pattern: "RC-{COUNTER}"})

	_, err := h.svc.Reset(context.Background(), domain.ResetRequest{TenantID: tenantID, SequenceName: "receipt", NewValue: -1, Actor: "system"})
	assert.ErrorIs(t, err, domain.ErrInvalidResetValue)
}

func TestCreateSequenceUsesPresetsAndRejectsDuplicates(t *testing.T) {
	h := newHarness(t)
	resp := h.create(t, domain.CreateRequest{Name: "purchase_order"})
	assert.Equal(t, "PO-{YEAR}-{COUNTER}", resp.Pattern)
	assert.Equal(t, "yearly", resp.ResetPeriod)
	assert.Equal(t, 4, resp.Padding)
	assert.Equal(t, int64(1), resp.Version)

	_, err := h.svc.CreateSequence(context.Background(), domain.CreateRequest{TenantID: tenantID, Actor: "system", Name: "purchase_order"})
	assert.ErrorIs(t, err, domain.ErrSequenceExists)

	_, err = h.svc.CreateSequence(context.Background(), domain.CreateRequest{TenantID: tenantID, Actor: "system", Name: "custom"})
	assert.ErrorIs(t, err, domain.ErrInvalidPattern)

	_, err = h.svc.CreateSequence(context.Background(), domain.CreateRequest{
		TenantID: tenantID, Actor: "system", Name: "padded", Pattern: "P-{COUNTER}", Padding: intPtr(21),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPadding)
}

func TestUpdateSequenceBumpsVersion(t *testing.T) {
	h := newHarness(t)
	h.create(t, domain.CreateRequest{Name: "memo", Pattern: "M-{COUNTER}"})

	next := "MEMO-{YEAR}-{COUNTER}"
	resp, err := h.svc.UpdateSequence(context.Background(), domain.UpdateRequest{
		TenantID: tenantID, Actor: "system", Name: "memo", ExpectedVersion: int64Ptr(1), Pattern: &next,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), resp.Version)
	assert.Equal(t, next, resp.Pattern)

	_, err = h.svc.UpdateSequence(context.Background(), domain.UpdateRequest{
		TenantID: tenantID, Actor: "system", Name: "memo", ExpectedVersion: int64Ptr(1), Pattern: &next,
	})
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	bad := "MEMO-{COUNTER"
	_, err = h.svc.UpdateSequence(context.Background(), domain.UpdateRequest{
		TenantID: tenantID, Actor: "system", Name: "memo", Pattern: &bad,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPattern)

	assert.Equal(t, "MEMO-2024-0001", h.generate(t, "memo", nil).Value())
}

func TestDeleteAndList(t *testing.T) {
	h := newHarness(t)
	h.create(t, domain.CreateRequest{Name: "a", Pattern: "A-{COUNTER}"})
	h.create(t, domain.CreateRequest{Name: "b", Pattern: "B-{COUNTER}", ResetPeriod: "daily"})

	all, err := h.svc.ListSequences(context.Background(), domain.ListRequest{TenantID: tenantID})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	daily, err := h.svc.ListSequences(context.Background(), domain.ListRequest{TenantID: tenantID, ResetPeriod: "daily"})
	require.NoError(t, err)
	require.Len(t, daily, 1)
	assert.Equal(t, "b", daily[0].Name)

	require.NoError(t, h.svc.DeleteSequence(context.Background(), domain.DeleteRequest{TenantID: tenantID, Name: "a", Actor: "system"}))
	_, err = h.svc.GetSequence(context.Background(), tenantID, "a")
	assert.ErrorIs(t, err, domain.ErrSequenceNotFound)
}

func TestValidatePatternMergesContext(t *testing.T) {
	h := newHarness(t)

	res := h.svc.ValidatePattern(context.Background(), domain.ValidatePatternRequest{Pattern: "{YEAR:2}-{COUNTER:0}"})
	assert.False(t, res.Valid)
	assert.Len(t, res.Errors, 2)

	res = h.svc.ValidatePattern(context.Background(), domain.ValidatePatternRequest{
		Pattern: "{DEPARTMENT}-{COUNTER}",
		Context: map[string]any{"department": "ops", "unused": "x"},
	})
	assert.True(t, res.Valid)
	assert.NotEmpty(t, res.Warnings)
}

func TestListLogsPaginates(t *testing.T) {
	h := newHarness(t)
	h.create(t, domain.CreateRequest{Name: "log", Pattern: "L-{COUNTER}"})
	for i := 0; i < 5; i++ {
		h.generate(t, "log", nil)
		h.clock.Advance(time.Second)
	}

	first, err := h.svc.ListLogs(context.Background(), domain.ListLogsRequest{TenantID: tenantID, SequenceName: "log", PageSize: 3})
	require.NoError(t, err)
	require.Len(t, first.Logs, 3)
	assert.True(t, first.HasMore)
	assert.Equal(t, "L-0005", first.Logs[0].GeneratedNumber)

	second, err := h.svc.ListLogs(context.Background(), domain.ListLogsRequest{
		TenantID: tenantID, SequenceName: "log", PageSize: 3, PageToken: first.NextPageToken,
	})
	require.NoError(t, err)
	require.Len(t, second.Logs, 2)
	assert.False(t, second.HasMore)
	assert.Equal(t, "L-0002", second.Logs[0].GeneratedNumber)

	_, err = h.svc.ListLogs(context.Background(), domain.ListLogsRequest{TenantID: tenantID, PageToken: "%%%"})
	assert.True(t, errors.Is(err, domain.ErrInvalidPageToken))
}
