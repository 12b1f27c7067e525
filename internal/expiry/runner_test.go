package expiry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	dbutil "github.com/livemerce/pointsledger/internal/db"
	"github.com/livemerce/pointsledger/internal/events"
	"github.com/livemerce/pointsledger/internal/ledger"
	"github.com/livemerce/pointsledger/internal/models"
	"github.com/livemerce/pointsledger/internal/settings"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type recordedEvent struct {
	channel string
	userID  uint64
	payload any
}

// recordingPublisher captures published events for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, userID uint64, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{channel: channel, userID: userID, payload: payload})
	return nil
}

func (p *recordingPublisher) byChannel(channel string) []recordedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []recordedEvent
	for _, evt := range p.events {
		if evt.channel == channel {
			out = append(out, evt)
		}
	}
	return out
}

type runnerFixture struct {
	db        *gorm.DB
	ledger    *ledger.Service
	provider  *settings.Provider
	publisher *recordingPublisher
	runner    *Runner
}

func newRunnerFixture(t *testing.T) *runnerFixture {
	t.Helper()
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := dbutil.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	ledgerSvc := ledger.NewService(conn)
	provider := settings.NewProvider(conn)
	publisher := &recordingPublisher{}
	return &runnerFixture{
		db:        conn,
		ledger:    ledgerSvc,
		provider:  provider,
		publisher: publisher,
		runner:    NewRunner(conn, ledgerSvc, provider, publisher),
	}
}

func (f *runnerFixture) earnExpiring(t *testing.T, userID uint64, amount int64, expiresAt time.Time) {
	t.Helper()
	if _, errAdd := f.ledger.AddPoints(context.Background(), ledger.AddParams{
		UserID:          userID,
		Amount:          amount,
		TransactionType: models.TransactionEarnedOrder,
		ExpiresAt:       &expiresAt,
	}); errAdd != nil {
		t.Fatalf("earn expiring points: %v", errAdd)
	}
}

func TestRunExpiresMaturedPoints(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Hour)

	f.earnExpiring(t, 1, 500, past)
	f.earnExpiring(t, 1, 300, past)

	if errRun := f.runner.Run(ctx); errRun != nil {
		t.Fatalf("run: %v", errRun)
	}

	summary, errGet := f.ledger.GetBalance(ctx, 1)
	if errGet != nil {
		t.Fatalf("get balance: %v", errGet)
	}
	if summary.CurrentBalance != 0 {
		t.Fatalf("expected balance 0 after expiration, got %d", summary.CurrentBalance)
	}
	if summary.LifetimeExpired != 800 {
		t.Fatalf("expected lifetime expired 800, got %d", summary.LifetimeExpired)
	}

	var expiredCount int64
	if errCount := f.db.Model(&models.PointTransaction{}).
		Where("transaction_type = ?", models.TransactionExpired).
		Count(&expiredCount).Error; errCount != nil {
		t.Fatalf("count expired rows: %v", errCount)
	}
	if expiredCount != 1 {
		t.Fatalf("expected one EXPIRED transaction per user, got %d", expiredCount)
	}
}

func TestRunCapsExpirationAtLiveBalance(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Hour)

	f.earnExpiring(t, 2, 800, past)
	if _, errDeduct := f.ledger.DeductPoints(ctx, ledger.DeductParams{
		UserID: 2, Amount: 300, TransactionType: models.TransactionUsed,
	}); errDeduct != nil {
		t.Fatalf("spend points: %v", errDeduct)
	}

	if errRun := f.runner.Run(ctx); errRun != nil {
		t.Fatalf("run: %v", errRun)
	}

	summary, errGet := f.ledger.GetBalance(ctx, 2)
	if errGet != nil {
		t.Fatalf("get balance: %v", errGet)
	}
	if summary.CurrentBalance != 0 {
		t.Fatalf("expected balance 0, got %d", summary.CurrentBalance)
	}
	// Only the 500 still held can expire, not the nominal 800.
	if summary.LifetimeExpired != 500 {
		t.Fatalf("expected lifetime expired 500, got %d", summary.LifetimeExpired)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Hour)

	f.earnExpiring(t, 3, 400, past)
	if _, errAdd := f.ledger.AddPoints(ctx, ledger.AddParams{
		UserID: 3, Amount: 100, TransactionType: models.TransactionManualAdd, Reason: "bonus after expiring batch",
	}); errAdd != nil {
		t.Fatalf("add bonus: %v", errAdd)
	}

	if errRun := f.runner.Run(ctx); errRun != nil {
		t.Fatalf("first run: %v", errRun)
	}
	if errRun := f.runner.Run(ctx); errRun != nil {
		t.Fatalf("second run: %v", errRun)
	}

	summary, errGet := f.ledger.GetBalance(ctx, 3)
	if errGet != nil {
		t.Fatalf("get balance: %v", errGet)
	}
	// The second run must not touch the 100 bonus points.
	if summary.CurrentBalance != 100 {
		t.Fatalf("expected balance 100 after repeated runs, got %d", summary.CurrentBalance)
	}
	if summary.LifetimeExpired != 400 {
		t.Fatalf("expected lifetime expired 400, got %d", summary.LifetimeExpired)
	}
}

func TestRunSkipsZeroBalanceUsers(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Hour)

	f.earnExpiring(t, 4, 200, past)
	if _, errDeduct := f.ledger.DeductPoints(ctx, ledger.DeductParams{
		UserID: 4, Amount: 200, TransactionType: models.TransactionUsed,
	}); errDeduct != nil {
		t.Fatalf("spend all points: %v", errDeduct)
	}

	if errRun := f.runner.Run(ctx); errRun != nil {
		t.Fatalf("run: %v", errRun)
	}

	summary, errGet := f.ledger.GetBalance(ctx, 4)
	if errGet != nil {
		t.Fatalf("get balance: %v", errGet)
	}
	if summary.CurrentBalance != 0 || summary.LifetimeExpired != 0 {
		t.Fatalf("zero-balance user must be skipped, got %+v", summary)
	}

	var expiredCount int64
	if errCount := f.db.Model(&models.PointTransaction{}).
		Where("transaction_type = ?", models.TransactionExpired).
		Count(&expiredCount).Error; errCount != nil {
		t.Fatalf("count expired rows: %v", errCount)
	}
	if expiredCount != 0 {
		t.Fatalf("no EXPIRED transaction expected for skipped user, got %d", expiredCount)
	}
}

func TestRunAnnouncesExpiringSoon(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	soonest := now.Add(3 * 24 * time.Hour)
	later := now.Add(5 * 24 * time.Hour)
	f.earnExpiring(t, 5, 120, later)
	f.earnExpiring(t, 5, 80, soonest)
	// Outside the warning horizon, must not be announced.
	f.earnExpiring(t, 5, 999, now.Add(30*24*time.Hour))
	f.earnExpiring(t, 6, 40, soonest)

	if errRun := f.runner.Run(ctx); errRun != nil {
		t.Fatalf("run: %v", errRun)
	}

	warnings := f.publisher.byChannel(events.ChannelPointsExpiringSoon)
	if len(warnings) != 2 {
		t.Fatalf("expected one warning per user, got %d", len(warnings))
	}
	for _, evt := range warnings {
		payload, ok := evt.payload.(events.ExpiringSoonEvent)
		if !ok {
			t.Fatalf("unexpected payload type %T", evt.payload)
		}
		switch evt.userID {
		case 5:
			if payload.ExpiringAmount != 200 {
				t.Fatalf("user 5: expected summed amount 200, got %d", payload.ExpiringAmount)
			}
			if payload.ExpiresAt.Unix() != soonest.Unix() {
				t.Fatalf("user 5: expected earliest expiry %v, got %v", soonest, payload.ExpiresAt)
			}
		case 6:
			if payload.ExpiringAmount != 40 {
				t.Fatalf("user 6: expected amount 40, got %d", payload.ExpiringAmount)
			}
		default:
			t.Fatalf("unexpected warning for user %d", evt.userID)
		}
	}
}

func TestRunNoOpWhenExpirationDisabled(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()
	disabled := false
	if _, errUpdate := f.provider.Update(ctx, settings.UpdateParams{PointExpirationEnabled: &disabled}); errUpdate != nil {
		t.Fatalf("disable expiration: %v", errUpdate)
	}

	f.earnExpiring(t, 8, 300, time.Now().UTC().Add(-time.Hour))

	if errRun := f.runner.Run(ctx); errRun != nil {
		t.Fatalf("run: %v", errRun)
	}

	summary, errGet := f.ledger.GetBalance(ctx, 8)
	if errGet != nil {
		t.Fatalf("get balance: %v", errGet)
	}
	if summary.CurrentBalance != 300 || summary.LifetimeExpired != 0 {
		t.Fatalf("disabled run must not expire points, got %+v", summary)
	}
	if len(f.publisher.events) != 0 {
		t.Fatalf("disabled run must not publish, got %d events", len(f.publisher.events))
	}
}

func TestNextRunAt(t *testing.T) {
	loc := time.UTC
	beforeRun := time.Date(2026, 8, 28, 2, 30, 0, 0, loc)
	next := nextRunAt(beforeRun)
	if next.Day() != 28 || next.Hour() != runHour {
		t.Fatalf("expected same-day run, got %v", next)
	}

	afterRun := time.Date(2026, 8, 28, 10, 0, 0, 0, loc)
	next = nextRunAt(afterRun)
	if next.Day() != 29 || next.Hour() != runHour {
		t.Fatalf("expected next-day run, got %v", next)
	}
}
