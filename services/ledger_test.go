package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"outreachly/models"
	"outreachly/testutil"
	"outreachly/utils"
)

func TestLedgerQuotaBoundaryAndRollover(t *testing.T) {
	env := newTestEnv(t)
	user := testutil.CreateUser(t, env.db, "t@acme.com", models.PlanFree)
	testutil.SetPlanLimit(t, env.db, models.PlanFree, "email_analyses_per_month", utils.Pointer(3))
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if !env.ledger.TryConsume(ctx, user.ID, models.ResourceEmailAnalyses, 1) {
			t.Fatalf("consume %d failed, want success", i)
		}
	}
	if env.ledger.TryConsume(ctx, user.ID, models.ResourceEmailAnalyses, 1) {
		t.Fatal("consume 4 succeeded past the limit")
	}
	if got := usedOf(t, env, user.ID, models.ResourceEmailAnalyses); got != 3 {
		t.Fatalf("used = %d, want 3", got)
	}

	// Still March: another resource is counted independently.
	if !env.ledger.TryConsume(ctx, user.ID, models.ResourceAutoReplies, 1) {
		t.Fatal("autoReplies consume failed")
	}

	// April.
	env.clock.Advance(31 * 24 * time.Hour)
	if !env.ledger.TryConsume(ctx, user.ID, models.ResourceEmailAnalyses, 1) {
		t.Fatal("consume after rollover failed")
	}
	if got := usedOf(t, env, user.ID, models.ResourceEmailAnalyses); got != 1 {
		t.Fatalf("used after rollover = %d, want 1", got)
	}
	if got := usedOf(t, env, user.ID, models.ResourceAutoReplies); got != 0 {
		t.Fatalf("autoReplies after rollover = %d, want 0", got)
	}

	var reloaded models.User
	env.db.First(&reloaded, user.ID)
	if reloaded.UsageResetAt == nil || !reloaded.UsageResetAt.Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("usage_reset_at = %v, want 2026-04-01", reloaded.UsageResetAt)
	}
}

func TestLedgerAmountLargerThanRemaining(t *testing.T) {
	env := newTestEnv(t)
	user := testutil.CreateUser(t, env.db, "t@acme.com", models.PlanFree)
	testutil.SetPlanLimit(t, env.db, models.PlanFree, "contacts_per_month", utils.Pointer(5))
	ctx := context.Background()

	if !env.ledger.TryConsume(ctx, user.ID, models.ResourceContactsImported, 4) {
		t.Fatal("consume 4 failed")
	}
	if env.ledger.TryConsume(ctx, user.ID, models.ResourceContactsImported, 2) {
		t.Fatal("consume 2 succeeded with 1 remaining")
	}
	if got := usedOf(t, env, user.ID, models.ResourceContactsImported); got != 4 {
		t.Fatalf("used = %d, want 4", got)
	}
	if env.ledger.TryConsume(ctx, user.ID, models.ResourceContactsImported, 0) {
		t.Fatal("zero amount accepted")
	}
}

func TestLedgerUnlimitedResource(t *testing.T) {
	env := newTestEnv(t)
	user := testutil.CreateUser(t, env.db, "t@acme.com", models.PlanPro)
	testutil.SetPlanLimit(t, env.db, models.PlanPro, "auto_replies_per_month", nil)

	for i := 0; i < 250; i++ {
		if !env.ledger.TryConsume(context.Background(), user.ID, models.ResourceAutoReplies, 1) {
			t.Fatalf("unlimited consume %d failed", i)
		}
	}
	if got := usedOf(t, env, user.ID, models.ResourceAutoReplies); got != 250 {
		t.Fatalf("used = %d, want 250", got)
	}
}

func TestLedgerUnknownTenantFailsClosed(t *testing.T) {
	env := newTestEnv(t)
	if env.ledger.TryConsume(context.Background(), 9999, models.ResourceEmailAnalyses, 1) {
		t.Fatal("unknown tenant consumed quota")
	}
}

func TestLedgerConcurrentConsumersNeverOvershoot(t *testing.T) {
	env := newTestEnv(t)
	user := testutil.CreateUser(t, env.db, "t@acme.com", models.PlanFree)
	testutil.SetPlanLimit(t, env.db, models.PlanFree, "email_analyses_per_month", utils.Pointer(10))

	var wg sync.WaitGroup
	var granted atomic.Int32
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if env.ledger.TryConsume(context.Background(), user.ID, models.ResourceEmailAnalyses, 1) {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	if granted.Load() != 10 {
		t.Fatalf("granted = %d, want 10", granted.Load())
	}
	if got := usedOf(t, env, user.ID, models.ResourceEmailAnalyses); got != 10 {
		t.Fatalf("used = %d, want 10", got)
	}
}

func TestLedgerUsageSnapshot(t *testing.T) {
	env := newTestEnv(t)
	user := testutil.CreateUser(t, env.db, "t@acme.com", models.PlanFree)
	ctx := context.Background()
	env.ledger.TryConsume(ctx, user.ID, models.ResourceEmailAnalyses, 7)

	snapshot, err := env.ledger.Usage(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if snapshot.Plan != models.PlanFree || !snapshot.ResetsAt.Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("snapshot = %+v", snapshot)
	}
	for _, item := range snapshot.Items {
		if item.Resource != models.ResourceEmailAnalyses {
			continue
		}
		if item.Used != 7 || item.Limit == nil || *item.Limit != 100 || *item.Remaining != 93 {
			t.Fatalf("emailAnalyses item = %+v", item)
		}
		return
	}
	t.Fatal("emailAnalyses missing from snapshot")
}

func usedOf(t *testing.T, env *testEnv, tenantID uint, resource string) int {
	t.Helper()
	var counter models.UsageCounter
	if err := env.db.Where("user_id = ? AND resource = ?", tenantID, resource).First(&counter).Error; err != nil {
		t.Fatalf("load counter: %v", err)
	}
	return counter.Used
}
