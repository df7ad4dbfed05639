package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"outreachly/mailbox"
	"outreachly/models"
	"outreachly/scheduler"
	"outreachly/testutil"
)

var testEpoch = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

var tenantSeq atomic.Int64

type testEnv struct {
	db         *gorm.DB
	clock      *scheduler.FakeClock
	sched      *scheduler.Scheduler
	ledger     *Ledger
	analytics  *Analytics
	provider   *testutil.MailProvider
	classifier *testutil.Classifier
	generator  *testutil.Generator
	cursor     *Cursor
	pipeline   *Pipeline
	poller     *Poller
	registry   *Registry
	engine     *SequenceEngine
	reviews    *ReviewQueue
	contacts   *Contacts
	emailLogs  *EmailLogs
	coldEmails *ColdEmails
	mailboxes  *Mailboxes
}

func discardLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := discardLogger()

	env := &testEnv{
		db:         testutil.NewDB(t),
		clock:      scheduler.NewFakeClock(testEpoch),
		provider:   &testutil.MailProvider{},
		classifier: &testutil.Classifier{},
		generator:  &testutil.Generator{Reply: "Thanks, happy to help."},
	}
	env.sched = scheduler.New(env.clock, log)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = env.sched.Shutdown(ctx)
	})

	env.ledger = NewLedger(env.db, env.clock, log)
	env.analytics = NewAnalytics(env.db, env.clock, log)
	env.cursor = NewCursor(env.db, env.provider, 0, log)
	env.pipeline = NewPipeline(env.db, env.ledger, env.provider, env.classifier, env.generator, env.analytics, PipelineConfig{
		ClassifyTimeout: time.Second,
		GenerateTimeout: time.Second,
	}, log)
	env.poller = NewPoller(env.db, env.cursor, env.pipeline, NewLocalLocker(), env.clock, PollerConfig{
		MaxResults:  100,
		Concurrency: 1,
	}, log)
	env.registry = NewRegistry(env.db, env.sched, env.poller, RegistryConfig{
		DefaultInterval: time.Minute,
		FreeTierMaxRun:  3 * time.Hour,
	}, log)
	env.engine = NewSequenceEngine(env.db, env.sched, env.provider, env.generator, env.ledger, env.analytics, time.Second, log)
	env.pipeline.SetReplyObserver(env.engine)
	env.reviews = NewReviewQueue(env.db, env.provider, env.generator, time.Second, log)
	env.contacts = NewContacts(env.db, env.ledger, log)
	env.emailLogs = NewEmailLogs(env.db)
	env.coldEmails = NewColdEmails(env.db, env.generator, time.Second, log)
	env.mailboxes = NewMailboxes(env.db, log)
	return env
}

// tenant creates a user with an active mailbox.
func (env *testEnv) tenant(t *testing.T, plan string) (*models.User, *models.Mailbox) {
	t.Helper()
	user := testutil.CreateUser(t, env.db, fmt.Sprintf("owner%d@acme.test", tenantSeq.Add(1)), plan)
	return user, testutil.CreateMailbox(t, env.db, user.ID)
}

func (env *testEnv) overview(t *testing.T, tenantID uint) models.AnalyticsOverview {
	t.Helper()
	var row models.AnalyticsOverview
	err := env.db.Where("user_id = ?", tenantID).First(&row).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("load analytics: %v", err)
	}
	return row
}

func inboundMessage(uid uint32, subject string) mailbox.Message {
	return mailbox.Message{
		ID:        strconv.FormatUint(uint64(uid), 10),
		MessageID: fmt.Sprintf("<msg-%d@client.test>", uid),
		Subject:   subject,
		Sender:    "Dana Client <dana@client.test>",
		Snippet:   "Could you tell me more about your onboarding?",
		Body:      "Could you tell me more about your onboarding?",
		Ordinal:   uid,
	}
}
