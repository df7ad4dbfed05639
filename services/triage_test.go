package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"outreachly/ai"
	"outreachly/mailbox"
	"outreachly/models"
	"outreachly/testutil"
	"outreachly/utils"
)

func TestPipelineHardGoesToReview(t *testing.T) {
	env := newTestEnv(t)
	user, box := env.tenant(t, models.PlanFree)

	out := env.pipeline.Process(context.Background(), box, inboundMessage(1, "Contract question"))
	if out.Kind != OutcomeHard || out.Reason != ReasonClassifiedHard {
		t.Fatalf("outcome = %+v, want hard", out)
	}

	var review models.HardEmail
	if err := env.db.Where("user_id = ?", user.ID).First(&review).Error; err != nil {
		t.Fatal(err)
	}
	if review.Status != models.HardEmailHard || review.SourceMessageID != "1" {
		t.Fatalf("review = %+v", review)
	}
	if len(env.provider.Sent()) != 0 {
		t.Fatal("hard email triggered a send")
	}
	stats := env.overview(t, user.ID)
	if stats.TotalProcessed != 1 || stats.Hard != 1 {
		t.Fatalf("analytics = %+v", stats)
	}
}

func TestPipelineEasyRepliesInThread(t *testing.T) {
	env := newTestEnv(t)
	user, box := env.tenant(t, models.PlanFree)
	env.classifier.Answer(ai.DecisionEasy)

	msg := inboundMessage(3, "Office hours")
	out := env.pipeline.Process(context.Background(), box, msg)
	if out.Kind != OutcomeEasy || out.Reply != "Thanks, happy to help." {
		t.Fatalf("outcome = %+v, want easy with reply", out)
	}

	sent := env.provider.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sent))
	}
	if sent[0].To != "dana@client.test" || sent[0].Subject != "Re: Office hours" || sent[0].InReplyTo != msg.MessageID {
		t.Fatalf("reply = %+v", sent[0])
	}
	if len(env.provider.Read()) != 1 || env.provider.Read()[0] != "3" {
		t.Fatalf("marked read = %v", env.provider.Read())
	}

	var entry models.EmailLog
	if err := env.db.Where("user_id = ? AND status = ?", user.ID, models.EmailLogEasy).First(&entry).Error; err != nil {
		t.Fatal(err)
	}
	if entry.MessageID == "" || entry.Reply != out.Reply {
		t.Fatalf("email log = %+v", entry)
	}
	if stats := env.overview(t, user.ID); stats.AutoReplied != 1 || stats.TotalProcessed != 1 {
		t.Fatalf("analytics = %+v", stats)
	}
	if used := usedOf(t, env, user.ID, models.ResourceAutoReplies); used != 1 {
		t.Fatalf("autoReplies used = %d, want 1", used)
	}
}

func TestPipelineLocalJunkFilterSkipsClassifier(t *testing.T) {
	env := newTestEnv(t)
	user, box := env.tenant(t, models.PlanFree)

	msg := inboundMessage(8, "Congratulations, you won a cruise")
	out := env.pipeline.Process(context.Background(), box, msg)
	if out.Kind != OutcomeJunk {
		t.Fatalf("outcome = %+v, want junk", out)
	}
	if env.classifier.Calls() != 0 {
		t.Fatal("classifier called for locally filtered junk")
	}
	if trashed := env.provider.Trashed(); len(trashed) != 1 || trashed[0] != "8" {
		t.Fatalf("trashed = %v", trashed)
	}
	if stats := env.overview(t, user.ID); stats.Spam != 1 {
		t.Fatalf("analytics = %+v", stats)
	}
	// Junk still counts as an analysis.
	if used := usedOf(t, env, user.ID, models.ResourceEmailAnalyses); used != 1 {
		t.Fatalf("emailAnalyses used = %d, want 1", used)
	}
}

func TestPipelineClassifiedJunkTrashFailureGoesToReview(t *testing.T) {
	env := newTestEnv(t)
	user, box := env.tenant(t, models.PlanFree)
	env.classifier.Answer(ai.DecisionJunk)
	env.provider.TrashErr = errors.New("imap: connection reset")

	out := env.pipeline.Process(context.Background(), box, inboundMessage(2, "Partnership"))
	if out.Kind != OutcomeError || out.Reason != ReasonTrashFailed {
		t.Fatalf("outcome = %+v, want error trash_failed", out)
	}
	var count int64
	env.db.Model(&models.HardEmail{}).Where("user_id = ? AND reason = ?", user.ID, ReasonTrashFailed).Count(&count)
	if count != 1 {
		t.Fatalf("review rows = %d, want 1", count)
	}
}

func TestPipelineClassificationTimeout(t *testing.T) {
	env := newTestEnv(t)
	user, box := env.tenant(t, models.PlanFree)
	pipeline := NewPipeline(env.db, env.ledger, env.provider, env.classifier, env.generator, env.analytics, PipelineConfig{
		ClassifyTimeout: 20 * time.Millisecond,
	}, discardLogger())
	env.classifier.Fn = func(ctx context.Context, _, _ string) (ai.Classification, error) {
		<-ctx.Done()
		return ai.Classification{}, ctx.Err()
	}

	out := pipeline.Process(context.Background(), box, inboundMessage(4, "Quarterly plan"))
	if out.Kind != OutcomeError || out.Reason != ReasonClassificationTimeout {
		t.Fatalf("outcome = %+v, want error classification_timeout", out)
	}
	var review models.HardEmail
	if err := env.db.Where("user_id = ?", user.ID).First(&review).Error; err != nil {
		t.Fatal(err)
	}
	if review.Status != models.HardEmailHard {
		t.Fatalf("review status = %q", review.Status)
	}
}

func TestPipelineQuotaExceededThrottles(t *testing.T) {
	env := newTestEnv(t)
	user, box := env.tenant(t, models.PlanFree)
	testutil.SetPlanLimit(t, env.db, models.PlanFree, "email_analyses_per_month", utils.Pointer(0))

	out := env.pipeline.Process(context.Background(), box, inboundMessage(9, "Hello"))
	if out.Kind != OutcomeQuotaExceeded {
		t.Fatalf("outcome = %+v, want quota exceeded", out)
	}
	if env.classifier.Calls() != 0 {
		t.Fatal("classifier called past quota")
	}
	var review models.HardEmail
	if err := env.db.Where("user_id = ?", user.ID).First(&review).Error; err != nil {
		t.Fatal(err)
	}
	if review.Status != models.HardEmailThrottled {
		t.Fatalf("review status = %q, want throttled", review.Status)
	}
	if stats := env.overview(t, user.ID); stats.Throttled != 1 || stats.TotalProcessed != 0 {
		t.Fatalf("analytics = %+v", stats)
	}
}

func TestPipelineAutoReplyQuotaRoutesToReview(t *testing.T) {
	env := newTestEnv(t)
	_, box := env.tenant(t, models.PlanFree)
	testutil.SetPlanLimit(t, env.db, models.PlanFree, "auto_replies_per_month", utils.Pointer(0))
	env.classifier.Answer(ai.DecisionEasy)

	out := env.pipeline.Process(context.Background(), box, inboundMessage(5, "Demo"))
	if out.Kind != OutcomeHard || out.Reason != ReasonAutoReplyQuota {
		t.Fatalf("outcome = %+v, want hard auto_reply_quota", out)
	}
	if len(env.provider.Sent()) != 0 {
		t.Fatal("reply sent without autoReplies quota")
	}
}

func TestPipelineSendFailureGoesToReview(t *testing.T) {
	env := newTestEnv(t)
	_, box := env.tenant(t, models.PlanFree)
	env.classifier.Answer(ai.DecisionEasy)
	env.provider.SendErr = errors.New("smtp: 421 try later")

	out := env.pipeline.Process(context.Background(), box, inboundMessage(6, "Docs"))
	if out.Kind != OutcomeError || out.Reason != ReasonSendFailed {
		t.Fatalf("outcome = %+v, want error send_failed", out)
	}
}

func TestPipelineGenerationFailureGoesToReview(t *testing.T) {
	env := newTestEnv(t)
	_, box := env.tenant(t, models.PlanFree)
	env.classifier.Answer(ai.DecisionEasy)
	env.generator.ReplyErr = ai.ErrUnavailable

	out := env.pipeline.Process(context.Background(), box, inboundMessage(6, "Docs"))
	if out.Kind != OutcomeError || out.Reason != ReasonReplyFailed {
		t.Fatalf("outcome = %+v, want error reply_generation_failed", out)
	}
}

func TestPipelineRecoversFromPanic(t *testing.T) {
	env := newTestEnv(t)
	_, box := env.tenant(t, models.PlanFree)
	env.classifier.Fn = func(context.Context, string, string) (ai.Classification, error) {
		panic("classifier exploded")
	}

	out := env.pipeline.Process(context.Background(), box, inboundMessage(7, "Pricing"))
	if out.Kind != OutcomeError || out.Reason != ReasonInternalError {
		t.Fatalf("outcome = %+v, want error internal_error", out)
	}
}

func TestPipelineContactReplyStopsSequence(t *testing.T) {
	env := newTestEnv(t)
	user, box := env.tenant(t, models.PlanFree)
	contact := createContact(t, env, user.ID, "dana@client.test")
	ctx := context.Background()

	if _, err := env.engine.CreateSequence(ctx, SequenceRequest{
		TenantID:   user.ID,
		ContactID:  contact.ID,
		FirstBody:  "Hi Dana",
		DayOffsets: []int{2},
		FollowUps:  []string{"Checking in"},
	}); err != nil {
		t.Fatal(err)
	}

	msg := mailbox.Message{ID: "11", Subject: "Re: Quick question", Sender: "Dana <Dana@client.test>", Body: "Sounds good", Ordinal: 11}
	env.pipeline.Process(ctx, box, msg)

	var reloaded models.Contact
	env.db.First(&reloaded, contact.ID)
	if reloaded.Status != models.ContactReplied {
		t.Fatalf("contact status = %q, want replied", reloaded.Status)
	}
	if env.sched.Has(stepJobKey(contact.ID, 2)) {
		t.Fatal("step 2 still scheduled after reply")
	}
	steps, _ := env.engine.Steps(ctx, user.ID, contact.ID)
	if steps[1].Status != models.StepCancelled {
		t.Fatalf("step 2 status = %q, want cancelled", steps[1].Status)
	}
}
