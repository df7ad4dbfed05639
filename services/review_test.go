package services

import (
	"context"
	"errors"
	"testing"

	"outreachly/models"
	"outreachly/testutil"
	"outreachly/utils"
)

func TestReviewQueueListAndReply(t *testing.T) {
	env := newTestEnv(t)
	user, box := env.tenant(t, models.PlanFree)
	ctx := context.Background()

	msg := inboundMessage(21, "Contract terms")
	env.provider.SetUnseen(msg)
	env.pipeline.Process(ctx, box, msg)

	queued, err := env.reviews.List(ctx, user.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(queued) != 1 || queued[0].Status != models.HardEmailHard {
		t.Fatalf("queue = %+v", queued)
	}

	replied, err := env.reviews.Reply(ctx, user.ID, queued[0].ID, "Let me get back to you with the redlines.", false)
	if err != nil {
		t.Fatal(err)
	}
	if replied.Status != models.HardEmailReplied {
		t.Fatalf("status = %q", replied.Status)
	}
	sent := env.provider.Sent()
	if len(sent) != 1 || sent[0].To != "dana@client.test" || sent[0].Subject != "Re: Contract terms" || sent[0].InReplyTo != msg.MessageID {
		t.Fatalf("sent = %+v", sent)
	}

	if _, err := env.reviews.Reply(ctx, user.ID, queued[0].ID, "again", false); !errors.Is(err, ErrAlreadyReplied) {
		t.Fatalf("second reply err = %v, want ErrAlreadyReplied", err)
	}
	if open, _ := env.reviews.List(ctx, user.ID, ""); len(open) != 0 {
		t.Fatalf("open queue = %d, want 0", len(open))
	}
	if done, _ := env.reviews.List(ctx, user.ID, models.HardEmailReplied); len(done) != 1 {
		t.Fatalf("replied = %d, want 1", len(done))
	}
}

func TestReviewQueueReplyErrors(t *testing.T) {
	env := newTestEnv(t)
	user, box := env.tenant(t, models.PlanFree)
	other, _ := env.tenant(t, models.PlanFree)
	ctx := context.Background()
	env.pipeline.Process(ctx, box, inboundMessage(1, "Invoice"))

	queued, _ := env.reviews.List(ctx, user.ID, models.HardEmailHard)
	if len(queued) != 1 {
		t.Fatalf("queue = %d", len(queued))
	}
	if _, err := env.reviews.Reply(ctx, other.ID, queued[0].ID, "hi", false); !errors.Is(err, ErrHardEmailNotFound) {
		t.Fatalf("cross-tenant reply err = %v", err)
	}
	if _, err := env.reviews.Reply(ctx, user.ID, queued[0].ID, " ", false); !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("empty reply err = %v", err)
	}
}

func TestReviewQueuePolishedReply(t *testing.T) {
	env := newTestEnv(t)
	user, box := env.tenant(t, models.PlanFree)
	ctx := context.Background()
	env.pipeline.Process(ctx, box, inboundMessage(4, "Pricing question"))

	queued, _ := env.reviews.List(ctx, user.ID, models.HardEmailHard)
	if len(queued) != 1 {
		t.Fatalf("queue = %d", len(queued))
	}
	before := len(env.generator.ReplyRequests())

	replied, err := env.reviews.Reply(ctx, user.ID, queued[0].ID, "we can do 10% off", true)
	if err != nil {
		t.Fatal(err)
	}
	if replied.Reply != "Thanks, happy to help." {
		t.Fatalf("stored reply = %q", replied.Reply)
	}
	sent := env.provider.Sent()
	if len(sent) != 1 || sent[0].Body != "Thanks, happy to help." {
		t.Fatalf("sent = %+v", sent)
	}

	requests := env.generator.ReplyRequests()[before:]
	if len(requests) != 1 {
		t.Fatalf("generator calls = %d, want 1", len(requests))
	}
	if requests[0].Body != "we can do 10% off" || requests[0].SignOff != box.FromName || requests[0].SenderName != "Dana Client" {
		t.Fatalf("request = %+v", requests[0])
	}
}

func TestReviewQueuePolishFailureSendsNothing(t *testing.T) {
	env := newTestEnv(t)
	user, box := env.tenant(t, models.PlanFree)
	ctx := context.Background()
	env.pipeline.Process(ctx, box, inboundMessage(5, "Pricing question"))

	queued, _ := env.reviews.List(ctx, user.ID, models.HardEmailHard)
	if len(queued) != 1 {
		t.Fatalf("queue = %d", len(queued))
	}
	env.generator.ReplyErr = errors.New("model overloaded")

	if _, err := env.reviews.Reply(ctx, user.ID, queued[0].ID, "draft", true); !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("err = %v, want ErrGenerationFailed", err)
	}
	if sent := env.provider.Sent(); len(sent) != 0 {
		t.Fatalf("sent = %+v", sent)
	}
	if open, _ := env.reviews.List(ctx, user.ID, models.HardEmailHard); len(open) != 1 {
		t.Fatalf("open queue = %d, want 1", len(open))
	}
}

func TestContactsCreateConsumesQuota(t *testing.T) {
	env := newTestEnv(t)
	user, _ := env.tenant(t, models.PlanFree)
	testutil.SetPlanLimit(t, env.db, models.PlanFree, "contacts_per_month", utils.Pointer(2))
	ctx := context.Background()

	contact, err := env.contacts.Create(ctx, user.ID, ContactInput{Name: " Dana ", Email: "Dana@Client.test"})
	if err != nil {
		t.Fatal(err)
	}
	if contact.Email != "dana@client.test" || contact.Name != "Dana" || contact.Status != models.ContactPending || contact.Source != "manual" {
		t.Fatalf("contact = %+v", contact)
	}

	if _, err := env.contacts.Create(ctx, user.ID, ContactInput{Email: "not-an-email"}); err == nil {
		t.Fatal("invalid email accepted")
	}
	if _, err := env.contacts.Create(ctx, user.ID, ContactInput{Email: "lee@client.test"}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.contacts.Create(ctx, user.ID, ContactInput{Email: "kim@client.test"}); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}

	list, err := env.contacts.List(ctx, user.ID, "")
	if err != nil || len(list) != 2 {
		t.Fatalf("List = %d, %v", len(list), err)
	}
	if err := env.contacts.Delete(ctx, user.ID, contact.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.contacts.Get(ctx, user.ID, contact.ID); !errors.Is(err, ErrContactNotFound) {
		t.Fatalf("Get after delete err = %v", err)
	}
	if err := env.contacts.Delete(ctx, user.ID, contact.ID); !errors.Is(err, ErrContactNotFound) {
		t.Fatalf("second delete err = %v", err)
	}
}

func TestAnalyticsOverviewCounts(t *testing.T) {
	env := newTestEnv(t)
	user, box := env.tenant(t, models.PlanFree)
	ctx := context.Background()

	env.pipeline.Process(ctx, box, inboundMessage(1, "Budget"))
	env.pipeline.Process(ctx, box, inboundMessage(2, "Win a lottery ticket"))

	overview, err := env.analytics.Overview(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if overview.TotalProcessed != 2 || overview.Hard != 1 || overview.Spam != 1 || overview.PendingReview != 1 {
		t.Fatalf("overview = %+v", overview)
	}

	fresh, _ := env.tenant(t, models.PlanPro)
	empty, err := env.analytics.Overview(ctx, fresh.ID)
	if err != nil || empty.TotalProcessed != 0 {
		t.Fatalf("empty overview = %+v, %v", empty, err)
	}
}
