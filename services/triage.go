package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"outreachly/ai"
	"outreachly/mailbox"
	"outreachly/models"
	"outreachly/utils"
)

// OutcomeKind tags a triage result.
type OutcomeKind int

const (
	OutcomeJunk OutcomeKind = iota + 1
	OutcomeEasy
	OutcomeHard
	OutcomeQuotaExceeded
	OutcomeError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeJunk:
		return "junk"
	case OutcomeEasy:
		return "easy"
	case OutcomeHard:
		return "hard"
	case OutcomeQuotaExceeded:
		return "quota_exceeded"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

func (k OutcomeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Outcome is the result of triaging one message. Reply is set for
// OutcomeEasy, Detail for OutcomeError and review routings.
type Outcome struct {
	Kind   OutcomeKind `json:"kind"`
	Reply  string      `json:"reply,omitempty"`
	Reason string      `json:"reason,omitempty"`
	Detail string      `json:"detail,omitempty"`
}

// Review reasons stored on HardEmail.
const (
	ReasonClassifiedHard        = "classified_hard"
	ReasonClassificationFailed  = "classification_failed"
	ReasonClassificationTimeout = "classification_timeout"
	ReasonAutoReplyQuota        = "auto_reply_quota"
	ReasonReplyFailed           = "reply_generation_failed"
	ReasonSendFailed            = "send_failed"
	ReasonTrashFailed           = "trash_failed"
	ReasonInvalidSender         = "invalid_sender"
	ReasonInternalError         = "internal_error"
	ReasonQuotaExceeded         = "quota_exceeded"
)

// ReplyObserver is told when a triaged message comes from a known contact.
type ReplyObserver interface {
	ContactReplied(ctx context.Context, tenantID uint, email string) (bool, error)
}

type PipelineConfig struct {
	ClassifyTimeout time.Duration
	GenerateTimeout time.Duration
}

// Pipeline triages inbound mail: quota gate, local junk filter,
// classification, then exactly one side effect per message.
type Pipeline struct {
	db         *gorm.DB
	ledger     *Ledger
	provider   mailbox.Provider
	classifier ai.Classifier
	generator  ai.Generator
	analytics  *Analytics
	replies    ReplyObserver
	cfg        PipelineConfig
	log        *logrus.Entry
}

func NewPipeline(db *gorm.DB, ledger *Ledger, provider mailbox.Provider, classifier ai.Classifier, generator ai.Generator, analytics *Analytics, cfg PipelineConfig, log *logrus.Entry) *Pipeline {
	if cfg.ClassifyTimeout <= 0 {
		cfg.ClassifyTimeout = 20 * time.Second
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = 45 * time.Second
	}
	return &Pipeline{
		db:         db,
		ledger:     ledger,
		provider:   provider,
		classifier: classifier,
		generator:  generator,
		analytics:  analytics,
		cfg:        cfg,
		log:        log,
	}
}

// SetReplyObserver wires reply detection. Optional.
func (p *Pipeline) SetReplyObserver(o ReplyObserver) {
	p.replies = o
}

// Process admits and triages msg for the mailbox's tenant. It never
// panics and never returns an error: failures surface as OutcomeError
// with the message routed to manual review.
func (p *Pipeline) Process(ctx context.Context, box *models.Mailbox, msg mailbox.Message) Outcome {
	return p.Triage(ctx, box, msg, p.Admit(ctx, box.UserID))
}

// Admit consumes one email analysis for the tenant. Callers that fan
// messages out must admit them in fetch order first.
func (p *Pipeline) Admit(ctx context.Context, tenantID uint) bool {
	return p.ledger.TryConsume(ctx, tenantID, models.ResourceEmailAnalyses, 1)
}

// Triage runs an admitted message through the pipeline. A message that
// was not admitted is throttled.
func (p *Pipeline) Triage(ctx context.Context, box *models.Mailbox, msg mailbox.Message, admitted bool) (outcome Outcome) {
	tenantID := box.UserID
	log := p.log.WithFields(logrus.Fields{
		"tenant_id":  tenantID,
		"message_id": msg.ID,
	})

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Triage panicked")
			outcome = p.toReview(ctx, tenantID, msg, OutcomeError, ReasonInternalError, fmt.Sprint(r), log)
		}
	}()

	if !admitted {
		return p.throttle(ctx, tenantID, msg, log)
	}

	if utils.LooksLikeJunk(msg.Subject, msg.Sender, msg.Text()) {
		log.Debug("Local junk filter matched")
		return p.junk(ctx, box, msg, log)
	}

	p.noteReply(ctx, tenantID, msg, log)

	classifyCtx, cancel := context.WithTimeout(ctx, p.cfg.ClassifyTimeout)
	classification, err := p.classifier.Classify(classifyCtx, msg.Subject, msg.Text())
	cancel()
	if err != nil {
		reason := ReasonClassificationFailed
		if errors.Is(err, context.DeadlineExceeded) {
			reason = ReasonClassificationTimeout
		}
		log.WithError(err).Warn("Classification failed, routing to review")
		return p.toReview(ctx, tenantID, msg, OutcomeError, reason, err.Error(), log)
	}

	switch classification.Decision {
	case ai.DecisionJunk:
		return p.junk(ctx, box, msg, log)
	case ai.DecisionEasy:
		return p.easy(ctx, box, msg, log)
	default:
		return p.toReview(ctx, tenantID, msg, OutcomeHard, ReasonClassifiedHard, classification.Reasoning, log)
	}
}

func (p *Pipeline) throttle(ctx context.Context, tenantID uint, msg mailbox.Message, log *logrus.Entry) Outcome {
	log.Info("Email analysis quota exhausted")
	p.saveReview(ctx, tenantID, msg, models.HardEmailThrottled, ReasonQuotaExceeded, log)
	p.analytics.Record(ctx, tenantID, AnalyticsDelta{Throttled: 1})
	return Outcome{Kind: OutcomeQuotaExceeded, Reason: ReasonQuotaExceeded}
}

func (p *Pipeline) junk(ctx context.Context, box *models.Mailbox, msg mailbox.Message, log *logrus.Entry) Outcome {
	if err := p.provider.Trash(ctx, box, msg.ID); err != nil {
		log.WithError(err).Warn("Failed to trash junk message")
		return p.toReview(ctx, box.UserID, msg, OutcomeError, ReasonTrashFailed, err.Error(), log)
	}

	p.saveLog(ctx, &models.EmailLog{
		UserID:          box.UserID,
		Status:          models.EmailLogJunk,
		SourceMessageID: msg.ID,
		FromEmail:       msg.Sender,
		Subject:         msg.Subject,
	}, log)
	p.analytics.Record(ctx, box.UserID, AnalyticsDelta{TotalProcessed: 1, Spam: 1})
	return Outcome{Kind: OutcomeJunk}
}

func (p *Pipeline) easy(ctx context.Context, box *models.Mailbox, msg mailbox.Message, log *logrus.Entry) Outcome {
	tenantID := box.UserID
	if !p.ledger.TryConsume(ctx, tenantID, models.ResourceAutoReplies, 1) {
		return p.toReview(ctx, tenantID, msg, OutcomeHard, ReasonAutoReplyQuota, "", log)
	}

	to, err := mailbox.ReplyAddress(msg.Sender)
	if err != nil {
		log.WithError(err).Warn("Unparseable sender on easy email")
		return p.toReview(ctx, tenantID, msg, OutcomeError, ReasonInvalidSender, err.Error(), log)
	}

	generateCtx, cancel := context.WithTimeout(ctx, p.cfg.GenerateTimeout)
	reply, err := p.generator.GenerateReply(generateCtx, ai.ReplyRequest{
		SenderName: senderName(msg.Sender),
		Subject:    msg.Subject,
		Body:       msg.Text(),
		SignOff:    box.FromName,
	})
	cancel()
	if err != nil {
		return p.toReview(ctx, tenantID, msg, OutcomeError, ReasonReplyFailed, err.Error(), log)
	}

	receipt, err := p.provider.Send(ctx, box, mailbox.Outgoing{
		To:        to,
		Subject:   utils.ReplySubject(msg.Subject),
		Body:      reply,
		InReplyTo: msg.MessageID,
	})
	if err != nil {
		utils.LogError("auto_reply_send_failed", err, map[string]interface{}{
			"tenant_id":  tenantID,
			"message_id": msg.ID,
		})
		return p.toReview(ctx, tenantID, msg, OutcomeError, ReasonSendFailed, err.Error(), log)
	}

	if err := p.provider.MarkRead(ctx, box, msg.ID); err != nil {
		log.WithError(err).Warn("Reply sent but source message not marked read")
	}

	p.saveLog(ctx, &models.EmailLog{
		UserID:          tenantID,
		Status:          models.EmailLogEasy,
		SourceMessageID: msg.ID,
		FromEmail:       msg.Sender,
		ToEmail:         to,
		Subject:         utils.ReplySubject(msg.Subject),
		Reply:           reply,
		MessageID:       receipt.MessageID,
	}, log)
	p.analytics.Record(ctx, tenantID, AnalyticsDelta{TotalProcessed: 1, AutoReplied: 1})
	log.Info("Auto-replied to easy email")
	return Outcome{Kind: OutcomeEasy, Reply: reply}
}

// toReview stores msg in the hard-review queue and returns kind.
func (p *Pipeline) toReview(ctx context.Context, tenantID uint, msg mailbox.Message, kind OutcomeKind, reason, detail string, log *logrus.Entry) Outcome {
	p.saveReview(ctx, tenantID, msg, models.HardEmailHard, reason, log)
	p.analytics.Record(ctx, tenantID, AnalyticsDelta{TotalProcessed: 1, Hard: 1})
	return Outcome{Kind: kind, Reason: reason, Detail: detail}
}

func (p *Pipeline) saveReview(ctx context.Context, tenantID uint, msg mailbox.Message, status, reason string, log *logrus.Entry) {
	record := &models.HardEmail{
		UserID:          tenantID,
		SourceMessageID: msg.ID,
		Sender:          msg.Sender,
		Subject:         msg.Subject,
		Snippet:         msg.Snippet,
		Status:          status,
		Reason:          reason,
	}
	if err := p.db.WithContext(ctx).Create(record).Error; err != nil {
		utils.LogError("hard_email_persist_failed", err, map[string]interface{}{
			"tenant_id":  tenantID,
			"message_id": msg.ID,
			"reason":     reason,
		})
		return
	}
	log.WithField("reason", reason).Info("Email routed to review")
}

func (p *Pipeline) saveLog(ctx context.Context, entry *models.EmailLog, log *logrus.Entry) {
	if err := p.db.WithContext(ctx).Create(entry).Error; err != nil {
		log.WithError(err).Error("Failed to persist email log")
	}
}

func (p *Pipeline) noteReply(ctx context.Context, tenantID uint, msg mailbox.Message, log *logrus.Entry) {
	if p.replies == nil {
		return
	}
	from, err := mailbox.ReplyAddress(msg.Sender)
	if err != nil {
		return
	}
	matched, err := p.replies.ContactReplied(ctx, tenantID, from)
	if err != nil {
		log.WithError(err).Warn("Failed to check sender against contacts")
		return
	}
	if matched {
		log.WithField("contact_email", from).Info("Contact replied, sequence stopped")
	}
}

func senderName(sender string) string {
	if name, _, ok := splitDisplayName(sender); ok {
		return name
	}
	return ""
}
