package usecase

import (
	"context"
	"errors"
	"fmt"
	"html"
	"html/template"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xavierca1/leadforge/internal/entity"
	"github.com/xavierca1/leadforge/internal/infra/mail"
	"github.com/xavierca1/leadforge/internal/infra/metrics"
	"github.com/xavierca1/leadforge/internal/infra/queue"
)

const interruptedReason = "interrupted before dispatch was confirmed"

type RunSummary struct {
	CampaignID string `json:"campaign_id"`
	Targeted   int    `json:"targeted"`
	Sent       int    `json:"sent"`
	Failed     int    `json:"failed"`
	// Resumed counts leads already handled by an earlier, interrupted run.
	Resumed int `json:"resumed"`
}

// RunCampaignUseCase expands a campaign into one personalized, tracked email
// per target lead. Leads are processed strictly in target order, one send
// committed before the next begins.
type RunCampaignUseCase struct {
	CampaignRepo entity.CampaignRepositoryInterface
	LeadRepo     entity.LeadRepositoryInterface
	HistoryRepo  entity.EmailHistoryRepositoryInterface
	Generator    *Generator
	Tokens       TokenIssuer
	Mailer       MailDispatcher
	Renderer     EmailRenderer
	Config       DeliveryConfig
	urls         TrackingURLs
	now          func() time.Time
	sleep        func(context.Context, time.Duration) error
	logger       *zap.Logger
}

func NewRunCampaignUseCase(
	campaignRepo entity.CampaignRepositoryInterface,
	leadRepo entity.LeadRepositoryInterface,
	historyRepo entity.EmailHistoryRepositoryInterface,
	generator *Generator,
	tokens TokenIssuer,
	mailer MailDispatcher,
	renderer EmailRenderer,
	cfg DeliveryConfig,
	logger *zap.Logger,
) *RunCampaignUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunCampaignUseCase{
		CampaignRepo: campaignRepo,
		LeadRepo:     leadRepo,
		HistoryRepo:  historyRepo,
		Generator:    generator,
		Tokens:       tokens,
		Mailer:       mailer,
		Renderer:     renderer,
		Config:       cfg,
		urls:         TrackingURLs{BaseURL: cfg.BaseURL},
		now:          utcNow,
		sleep:        sleepCtx,
		logger:       logger,
	}
}

// Run adapts Execute to the queue worker: jobs for campaigns that no longer
// exist or already finished are acknowledged as skipped.
func (uc *RunCampaignUseCase) Run(ctx context.Context, campaignID string) error {
	_, err := uc.Execute(ctx, campaignID)
	if err == nil {
		return nil
	}
	if errors.Is(err, entity.ErrCampaignNotRunnable) || DomainCode(err) == CodeCampaignNotFound {
		return fmt.Errorf("%w: %w", queue.ErrSkip, err)
	}
	return err
}

func (uc *RunCampaignUseCase) Execute(ctx context.Context, campaignID string) (*RunSummary, error) {
	log := uc.logger.With(zap.String("campaign_id", campaignID))
	summary := &RunSummary{CampaignID: campaignID}

	campaign, err := uc.CampaignRepo.FindByID(ctx, campaignID)
	if err != nil {
		if errors.Is(err, entity.ErrCampaignNotFound) {
			log.Warn("campaign vanished before run")
			return nil, &DomainError{Code: CodeCampaignNotFound, Message: "campaign not found"}
		}
		return nil, databaseError("loading campaign", err)
	}
	if !campaign.Status.IsRunnable() {
		return nil, fmt.Errorf("campaign %s is %s: %w", campaignID, campaign.Status, entity.ErrCampaignNotRunnable)
	}

	leadIDs, err := uc.CampaignRepo.TargetLeadIDs(ctx, campaignID)
	if err != nil {
		return nil, databaseError("loading campaign targets", err)
	}
	leads, err := uc.LeadRepo.FindTargetable(ctx, leadIDs)
	if err != nil {
		return nil, databaseError("loading campaign leads", err)
	}
	// a sending campaign still has to be reconciled and completed even when
	// every remaining lead dropped out
	if len(leads) == 0 && campaign.Status != entity.CampaignStatusSending {
		log.Warn("campaign has no targetable leads, nothing to send")
		return summary, nil
	}
	summary.Targeted = len(leads)

	campaign, err = uc.CampaignRepo.MarkSending(ctx, campaignID, uc.now())
	if err != nil {
		if errors.Is(err, entity.ErrCampaignNotFound) {
			return nil, &DomainError{Code: CodeCampaignNotFound, Message: "campaign not found"}
		}
		if errors.Is(err, entity.ErrCampaignNotRunnable) {
			return nil, err
		}
		return nil, databaseError("marking campaign sending", err)
	}
	log.Info("campaign sending", zap.Int("leads", len(leads)))

	handled, err := uc.reconcile(ctx, campaignID, leads, summary)
	if err != nil {
		uc.fail(ctx, campaignID, err.Error())
		return nil, err
	}

	first := true
	for _, lead := range leads {
		if _, done := handled[lead.ID]; done {
			continue
		}
		if !first {
			if err := uc.sleep(ctx, uc.Config.SendThrottle); err != nil {
				// stopping mid-run leaves the campaign in sending; the
				// redelivered job resumes it
				log.Warn("campaign run interrupted", zap.Error(err))
				return summary, err
			}
		}
		first = false

		if uc.sendOne(ctx, campaign, lead) {
			summary.Sent++
		} else {
			summary.Failed++
		}
	}

	if err := uc.CampaignRepo.Complete(ctx, campaignID, summary.Sent, summary.Failed, uc.now()); err != nil {
		if errors.Is(err, entity.ErrCampaignNotFound) {
			log.Error("campaign vanished during run", zap.Error(err))
			return summary, &DomainError{Code: CodeCampaignNotFound, Message: "campaign not found"}
		}
		uc.fail(ctx, campaignID, err.Error())
		return summary, databaseError("completing campaign", err)
	}

	metrics.RecordCampaignRun(string(entity.CampaignStatusCompleted))
	log.Info("campaign completed",
		zap.Int("sent", summary.Sent),
		zap.Int("failed", summary.Failed),
		zap.Int("resumed", summary.Resumed),
	)
	return summary, nil
}

// reconcile tallies send records left by an interrupted run. Pending rows
// never got a confirmed dispatch result; they are failed so the retry
// scheduler owns them instead of this run sending them twice. Leads that
// were contacted before but are no longer targetable still count towards
// Targeted, so Sent+Failed always equals Targeted.
func (uc *RunCampaignUseCase) reconcile(ctx context.Context, campaignID string, leads []*entity.Lead, summary *RunSummary) (map[string]struct{}, error) {
	prior, err := uc.HistoryRepo.ListByCampaign(ctx, campaignID)
	if err != nil {
		return nil, databaseError("loading prior sends", err)
	}

	current := make(map[string]struct{}, len(leads))
	for _, l := range leads {
		current[l.ID] = struct{}{}
	}

	handled := make(map[string]struct{}, len(prior))
	for _, h := range prior {
		if _, seen := handled[h.LeadID]; seen {
			continue
		}
		handled[h.LeadID] = struct{}{}
		summary.Resumed++
		if _, ok := current[h.LeadID]; !ok {
			summary.Targeted++
		}

		switch h.Status {
		case entity.EmailStatusSent, entity.EmailStatusOpened, entity.EmailStatusClicked:
			summary.Sent++
		case entity.EmailStatusPending:
			if err := uc.HistoryRepo.MarkFailed(ctx, h.ID, interruptedReason); err != nil {
				return nil, databaseError("failing interrupted send", err)
			}
			summary.Failed++
		default:
			summary.Failed++
		}
	}
	return handled, nil
}

func (uc *RunCampaignUseCase) fail(ctx context.Context, campaignID, reason string) {
	metrics.RecordCampaignRun(string(entity.CampaignStatusFailed))
	if err := uc.CampaignRepo.Fail(ctx, campaignID, reason, uc.now()); err != nil {
		uc.logger.Error("could not mark campaign failed",
			zap.String("campaign_id", campaignID), zap.String("reason", reason), zap.Error(err))
	}
}

// sendOne never panics or returns an error: every problem is recorded
// against this lead and counted as a failure.
func (uc *RunCampaignUseCase) sendOne(ctx context.Context, c *entity.Campaign, lead *entity.Lead) (sent bool) {
	log := uc.logger.With(zap.String("campaign_id", c.ID), zap.String("lead_id", lead.ID))
	historyID := ""

	defer func() {
		if r := recover(); r != nil {
			log.Error("send panicked", zap.Any("panic", r))
			if historyID != "" {
				uc.HistoryRepo.MarkFailed(ctx, historyID, fmt.Sprintf("panic: %v", r))
			}
			uc.LeadRepo.RecordSendFailure(ctx, lead.ID)
			sent = false
		}
		result := "failed"
		if sent {
			result = "sent"
		}
		metrics.RecordCampaignEmail(result)
	}()

	h, err := uc.prepare(c, lead)
	if err != nil {
		log.Error("could not prepare email", zap.Error(err))
		uc.recordFailure(ctx, log, "", lead.ID, "")
		return false
	}
	if err := uc.HistoryRepo.Create(ctx, h); err != nil {
		log.Error("could not create send record", zap.Error(err))
		uc.recordFailure(ctx, log, "", lead.ID, "")
		return false
	}
	historyID = h.ID

	res := uc.Mailer.Send(ctx, mail.OutboundEmail{
		To:        h.RecipientEmail,
		ToName:    h.RecipientName,
		Subject:   h.Subject,
		HTML:      h.Content,
		Text:      mail.StripHTML(h.Content),
		MessageID: h.MessageUUID,
	})
	if !res.Success {
		log.Warn("email dispatch failed", zap.String("email_history_id", h.ID), zap.String("error", res.Error))
		uc.recordFailure(ctx, log, h.ID, lead.ID, res.Error)
		return false
	}

	now := uc.now()
	moved, err := uc.HistoryRepo.MarkSent(ctx, h.ID, res.ProviderMessageID, now)
	if err != nil {
		// the email left; keep counting it as sent
		log.Error("could not mark send record sent", zap.String("email_history_id", h.ID), zap.Error(err))
		moved = true
	}
	if err := uc.LeadRepo.RecordSendSuccess(ctx, lead.ID, c.TemplateID, now, moved); err != nil {
		log.Error("could not update lead after send", zap.Error(err))
	}
	log.Debug("email sent", zap.String("email_history_id", h.ID))
	return true
}

func (uc *RunCampaignUseCase) recordFailure(ctx context.Context, log *zap.Logger, historyID, leadID, reason string) {
	if historyID != "" {
		if err := uc.HistoryRepo.MarkFailed(ctx, historyID, reason); err != nil {
			log.Error("could not mark send record failed", zap.String("email_history_id", historyID), zap.Error(err))
		}
	}
	if err := uc.LeadRepo.RecordSendFailure(ctx, leadID); err != nil {
		log.Error("could not count send failure", zap.Error(err))
	}
}

// prepare builds the pending send record, including the final HTML with
// tracking pixel and unsubscribe link.
func (uc *RunCampaignUseCase) prepare(c *entity.Campaign, lead *entity.Lead) (*entity.EmailHistory, error) {
	content := uc.Generator.Generate(c.Category, c.Tone, lead)
	if content.Fallback {
		uc.logger.Debug("no copy for category/tone, using default",
			zap.String("category", string(c.Category)), zap.String("tone", string(c.Tone)))
	}
	subject, body := content.Subject, content.Body
	if c.CustomSubject {
		subject = PersonalizeText(c.Subject, lead)
	}
	if c.CustomContent {
		body = PersonalizeHTML(textToHTML(c.Content), lead)
	}

	tokens, err := uc.Tokens.Issue()
	if err != nil {
		return nil, err
	}
	historyID := uuid.NewString()

	if uc.Config.TrackClicks {
		body = mail.RewriteLinks(body, func(target string) string {
			return uc.urls.Click(historyID, target)
		}, nil)
	}

	doc, err := uc.Renderer.Render(uc.layout(c, content.Tone, subject, body, lead))
	if err != nil {
		return nil, err
	}
	doc = mail.InjectTracking(doc, uc.urls.Pixel(historyID), uc.urls.Unsubscribe(tokens.UnsubscribeToken))

	return &entity.EmailHistory{
		ID:               historyID,
		CampaignID:       c.ID,
		LeadID:           lead.ID,
		TemplateID:       c.TemplateID,
		Category:         c.Category,
		RecipientEmail:   lead.Email,
		RecipientName:    lead.Name,
		Subject:          subject,
		Content:          doc,
		Status:           entity.EmailStatusPending,
		MessageUUID:      tokens.MessageID,
		UnsubscribeToken: tokens.UnsubscribeToken,
		CreatedAt:        uc.now(),
	}, nil
}

var categoryTitles = map[entity.TemplateCategory]string{
	entity.CategoryIntroduction: "Nice to meet you",
	entity.CategoryFollowup:     "Following up",
	entity.CategoryProposal:     "Our proposal",
	entity.CategoryMeeting:      "Let's find a time",
	entity.CategoryThankYou:     "Thank you",
	entity.CategoryReminder:     "A quick reminder",
}

var toneGreetings = map[entity.Tone]string{
	entity.ToneProfessional: "Hello {{first_name}},",
	entity.ToneFriendly:     "Hi {{first_name}},",
	entity.ToneCasual:       "Hey {{first_name}},",
	entity.ToneFormal:       "Dear {{full_name}},",
	entity.TonePersuasive:   "Hi {{first_name}},",
}

func (uc *RunCampaignUseCase) layout(c *entity.Campaign, tone entity.Tone, subject, body string, lead *entity.Lead) mail.LayoutData {
	title, ok := categoryTitles[c.Category]
	if !ok {
		title = c.Name
	}
	greeting, ok := toneGreetings[tone]
	if !ok {
		greeting = toneGreetings[DefaultTone]
	}
	s := uc.Config.Sender
	return mail.LayoutData{
		Subject:       subject,
		Title:         title,
		Greeting:      PersonalizeText(greeting, lead),
		Body:          template.HTML(body),
		SenderName:    s.Name,
		SenderTitle:   s.Title,
		SenderEmail:   s.Email,
		SenderPhone:   s.Phone,
		SenderCompany: s.Company,
		SenderWebsite: s.Website,
		Year:          uc.now().Year(),
	}
}

// textToHTML turns plain-text campaign content into paragraphs. Content
// that already contains markup is returned unchanged.
func textToHTML(s string) string {
	if strings.Contains(s, "<") {
		return s
	}
	var b strings.Builder
	for _, para := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(para), "\n", "<br>"))
		b.WriteString("</p>\n")
	}
	return b.String()
}
