package usecase

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xavierca1/leadforge/internal/entity"
	"github.com/xavierca1/leadforge/internal/infra/mail"
	"github.com/xavierca1/leadforge/internal/infra/queue"
)

// store is an in-memory database whose repositories apply the same guarded
// updates as the SQL ones.
type store struct {
	mu        sync.Mutex
	leads     map[string]*entity.Lead
	templates map[string]*entity.EmailTemplate
	campaigns map[string]*entity.Campaign
	targets   map[string][]string
	history   map[string]*entity.EmailHistory
	order     []string

	// conflictsLeft makes the next SaveDerived calls fail with ErrConflict.
	conflictsLeft int
	// listByCampaignErr and completeErr simulate a broken database.
	listByCampaignErr error
	completeErr       error
}

func newStore() *store {
	return &store{
		leads:     map[string]*entity.Lead{},
		templates: map[string]*entity.EmailTemplate{},
		campaigns: map[string]*entity.Campaign{},
		targets:   map[string][]string{},
		history:   map[string]*entity.EmailHistory{},
	}
}

func (s *store) addLead(l *entity.Lead) *entity.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.Status == "" {
		l.Status = entity.LeadStatusNew
	}
	cp := *l
	s.leads[l.ID] = &cp
	return l
}

func (s *store) lead(id string) entity.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.leads[id]
}

func (s *store) addHistory(h *entity.EmailHistory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *h
	s.history[h.ID] = &cp
	s.order = append(s.order, h.ID)
}

func (s *store) historyRow(id string) entity.EmailHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.history[id]
}

func (s *store) campaign(id string) entity.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.campaigns[id]
}

func (s *store) historyFor(campaignID string) []entity.EmailHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.EmailHistory
	for _, id := range s.order {
		if h := s.history[id]; h.CampaignID == campaignID {
			out = append(out, *h)
		}
	}
	return out
}

func untargetable(l *entity.Lead) bool {
	return l.Unsubscribed || l.Status == entity.LeadStatusContactFailed || l.Status == entity.LeadStatusUnsubscribed
}

// ---- leads

type leadRepo struct{ *store }

func (r leadRepo) get(id string) (*entity.Lead, error) {
	l, ok := r.leads[id]
	if !ok {
		return nil, entity.ErrLeadNotFound
	}
	return l, nil
}

func (r leadRepo) FindByID(_ context.Context, id string) (*entity.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, err := r.get(id)
	if err != nil {
		return nil, err
	}
	cp := *l
	return &cp, nil
}

func (r leadRepo) FindTargetable(_ context.Context, ids []string) ([]*entity.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Lead
	seen := map[string]bool{}
	for _, id := range ids {
		l, ok := r.leads[id]
		if !ok || seen[id] || untargetable(l) {
			continue
		}
		seen[id] = true
		cp := *l
		out = append(out, &cp)
	}
	return out, nil
}

func (r leadRepo) mutate(id string, fn func(l *entity.Lead)) (*entity.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, err := r.get(id)
	if err != nil {
		return nil, err
	}
	fn(l)
	l.Version++
	cp := *l
	return &cp, nil
}

func (r leadRepo) RecordSendSuccess(_ context.Context, id, templateID string, at time.Time, incrementSent bool) error {
	_, err := r.mutate(id, func(l *entity.Lead) {
		if l.Status != entity.LeadStatusClosed && !untargetable(l) {
			l.Status = entity.LeadStatusProposal
		}
		l.LastContacted, l.LastEmailAt = &at, &at
		if templateID != "" {
			l.LastTemplateID = templateID
		}
		if incrementSent {
			l.EmailsSentCount++
		}
	})
	return err
}

func (r leadRepo) RecordSendFailure(_ context.Context, id string) error {
	_, err := r.mutate(id, func(l *entity.Lead) { l.EmailsFailedCount++ })
	return err
}

func (r leadRepo) RecordDelivery(_ context.Context, id string, at time.Time) error {
	_, err := r.mutate(id, func(l *entity.Lead) {
		l.EmailsSentCount++
		if l.LastEmailAt == nil || at.After(*l.LastEmailAt) {
			l.LastEmailAt = &at
		}
	})
	return err
}

func (r leadRepo) RecordRetrySuccess(_ context.Context, id string, at time.Time) error {
	_, err := r.mutate(id, func(l *entity.Lead) {
		l.EmailsSentCount++
		if l.EmailsFailedCount > 0 {
			l.EmailsFailedCount--
		}
		l.LastContacted, l.LastEmailAt = &at, &at
	})
	return err
}

func (r leadRepo) RecordEngagement(_ context.Context, id string, event entity.EventType, delta int) (*entity.Lead, error) {
	return r.mutate(id, func(l *entity.Lead) {
		if event == entity.EventOpened {
			l.EmailsOpenedCount++
		} else {
			l.EmailsClickedCount++
		}
		l.Score = entity.ClampScore(l.Score + delta)
	})
}

func (r leadRepo) RecordBounce(_ context.Context, id string, hard bool) (*entity.Lead, error) {
	return r.mutate(id, func(l *entity.Lead) {
		l.EmailsFailedCount++
		if hard && !l.Unsubscribed && l.Status != entity.LeadStatusUnsubscribed {
			l.Status = entity.LeadStatusContactFailed
		}
	})
}

func (r leadRepo) MarkUnreachable(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.leads[id]; ok && !untargetable(l) {
		l.Status = entity.LeadStatusContactFailed
		l.Version++
	}
	return nil
}

func (r leadRepo) Unsubscribe(_ context.Context, id string, at time.Time) (*entity.Lead, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, err := r.get(id)
	if err != nil {
		return nil, false, err
	}
	changed := !l.Unsubscribed
	l.Unsubscribed = true
	l.Status = entity.LeadStatusUnsubscribed
	if l.UnsubscribedAt == nil {
		l.UnsubscribedAt = &at
	}
	if changed {
		l.Version++
	}
	cp := *l
	return &cp, changed, nil
}

func (r leadRepo) SaveDerived(_ context.Context, lead *entity.Lead) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, err := r.get(lead.ID)
	if err != nil {
		return err
	}
	if r.conflictsLeft > 0 {
		r.conflictsLeft--
		l.Version++
		return entity.ErrConflict
	}
	if l.Version != lead.Version {
		return entity.ErrConflict
	}
	l.Status = lead.Status
	l.Score = entity.ClampScore(lead.Score)
	l.LastContacted = lead.LastContacted
	l.Version++
	lead.Version = l.Version
	return nil
}

func (r leadRepo) sorted(filter func(*entity.Lead) bool) []*entity.Lead {
	var out []*entity.Lead
	for _, l := range r.leads {
		if filter(l) {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func scorable(l *entity.Lead) bool {
	return !untargetable(l) && l.Status != entity.LeadStatusClosed
}

func (r leadRepo) ListScorable(_ context.Context, afterID string, limit int) ([]*entity.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.sorted(func(l *entity.Lead) bool { return scorable(l) && l.ID > afterID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r leadRepo) ListHighValue(_ context.Context, minScore, limit int) ([]*entity.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.sorted(func(l *entity.Lead) bool { return scorable(l) && l.Score >= minScore })
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r leadRepo) ScoreDistribution(_ context.Context) ([]entity.ScoreBucket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sums := map[entity.LeadStatus]int{}
	counts := map[entity.LeadStatus]int{}
	for _, l := range r.leads {
		sums[l.Status] += l.Score
		counts[l.Status]++
	}
	out := make([]entity.ScoreBucket, 0, len(counts))
	for status, n := range counts {
		out = append(out, entity.ScoreBucket{Status: status, Count: n, AverageScore: float64(sums[status]) / float64(n)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out, nil
}

// ---- templates

type templateRepo struct{ *store }

func (r templateRepo) FindByID(_ context.Context, id string) (*entity.EmailTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.templates[id]
	if !ok {
		return nil, entity.ErrTemplateNotFound
	}
	cp := *t
	return &cp, nil
}

func (r templateRepo) IncrementUsage(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.templates[id]; ok {
		t.UsageCount++
		t.LastUsedAt = &at
	}
	return nil
}

// ---- campaigns

type campaignRepo struct{ *store }

func (r campaignRepo) Create(_ context.Context, c *entity.Campaign, leadIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	cp.TotalRecipients = len(leadIDs)
	r.campaigns[c.ID] = &cp
	r.targets[c.ID] = append([]string(nil), leadIDs...)
	return nil
}

func (r campaignRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.campaigns, id)
	delete(r.targets, id)
	return nil
}

func (r campaignRepo) FindByID(_ context.Context, id string) (*entity.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, entity.ErrCampaignNotFound
	}
	cp := *c
	return &cp, nil
}

func (r campaignRepo) TargetLeadIDs(_ context.Context, id string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.targets[id]...), nil
}

func (r campaignRepo) Update(_ context.Context, c *entity.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.campaigns[c.ID]
	if !ok {
		return entity.ErrCampaignNotFound
	}
	if !cur.Status.IsMutable() {
		return entity.ErrCampaignLocked
	}
	cp := *c
	r.campaigns[c.ID] = &cp
	return nil
}

func (r campaignRepo) MarkSending(_ context.Context, id string, at time.Time) (*entity.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, entity.ErrCampaignNotFound
	}
	if !c.Status.IsRunnable() {
		return nil, entity.ErrCampaignNotRunnable
	}
	c.Status = entity.CampaignStatusSending
	if c.SentAt == nil {
		c.SentAt = &at
	}
	cp := *c
	return &cp, nil
}

func (r campaignRepo) Complete(_ context.Context, id string, sent, failed int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completeErr != nil {
		return r.completeErr
	}
	c, ok := r.campaigns[id]
	if !ok {
		return entity.ErrCampaignNotFound
	}
	if c.Status != entity.CampaignStatusSending {
		return entity.ErrCampaignNotRunnable
	}
	c.Status = entity.CampaignStatusCompleted
	c.EmailsSent, c.EmailsFailed = sent, failed
	c.CompletedAt = &at
	return nil
}

func (r campaignRepo) Fail(_ context.Context, id, reason string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return entity.ErrCampaignNotFound
	}
	if c.Status == entity.CampaignStatusCompleted || c.Status == entity.CampaignStatusFailed {
		return nil
	}
	c.Status = entity.CampaignStatusFailed
	c.ErrorMessage = reason
	c.CompletedAt = &at
	return nil
}

func (r campaignRepo) ClaimDue(_ context.Context, now time.Time, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, c := range r.campaigns {
		if c.Status == entity.CampaignStatusScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(now) && c.EnqueuedAt == nil {
			c.EnqueuedAt = &now
			ids = append(ids, id)
		}
		if len(ids) == limit {
			break
		}
	}
	return ids, nil
}

func (r campaignRepo) ReleaseClaim(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.campaigns[id]; ok && c.Status == entity.CampaignStatusScheduled {
		c.EnqueuedAt = nil
	}
	return nil
}

// ---- email history

type historyRepo struct{ *store }

func (r historyRepo) Create(_ context.Context, h *entity.EmailHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.history {
		if other.MessageUUID == h.MessageUUID || other.UnsubscribeToken == h.UnsubscribeToken {
			return entity.ErrDuplicateToken
		}
	}
	cp := *h
	r.history[h.ID] = &cp
	r.order = append(r.order, h.ID)
	return nil
}

func (r historyRepo) find(match func(*entity.EmailHistory) bool) (*entity.EmailHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		if h := r.history[id]; match(h) {
			cp := *h
			return &cp, nil
		}
	}
	return nil, entity.ErrEmailHistoryNotFound
}

func (r historyRepo) FindByID(_ context.Context, id string) (*entity.EmailHistory, error) {
	return r.find(func(h *entity.EmailHistory) bool { return h.ID == id })
}

func (r historyRepo) FindByProviderID(_ context.Context, id string) (*entity.EmailHistory, error) {
	return r.find(func(h *entity.EmailHistory) bool { return h.EmailProviderID == id })
}

func (r historyRepo) FindByMessageUUID(_ context.Context, id string) (*entity.EmailHistory, error) {
	return r.find(func(h *entity.EmailHistory) bool { return h.MessageUUID == id })
}

func (r historyRepo) FindByUnsubscribeToken(_ context.Context, token string) (*entity.EmailHistory, error) {
	return r.find(func(h *entity.EmailHistory) bool { return h.UnsubscribeToken == token })
}

func (r historyRepo) list(match func(*entity.EmailHistory) bool) []*entity.EmailHistory {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.EmailHistory
	for _, id := range r.order {
		if h := r.history[id]; match(h) {
			cp := *h
			out = append(out, &cp)
		}
	}
	return out
}

func (r historyRepo) ListByCampaign(_ context.Context, id string) ([]*entity.EmailHistory, error) {
	if r.listByCampaignErr != nil {
		return nil, r.listByCampaignErr
	}
	return r.list(func(h *entity.EmailHistory) bool { return h.CampaignID == id }), nil
}

func (r historyRepo) PageByCampaign(_ context.Context, id string, limit, offset int) ([]*entity.EmailHistory, int, error) {
	all := r.list(func(h *entity.EmailHistory) bool { return h.CampaignID == id })
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r historyRepo) ListByLead(_ context.Context, id string) ([]*entity.EmailHistory, error) {
	return r.list(func(h *entity.EmailHistory) bool { return h.LeadID == id }), nil
}

func (r historyRepo) update(id string, fn func(h *entity.EmailHistory) bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.history[id]
	if !ok {
		return false, entity.ErrEmailHistoryNotFound
	}
	return fn(h), nil
}

func (r historyRepo) MarkSent(_ context.Context, id, providerID string, at time.Time) (bool, error) {
	return r.update(id, func(h *entity.EmailHistory) bool {
		h.EmailProviderID = providerID
		if h.SentAt == nil {
			h.SentAt = &at
		}
		if h.Status == entity.EmailStatusPending || h.Status == entity.EmailStatusFailed {
			h.Status = entity.EmailStatusSent
			h.ErrorMessage = ""
			return true
		}
		return false
	})
}

func (r historyRepo) MarkFailed(_ context.Context, id, reason string) error {
	_, err := r.update(id, func(h *entity.EmailHistory) bool {
		if h.Status != entity.EmailStatusPending {
			return false
		}
		h.Status = entity.EmailStatusFailed
		h.ErrorMessage = reason
		return true
	})
	return err
}

func (r historyRepo) MarkDelivered(_ context.Context, id string, at time.Time) (bool, error) {
	return r.update(id, func(h *entity.EmailHistory) bool {
		if h.Status != entity.EmailStatusPending && h.Status != entity.EmailStatusFailed {
			return false
		}
		h.Status = entity.EmailStatusSent
		if h.SentAt == nil {
			h.SentAt = &at
		}
		return true
	})
}

func (r historyRepo) RecordOpen(_ context.Context, id string, at time.Time) (bool, error) {
	return r.update(id, func(h *entity.EmailHistory) bool {
		h.OpenCount++
		if h.OpenedAt != nil {
			return false
		}
		h.OpenedAt = &at
		switch h.Status {
		case entity.EmailStatusPending, entity.EmailStatusSent, entity.EmailStatusFailed:
			h.Status = entity.EmailStatusOpened
		}
		return true
	})
}

func (r historyRepo) RecordClick(_ context.Context, id string, at time.Time) (bool, error) {
	return r.update(id, func(h *entity.EmailHistory) bool {
		h.ClickCount++
		if h.ClickedAt != nil {
			return false
		}
		h.ClickedAt = &at
		if h.Status != entity.EmailStatusBounced {
			h.Status = entity.EmailStatusClicked
		}
		return true
	})
}

func (r historyRepo) MarkBounced(_ context.Context, id, reason string, at time.Time) (bool, error) {
	return r.update(id, func(h *entity.EmailHistory) bool {
		if h.Status == entity.EmailStatusBounced {
			return false
		}
		h.Status = entity.EmailStatusBounced
		h.BounceReason = reason
		if h.BouncedAt == nil {
			h.BouncedAt = &at
		}
		return true
	})
}

func (r historyRepo) ListRetryable(_ context.Context, maxRetries, limit int) ([]*entity.EmailHistory, error) {
	r.mu.Lock()
	var out []*entity.EmailHistory
	for _, id := range r.order {
		h := r.history[id]
		l := r.leads[h.LeadID]
		if h.Status == entity.EmailStatusFailed && h.RetryCount < maxRetries && l != nil && !untargetable(l) {
			cp := *h
			out = append(out, &cp)
		}
	}
	r.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].RetryCount < out[j].RetryCount })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r historyRepo) ClaimRetry(_ context.Context, id string, expected int) (bool, error) {
	return r.update(id, func(h *entity.EmailHistory) bool {
		if h.Status != entity.EmailStatusFailed || h.RetryCount != expected {
			return false
		}
		h.RetryCount++
		return true
	})
}

func (r historyRepo) RecordRetry(_ context.Context, id string, o entity.RetryOutcome) (bool, error) {
	return r.update(id, func(h *entity.EmailHistory) bool {
		if h.Status != entity.EmailStatusFailed {
			return false
		}
		if o.Success {
			h.Status = entity.EmailStatusSent
			h.SentAt = &o.At
			h.EmailProviderID = o.ProviderID
			h.ErrorMessage = ""
			return true
		}
		h.ErrorMessage = o.Error
		if o.GiveUp {
			h.Status = entity.EmailStatusBounced
			h.BouncedAt = &o.At
			h.BounceReason = "max retries exceeded"
		}
		return true
	})
}

func (r historyRepo) BounceExhausted(_ context.Context, maxRetries int, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, h := range r.history {
		if h.Status == entity.EmailStatusFailed && h.RetryCount >= maxRetries {
			h.Status = entity.EmailStatusBounced
			h.BounceReason = "max retries exceeded"
			if h.BouncedAt == nil {
				h.BouncedAt = &at
			}
			n++
		}
	}
	return n, nil
}

func (r historyRepo) CampaignStats(_ context.Context, id string) (*entity.CampaignStats, error) {
	s := &entity.CampaignStats{}
	for _, h := range r.list(func(h *entity.EmailHistory) bool { return h.CampaignID == id }) {
		s.Total++
		switch h.Status {
		case entity.EmailStatusPending:
			s.Pending++
		case entity.EmailStatusSent, entity.EmailStatusOpened, entity.EmailStatusClicked:
			s.Sent++
		case entity.EmailStatusFailed:
			s.Failed++
		case entity.EmailStatusBounced:
			s.Bounced++
		}
		if h.OpenedAt != nil {
			s.Opened++
		}
		if h.ClickedAt != nil {
			s.Clicked++
		}
	}
	return s, nil
}

// ---- collaborators

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, email mail.OutboundEmail) mail.Result {
	args := m.Called(ctx, email)
	return args.Get(0).(mail.Result)
}

type MockQueue struct {
	mock.Mock
}

func (m *MockQueue) PublishCampaignRun(ctx context.Context, payload queue.CampaignRunPayload) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}

type memDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemDeduper() *memDeduper {
	return &memDeduper{seen: map[string]bool{}}
}

func (d *memDeduper) AcquireOnce(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[key] {
		return false
	}
	d.seen[key] = true
	return true
}

func (d *memDeduper) Release(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
}

type seqIssuer struct {
	mu sync.Mutex
	n  int
}

func (s *seqIssuer) Issue() (TrackingTokens, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return TrackingTokens{
		MessageID:        "msg-" + strconv.Itoa(s.n),
		UnsubscribeToken: "unsub-" + strconv.Itoa(s.n),
	}, nil
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
