package service_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexhub/outreach-backend/internal/apperrors"
	"github.com/nexhub/outreach-backend/internal/crm"
	"github.com/nexhub/outreach-backend/internal/model"
	"github.com/nexhub/outreach-backend/internal/provider"
)

// In-memory fakes backing the service tests. They enforce the same rules the
// SQL repositories do (ownership, conditional transitions, the message natural
// key, CAS on updated_at) so service behavior can be exercised end to end
// without a database.

type fakeCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[uuid.UUID]*model.Campaign
	messages  *fakeMessageRepo
}

func newFakeCampaignRepo(messages *fakeMessageRepo) *fakeCampaignRepo {
	return &fakeCampaignRepo{
		campaigns: map[uuid.UUID]*model.Campaign{},
		messages:  messages,
	}
}

func (r *fakeCampaignRepo) Create(ctx context.Context, c *model.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	cp := *c
	r.campaigns[c.ID] = &cp
	return nil
}

func (r *fakeCampaignRepo) GetOwned(ctx context.Context, userID, id uuid.UUID) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.UserID != userID {
		return nil, apperrors.NewNotFound("campaign", id.String())
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCampaignRepo) Transition(ctx context.Context, id uuid.UUID, from, to model.CampaignStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	return true, nil
}

func (r *fakeCampaignRepo) SetSchedule(ctx context.Context, id uuid.UUID, when time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.campaigns[id]; ok {
		w := when
		c.StartDate = &w
	}
	return nil
}

func (r *fakeCampaignRepo) PauseWithMessages(ctx context.Context, id uuid.UUID) (int64, error) {
	return r.flip(id, model.CampaignActive, model.CampaignPaused, model.MessageQueued, model.MessagePaused)
}

func (r *fakeCampaignRepo) ResumeWithMessages(ctx context.Context, id uuid.UUID) (int64, error) {
	return r.flip(id, model.CampaignPaused, model.CampaignActive, model.MessagePaused, model.MessageQueued)
}

func (r *fakeCampaignRepo) flip(id uuid.UUID, campFrom, campTo model.CampaignStatus, msgFrom, msgTo model.MessageStatus) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.Status != campFrom {
		return 0, apperrors.NewInvalidTransition(string(campFrom), string(campTo))
	}
	c.Status = campTo
	return r.messages.flip(id, msgFrom, msgTo), nil
}

func (r *fakeCampaignRepo) IncrementCounters(ctx context.Context, id uuid.UUID, sent, bounced int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.campaigns[id]; ok {
		c.SentCount += sent
		c.BouncedCount += bounced
	}
	return nil
}

func (r *fakeCampaignRepo) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*model.Campaign
	for _, c := range r.campaigns {
		if c.Status == model.CampaignScheduled && c.StartDate != nil && !c.StartDate.After(now) {
			cp := *c
			due = append(due, &cp)
			if len(due) == limit {
				break
			}
		}
	}
	return due, nil
}

type messageKey struct {
	campaign uuid.UUID
	contact  uuid.UUID
	index    int
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages map[uuid.UUID]*model.Message
	byKey    map[messageKey]uuid.UUID
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{
		messages: map[uuid.UUID]*model.Message{},
		byKey:    map[messageKey]uuid.UUID{},
	}
}

func (r *fakeMessageRepo) CreateIfAbsent(ctx context.Context, m *model.Message) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := messageKey{m.CampaignID, m.ContactID, m.SequenceIndex}
	if _, exists := r.byKey[key]; exists {
		return false, nil
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Status == "" {
		m.Status = model.MessageQueued
	}
	cp := *m
	r.messages[m.ID] = &cp
	r.byKey[key] = m.ID
	return true, nil
}

func (r *fakeMessageRepo) DueForCampaign(ctx context.Context, campaignID uuid.UUID, now time.Time, limit int) ([]*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*model.Message
	for _, m := range r.messages {
		if m.CampaignID == campaignID && m.Status == model.MessageQueued && !m.ScheduledAt.After(now) {
			cp := *m
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledAt.Before(due[j].ScheduledAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *fakeMessageRepo) MarkProcessing(ctx context.Context, ids []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if m, ok := r.messages[id]; ok && m.Status == model.MessageQueued {
			m.Status = model.MessageProcessing
		}
	}
	return nil
}

func (r *fakeMessageRepo) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.messages[id]; ok {
		m.Status = model.MessageSent
		if m.SentAt == nil {
			t := sentAt
			m.SentAt = &t
		}
		m.LastError = ""
	}
	return nil
}

func (r *fakeMessageRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.messages[id]; ok {
		m.Status = model.MessageFailed
		m.LastError = reason
		m.RetryCount++
	}
	return nil
}

func (r *fakeMessageRepo) MarkBounced(ctx context.Context, id uuid.UUID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.messages[id]; ok {
		m.Status = model.MessageBounced
		m.LastError = reason
	}
	return nil
}

func (r *fakeMessageRepo) StatusCounts(ctx context.Context, campaignID uuid.UUID) (map[model.MessageStatus]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[model.MessageStatus]int{
		model.MessageQueued:     0,
		model.MessageProcessing: 0,
		model.MessageSent:       0,
		model.MessageFailed:     0,
		model.MessagePaused:     0,
		model.MessageBounced:    0,
	}
	for _, m := range r.messages {
		if m.CampaignID == campaignID {
			counts[m.Status]++
		}
	}
	return counts, nil
}

func (r *fakeMessageRepo) ListQueued(ctx context.Context, campaignID uuid.UUID, limit int) ([]*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var queued []*model.Message
	for _, m := range r.messages {
		if m.CampaignID == campaignID && m.Status == model.MessageQueued {
			cp := *m
			queued = append(queued, &cp)
		}
	}
	sort.Slice(queued, func(i, j int) bool { return queued[i].ScheduledAt.Before(queued[j].ScheduledAt) })
	if len(queued) > limit {
		queued = queued[:limit]
	}
	return queued, nil
}

func (r *fakeMessageRepo) IDsByStatus(ctx context.Context, campaignID uuid.UUID, status model.MessageStatus) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	for _, m := range r.messages {
		if m.CampaignID == campaignID && m.Status == status {
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}

func (r *fakeMessageRepo) flip(campaignID uuid.UUID, from, to model.MessageStatus) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var flipped int64
	for _, m := range r.messages {
		if m.CampaignID == campaignID && m.Status == from {
			m.Status = to
			flipped++
		}
	}
	return flipped
}

func (r *fakeMessageRepo) get(id uuid.UUID) *model.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.messages[id]; ok {
		cp := *m
		return &cp
	}
	return nil
}

type fakeContactRepo struct {
	mu       sync.Mutex
	contacts map[uuid.UUID]*model.Contact

	// casDenials makes the next N conditional updates report a lost race.
	casDenials int
}

func newFakeContactRepo() *fakeContactRepo {
	return &fakeContactRepo{contacts: map[uuid.UUID]*model.Contact{}}
}

func (r *fakeContactRepo) Create(ctx context.Context, c *model.Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.Email = model.NormalizeEmail(c.Email)
	c.UpdatedAt = time.Now()
	cp := *c
	r.contacts[c.ID] = &cp
	return nil
}

func (r *fakeContactRepo) GetOwned(ctx context.Context, userID, id uuid.UUID) (*model.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contacts[id]
	if !ok || c.UserID != userID {
		return nil, apperrors.NewNotFound("contact", id.String())
	}
	cp := *c
	return &cp, nil
}

func (r *fakeContactRepo) GetByEmail(ctx context.Context, userID uuid.UUID, email string) (*model.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email = model.NormalizeEmail(email)
	var latest *model.Contact
	for _, c := range r.contacts {
		if c.UserID == userID && c.Email == email {
			if latest == nil || c.UpdatedAt.After(latest.UpdatedAt) {
				latest = c
			}
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (r *fakeContactRepo) ListByIDs(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]*model.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Contact
	for _, id := range ids {
		if c, ok := r.contacts[id]; ok && c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeContactRepo) UpdateProfileCAS(ctx context.Context, c *model.Contact, expectedUpdatedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.casDenials > 0 {
		r.casDenials--
		return false, nil
	}
	stored, ok := r.contacts[c.ID]
	if !ok || !stored.UpdatedAt.Equal(expectedUpdatedAt) {
		return false, nil
	}
	stored.FirstName = c.FirstName
	stored.LastName = c.LastName
	stored.Company = c.Company
	stored.Role = c.Role
	stored.Phone = c.Phone
	stored.Source = c.Source
	stored.SourceDetails = c.SourceDetails
	stored.UpdatedAt = time.Now()
	return true, nil
}

func (r *fakeContactRepo) IncrementEmailsSent(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.contacts[id]; ok {
		c.TotalEmailsSent++
	}
	return nil
}

func (r *fakeContactRepo) IncrementBounces(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.contacts[id]; ok {
		c.TotalBounces++
	}
	return nil
}

func (r *fakeContactRepo) DeleteDuplicates(ctx context.Context, userID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	keep := map[string]*model.Contact{}
	for _, c := range r.contacts {
		if c.UserID != userID {
			continue
		}
		if best, ok := keep[c.Email]; !ok || c.UpdatedAt.After(best.UpdatedAt) {
			keep[c.Email] = c
		}
	}
	var removed int64
	for id, c := range r.contacts {
		if c.UserID == userID && keep[c.Email] != c {
			delete(r.contacts, id)
			removed++
		}
	}
	return removed, nil
}

func (r *fakeContactRepo) get(id uuid.UUID) *model.Contact {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.contacts[id]; ok {
		cp := *c
		return &cp
	}
	return nil
}

// fakeProvider scripts delivery outcomes per recipient address. Whole-call
// failures are queued in callErrs and consumed one per attempt, so retry
// behavior can be observed through the call counter.
type fakeProvider struct {
	mu       sync.Mutex
	results  map[string]provider.RecipientResult
	callErrs []error
	calls    int
	sent     []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{results: map[string]provider.RecipientResult{}}
}

func (p *fakeProvider) Send(ctx context.Context, req provider.SendRequest) (provider.RecipientResult, error) {
	results, err := p.SendBatch(ctx, []provider.SendRequest{req})
	if err != nil {
		return provider.RecipientResult{}, err
	}
	return results[0], nil
}

func (p *fakeProvider) SendBatch(ctx context.Context, reqs []provider.SendRequest) ([]provider.RecipientResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if len(p.callErrs) > 0 {
		err := p.callErrs[0]
		p.callErrs = p.callErrs[1:]
		return nil, err
	}
	results := make([]provider.RecipientResult, len(reqs))
	for i, req := range reqs {
		if res, ok := p.results[req.To]; ok {
			res.To = req.To
			results[i] = res
		} else {
			results[i] = provider.RecipientResult{To: req.To, Success: true, ProviderMessageID: uuid.NewString()}
		}
		p.sent = append(p.sent, req.To)
	}
	return results, nil
}

var _ provider.DeliveryProvider = (*fakeProvider)(nil)

// fakeAdmitter denies the first `denials` admission checks, then allows
// everything under ceiling (0 means unlimited). retryAfter on denial is kept
// tiny so tests don't sleep.
type fakeAdmitter struct {
	mu      sync.Mutex
	denials int
	ceiling int
	calls   []int
}

func (a *fakeAdmitter) Allow(ctx context.Context, key string, n int) (bool, time.Duration, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, n)
	if a.denials > 0 {
		a.denials--
		return false, time.Millisecond, nil
	}
	if a.ceiling >= 1 && n > a.ceiling {
		return false, time.Millisecond, nil
	}
	return true, 0, nil
}

func (a *fakeAdmitter) Ceiling() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ceiling
}

// fakeSource is a scripted contact source for sync tests.
type fakeSource struct {
	name        string
	records     []crm.Record
	validateErr error
	fetchErr    error
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) Validate(ctx context.Context, creds crm.Credentials) error {
	return s.validateErr
}

func (s *fakeSource) FetchContacts(ctx context.Context, creds crm.Credentials) ([]crm.Record, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.records, nil
}

var _ crm.ContactSource = (*fakeSource)(nil)
