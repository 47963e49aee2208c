package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hivelane/outreach/core"
)

// Memory is an in-process Store backed by maps. It copies values on the way
// in and out so callers can never mutate stored state by accident.
type Memory struct {
	mu sync.Mutex

	sessions    map[core.SessionKey]*core.Session
	campaigns   map[string]*core.Campaign
	threads     map[string][]core.ThreadMessage
	events      []core.EventRecord
	jobsByToken map[string]*core.JobCorrelation
	jobsByID    map[string]string // job id -> token
	deadLetters []core.DeadLetter
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions:    make(map[core.SessionKey]*core.Session),
		campaigns:   make(map[string]*core.Campaign),
		threads:     make(map[string][]core.ThreadMessage),
		jobsByToken: make(map[string]*core.JobCorrelation),
		jobsByID:    make(map[string]string),
	}
}

func (m *Memory) CreateSession(_ context.Context, sess *core.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := sess.Key()
	if _, ok := m.sessions[key]; ok {
		return ErrExists
	}
	m.sessions[key] = sess.Clone()
	return nil
}

func (m *Memory) GetSession(_ context.Context, key core.SessionKey) (*core.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[key]
	if !ok {
		return nil, &core.NotFoundError{Kind: "session", CampaignID: key.CampaignID, ProviderID: key.ProviderID}
	}
	return sess.Clone(), nil
}

func (m *Memory) UpdateSession(_ context.Context, sess *core.Session, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := sess.Key()
	current, ok := m.sessions[key]
	if !ok {
		return &core.NotFoundError{Kind: "session", CampaignID: key.CampaignID, ProviderID: key.ProviderID}
	}
	if current.Version != expectedVersion {
		return &core.StaleVersionError{
			Key:             key,
			ExpectedStatus:  sess.Status,
			ActualStatus:    current.Status,
			ExpectedVersion: expectedVersion,
		}
	}
	m.sessions[key] = sess.Clone()
	return nil
}

func (m *Memory) FindDormant(_ context.Context, status core.ProviderStatus, event core.EventType, before time.Time, limit int) ([]*core.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*core.Session
	for _, sess := range m.sessions {
		if sess.Status == status && sess.ExpectedNextEvent == event && sess.LastActivityAt.Before(before) {
			out = append(out, sess.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivityAt.Before(out[j].LastActivityAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ListSessions(_ context.Context, campaignID string) ([]*core.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*core.Session
	for _, sess := range m.sessions {
		if sess.CampaignID == campaignID {
			out = append(out, sess.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderID < out[j].ProviderID })
	return out, nil
}

func (m *Memory) CreateCampaign(_ context.Context, c *core.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.campaigns[c.ID]; ok {
		return ErrExists
	}
	cp := *c
	m.campaigns[c.ID] = &cp
	return nil
}

func (m *Memory) GetCampaign(_ context.Context, id string) (*core.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, &core.NotFoundError{Kind: "campaign", CampaignID: id}
	}
	cp := *c
	return &cp, nil
}

func (m *Memory) UpdateCampaign(_ context.Context, c *core.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.campaigns[c.ID]; !ok {
		return &core.NotFoundError{Kind: "campaign", CampaignID: c.ID}
	}
	cp := *c
	m.campaigns[c.ID] = &cp
	return nil
}

func (m *Memory) AppendMessage(_ context.Context, msg *core.ThreadMessage) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	thread := m.threads[msg.ThreadID]
	for _, existing := range thread {
		if existing.MessageID == msg.MessageID {
			return existing.Sequence, nil
		}
	}
	stored := *msg
	stored.Sequence = len(thread) + 1
	m.threads[msg.ThreadID] = append(thread, stored)
	return stored.Sequence, nil
}

func (m *Memory) ListThread(_ context.Context, threadID string) ([]core.ThreadMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	thread := m.threads[threadID]
	out := make([]core.ThreadMessage, len(thread))
	copy(out, thread)
	return out, nil
}

func (m *Memory) RecordEvent(_ context.Context, rec *core.EventRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *rec)
	return nil
}

func (m *Memory) ListEvents(_ context.Context, campaignID, providerID string) ([]core.EventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.EventRecord
	for _, rec := range m.events {
		if campaignID != "" && rec.CampaignID != campaignID {
			continue
		}
		if providerID != "" && rec.ProviderID != providerID {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (m *Memory) PutJob(_ context.Context, job *core.JobCorrelation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobsByToken[job.Token]; ok {
		return ErrExists
	}
	cp := *job
	m.jobsByToken[job.Token] = &cp
	m.jobsByID[job.JobID] = job.Token
	return nil
}

func (m *Memory) GetJobByToken(_ context.Context, token string) (*core.JobCorrelation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobsByToken[token]
	if !ok {
		return nil, &core.NotFoundError{Kind: "job", CampaignID: token}
	}
	cp := *job
	return &cp, nil
}

func (m *Memory) ListJobs(_ context.Context, campaignID, providerID string) ([]*core.JobCorrelation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*core.JobCorrelation
	for _, job := range m.jobsByToken {
		if job.CampaignID == campaignID && job.ProviderID == providerID {
			cp := *job
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobID < out[j].JobID })
	return out, nil
}

func (m *Memory) ConsumeJob(_ context.Context, jobID string) (*core.JobCorrelation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.jobsByID[jobID]
	if !ok {
		return nil, &core.NotFoundError{Kind: "job", CampaignID: jobID}
	}
	job := m.jobsByToken[token]
	delete(m.jobsByID, jobID)
	delete(m.jobsByToken, token)
	cp := *job
	return &cp, nil
}

func (m *Memory) AddDeadLetter(_ context.Context, dl *core.DeadLetter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadLetters = append(m.deadLetters, *dl)
	return nil
}

func (m *Memory) ListDeadLetters(_ context.Context, limit int) ([]core.DeadLetter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.DeadLetter, len(m.deadLetters))
	copy(out, m.deadLetters)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
