package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hivelane/outreach/core"
)

type sessionRow struct {
	CampaignID string `gorm:"primaryKey;size:128"`
	ProviderID string `gorm:"primaryKey;size:128"`

	Status            string `gorm:"size:32;index:idx_dormant,priority:1"`
	ExpectedNextEvent string `gorm:"size:64;index:idx_dormant,priority:2"`
	Version           int
	LastActivityAt    time.Time `gorm:"index:idx_dormant,priority:3"`

	ThreadID string `gorm:"size:256"`
	Email    string `gorm:"size:256"`
	Name     string `gorm:"size:256"`
	Market   string `gorm:"size:128"`

	EquipmentConfirmed string `gorm:"type:text"`
	EquipmentMissing   string `gorm:"type:text"`
	TravelConfirmed    *bool
	DocumentsUploaded  string `gorm:"type:text"`
	DocumentsPending   string `gorm:"type:text"`
	Artifacts          string `gorm:"type:text"`
	Extracted          string `gorm:"type:text"`
	Certifications     string `gorm:"type:text"`
	ScreeningNotes     string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (sessionRow) TableName() string { return "sessions" }

type campaignRow struct {
	ID           string `gorm:"primaryKey;size:128"`
	BuyerID      string `gorm:"size:128"`
	Name         string `gorm:"size:256"`
	Status       string `gorm:"size:32"`
	Requirements string `gorm:"type:text"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (campaignRow) TableName() string { return "campaigns" }

type threadMessageRow struct {
	ThreadID    string `gorm:"primaryKey;size:256;index:idx_thread_msg,unique,priority:1"`
	Sequence    int    `gorm:"primaryKey;autoIncrement:false"`
	MessageID   string `gorm:"size:256;index:idx_thread_msg,unique,priority:2"`
	Direction   string `gorm:"size:16"`
	MessageType string `gorm:"size:64"`
	Subject     string `gorm:"size:512"`
	Body        string `gorm:"type:text"`
	Attachments string `gorm:"type:text"`
	SentAt      time.Time
}

func (threadMessageRow) TableName() string { return "thread_messages" }

type eventRow struct {
	ID         string `gorm:"primaryKey;size:64"`
	EventType  string `gorm:"size:64;index"`
	CampaignID string `gorm:"size:128;index"`
	ProviderID string `gorm:"size:128;index"`
	TraceID    string `gorm:"size:64"`
	Payload    []byte `gorm:"type:blob"`
	ReceivedAt time.Time
}

func (eventRow) TableName() string { return "events" }

type jobRow struct {
	Token        string `gorm:"primaryKey;size:512"`
	JobID        string `gorm:"size:128;uniqueIndex"`
	CampaignID   string `gorm:"size:128"`
	ProviderID   string `gorm:"size:128"`
	DocumentType string `gorm:"size:64"`
	DocumentRef  string `gorm:"size:512"`
	SubmittedAt  time.Time
}

func (jobRow) TableName() string { return "jobs" }

type deadLetterRow struct {
	ID        string `gorm:"primaryKey;size:64"`
	EventType string `gorm:"size:64"`
	Envelope  []byte `gorm:"type:blob"`
	Reason    string `gorm:"type:text"`
	Attempts  int
	FailedAt  time.Time
}

func (deadLetterRow) TableName() string { return "dead_letters" }

// Gorm is the SQLite-backed Store.
type Gorm struct {
	db *gorm.DB
}

var _ Store = (*Gorm)(nil)

// OpenSQLite opens (creating if needed) the SQLite database at path and runs
// migrations. Use ":memory:" for an ephemeral database in tests.
func OpenSQLite(path string) (*Gorm, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database dir: %w", err)
			}
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %s: %w", path, err)
	}
	if err := db.AutoMigrate(
		&sessionRow{},
		&campaignRow{},
		&threadMessageRow{},
		&eventRow{},
		&jobRow{},
		&deadLetterRow{},
	); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}
	return &Gorm{db: db}, nil
}

func (g *Gorm) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (g *Gorm) CreateSession(ctx context.Context, sess *core.Session) error {
	row, err := toSessionRow(sess)
	if err != nil {
		return err
	}
	var count int64
	if err := g.db.WithContext(ctx).Model(&sessionRow{}).
		Where("campaign_id = ? AND provider_id = ?", sess.CampaignID, sess.ProviderID).
		Count(&count).Error; err != nil {
		return &core.TransientError{Op: "session create", Err: err}
	}
	if count > 0 {
		return ErrExists
	}
	if err := g.db.WithContext(ctx).Create(row).Error; err != nil {
		return &core.TransientError{Op: "session create", Err: err}
	}
	return nil
}

func (g *Gorm) GetSession(ctx context.Context, key core.SessionKey) (*core.Session, error) {
	var row sessionRow
	err := g.db.WithContext(ctx).
		Where("campaign_id = ? AND provider_id = ?", key.CampaignID, key.ProviderID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &core.NotFoundError{Kind: "session", CampaignID: key.CampaignID, ProviderID: key.ProviderID}
	}
	if err != nil {
		return nil, &core.TransientError{Op: "session get", Err: err}
	}
	return fromSessionRow(&row)
}

// UpdateSession writes the session only if the stored row still carries
// expectedVersion. The condition and the write are one statement, so two
// racing updaters cannot both succeed.
func (g *Gorm) UpdateSession(ctx context.Context, sess *core.Session, expectedVersion int) error {
	row, err := toSessionRow(sess)
	if err != nil {
		return err
	}
	res := g.db.WithContext(ctx).Model(&sessionRow{}).
		Where("campaign_id = ? AND provider_id = ? AND version = ?", sess.CampaignID, sess.ProviderID, expectedVersion).
		Select("*").Omit("campaign_id", "provider_id", "created_at").
		Updates(row)
	if res.Error != nil {
		return &core.TransientError{Op: "session update", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		current, getErr := g.GetSession(ctx, sess.Key())
		if getErr != nil {
			return getErr
		}
		return &core.StaleVersionError{
			Key:             sess.Key(),
			ExpectedStatus:  sess.Status,
			ActualStatus:    current.Status,
			ExpectedVersion: expectedVersion,
		}
	}
	return nil
}

func (g *Gorm) FindDormant(ctx context.Context, status core.ProviderStatus, event core.EventType, before time.Time, limit int) ([]*core.Session, error) {
	var rows []sessionRow
	q := g.db.WithContext(ctx).
		Where("status = ? AND expected_next_event = ? AND last_activity_at < ?", string(status), string(event), before).
		Order("last_activity_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, &core.TransientError{Op: "dormant query", Err: err}
	}
	out := make([]*core.Session, 0, len(rows))
	for i := range rows {
		sess, err := fromSessionRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

func (g *Gorm) ListSessions(ctx context.Context, campaignID string) ([]*core.Session, error) {
	var rows []sessionRow
	if err := g.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("provider_id ASC").
		Find(&rows).Error; err != nil {
		return nil, &core.TransientError{Op: "session list", Err: err}
	}
	out := make([]*core.Session, 0, len(rows))
	for i := range rows {
		sess, err := fromSessionRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

func (g *Gorm) CreateCampaign(ctx context.Context, c *core.Campaign) error {
	var count int64
	if err := g.db.WithContext(ctx).Model(&campaignRow{}).Where("id = ?", c.ID).Count(&count).Error; err != nil {
		return &core.TransientError{Op: "campaign create", Err: err}
	}
	if count > 0 {
		return ErrExists
	}
	row, err := toCampaignRow(c)
	if err != nil {
		return err
	}
	if err := g.db.WithContext(ctx).Create(row).Error; err != nil {
		return &core.TransientError{Op: "campaign create", Err: err}
	}
	return nil
}

func (g *Gorm) GetCampaign(ctx context.Context, id string) (*core.Campaign, error) {
	var row campaignRow
	err := g.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &core.NotFoundError{Kind: "campaign", CampaignID: id}
	}
	if err != nil {
		return nil, &core.TransientError{Op: "campaign get", Err: err}
	}
	return fromCampaignRow(&row)
}

func (g *Gorm) UpdateCampaign(ctx context.Context, c *core.Campaign) error {
	row, err := toCampaignRow(c)
	if err != nil {
		return err
	}
	res := g.db.WithContext(ctx).Model(&campaignRow{}).
		Where("id = ?", c.ID).
		Select("*").Omit("id", "created_at").
		Updates(row)
	if res.Error != nil {
		return &core.TransientError{Op: "campaign update", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return &core.NotFoundError{Kind: "campaign", CampaignID: c.ID}
	}
	return nil
}

// AppendMessage allocates the next sequence number and inserts the message in
// one transaction. The unique (thread_id, message_id) index turns redelivered
// messages into no-ops.
func (g *Gorm) AppendMessage(ctx context.Context, msg *core.ThreadMessage) (int, error) {
	var sequence int
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing threadMessageRow
		err := tx.Where("thread_id = ? AND message_id = ?", msg.ThreadID, msg.MessageID).
			First(&existing).Error
		if err == nil {
			sequence = existing.Sequence
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var max int
		if err := tx.Model(&threadMessageRow{}).
			Where("thread_id = ?", msg.ThreadID).
			Select("COALESCE(MAX(sequence), 0)").
			Scan(&max).Error; err != nil {
			return err
		}
		sequence = max + 1

		row, err := toThreadMessageRow(msg, sequence)
		if err != nil {
			return err
		}
		return tx.Create(row).Error
	})
	if err != nil {
		var ve *core.ValidationError
		if errors.As(err, &ve) {
			return 0, err
		}
		return 0, &core.TransientError{Op: "thread append", Err: err}
	}
	return sequence, nil
}

func (g *Gorm) ListThread(ctx context.Context, threadID string) ([]core.ThreadMessage, error) {
	var rows []threadMessageRow
	if err := g.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("sequence ASC").
		Find(&rows).Error; err != nil {
		return nil, &core.TransientError{Op: "thread list", Err: err}
	}
	out := make([]core.ThreadMessage, 0, len(rows))
	for i := range rows {
		msg, err := fromThreadMessageRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *msg)
	}
	return out, nil
}

func (g *Gorm) RecordEvent(ctx context.Context, rec *core.EventRecord) error {
	row := eventRow{
		ID:         rec.ID,
		EventType:  string(rec.EventType),
		CampaignID: rec.CampaignID,
		ProviderID: rec.ProviderID,
		TraceID:    rec.TraceID,
		Payload:    rec.Payload,
		ReceivedAt: rec.ReceivedAt,
	}
	if err := g.db.WithContext(ctx).Create(&row).Error; err != nil {
		return &core.TransientError{Op: "event record", Err: err}
	}
	return nil
}

func (g *Gorm) ListEvents(ctx context.Context, campaignID, providerID string) ([]core.EventRecord, error) {
	q := g.db.WithContext(ctx).Model(&eventRow{}).Order("received_at ASC")
	if campaignID != "" {
		q = q.Where("campaign_id = ?", campaignID)
	}
	if providerID != "" {
		q = q.Where("provider_id = ?", providerID)
	}
	var rows []eventRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, &core.TransientError{Op: "event list", Err: err}
	}
	out := make([]core.EventRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, core.EventRecord{
			ID:         row.ID,
			EventType:  core.EventType(row.EventType),
			CampaignID: row.CampaignID,
			ProviderID: row.ProviderID,
			TraceID:    row.TraceID,
			Payload:    row.Payload,
			ReceivedAt: row.ReceivedAt,
		})
	}
	return out, nil
}

func (g *Gorm) PutJob(ctx context.Context, job *core.JobCorrelation) error {
	var count int64
	if err := g.db.WithContext(ctx).Model(&jobRow{}).Where("token = ?", job.Token).Count(&count).Error; err != nil {
		return &core.TransientError{Op: "job put", Err: err}
	}
	if count > 0 {
		return ErrExists
	}
	row := jobRow{
		Token:        job.Token,
		JobID:        job.JobID,
		CampaignID:   job.CampaignID,
		ProviderID:   job.ProviderID,
		DocumentType: string(job.DocumentType),
		DocumentRef:  job.DocumentRef,
		SubmittedAt:  job.SubmittedAt,
	}
	if err := g.db.WithContext(ctx).Create(&row).Error; err != nil {
		return &core.TransientError{Op: "job put", Err: err}
	}
	return nil
}

func (g *Gorm) GetJobByToken(ctx context.Context, token string) (*core.JobCorrelation, error) {
	var row jobRow
	err := g.db.WithContext(ctx).Where("token = ?", token).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &core.NotFoundError{Kind: "job", CampaignID: token}
	}
	if err != nil {
		return nil, &core.TransientError{Op: "job get", Err: err}
	}
	return jobFromRow(&row), nil
}

func (g *Gorm) ListJobs(ctx context.Context, campaignID, providerID string) ([]*core.JobCorrelation, error) {
	var rows []jobRow
	err := g.db.WithContext(ctx).
		Where("campaign_id = ? AND provider_id = ?", campaignID, providerID).
		Order("job_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, &core.TransientError{Op: "job list", Err: err}
	}
	out := make([]*core.JobCorrelation, 0, len(rows))
	for i := range rows {
		out = append(out, jobFromRow(&rows[i]))
	}
	return out, nil
}

// ConsumeJob deletes and returns the correlation in one transaction so a
// duplicated completion signal finds nothing on its second arrival.
func (g *Gorm) ConsumeJob(ctx context.Context, jobID string) (*core.JobCorrelation, error) {
	var job *core.JobCorrelation
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row jobRow
		err := tx.Where("job_id = ?", jobID).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &core.NotFoundError{Kind: "job", CampaignID: jobID}
		}
		if err != nil {
			return err
		}
		if err := tx.Where("token = ?", row.Token).Delete(&jobRow{}).Error; err != nil {
			return err
		}
		job = jobFromRow(&row)
		return nil
	})
	if err != nil {
		if core.IsNotFound(err) {
			return nil, err
		}
		return nil, &core.TransientError{Op: "job consume", Err: err}
	}
	return job, nil
}

func (g *Gorm) AddDeadLetter(ctx context.Context, dl *core.DeadLetter) error {
	row := deadLetterRow{
		ID:        dl.ID,
		EventType: string(dl.EventType),
		Envelope:  dl.Envelope,
		Reason:    dl.Reason,
		Attempts:  dl.Attempts,
		FailedAt:  dl.FailedAt,
	}
	if err := g.db.WithContext(ctx).Create(&row).Error; err != nil {
		return &core.TransientError{Op: "dead letter add", Err: err}
	}
	return nil
}

func (g *Gorm) ListDeadLetters(ctx context.Context, limit int) ([]core.DeadLetter, error) {
	q := g.db.WithContext(ctx).Model(&deadLetterRow{}).Order("failed_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []deadLetterRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, &core.TransientError{Op: "dead letter list", Err: err}
	}
	out := make([]core.DeadLetter, 0, len(rows))
	for _, row := range rows {
		out = append(out, core.DeadLetter{
			ID:        row.ID,
			EventType: core.EventType(row.EventType),
			Envelope:  row.Envelope,
			Reason:    row.Reason,
			Attempts:  row.Attempts,
			FailedAt:  row.FailedAt,
		})
	}
	return out, nil
}

func jobFromRow(row *jobRow) *core.JobCorrelation {
	return &core.JobCorrelation{
		Token:        row.Token,
		JobID:        row.JobID,
		CampaignID:   row.CampaignID,
		ProviderID:   row.ProviderID,
		DocumentType: core.DocumentType(row.DocumentType),
		DocumentRef:  row.DocumentRef,
		SubmittedAt:  row.SubmittedAt,
	}
}

func marshalJSON(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal column: %w", err)
	}
	return string(b), nil
}

func unmarshalJSON(s string, out any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), out)
}

func toSessionRow(sess *core.Session) (*sessionRow, error) {
	row := &sessionRow{
		CampaignID:        sess.CampaignID,
		ProviderID:        sess.ProviderID,
		Status:            string(sess.Status),
		ExpectedNextEvent: string(sess.ExpectedNextEvent),
		Version:           sess.Version,
		LastActivityAt:    sess.LastActivityAt,
		ThreadID:          sess.ThreadID,
		Email:             sess.Email,
		Name:              sess.Name,
		Market:            sess.Market,
		TravelConfirmed:   sess.TravelConfirmed,
		ScreeningNotes:    sess.ScreeningNotes,
		CreatedAt:         sess.CreatedAt,
		UpdatedAt:         sess.UpdatedAt,
	}
	var err error
	if row.EquipmentConfirmed, err = marshalJSON(sess.EquipmentConfirmed); err != nil {
		return nil, err
	}
	if row.EquipmentMissing, err = marshalJSON(sess.EquipmentMissing); err != nil {
		return nil, err
	}
	if row.DocumentsUploaded, err = marshalJSON(sess.DocumentsUploaded); err != nil {
		return nil, err
	}
	if row.DocumentsPending, err = marshalJSON(sess.DocumentsPending); err != nil {
		return nil, err
	}
	if row.Artifacts, err = marshalJSON(sess.Artifacts); err != nil {
		return nil, err
	}
	if row.Extracted, err = marshalJSON(sess.Extracted); err != nil {
		return nil, err
	}
	if row.Certifications, err = marshalJSON(sess.Certifications); err != nil {
		return nil, err
	}
	return row, nil
}

func fromSessionRow(row *sessionRow) (*core.Session, error) {
	sess := &core.Session{
		CampaignID:        row.CampaignID,
		ProviderID:        row.ProviderID,
		Status:            core.ProviderStatus(row.Status),
		ExpectedNextEvent: core.EventType(row.ExpectedNextEvent),
		Version:           row.Version,
		LastActivityAt:    row.LastActivityAt,
		ThreadID:          row.ThreadID,
		Email:             row.Email,
		Name:              row.Name,
		Market:            row.Market,
		TravelConfirmed:   row.TravelConfirmed,
		ScreeningNotes:    row.ScreeningNotes,
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
	}
	for _, col := range []struct {
		raw string
		out any
	}{
		{row.EquipmentConfirmed, &sess.EquipmentConfirmed},
		{row.EquipmentMissing, &sess.EquipmentMissing},
		{row.DocumentsUploaded, &sess.DocumentsUploaded},
		{row.DocumentsPending, &sess.DocumentsPending},
		{row.Artifacts, &sess.Artifacts},
		{row.Extracted, &sess.Extracted},
		{row.Certifications, &sess.Certifications},
	} {
		if err := unmarshalJSON(col.raw, col.out); err != nil {
			return nil, fmt.Errorf("decode session column: %w", err)
		}
	}
	return sess, nil
}

func toCampaignRow(c *core.Campaign) (*campaignRow, error) {
	reqs, err := marshalJSON(c.Requirements)
	if err != nil {
		return nil, err
	}
	return &campaignRow{
		ID:           c.ID,
		BuyerID:      c.BuyerID,
		Name:         c.Name,
		Status:       string(c.Status),
		Requirements: reqs,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}, nil
}

func fromCampaignRow(row *campaignRow) (*core.Campaign, error) {
	c := &core.Campaign{
		ID:        row.ID,
		BuyerID:   row.BuyerID,
		Name:      row.Name,
		Status:    core.CampaignStatus(row.Status),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if err := unmarshalJSON(row.Requirements, &c.Requirements); err != nil {
		return nil, fmt.Errorf("decode campaign requirements: %w", err)
	}
	return c, nil
}

func toThreadMessageRow(msg *core.ThreadMessage, sequence int) (*threadMessageRow, error) {
	attachments, err := marshalJSON(msg.Attachments)
	if err != nil {
		return nil, err
	}
	return &threadMessageRow{
		ThreadID:    msg.ThreadID,
		Sequence:    sequence,
		MessageID:   msg.MessageID,
		Direction:   string(msg.Direction),
		MessageType: string(msg.MessageType),
		Subject:     msg.Subject,
		Body:        msg.Body,
		Attachments: attachments,
		SentAt:      msg.SentAt,
	}, nil
}

func fromThreadMessageRow(row *threadMessageRow) (*core.ThreadMessage, error) {
	msg := &core.ThreadMessage{
		ThreadID:    row.ThreadID,
		Sequence:    row.Sequence,
		MessageID:   row.MessageID,
		Direction:   core.Direction(row.Direction),
		MessageType: core.MessageType(row.MessageType),
		Subject:     row.Subject,
		Body:        row.Body,
		SentAt:      row.SentAt,
	}
	if err := unmarshalJSON(row.Attachments, &msg.Attachments); err != nil {
		return nil, fmt.Errorf("decode attachments: %w", err)
	}
	return msg, nil
}
