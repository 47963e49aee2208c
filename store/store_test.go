package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivelane/outreach/core"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	g, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return map[string]Store{
		"memory": NewMemory(),
		"gorm":   g,
	}
}

func newTestSession(campaign, provider string) *core.Session {
	return core.NewSession(core.SessionKey{CampaignID: campaign, ProviderID: provider}, provider+"@example.com", "austin")
}

func TestSessionLifecycle(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sess := newTestSession("camp-1", "prov-1")
			require.NoError(t, s.CreateSession(ctx, sess))
			assert.ErrorIs(t, s.CreateSession(ctx, sess), ErrExists)

			got, err := s.GetSession(ctx, sess.Key())
			require.NoError(t, err)
			assert.Equal(t, core.StatusInvited, got.Status)
			assert.Equal(t, 1, got.Version)

			got.Status = core.StatusWaitingResponse
			got.ExpectedNextEvent = core.ExpectedEvent(core.StatusWaitingResponse)
			got.Version = 2
			require.NoError(t, s.UpdateSession(ctx, got, 1))

			again, err := s.GetSession(ctx, sess.Key())
			require.NoError(t, err)
			assert.Equal(t, core.StatusWaitingResponse, again.Status)
			assert.Equal(t, 2, again.Version)

			_, err = s.GetSession(ctx, core.SessionKey{CampaignID: "camp-1", ProviderID: "nope"})
			assert.True(t, core.IsNotFound(err))
		})
	}
}

func TestUpdateSessionStaleVersion(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sess := newTestSession("camp-1", "prov-1")
			require.NoError(t, s.CreateSession(ctx, sess))

			first := sess.Clone()
			first.Status = core.StatusWaitingResponse
			first.Version = 2
			require.NoError(t, s.UpdateSession(ctx, first, 1))

			second := sess.Clone()
			second.Status = core.StatusRejected
			second.Version = 2
			err := s.UpdateSession(ctx, second, 1)
			require.Error(t, err)
			assert.True(t, core.IsStale(err))

			got, err := s.GetSession(ctx, sess.Key())
			require.NoError(t, err)
			assert.Equal(t, core.StatusWaitingResponse, got.Status)
		})
	}
}

func TestOnlyOneConcurrentUpdateWins(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sess := newTestSession("camp-1", "prov-1")
			require.NoError(t, s.CreateSession(ctx, sess))

			const racers = 8
			var wg sync.WaitGroup
			wins := make(chan core.ProviderStatus, racers)
			for i := 0; i < racers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					c := sess.Clone()
					c.Status = core.StatusWaitingResponse
					c.Version = 2
					if err := s.UpdateSession(ctx, c, 1); err == nil {
						wins <- c.Status
					}
				}(i)
			}
			wg.Wait()
			close(wins)

			var winners int
			for range wins {
				winners++
			}
			assert.Equal(t, 1, winners)
		})
	}
}

func TestFindDormant(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC()

			old := newTestSession("camp-1", "prov-old")
			old.Status = core.StatusWaitingResponse
			old.ExpectedNextEvent = core.EventProviderResponseReceived
			old.LastActivityAt = now.Add(-96 * time.Hour)
			require.NoError(t, s.CreateSession(ctx, old))

			older := newTestSession("camp-1", "prov-older")
			older.Status = core.StatusWaitingResponse
			older.ExpectedNextEvent = core.EventProviderResponseReceived
			older.LastActivityAt = now.Add(-120 * time.Hour)
			require.NoError(t, s.CreateSession(ctx, older))

			fresh := newTestSession("camp-1", "prov-fresh")
			fresh.Status = core.StatusWaitingResponse
			fresh.ExpectedNextEvent = core.EventProviderResponseReceived
			fresh.LastActivityAt = now.Add(-1 * time.Hour)
			require.NoError(t, s.CreateSession(ctx, fresh))

			otherStatus := newTestSession("camp-1", "prov-doc")
			otherStatus.Status = core.StatusWaitingDocument
			otherStatus.ExpectedNextEvent = core.EventProviderResponseReceived
			otherStatus.LastActivityAt = now.Add(-120 * time.Hour)
			require.NoError(t, s.CreateSession(ctx, otherStatus))

			got, err := s.FindDormant(ctx, core.StatusWaitingResponse, core.EventProviderResponseReceived, now.Add(-72*time.Hour), 10)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "prov-older", got[0].ProviderID)
			assert.Equal(t, "prov-old", got[1].ProviderID)

			capped, err := s.FindDormant(ctx, core.StatusWaitingResponse, core.EventProviderResponseReceived, now.Add(-72*time.Hour), 1)
			require.NoError(t, err)
			require.Len(t, capped, 1)
			assert.Equal(t, "prov-older", capped[0].ProviderID)
		})
	}
}

func TestThreadAppendIsGapFreeAndIdempotent(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			threadID := core.ThreadID("camp-1", "austin", "prov-1")

			for i, id := range []string{"m1", "m2", "m3"} {
				seq, err := s.AppendMessage(ctx, &core.ThreadMessage{
					ThreadID:  threadID,
					MessageID: id,
					Direction: core.DirectionOutbound,
					Body:      "hello",
					SentAt:    time.Now().UTC(),
				})
				require.NoError(t, err)
				assert.Equal(t, i+1, seq)
			}

			// Redelivery of m2 must not append or renumber.
			seq, err := s.AppendMessage(ctx, &core.ThreadMessage{
				ThreadID:  threadID,
				MessageID: "m2",
				Direction: core.DirectionOutbound,
				Body:      "hello again",
				SentAt:    time.Now().UTC(),
			})
			require.NoError(t, err)
			assert.Equal(t, 2, seq)

			msgs, err := s.ListThread(ctx, threadID)
			require.NoError(t, err)
			require.Len(t, msgs, 3)
			for i, msg := range msgs {
				assert.Equal(t, i+1, msg.Sequence)
			}
		})
	}
}

func TestConcurrentAppendersKeepSequenceGapFree(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	threadID := core.ThreadID("camp-1", "austin", "prov-1")

	const appenders = 16
	var wg sync.WaitGroup
	seqs := make(chan int, appenders)
	for i := 0; i < appenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			seq, err := s.AppendMessage(ctx, &core.ThreadMessage{
				ThreadID:  threadID,
				MessageID: fmt.Sprintf("m%d", i),
				Direction: core.DirectionInbound,
				Body:      "hello",
				SentAt:    time.Now().UTC(),
			})
			if err == nil {
				seqs <- seq
			}
		}(i)
	}
	wg.Wait()
	close(seqs)

	seen := make(map[int]bool)
	for seq := range seqs {
		assert.False(t, seen[seq], "sequence %d allocated twice", seq)
		seen[seq] = true
	}
	require.Len(t, seen, appenders)
	for i := 1; i <= appenders; i++ {
		assert.True(t, seen[i], "sequence %d missing", i)
	}
}

func TestJobConsumeOnce(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job := &core.JobCorrelation{
				Token:        "camp-1:prov-1:blob://doc",
				JobID:        "job-1",
				CampaignID:   "camp-1",
				ProviderID:   "prov-1",
				DocumentType: core.DocumentInsuranceCertificate,
				DocumentRef:  "blob://doc",
				SubmittedAt:  time.Now().UTC(),
			}
			require.NoError(t, s.PutJob(ctx, job))
			assert.ErrorIs(t, s.PutJob(ctx, job), ErrExists)

			byToken, err := s.GetJobByToken(ctx, job.Token)
			require.NoError(t, err)
			assert.Equal(t, "job-1", byToken.JobID)

			consumed, err := s.ConsumeJob(ctx, "job-1")
			require.NoError(t, err)
			assert.Equal(t, job.Token, consumed.Token)

			_, err = s.ConsumeJob(ctx, "job-1")
			assert.True(t, core.IsNotFound(err))
			_, err = s.GetJobByToken(ctx, job.Token)
			assert.True(t, core.IsNotFound(err))
		})
	}
}

func TestListJobsBySession(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			newJob := func(provider, ref, jobID string) *core.JobCorrelation {
				return &core.JobCorrelation{
					Token:        fmt.Sprintf("camp-1:%s:%s", provider, ref),
					JobID:        jobID,
					CampaignID:   "camp-1",
					ProviderID:   provider,
					DocumentType: core.DocumentInsuranceCertificate,
					DocumentRef:  ref,
					SubmittedAt:  time.Now().UTC(),
				}
			}
			require.NoError(t, s.PutJob(ctx, newJob("prov-1", "blob://a", "job-a")))
			require.NoError(t, s.PutJob(ctx, newJob("prov-1", "blob://b", "job-b")))
			require.NoError(t, s.PutJob(ctx, newJob("prov-2", "blob://c", "job-c")))

			got, err := s.ListJobs(ctx, "camp-1", "prov-1")
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "job-a", got[0].JobID)
			assert.Equal(t, "job-b", got[1].JobID)

			_, err = s.ConsumeJob(ctx, "job-a")
			require.NoError(t, err)
			got, err = s.ListJobs(ctx, "camp-1", "prov-1")
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "job-b", got[0].JobID)

			none, err := s.ListJobs(ctx, "camp-9", "prov-1")
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestCampaignRoundTrip(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := &core.Campaign{
				ID:      "camp-1",
				BuyerID: "buyer-9",
				Name:    "Austin photographers",
				Status:  core.CampaignRunning,
				Requirements: core.Requirements{
					Type:               "photographer",
					Markets:            []string{"austin"},
					ProvidersPerMarket: 5,
					Equipment:          core.EquipmentRequirements{Required: []string{"full-frame camera"}},
					Documents: core.DocumentRequirements{
						Required:             []core.DocumentType{core.DocumentInsuranceCertificate, core.DocumentW9},
						InsuranceMinCoverage: 1_000_000,
					},
				},
				CreatedAt: time.Now().UTC(),
				UpdatedAt: time.Now().UTC(),
			}
			require.NoError(t, s.CreateCampaign(ctx, c))
			assert.ErrorIs(t, s.CreateCampaign(ctx, c), ErrExists)

			got, err := s.GetCampaign(ctx, "camp-1")
			require.NoError(t, err)
			assert.True(t, got.Active())
			assert.Equal(t, "buyer-9", got.BuyerID)
			assert.Equal(t, int64(1_000_000), got.Requirements.Documents.InsuranceMinCoverage)

			got.Status = core.CampaignStopped
			require.NoError(t, s.UpdateCampaign(ctx, got))
			stopped, err := s.GetCampaign(ctx, "camp-1")
			require.NoError(t, err)
			assert.False(t, stopped.Active())
		})
	}
}

func TestDeadLetters(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.AddDeadLetter(ctx, &core.DeadLetter{
				ID:        "dl-1",
				EventType: core.EventSendMessageRequested,
				Envelope:  []byte(`{"id":"e1"}`),
				Reason:    "attempts exhausted",
				Attempts:  5,
				FailedAt:  time.Now().UTC(),
			}))
			got, err := s.ListDeadLetters(ctx, 10)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "attempts exhausted", got[0].Reason)
		})
	}
}
