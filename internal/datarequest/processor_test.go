package datarequest_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/privacyops/dsar/internal/datarequest"
	"github.com/privacyops/dsar/internal/notify"
	"github.com/privacyops/dsar/internal/notify/mocks"
	"github.com/privacyops/dsar/internal/queue"
)

func TestProcessor_AdvancePreprocessing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.svc.Create(ctx, subject, datarequest.CreateInput{Type: datarequest.TypeExport, Comments: "please"})
	require.NoError(t, err)

	out, err := f.processor.AdvancePreprocessing(ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, out.Skipped)
	assert.True(t, out.Result)
	assert.Empty(t, out.Warnings)
	assert.Equal(t, datarequest.StatusAwaitingApproval, f.status(t, r.ID))
	assert.Equal(t, []string{"discover:" + subject}, f.privacy.Calls())

	deliveries := f.gateway.Deliveries()
	require.Len(t, deliveries, 2, "one message per officer")
	msg := f.gateway.To(dpo1)[0].Message
	assert.Equal(t, "Data request: Export all of my personal data", msg.Subject)
	assert.Contains(t, msg.Plain, "Requested by: Alice Subject")
	assert.Contains(t, msg.Plain, "Comments: please")
	assert.Equal(t, "https://lms.example.org/dataprivacy/requests", msg.ContextURL)
}

func TestProcessor_AdvancePreprocessingSkipsRoleHoldersWithoutCapability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.seed(t, "dr_1", datarequest.TypeExport, datarequest.StatusPending)

	out, err := f.processor.AdvancePreprocessing(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, out.Result)
	assert.Empty(t, f.gateway.To(dpoNoCap))
	assert.Len(t, f.gateway.To(dpo1), 1)
	assert.Len(t, f.gateway.To(dpo2), 1)
}

func TestProcessor_AdvancePreprocessingIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.seed(t, "dr_1", datarequest.TypeDelete, datarequest.StatusPending)

	_, err := f.processor.AdvancePreprocessing(ctx, r.ID)
	require.NoError(t, err)
	sent := len(f.gateway.Deliveries())

	out, err := f.processor.AdvancePreprocessing(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, out.Skipped)
	assert.Len(t, f.gateway.Deliveries(), sent, "no duplicate notifications")
	assert.Equal(t, datarequest.StatusAwaitingApproval, f.status(t, r.ID))
}

func TestProcessor_AdvancePreprocessingSkipsStaleRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "dr_cancelled", datarequest.TypeExport, datarequest.StatusCancelled)

	for _, id := range []string{"dr_cancelled", "dr_missing"} {
		out, err := f.processor.AdvancePreprocessing(ctx, id)
		require.NoError(t, err)
		assert.True(t, out.Skipped, id)
	}
	assert.Empty(t, f.privacy.Calls())
	assert.Empty(t, f.gateway.Deliveries())
}

func TestProcessor_AdvancePreprocessingWarnsPerOfficer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.seed(t, "dr_1", datarequest.TypeExport, datarequest.StatusPending)
	f.gateway.FailFor(dpo1, errors.New("smtp timeout"))

	out, err := f.processor.AdvancePreprocessing(ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, out.Result)
	require.Len(t, out.Warnings, 1)
	assert.Equal(t, dpo1, out.Warnings[0].Item)
	assert.Equal(t, "An error was encountered while trying to send a message to Dana Officer.", out.Warnings[0].Message)

	assert.Len(t, f.gateway.To(dpo2), 1, "other officers are still told")
	assert.Equal(t, datarequest.StatusAwaitingApproval, f.status(t, r.ID), "the transition is kept")
}

func TestProcessor_AdvancePreprocessingResumesAfterDiscoveryFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.seed(t, "dr_1", datarequest.TypeExport, datarequest.StatusPending)
	f.privacy.discovery = errors.New("privacy manager unavailable")

	_, err := f.processor.AdvancePreprocessing(ctx, r.ID)
	require.Error(t, err)
	assert.Equal(t, datarequest.StatusPreprocessing, f.status(t, r.ID))

	f.privacy.discovery = nil
	out, err := f.processor.AdvancePreprocessing(ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, out.Skipped)
	assert.Equal(t, datarequest.StatusAwaitingApproval, f.status(t, r.ID))
}

func TestProcessor_AdvanceProcessingExport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.svc.Create(ctx, dpo1, datarequest.CreateInput{SubjectID: subject, Type: datarequest.TypeExport})
	require.NoError(t, err)
	_, err = f.processor.AdvancePreprocessing(ctx, r.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.Approve(ctx, dpo2, r.ID))
	f.gateway.Reset()

	out, err := f.processor.AdvanceProcessing(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, out.Result)
	assert.Equal(t, datarequest.StatusComplete, f.status(t, r.ID))
	assert.Contains(t, f.privacy.Calls(), "export:"+subject)

	toSubject := f.gateway.To(subject)
	require.Len(t, toSubject, 1)
	assert.False(t, toSubject[0].EmailOnly)
	assert.Equal(t, dpo2, toSubject[0].Message.From, "the deciding officer is the sender")
	assert.Equal(t, "https://files.example.org/exports/"+subject, toSubject[0].Message.ContextURL)
	assert.Contains(t, toSubject[0].Message.Plain, "Your copy of your personal data in Example Campus")

	assert.Len(t, f.gateway.To(dpo1), 1, "the requester is told too")
}

func TestProcessor_AdvanceProcessingDeleteIsEmailOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	gateway := mocks.NewMockGateway(ctrl)

	processor := datarequest.NewProcessor(datarequest.ProcessorConfig{
		Repository: f.repo,
		Directory:  f.dir,
		Settings:   f.settings,
		Privacy:    f.privacy,
		Gateway:    gateway,
		Logger:     zerolog.Nop(),
		SiteName:   "Example Campus",
	})
	r := f.seed(t, "dr_1", datarequest.TypeDelete, datarequest.StatusApproved)

	gateway.EXPECT().
		SendEmailOnly(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg notify.Message) error {
			assert.Equal(t, subject, msg.To)
			assert.Contains(t, msg.Plain, "you will no longer be able to log in")
			return nil
		})

	out, err := processor.AdvanceProcessing(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, out.Result)
	assert.Equal(t, []string{"delete:" + subject}, f.privacy.Calls())
	assert.Equal(t, datarequest.StatusComplete, f.status(t, r.ID))
}

func TestProcessor_AdvanceProcessingDeleteOnBehalfEmailsRequester(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now()
	dpo := dpo2
	r := &datarequest.DataRequest{
		ID:          "dr_1",
		SubjectID:   subject,
		RequestedBy: dpo1,
		Type:        datarequest.TypeDelete,
		Status:      datarequest.StatusApproved,
		DPOID:       &dpo,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, f.repo.Create(ctx, r))

	out, err := f.processor.AdvanceProcessing(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, out.Result)

	for _, id := range []string{subject, dpo1} {
		got := f.gateway.To(id)
		require.Len(t, got, 1, id)
		assert.True(t, got[0].EmailOnly, id)
	}
}

func TestProcessor_AdvanceProcessingInquirySendsNothing(t *testing.T) {
	f := newFixture(t)
	r := f.seed(t, "dr_1", datarequest.TypeOthers, datarequest.StatusApproved)

	out, err := f.processor.AdvanceProcessing(context.Background(), r.ID)
	require.NoError(t, err)
	assert.True(t, out.Result)
	assert.Equal(t, datarequest.StatusComplete, f.status(t, r.ID))
	assert.Empty(t, f.privacy.Calls())
	assert.Empty(t, f.gateway.Deliveries())
}

func TestProcessor_AdvanceProcessingSkipsUnapproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, status := range []datarequest.Status{
		datarequest.StatusPending,
		datarequest.StatusAwaitingApproval,
		datarequest.StatusRejected,
		datarequest.StatusCancelled,
	} {
		r := f.seed(t, "dr_"+status.String(), datarequest.TypeExport, status)
		out, err := f.processor.AdvanceProcessing(ctx, r.ID)
		require.NoError(t, err)
		assert.True(t, out.Skipped, status.String())
		assert.Equal(t, status, f.status(t, r.ID))
	}
	assert.Empty(t, f.privacy.Calls())
}

func TestProcessor_AdvanceProcessingRetriesAfterFulfilmentFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.seed(t, "dr_1", datarequest.TypeExport, datarequest.StatusApproved)
	f.privacy.fulfil = errors.New("export failed")

	_, err := f.processor.AdvanceProcessing(ctx, r.ID)
	require.Error(t, err)
	assert.Equal(t, datarequest.StatusProcessing, f.status(t, r.ID))
	assert.Empty(t, f.gateway.Deliveries())

	f.privacy.fulfil = nil
	_, err = f.processor.AdvanceProcessing(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, datarequest.StatusComplete, f.status(t, r.ID))
}

func TestProcessor_AdvanceProcessingWarnsWhenUserUnreachable(t *testing.T) {
	f := newFixture(t)
	r := f.seed(t, "dr_1", datarequest.TypeExport, datarequest.StatusApproved)
	f.gateway.FailFor(subject, errors.New("bounced"))

	out, err := f.processor.AdvanceProcessing(context.Background(), r.ID)
	require.NoError(t, err)
	assert.False(t, out.Result)
	require.Len(t, out.Warnings, 1)
	assert.Equal(t, datarequest.WarningNotifyingUser, out.Warnings[0].WarningCode)
	assert.Equal(t, datarequest.StatusComplete, f.status(t, r.ID))
}

// reachable reports whether the lifecycle graph has a path from one status
// to another. Workers take several edges in one call.
func reachable(from, to datarequest.Status) bool {
	seen := map[datarequest.Status]bool{from: true}
	frontier := []datarequest.Status{from}
	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		for _, next := range datarequest.Statuses() {
			if seen[next] || !datarequest.CanTransition(cur, next) {
				continue
			}
			if next == to {
				return true
			}
			seen[next] = true
			frontier = append(frontier, next)
		}
	}
	return false
}

// Random sequences of user, officer and worker actions only ever move a
// request along the lifecycle graph.
func TestLifecycle_RandomActionsFollowTransitionGraph(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))

	for run := 0; run < 50; run++ {
		f := newFixture(t)
		ctx := context.Background()

		r, err := f.svc.Create(ctx, subject, datarequest.CreateInput{Type: datarequest.Type(rng.IntN(3) + 1)})
		require.NoError(t, err)

		actions := []func(){
			func() { _ = f.svc.Approve(ctx, dpo1, r.ID) },
			func() { _ = f.svc.Deny(ctx, dpo2, r.ID) },
			func() { _, _ = f.svc.Cancel(ctx, subject, r.ID) },
			func() { _ = f.svc.Approve(ctx, other, r.ID) },
			func() { _, _ = f.processor.AdvancePreprocessing(ctx, r.ID) },
			func() { _, _ = f.processor.AdvanceProcessing(ctx, r.ID) },
		}

		prev := f.status(t, r.ID)
		left := false
		for step := 0; step < 12; step++ {
			actions[rng.IntN(len(actions))]()

			cur := f.status(t, r.ID)
			require.True(t, cur.Valid(), "status %d", cur)
			if cur != prev {
				require.True(t, reachable(prev, cur), "%s -> %s", prev, cur)
			}
			if cur != datarequest.StatusPending {
				left = true
			}
			if left {
				require.NotEqual(t, datarequest.StatusPending, cur, "pending is never revisited")
			}
			prev = cur
		}
	}
}

func TestLifecycle_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.svc.Create(ctx, subject, datarequest.CreateInput{Type: datarequest.TypeExport, Comments: "please"})
	require.NoError(t, err)

	for _, job := range f.queue.Drain() {
		require.Equal(t, queue.KindInitiate, job.Type)
		_, err := f.processor.AdvancePreprocessing(ctx, job.RequestID)
		require.NoError(t, err)
	}
	require.NoError(t, f.svc.Approve(ctx, dpo1, r.ID))
	for _, job := range f.queue.Drain() {
		require.Equal(t, queue.KindProcess, job.Type)
		_, err := f.processor.AdvanceProcessing(ctx, job.RequestID)
		require.NoError(t, err)
	}

	got, err := f.svc.Get(ctx, subject, r.ID)
	require.NoError(t, err)
	assert.Equal(t, datarequest.StatusComplete, got.Status)
	assert.False(t, got.Status.IsActive())

	ongoing, err := f.svc.HasOngoingRequest(ctx, subject, datarequest.TypeExport)
	require.NoError(t, err)
	assert.False(t, ongoing)
}
