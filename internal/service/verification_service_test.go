package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pcnpilot/pcn-service/internal/automation"
	"github.com/pcnpilot/pcn-service/internal/domain"
	"github.com/pcnpilot/pcn-service/internal/events"
	apperrors "github.com/pcnpilot/pcn-service/pkg/util"
)

type verificationFixture struct {
	service    *VerificationService
	tickets    *fakeTicketRepo
	history    *fakeHistoryRepo
	records    *fakeVerificationRepo
	worker     *fakeWorker
	dispatcher *recordingDispatcher
}

func newVerificationFixture() *verificationFixture {
	tickets := newFakeTicketRepo()
	history := &fakeHistoryRepo{}
	records := newFakeVerificationRepo(tickets, history)
	worker := &fakeWorker{}
	dispatcher := &recordingDispatcher{}
	logger := zap.NewNop()

	return &verificationFixture{
		service: NewVerificationService(VerificationDependencies{
			RecordRepo: records,
			TicketRepo: tickets,
			Worker:     worker,
			Reminders:  NewReminderService(tickets, logger),
			Dispatcher: dispatcher,
			Logger:     logger,
		}),
		tickets:    tickets,
		history:    history,
		records:    records,
		worker:     worker,
		dispatcher: dispatcher,
	}
}

func (f *verificationFixture) seedTicket(status domain.TicketStatus) *domain.Ticket {
	return f.tickets.add(&domain.Ticket{
		OwnerID:         "owner-1",
		PCNNumber:       "AB12345678",
		VehicleReg:      "AB12CDE",
		IssuerID:        "lambeth",
		Status:          status,
		StatusUpdatedAt: time.Now(),
		StatusUpdatedBy: domain.ActorUser,
		IssuedAt:        time.Now().Add(-48 * time.Hour),
		InitialAmount:   13000,
	})
}

func TestStartStatusCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("dispatches and claims the record", func(t *testing.T) {
		f := newVerificationFixture()
		ticket := f.seedTicket(domain.StatusFullCharge)

		jobID, err := f.service.StartStatusCheck(ctx, ticket)
		require.NoError(t, err)
		assert.Equal(t, "job-1", jobID)

		record, err := f.records.GetByTicket(ctx, ticket.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.VerificationPending, record.Status)
		require.NotNil(t, record.JobID)
		assert.Equal(t, "job-1", *record.JobID)
	})

	t.Run("rejects a second dispatch while one is pending", func(t *testing.T) {
		f := newVerificationFixture()
		ticket := f.seedTicket(domain.StatusFullCharge)
		dispatches := 0
		f.worker.startFn = func(context.Context, automation.StatusCheckRequest) (string, error) {
			dispatches++
			return fmt.Sprintf("job-%d", dispatches), nil
		}

		_, err := f.service.StartStatusCheck(ctx, ticket)
		require.NoError(t, err)

		_, err = f.service.StartStatusCheck(ctx, ticket)
		var domainErr *apperrors.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "CONFLICT", domainErr.Code)
		assert.Equal(t, 1, dispatches)
	})

	t.Run("reports the worker as unavailable without claiming", func(t *testing.T) {
		f := newVerificationFixture()
		ticket := f.seedTicket(domain.StatusFullCharge)
		f.worker.startFn = func(context.Context, automation.StatusCheckRequest) (string, error) {
			return "", fmt.Errorf("post: %w", automation.ErrWorkerUnavailable)
		}

		_, err := f.service.StartStatusCheck(ctx, ticket)
		var domainErr *apperrors.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "UPSTREAM_UNAVAILABLE", domainErr.Code)

		_, err = f.records.GetByTicket(ctx, ticket.ID)
		assert.Error(t, err)
	})
}

func TestPoll(t *testing.T) {
	ctx := context.Background()

	t.Run("reports no_job when nothing was dispatched", func(t *testing.T) {
		f := newVerificationFixture()
		ticket := f.seedTicket(domain.StatusFullCharge)

		result, err := f.service.Poll(ctx, ticket)
		require.NoError(t, err)
		assert.Equal(t, PollNoJob, result.State)
	})

	t.Run("a record load failure is propagated, not reported as no_job", func(t *testing.T) {
		f := newVerificationFixture()
		ticket := f.seedTicket(domain.StatusFullCharge)
		f.records.getErr = errors.New("connection reset by peer")

		result, err := f.service.Poll(ctx, ticket)
		require.Error(t, err)
		assert.Nil(t, result)
	})

	t.Run("reports running progress", func(t *testing.T) {
		f := newVerificationFixture()
		ticket := f.seedTicket(domain.StatusFullCharge)
		_, err := f.service.StartStatusCheck(ctx, ticket)
		require.NoError(t, err)

		progress := 40
		f.worker.getFn = func(context.Context, string) (*automation.JobStatus, error) {
			return &automation.JobStatus{State: automation.JobRunning, Progress: &progress}, nil
		}

		result, err := f.service.Poll(ctx, ticket)
		require.NoError(t, err)
		assert.Equal(t, PollRunning, result.State)
		require.NotNil(t, result.Progress)
		assert.Equal(t, 40, *result.Progress)
	})

	t.Run("non-terminal observation is recorded without touching the ticket", func(t *testing.T) {
		f := newVerificationFixture()
		ticket := f.seedTicket(domain.StatusFullCharge)
		_, err := f.service.StartStatusCheck(ctx, ticket)
		require.NoError(t, err)

		f.worker.getFn = func(context.Context, string) (*automation.JobStatus, error) {
			return &automation.JobStatus{
				State: automation.JobCompleted,
				Result: &automation.StatusCheckResult{
					PortalStatus: "notice to owner issued",
					CanPay:       true,
				},
			}, nil
		}

		result, err := f.service.Poll(ctx, ticket)
		require.NoError(t, err)
		assert.Equal(t, PollCompleted, result.State)
		require.NotNil(t, result.Verified)
		require.NotNil(t, result.Verified.MappedStatus)
		assert.Equal(t, domain.StatusNoticeToOwner, *result.Verified.MappedStatus)

		stored, err := f.tickets.GetByID(ctx, ticket.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFullCharge, stored.Status)
		assert.Empty(t, f.history.entries)
	})

	t.Run("terminal observation promotes the ticket", func(t *testing.T) {
		f := newVerificationFixture()
		ticket := f.seedTicket(domain.StatusFullCharge)
		_, err := f.service.StartStatusCheck(ctx, ticket)
		require.NoError(t, err)

		f.worker.getFn = func(context.Context, string) (*automation.JobStatus, error) {
			return &automation.JobStatus{
				State: automation.JobCompleted,
				Result: &automation.StatusCheckResult{
					PortalStatus:  "paid",
					ScreenshotKey: strPtr("shots/job-1.png"),
				},
			}, nil
		}

		result, err := f.service.Poll(ctx, ticket)
		require.NoError(t, err)
		assert.Equal(t, PollCompleted, result.State)

		stored, err := f.tickets.GetByID(ctx, ticket.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPaid, stored.Status)
		assert.Equal(t, domain.ActorLiveStatusCheck, stored.StatusUpdatedBy)
		assert.Nil(t, stored.NextReminderAt)

		require.Len(t, f.history.entries, 1)
		assert.Equal(t, domain.StatusFullCharge, f.history.entries[0].OldStatus)
		assert.Equal(t, domain.StatusPaid, f.history.entries[0].NewStatus)

		assert.Len(t, f.dispatcher.byType(events.EventTicketStatusChanged), 1)
		assert.Len(t, f.dispatcher.byType(events.EventStatusCheckCompleted), 1)
	})

	t.Run("terminal observation matching the current status is a no-op write", func(t *testing.T) {
		f := newVerificationFixture()
		ticket := f.seedTicket(domain.StatusPaid)
		_, err := f.service.StartStatusCheck(ctx, ticket)
		require.NoError(t, err)

		f.worker.getFn = func(context.Context, string) (*automation.JobStatus, error) {
			return &automation.JobStatus{
				State:  automation.JobCompleted,
				Result: &automation.StatusCheckResult{PortalStatus: "paid"},
			}, nil
		}

		result, err := f.service.Poll(ctx, ticket)
		require.NoError(t, err)
		assert.Equal(t, PollCompleted, result.State)
		assert.Empty(t, f.history.entries)
		assert.Empty(t, f.dispatcher.byType(events.EventTicketStatusChanged))
	})

	t.Run("polling a finished record is served from storage", func(t *testing.T) {
		f := newVerificationFixture()
		ticket := f.seedTicket(domain.StatusFullCharge)
		_, err := f.service.StartStatusCheck(ctx, ticket)
		require.NoError(t, err)

		f.worker.getFn = func(context.Context, string) (*automation.JobStatus, error) {
			return &automation.JobStatus{
				State:  automation.JobCompleted,
				Result: &automation.StatusCheckResult{PortalStatus: "paid"},
			}, nil
		}
		_, err = f.service.Poll(ctx, ticket)
		require.NoError(t, err)

		f.worker.getFn = func(context.Context, string) (*automation.JobStatus, error) {
			return nil, errors.New("worker must not be queried again")
		}
		result, err := f.service.Poll(ctx, ticket)
		require.NoError(t, err)
		assert.Equal(t, PollCompleted, result.State)
		require.NotNil(t, result.Verified)
		assert.Equal(t, "paid", result.Verified.PortalStatus)
	})

	t.Run("worker failure finalizes the record as failed", func(t *testing.T) {
		f := newVerificationFixture()
		ticket := f.seedTicket(domain.StatusFullCharge)
		_, err := f.service.StartStatusCheck(ctx, ticket)
		require.NoError(t, err)

		f.worker.getFn = func(context.Context, string) (*automation.JobStatus, error) {
			return &automation.JobStatus{
				State: automation.JobFailed,
				Result: &automation.StatusCheckResult{
					ErrorMessage:  "portal captcha",
					ScreenshotKey: strPtr("shots/job-1-fail.png"),
				},
			}, nil
		}

		result, err := f.service.Poll(ctx, ticket)
		require.NoError(t, err)
		assert.Equal(t, PollFailed, result.State)
		require.NotNil(t, result.Failed)
		assert.Equal(t, "portal captcha", result.Failed.ErrorMessage)

		record, err := f.records.GetByTicket(ctx, ticket.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.VerificationFailed, record.Status)
		assert.Nil(t, record.JobID)
	})

	t.Run("unreachable worker leaves the record pending", func(t *testing.T) {
		f := newVerificationFixture()
		ticket := f.seedTicket(domain.StatusFullCharge)
		_, err := f.service.StartStatusCheck(ctx, ticket)
		require.NoError(t, err)

		f.worker.getFn = func(context.Context, string) (*automation.JobStatus, error) {
			return nil, fmt.Errorf("get: %w", automation.ErrWorkerUnavailable)
		}

		result, err := f.service.Poll(ctx, ticket)
		require.NoError(t, err)
		assert.Equal(t, PollRunning, result.State)
		assert.NotEmpty(t, result.TransientError)

		record, err := f.records.GetByTicket(ctx, ticket.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.VerificationPending, record.Status)
	})
}
