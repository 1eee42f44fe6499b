package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pcnpilot/pcn-service/internal/automation"
	"github.com/pcnpilot/pcn-service/internal/domain"
	"github.com/pcnpilot/pcn-service/internal/events"
	"github.com/pcnpilot/pcn-service/internal/repository"
)

type fakeTicketRepo struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
	nextID  int
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: map[string]*domain.Ticket{}}
}

func (r *fakeTicketRepo) add(ticket *domain.Ticket) *domain.Ticket {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ticket.ID == "" {
		r.nextID++
		ticket.ID = fmt.Sprintf("ticket-%d", r.nextID)
	}
	r.tickets[ticket.ID] = ticket
	return ticket
}

func (r *fakeTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	now := time.Now()
	ticket.StatusUpdatedAt = now
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	r.add(ticket)
	return nil
}

func (r *fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *ticket
	return &copied, nil
}

func (r *fakeTicketRepo) ListByOwner(_ context.Context, ownerID string, _, _ int) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Ticket
	for _, ticket := range r.tickets {
		if ticket.OwnerID == ownerID {
			result = append(result, *ticket)
		}
	}
	return result, nil
}

func (r *fakeTicketRepo) ListEscalatable(_ context.Context, cutoff time.Time) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Ticket
	for _, ticket := range r.tickets {
		if ticket.Status == domain.StatusDiscountPeriod && ticket.IssuedAt.Before(cutoff) {
			result = append(result, *ticket)
		}
	}
	return result, nil
}

func (r *fakeTicketRepo) CountEscalatable(ctx context.Context, cutoff time.Time) (int, error) {
	tickets, err := r.ListEscalatable(ctx, cutoff)
	return len(tickets), err
}

func (r *fakeTicketRepo) UpdateStatusIfCurrent(_ context.Context, ticketID string, expected, next domain.TicketStatus, actor domain.StatusActor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[ticketID]
	if !ok || ticket.Status != expected {
		return pgx.ErrNoRows
	}
	ticket.Status = next
	ticket.StatusUpdatedAt = time.Now()
	ticket.StatusUpdatedBy = actor
	return nil
}

func (r *fakeTicketRepo) UpdateNextReminder(_ context.Context, ticketID string, at *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[ticketID]
	if !ok {
		return pgx.ErrNoRows
	}
	ticket.NextReminderAt = at
	return nil
}

type fakeHistoryRepo struct {
	mu      sync.Mutex
	entries []domain.StatusHistory
}

func (r *fakeHistoryRepo) Create(_ context.Context, history *domain.StatusHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	history.ID = fmt.Sprintf("history-%d", len(r.entries)+1)
	history.CreatedAt = time.Now()
	r.entries = append(r.entries, *history)
	return nil
}

func (r *fakeHistoryRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.StatusHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.StatusHistory
	for _, entry := range r.entries {
		if entry.TicketID == ticketID {
			result = append(result, entry)
		}
	}
	return result, nil
}

type fakeLetterRepo struct {
	mu      sync.Mutex
	letters []domain.Letter
}

func (r *fakeLetterRepo) Create(_ context.Context, letter *domain.Letter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	letter.ID = fmt.Sprintf("letter-%d", len(r.letters)+1)
	letter.CreatedAt = time.Now()
	r.letters = append(r.letters, *letter)
	return nil
}

func (r *fakeLetterRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.Letter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Letter
	for _, letter := range r.letters {
		if letter.TicketID == ticketID {
			result = append(result, letter)
		}
	}
	return result, nil
}

// fakeVerificationRepo mirrors the conditional-claim and guarded-finalize
// behavior of the Postgres implementation, including the atomic ticket
// promotion on MarkVerified.
type fakeVerificationRepo struct {
	mu      sync.Mutex
	records map[string]*domain.VerificationRecord
	tickets *fakeTicketRepo
	history *fakeHistoryRepo
	getErr  error
}

func newFakeVerificationRepo(tickets *fakeTicketRepo, history *fakeHistoryRepo) *fakeVerificationRepo {
	return &fakeVerificationRepo{
		records: map[string]*domain.VerificationRecord{},
		tickets: tickets,
		history: history,
	}
}

func (r *fakeVerificationRepo) GetByTicket(_ context.Context, ticketID string) (*domain.VerificationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	record, ok := r.records[ticketID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *record
	return &copied, nil
}

func (r *fakeVerificationRepo) Claim(_ context.Context, ticketID string, vType domain.VerificationType, jobID string) (*domain.VerificationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.records[ticketID]; ok && existing.Status == domain.VerificationPending {
		return nil, repository.ErrJobInFlight
	}
	record := &domain.VerificationRecord{
		ID:       "record-" + ticketID,
		TicketID: ticketID,
		Type:     vType,
		Status:   domain.VerificationPending,
		JobID:    &jobID,
	}
	r.records[ticketID] = record
	copied := *record
	return &copied, nil
}

func (r *fakeVerificationRepo) Release(_ context.Context, ticketID, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[ticketID]
	if ok && record.Status == domain.VerificationPending && record.JobID != nil && *record.JobID == jobID {
		delete(r.records, ticketID)
	}
	return nil
}

func (r *fakeVerificationRepo) MarkVerified(ctx context.Context, ticketID, jobID string, result *domain.VerifiedResult, promotion *repository.StatusPromotion) error {
	r.mu.Lock()
	record, ok := r.records[ticketID]
	if !ok || record.Status != domain.VerificationPending || record.JobID == nil || *record.JobID != jobID {
		r.mu.Unlock()
		return repository.ErrRecordSuperseded
	}
	now := time.Now()
	record.Status = domain.VerificationVerified
	record.JobID = nil
	record.Verified = result
	record.VerifiedAt = &now
	r.mu.Unlock()

	if promotion != nil {
		if err := r.tickets.UpdateStatusIfCurrent(ctx, ticketID, promotion.Expected, promotion.Next, domain.ActorLiveStatusCheck); err == nil {
			_ = r.history.Create(ctx, &domain.StatusHistory{
				TicketID:  ticketID,
				OldStatus: promotion.Expected,
				NewStatus: promotion.Next,
				Actor:     domain.ActorLiveStatusCheck,
				Note:      promotion.Note,
			})
		}
	}
	return nil
}

func (r *fakeVerificationRepo) MarkFailed(_ context.Context, ticketID, jobID string, result *domain.FailedResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[ticketID]
	if !ok || record.Status != domain.VerificationPending || record.JobID == nil || *record.JobID != jobID {
		return repository.ErrRecordSuperseded
	}
	record.Status = domain.VerificationFailed
	record.JobID = nil
	record.Failed = result
	return nil
}

type fakeIssuerRepo struct {
	mu      sync.Mutex
	issuers map[string]*domain.PendingIssuer
}

func newFakeIssuerRepo() *fakeIssuerRepo {
	return &fakeIssuerRepo{issuers: map[string]*domain.PendingIssuer{}}
}

func (r *fakeIssuerRepo) Create(_ context.Context, issuer *domain.PendingIssuer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	issuer.ID = "pi-" + issuer.IssuerID
	issuer.CreatedAt = time.Now()
	issuer.UpdatedAt = issuer.CreatedAt
	r.issuers[issuer.IssuerID] = issuer
	return nil
}

func (r *fakeIssuerRepo) GetByIssuerID(_ context.Context, issuerID string) (*domain.PendingIssuer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	issuer, ok := r.issuers[issuerID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *issuer
	return &copied, nil
}

func (r *fakeIssuerRepo) UpdateStatus(_ context.Context, issuerID string, status domain.PendingIssuerStatus, prURL, errorMessage *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	issuer, ok := r.issuers[issuerID]
	if !ok {
		return pgx.ErrNoRows
	}
	issuer.Status = status
	issuer.PullRequestURL = prURL
	issuer.ErrorMessage = errorMessage
	issuer.UpdatedAt = time.Now()
	return nil
}

type fakeChallengeRepo struct {
	mu         sync.Mutex
	challenges []*domain.PendingChallenge
}

func (r *fakeChallengeRepo) Create(_ context.Context, challenge *domain.PendingChallenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	challenge.ID = fmt.Sprintf("pc-%d", len(r.challenges)+1)
	challenge.CreatedAt = time.Now()
	challenge.UpdatedAt = challenge.CreatedAt
	r.challenges = append(r.challenges, challenge)
	return nil
}

func (r *fakeChallengeRepo) ListByIssuer(_ context.Context, issuerID string) ([]domain.PendingChallenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.PendingChallenge
	for _, challenge := range r.challenges {
		if challenge.IssuerID == issuerID {
			result = append(result, *challenge)
		}
	}
	return result, nil
}

func (r *fakeChallengeRepo) UpdateManyByIssuer(_ context.Context, issuerID string, from, to domain.PendingChallengeStatus) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, challenge := range r.challenges {
		if challenge.IssuerID == issuerID && challenge.Status == from {
			challenge.Status = to
			count++
		}
	}
	return count, nil
}

type fakeWorker struct {
	startFn  func(ctx context.Context, req automation.StatusCheckRequest) (string, error)
	getFn    func(ctx context.Context, jobID string) (*automation.JobStatus, error)
	healthFn func(ctx context.Context) (*automation.HealthReport, error)
}

func (w *fakeWorker) StartStatusCheck(ctx context.Context, req automation.StatusCheckRequest) (string, error) {
	if w.startFn == nil {
		return "job-1", nil
	}
	return w.startFn(ctx, req)
}

func (w *fakeWorker) GetStatusCheck(ctx context.Context, jobID string) (*automation.JobStatus, error) {
	if w.getFn == nil {
		return &automation.JobStatus{State: automation.JobRunning}, nil
	}
	return w.getFn(ctx, jobID)
}

func (w *fakeWorker) RunHealthCheck(ctx context.Context) (*automation.HealthReport, error) {
	if w.healthFn == nil {
		return &automation.HealthReport{}, nil
	}
	return w.healthFn(ctx)
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) byType(eventType events.EventType) []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var result []events.Event
	for _, event := range d.events {
		if event.Type == eventType {
			result = append(result, event)
		}
	}
	return result
}
