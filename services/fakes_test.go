package services

import (
	"context"
	"time"

	"payment-connector/gateway"
	"payment-connector/models"
	"payment-connector/repository"

	"github.com/google/uuid"
)

// fakeChargeRepo is an in-memory ChargeRepository with error injection.
type fakeChargeRepo struct {
	byExternal map[string]*models.Charge
	byTxn      map[string]*models.Charge
	events     map[int64][]models.ChargeEvent
	stale      []models.Charge
	nextID     int64

	createErr error
	updateErr error
	countErr  error
}

func newFakeChargeRepo(charges ...*models.Charge) *fakeChargeRepo {
	r := &fakeChargeRepo{
		byExternal: make(map[string]*models.Charge),
		byTxn:      make(map[string]*models.Charge),
		events:     make(map[int64][]models.ChargeEvent),
	}
	for _, c := range charges {
		r.add(c)
	}
	return r
}

func (r *fakeChargeRepo) add(c *models.Charge) {
	if c.ID == 0 {
		r.nextID++
		c.ID = r.nextID
	}
	if c.ExternalID == "" {
		c.ExternalID = uuid.New().String()
	}
	r.byExternal[c.ExternalID] = c
	if c.GatewayTransactionID != nil {
		r.byTxn[c.PaymentProvider+"|"+*c.GatewayTransactionID] = c
	}
}

func (r *fakeChargeRepo) Create(ctx context.Context, charge *models.Charge) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.add(charge)
	r.events[charge.ID] = append(r.events[charge.ID], models.ChargeEvent{
		ChargeID: charge.ID, Status: charge.Status, OccurredAt: time.Now().UTC(),
	})
	return nil
}

func (r *fakeChargeRepo) FindByExternalID(ctx context.Context, externalID string) (*models.Charge, error) {
	c, ok := r.byExternal[externalID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (r *fakeChargeRepo) FindByGatewayTransactionID(ctx context.Context, provider, transactionID string) (*models.Charge, error) {
	c, ok := r.byTxn[provider+"|"+transactionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (r *fakeChargeRepo) FindByStatusOlderThan(ctx context.Context, statuses []models.ChargeStatus, cutoff time.Time) ([]models.Charge, error) {
	var out []models.Charge
	for _, c := range r.stale {
		for _, s := range statuses {
			if c.Status == s {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (r *fakeChargeRepo) UpdateStatus(ctx context.Context, charge *models.Charge, status models.ChargeStatus) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	stored, ok := r.byExternal[charge.ExternalID]
	if ok && stored.Version != charge.Version {
		return repository.ErrConcurrentModification
	}
	charge.Status = status
	charge.Version++
	if ok {
		stored.Status = status
		stored.Version = charge.Version
	}
	r.events[charge.ID] = append(r.events[charge.ID], models.ChargeEvent{
		ChargeID: charge.ID, Status: status, OccurredAt: time.Now().UTC(),
	})
	return nil
}

func (r *fakeChargeRepo) SetGatewayTransactionID(ctx context.Context, charge *models.Charge, transactionID string) error {
	charge.GatewayTransactionID = &transactionID
	charge.Version++
	if stored, ok := r.byExternal[charge.ExternalID]; ok {
		stored.GatewayTransactionID = &transactionID
		stored.Version = charge.Version
		r.byTxn[charge.PaymentProvider+"|"+transactionID] = stored
	}
	return nil
}

func (r *fakeChargeRepo) CountEvents(ctx context.Context, chargeID int64, status models.ChargeStatus) (int64, error) {
	if r.countErr != nil {
		return 0, r.countErr
	}
	var n int64
	for _, e := range r.events[chargeID] {
		if e.Status == status {
			n++
		}
	}
	return n, nil
}

// fakeRefundRepo is the refund counterpart.
type fakeRefundRepo struct {
	byExternal  map[string]*models.Refund
	byReference map[string]*models.Refund
	nextID      int64

	createErr error
	updateErr error
}

func newFakeRefundRepo(refunds ...*models.Refund) *fakeRefundRepo {
	r := &fakeRefundRepo{
		byExternal:  make(map[string]*models.Refund),
		byReference: make(map[string]*models.Refund),
	}
	for _, f := range refunds {
		r.add(f)
	}
	return r
}

func (r *fakeRefundRepo) add(f *models.Refund) {
	if f.ID == 0 {
		r.nextID++
		f.ID = r.nextID
	}
	if f.ExternalID == "" {
		f.ExternalID = uuid.New().String()
	}
	r.byExternal[f.ExternalID] = f
	if f.Reference != nil {
		r.byReference[*f.Reference] = f
	}
}

func (r *fakeRefundRepo) Create(ctx context.Context, refund *models.Refund) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.add(refund)
	return nil
}

func (r *fakeRefundRepo) FindByExternalID(ctx context.Context, externalID string) (*models.Refund, error) {
	f, ok := r.byExternal[externalID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *f
	return &copied, nil
}

func (r *fakeRefundRepo) FindByReference(ctx context.Context, reference string) (*models.Refund, error) {
	f, ok := r.byReference[reference]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *f
	return &copied, nil
}

func (r *fakeRefundRepo) UpdateStatus(ctx context.Context, refund *models.Refund, status models.RefundStatus) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	stored, ok := r.byExternal[refund.ExternalID]
	if ok && stored.Version != refund.Version {
		return repository.ErrConcurrentModification
	}
	refund.Status = status
	refund.Version++
	if ok {
		stored.Status = status
		stored.Version = refund.Version
	}
	return nil
}

func (r *fakeRefundRepo) SetReference(ctx context.Context, refund *models.Refund, reference string) error {
	refund.Reference = &reference
	refund.Version++
	if stored, ok := r.byExternal[refund.ExternalID]; ok {
		stored.Reference = &reference
		stored.Version = refund.Version
		r.byReference[reference] = stored
	}
	return nil
}

// fakePublisher records emitted domain events.
type fakePublisher struct {
	chargeEvents []models.ChargeStatusChangedEvent
	refundEvents []models.RefundStatusChangedEvent
	err          error
}

func (p *fakePublisher) PublishChargeStatusChanged(ctx context.Context, event models.ChargeStatusChangedEvent) error {
	if p.err != nil {
		return p.err
	}
	p.chargeEvents = append(p.chargeEvents, event)
	return nil
}

func (p *fakePublisher) PublishRefundStatusChanged(ctx context.Context, event models.RefundStatusChangedEvent) error {
	if p.err != nil {
		return p.err
	}
	p.refundEvents = append(p.refundEvents, event)
	return nil
}

// fakeEnqueuer records capture enqueues.
type fakeEnqueuer struct {
	enqueued []string
	err      error
}

func (e *fakeEnqueuer) EnqueueCapture(ctx context.Context, chargeExternalID string) error {
	if e.err != nil {
		return e.err
	}
	e.enqueued = append(e.enqueued, chargeExternalID)
	return nil
}

// fakeConnector is a scriptable gateway.Connector.
type fakeConnector struct {
	provider string

	authoriseResult *gateway.AuthoriseResult
	authoriseErr    error
	captureErr      error
	refundResult    *gateway.RefundResult
	refundErr       error
	cancelErr       error
	statusToken     string
	statusErr       error
	noStatusQuery   bool

	captured  []string
	cancelled []string
}

func (f *fakeConnector) Provider() string { return f.provider }

func (f *fakeConnector) Authorise(ctx context.Context, req gateway.AuthoriseRequest) (*gateway.AuthoriseResult, error) {
	if f.authoriseErr != nil {
		return nil, f.authoriseErr
	}
	if f.authoriseResult != nil {
		return f.authoriseResult, nil
	}
	return &gateway.AuthoriseResult{TransactionID: "txn-" + req.ChargeExternalID}, nil
}

func (f *fakeConnector) Capture(ctx context.Context, charge *models.Charge) (*gateway.CaptureResult, error) {
	if f.captureErr != nil {
		return nil, f.captureErr
	}
	f.captured = append(f.captured, charge.ExternalID)
	return &gateway.CaptureResult{}, nil
}

func (f *fakeConnector) Refund(ctx context.Context, req gateway.RefundRequest) (*gateway.RefundResult, error) {
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	if f.refundResult != nil {
		return f.refundResult, nil
	}
	return &gateway.RefundResult{Reference: "ref-" + req.RefundExternalID}, nil
}

func (f *fakeConnector) Cancel(ctx context.Context, charge *models.Charge) (*gateway.CancelResult, error) {
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	f.cancelled = append(f.cancelled, charge.ExternalID)
	return &gateway.CancelResult{}, nil
}

func (f *fakeConnector) QueryStatus(ctx context.Context, charge *models.Charge) (string, error) {
	if f.statusErr != nil {
		return "", f.statusErr
	}
	if f.noStatusQuery {
		return "", gateway.ErrStatusQueryUnsupported
	}
	return f.statusToken, nil
}

func (f *fakeConnector) SupportsStatusQuery() bool { return !f.noStatusQuery }

func (f *fakeConnector) GenerateTransactionID() (string, bool) { return "", false }

func strptr(s string) *string { return &s }
