package models

// TransitionTable holds the legal status graph for one lifecycle. It is
// built once at process start and never mutated afterwards; a status with
// no outgoing edges is terminal.
type TransitionTable[S comparable] struct {
	edges map[S]map[S]struct{}
}

func newTransitionTable[S comparable](edges map[S][]S) *TransitionTable[S] {
	t := &TransitionTable[S]{edges: make(map[S]map[S]struct{}, len(edges))}
	for from, tos := range edges {
		set := make(map[S]struct{}, len(tos))
		for _, to := range tos {
			set[to] = struct{}{}
		}
		t.edges[from] = set
	}
	return t
}

// Valid reports whether from -> to is a legal transition. Pure lookup,
// no side effects.
func (t *TransitionTable[S]) Valid(from, to S) bool {
	set, ok := t.edges[from]
	if !ok {
		return false
	}
	_, ok = set[to]
	return ok
}

// IsTerminal reports whether the status has no legal outgoing transitions.
func (t *TransitionTable[S]) IsTerminal(s S) bool {
	return len(t.edges[s]) == 0
}

// Targets returns the legal next statuses for from, in no particular order.
func (t *TransitionTable[S]) Targets(from S) []S {
	set := t.edges[from]
	out := make([]S, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}

// NewChargeTransitionTable builds the charge lifecycle graph.
//
// CAPTURE_APPROVED_RETRY -> CAPTURED exists because a notification can
// confirm a capture that a queue worker recorded as retryable before the
// confirmation arrived; the two paths race deliberately.
func NewChargeTransitionTable() *TransitionTable[ChargeStatus] {
	return newTransitionTable(map[ChargeStatus][]ChargeStatus{
		StatusCreated: {StatusEnteringCardDetails, StatusSystemCancelled, StatusExpired},
		StatusEnteringCardDetails: {
			StatusAuthorisationReady, StatusExpired,
			StatusUserCancelReady, StatusSystemCancelReady, StatusSystemCancelled,
		},
		StatusAuthorisationReady: {
			StatusAuthorisationSuccess, StatusAuthorisationRejected,
			StatusAuthorisationError, StatusAuthorisation3DSRequired,
		},
		StatusAuthorisation3DSRequired: {
			StatusAuthorisation3DSReady, StatusUserCancelReady, StatusExpireCancelReady,
		},
		StatusAuthorisation3DSReady: {
			StatusAuthorisationSuccess, StatusAuthorisationRejected, StatusAuthorisationError,
		},
		StatusAuthorisationSuccess: {
			StatusCaptureApproved, StatusCaptureReady,
			StatusSystemCancelReady, StatusUserCancelReady, StatusExpireCancelReady,
		},
		StatusCaptureApproved:      {StatusCaptureReady, StatusCaptureError},
		StatusCaptureApprovedRetry: {StatusCaptureReady, StatusCaptureError, StatusCaptured},
		StatusCaptureReady:         {StatusCaptureSubmitted, StatusCaptureError, StatusCaptureApprovedRetry},
		StatusCaptureSubmitted:     {StatusCaptured},

		StatusExpireCancelReady:     {StatusExpireCancelSubmitted, StatusExpireCancelFailed, StatusExpired},
		StatusExpireCancelSubmitted: {StatusExpireCancelFailed, StatusExpired},

		StatusSystemCancelReady:     {StatusSystemCancelSubmitted, StatusSystemCancelError, StatusSystemCancelled},
		StatusSystemCancelSubmitted: {StatusSystemCancelError, StatusSystemCancelled},

		StatusUserCancelReady:     {StatusUserCancelSubmitted, StatusUserCancelError, StatusUserCancelled},
		StatusUserCancelSubmitted: {StatusUserCancelError, StatusUserCancelled},
	})
}

// NewRefundTransitionTable builds the refund lifecycle graph.
func NewRefundTransitionTable() *TransitionTable[RefundStatus] {
	return newTransitionTable(map[RefundStatus][]RefundStatus{
		RefundStatusCreated:   {RefundStatusSubmitted, RefundStatusError},
		RefundStatusSubmitted: {RefundStatusRefunded, RefundStatusError},
	})
}
