package models

// Allowed status transitions. Anything not listed is an invariant violation.
var (
	requestTransitions = map[string][]string{
		RequestStatusOpen:        {RequestStatusBroadcasted, RequestStatusCancelled, RequestStatusExpired},
		RequestStatusBroadcasted: {RequestStatusAssigned, RequestStatusCancelled, RequestStatusExpired},
		RequestStatusAssigned:    {RequestStatusDone, RequestStatusCancelled},
	}
	offerTransitions = map[string][]string{
		OfferStatusOffered: {
			OfferStatusPendingClientApproval, OfferStatusAccepted, OfferStatusMissed,
			OfferStatusExpired, OfferStatusCancelled,
		},
		OfferStatusPendingClientApproval: {
			OfferStatusOffered, OfferStatusAccepted, OfferStatusMissed,
			OfferStatusExpired, OfferStatusCancelled,
		},
	}
	jobTransitions = map[string][]string{
		JobStatusInProgress: {JobStatusDone, JobStatusCancelled, JobStatusNoShow},
	}
)

func canTransition(table map[string][]string, from, to string) bool {
	for _, s := range table[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanTransitionRequest reports whether a request may move from -> to.
func CanTransitionRequest(from, to string) bool { return canTransition(requestTransitions, from, to) }

// CanTransitionOffer reports whether an offer may move from -> to.
func CanTransitionOffer(from, to string) bool { return canTransition(offerTransitions, from, to) }

// CanTransitionJob reports whether a job may move from -> to.
func CanTransitionJob(from, to string) bool { return canTransition(jobTransitions, from, to) }

// IsTerminalRequestStatus reports CANCELLED, EXPIRED and DONE.
func IsTerminalRequestStatus(s string) bool {
	return s == RequestStatusCancelled || s == RequestStatusExpired || s == RequestStatusDone
}

// IsLiveOfferStatus reports OFFERED and PENDING_CLIENT_APPROVAL.
func IsLiveOfferStatus(s string) bool {
	return s == OfferStatusOffered || s == OfferStatusPendingClientApproval
}
