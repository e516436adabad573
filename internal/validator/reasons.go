package validator

// State is the admission pipeline's current position. AdminMode and
// DebugMode are overlay flags on the session, not states: they compose
// with any state below.
type State int

const (
	StateIdle State = iota
	StateCardPresented
	StateAdmissible
	StateDenied
	StateLockout
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCardPresented:
		return "card_presented"
	case StateAdmissible:
		return "admissible"
	case StateDenied:
		return "denied"
	case StateLockout:
		return "lockout"
	default:
		return "unknown"
	}
}

// Reason tags why a scan or validation was denied. Human-readable text
// for these lives at the presentation boundary, not here.
type Reason int

const (
	ReasonNone Reason = iota

	// ReasonBadBarcode: the token failed the shape check. Feeds the
	// lockout counter; never audited.
	ReasonBadBarcode

	// ReasonLockedOut: too many consecutive shape failures.
	ReasonLockedOut

	// ReasonCommError / ReasonNotFound: the remote lookup failed or had
	// no record. Denied but not audited.
	ReasonCommError
	ReasonNotFound

	// Ineligibility reasons, in priority order. Audited as
	// ValidationFailure events.
	ReasonCardExpired
	ReasonCardBlocked
	ReasonCardInvalid
	ReasonMaxValidations
	ReasonTooSoon
	ReasonUnspecified

	// ReasonStoreUnavailable: the local ledger failed. Fail closed.
	ReasonStoreUnavailable

	// ReasonActuatorFault: the relay could not be driven.
	ReasonActuatorFault
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonBadBarcode:
		return "bad_barcode"
	case ReasonLockedOut:
		return "locked_out"
	case ReasonCommError:
		return "comm_error"
	case ReasonNotFound:
		return "not_found"
	case ReasonCardExpired:
		return "card_expired"
	case ReasonCardBlocked:
		return "card_blocked"
	case ReasonCardInvalid:
		return "card_invalid"
	case ReasonMaxValidations:
		return "max_validations"
	case ReasonTooSoon:
		return "too_soon"
	case ReasonUnspecified:
		return "unspecified"
	case ReasonStoreUnavailable:
		return "store_unavailable"
	case ReasonActuatorFault:
		return "actuator_fault"
	default:
		return "unknown"
	}
}

// audited reports whether a denial with this reason belongs in the
// durable audit log. Shape and lookup failures stay out of it; so do
// store failures, which usually can't be written anyway.
func (r Reason) audited() bool {
	switch r {
	case ReasonCardExpired, ReasonCardBlocked, ReasonCardInvalid,
		ReasonMaxValidations, ReasonTooSoon, ReasonUnspecified:
		return true
	default:
		return false
	}
}
