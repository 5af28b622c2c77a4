package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/trebuchet-org/treb-proxy/internal/domain"
)

// RequestState is the stage an upgrade or deploy request has reached
type RequestState string

const (
	StateRequested       RequestState = "REQUESTED"
	StateLayoutExtracted RequestState = "LAYOUT_EXTRACTED"
	StateVerified        RequestState = "VERIFIED"
	StateAuthorized      RequestState = "AUTHORIZED"
	StateSubmitted       RequestState = "SUBMITTED"
	StateConfirmed       RequestState = "CONFIRMED"
	StateFailed          RequestState = "FAILED"
)

// Terminal reports whether no further transition is allowed
func (s RequestState) Terminal() bool {
	return s == StateConfirmed || s == StateFailed
}

// allowed transitions; Failed is reachable from every non-terminal state
var transitions = map[RequestState][]RequestState{
	StateRequested:       {StateLayoutExtracted, StateAuthorized, StateConfirmed},
	StateLayoutExtracted: {StateVerified},
	StateVerified:        {StateAuthorized},
	StateAuthorized:      {StateSubmitted},
	StateSubmitted:       {StateConfirmed},
}

// CanTransition reports whether the state machine allows from -> to
func CanTransition(from, to RequestState) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Failure is the structured cause attached to a Failed request
type Failure struct {
	Stage      RequestState       `json:"stage"` // state the request was in when it failed
	Err        error              `json:"-"`
	Message    string             `json:"message"`
	Violations []domain.Violation `json:"violations,omitempty"`
}

func (f *Failure) Error() string { return f.Message }

func (f *Failure) Unwrap() error { return f.Err }

// Transition records one state change
type Transition struct {
	State RequestState `json:"state"`
	At    time.Time    `json:"at"`
}

// UpgradeRequest is the value threaded through a single upgrade. Once it
// reaches a terminal state it is final; retrying needs a fresh request.
type UpgradeRequest struct {
	ID          string         `json:"id"`
	Proxy       common.Address `json:"proxy"`
	ContractRef string         `json:"contractRef"`
	Candidate   common.Address `json:"candidate"` // zero until deployed
	Initiator   common.Address `json:"initiator"`

	// Expected is the implementation observed when the request started;
	// the registry append is conditioned on it.
	Expected common.Address `json:"expected"`

	State   RequestState `json:"state"`
	History []Transition `json:"history"`

	CurrentLayout   *StorageLayout     `json:"currentLayout,omitempty"`
	CandidateLayout *StorageLayout     `json:"candidateLayout,omitempty"`
	Violations      []domain.Violation `json:"violations,omitempty"`

	NoOp    bool           `json:"noOp,omitempty"`
	Cause   error          `json:"-"` // benign cause for NoOp confirmations
	Failure *Failure       `json:"failure,omitempty"`
	TxHash  common.Hash    `json:"txHash,omitempty"`
	Record  *VersionRecord `json:"record,omitempty"`
}

// Advance moves the request to the next state. It panics on an illegal
// transition since that is a programming error in the orchestrator.
func (r *UpgradeRequest) Advance(to RequestState, at time.Time) {
	if !CanTransition(r.State, to) {
		panic("illegal request transition " + string(r.State) + " -> " + string(to))
	}
	r.State = to
	r.History = append(r.History, Transition{State: to, At: at})
}

// Fail moves the request to Failed with a structured cause and returns the
// failure so callers can return it directly.
func (r *UpgradeRequest) Fail(err error, violations []domain.Violation, at time.Time) *Failure {
	r.Failure = &Failure{
		Stage:      r.State,
		Err:        err,
		Message:    err.Error(),
		Violations: violations,
	}
	r.Advance(StateFailed, at)
	return r.Failure
}

// DeployRequest is the tagged-state value for a first-time proxy deployment:
// Requested -> Authorized -> Submitted -> Confirmed | Failed
type DeployRequest struct {
	ID          string         `json:"id"`
	ContractRef string         `json:"contractRef"`
	Label       string         `json:"label,omitempty"`
	InitArgs    []string       `json:"initArgs,omitempty"`
	Initiator   common.Address `json:"initiator"`

	State   RequestState `json:"state"`
	History []Transition `json:"history"`

	Implementation *Implementation `json:"implementation,omitempty"`
	Proxy          *Proxy          `json:"proxy,omitempty"`
	Record         *VersionRecord  `json:"record,omitempty"`
	Failure        *Failure        `json:"failure,omitempty"`
}

// Advance moves the deploy request to the next state
func (r *DeployRequest) Advance(to RequestState, at time.Time) {
	if !CanTransition(r.State, to) {
		panic("illegal request transition " + string(r.State) + " -> " + string(to))
	}
	r.State = to
	r.History = append(r.History, Transition{State: to, At: at})
}

// Fail moves the deploy request to Failed
func (r *DeployRequest) Fail(err error, at time.Time) *Failure {
	r.Failure = &Failure{Stage: r.State, Err: err, Message: err.Error()}
	r.Advance(StateFailed, at)
	return r.Failure
}
