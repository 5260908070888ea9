package webhook

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmehdipour/sms-inbox/internal/model"
	"github.com/jmehdipour/sms-inbox/internal/validation"
)

// Webhook outcomes, used as the `result` label and log field.
const (
	ResultCreated          = "created"
	ResultDuplicate        = "duplicate"
	ResultInvalidSignature = "invalid_signature"
	ResultValidationError  = "validation_error"
	ResultStoreError       = "store_error"

	// Rejected by transport middleware before Ingest runs.
	ResultRateLimited = "rate_limited"
	ResultTooLarge    = "too_large"
)

var ErrInvalidSignature = errors.New("invalid signature")

// Verifier checks the signature of a raw body.
type Verifier interface {
	Verify(body []byte, signature string) bool
}

// Store is the write side of the message store.
type Store interface {
	Insert(ctx context.Context, m model.Message) (bool, error)
}

// Counters receives one webhook outcome per call to Ingest.
type Counters interface {
	ObserveWebhook(result string)
}

// Outcome is the terminal state of one ingestion.
type Outcome struct {
	Result    string
	MessageID string
	Dup       bool
}

// Service runs signature check → payload validation → idempotent insert.
type Service struct {
	verifier Verifier
	store    Store
	counters Counters
}

// New constructs the ingestion service.
func New(verifier Verifier, store Store, counters Counters) *Service {
	return &Service{verifier: verifier, store: store, counters: counters}
}

// Ingest processes one webhook delivery. The returned error is
// ErrInvalidSignature, a *validation.Error, or a wrapped store failure; the
// first two never touch the store. A duplicate is not an error.
func (s *Service) Ingest(ctx context.Context, body []byte, signature string) (Outcome, error) {
	if !s.verifier.Verify(body, signature) {
		return s.finish(Outcome{Result: ResultInvalidSignature}, ErrInvalidSignature)
	}

	msg, err := validation.Parse(body)
	if err != nil {
		return s.finish(Outcome{Result: ResultValidationError}, err)
	}

	created, err := s.store.Insert(ctx, msg)
	if err != nil {
		return s.finish(Outcome{Result: ResultStoreError, MessageID: msg.MessageID}, fmt.Errorf("store message %q: %w", msg.MessageID, err))
	}

	out := Outcome{Result: ResultCreated, MessageID: msg.MessageID, Dup: !created}
	if !created {
		out.Result = ResultDuplicate
	}
	return s.finish(out, nil)
}

func (s *Service) finish(out Outcome, err error) (Outcome, error) {
	s.counters.ObserveWebhook(out.Result)
	return out, err
}
