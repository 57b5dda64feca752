package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"whats-bot/internal/credentials"
	"whats-bot/internal/domain"
)

// HistoryStore is the conversation store contract consumed by the Service.
type HistoryStore interface {
	Fetch(ctx context.Context, key domain.ConversationKey) (domain.History, error)
	Append(ctx context.Context, key domain.ConversationKey, userTurn, modelTurn domain.Turn) error
}

// ReplyGenerator produces a textual reply for a message given the prior
// history. Implementations must treat the history as a snapshot.
type ReplyGenerator interface {
	Generate(ctx context.Context, history domain.History, message string) (string, error)
}

// Messenger delivers a reply to the originating chat.
type Messenger interface {
	Send(ctx context.Context, accountID, counterpartID, text string, credential domain.Credential) error
}

// Result reports the outcome of one relay operation. The dispatch stage runs
// delivery and persistence concurrently, so each has its own verdict: a
// partial failure (reply delivered but not persisted, or the reverse) is a
// distinct state the caller can alert on.
type Result struct {
	Reply     string
	Delivered bool
	Persisted bool
	SendErr   error
	AppendErr error
}

// PartialFailure reports whether exactly one of the dispatch calls failed.
func (r Result) PartialFailure() bool {
	return r.Delivered != r.Persisted
}

// Service coordinates one relay operation: fetch history and credential,
// generate a reply, then deliver the reply and persist the exchange.
type Service struct {
	store     HistoryStore
	generator ReplyGenerator
	messenger Messenger
	creds     credentials.Source
	locks     conversationLocks
	logger    *slog.Logger
}

// NewService wires the orchestrator. logger may be nil.
func NewService(store HistoryStore, generator ReplyGenerator, messenger Messenger, creds credentials.Source, logger *slog.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("relay: history store must not be nil")
	}
	if generator == nil {
		return nil, errors.New("relay: reply generator must not be nil")
	}
	if messenger == nil {
		return nil, errors.New("relay: messenger must not be nil")
	}
	if creds == nil {
		return nil, errors.New("relay: credential source must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		generator: generator,
		messenger: messenger,
		creds:     creds,
		logger:    logger,
	}, nil
}

// Relay runs the full fetch/generate/dispatch sequence for one inbound
// message. The whole operation holds the conversation's lock, so overlapping
// webhooks for the same chat serialize instead of losing turns.
func (s *Service) Relay(ctx context.Context, req domain.RelayRequest) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	key := req.Key()
	log := s.logger.With("operation_id", newOperationID(), "conversation", key.String())

	unlock := s.locks.lock(key)
	defer unlock()

	// Fetch stage: history and credential are independent reads, issued
	// concurrently. Both results are required before moving on; a failed
	// branch still waits for its sibling rather than orphaning it.
	var (
		cred     domain.Credential
		credErr  error
		credDone = make(chan struct{})
	)
	go func() {
		defer close(credDone)
		cred, credErr = s.creds.Lookup(ctx, req.AccountID)
	}()
	history, historyErr := s.store.Fetch(ctx, key)
	<-credDone

	if historyErr != nil {
		log.Error("history fetch failed", "err", historyErr)
		return Result{}, fmt.Errorf("relay: fetch history: %w", historyErr)
	}
	if credErr != nil {
		log.Error("credential lookup failed", "err", credErr)
		return Result{}, fmt.Errorf("relay: fetch credential: %w", credErr)
	}

	// Generate stage: strictly after fetch, it consumes the history.
	reply, err := s.generator.Generate(ctx, history, req.MessageText)
	if err != nil {
		log.Error("reply generation failed", "err", err)
		return Result{}, fmt.Errorf("relay: generate reply: %w", err)
	}

	// Dispatch stage: delivery and persistence depend only on the reply and
	// are independent of each other. The operation completes when both have
	// resolved; neither is cancelled because of the other's failure, and no
	// compensation (un-appending on send failure) is attempted.
	res := Result{Reply: reply}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		res.SendErr = s.messenger.Send(ctx, req.AccountID, req.CounterpartID, reply, cred)
	}()
	go func() {
		defer wg.Done()
		res.AppendErr = s.store.Append(ctx, key, domain.UserTurn(req.MessageText), domain.ModelTurn(reply))
	}()
	wg.Wait()
	res.Delivered = res.SendErr == nil
	res.Persisted = res.AppendErr == nil

	switch {
	case res.Delivered && res.Persisted:
		log.Info("relay complete", "history_len", len(history)+2)
		return res, nil
	case !res.Delivered && !res.Persisted:
		log.Error("dispatch failed", "send_err", res.SendErr, "append_err", res.AppendErr)
		return res, fmt.Errorf("relay: dispatch failed: append: %v; send: %w", res.AppendErr, res.SendErr)
	case !res.Delivered:
		log.Error("reply not delivered, history persisted", "send_err", res.SendErr)
		return res, fmt.Errorf("relay: reply not delivered (history persisted): %w", res.SendErr)
	default:
		log.Error("history not persisted, reply delivered", "append_err", res.AppendErr)
		return res, fmt.Errorf("relay: history not persisted (reply delivered): %w", res.AppendErr)
	}
}

var newOperationID = func() string {
	return uuid.NewString()
}
