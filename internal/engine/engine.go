package engine

import (
	"context"
	"time"

	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iamwavecut/guardbot/internal/config"
	"github.com/iamwavecut/guardbot/internal/db"
	"github.com/iamwavecut/guardbot/internal/flood"
	"github.com/iamwavecut/guardbot/internal/observability"
	"github.com/iamwavecut/guardbot/internal/score"
)

var (
	ErrInvalidKind     = errors.New("invalid restriction kind")
	ErrInvalidDuration = errors.New("invalid restriction duration")
)

// Transport is the chat platform collaborator. All calls may fail;
// the engine treats transport failures as logged and non-fatal, with
// ledger-driven actions retried by the reconciler.
type Transport interface {
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	RestrictUser(ctx context.Context, chatID, userID int64, kind string, until time.Time) error
	LiftRestriction(ctx context.Context, chatID, userID int64, kind string) error
	IsAdmin(ctx context.Context, chatID, userID int64) (bool, error)
	SendNotice(ctx context.Context, chatID int64, text string) (int, error)
}

type warningStore interface {
	AddWarning(ctx context.Context, warning *db.Warning) (int, error)
	RemoveLastWarning(ctx context.Context, chatID, userID int64) (bool, error)
	ListWarnings(ctx context.Context, chatID, userID int64) ([]db.Warning, error)
	CountWarnings(ctx context.Context, chatID, userID int64) (int, error)
	ClearWarnings(ctx context.Context, chatID, userID int64) error
}

type restrictionLedger interface {
	UpsertRestriction(ctx context.Context, restriction *db.Restriction) error
	DeleteRestriction(ctx context.Context, chatID, userID int64, kind string) (bool, error)
	GetRestriction(ctx context.Context, chatID, userID int64, kind string) (*db.Restriction, error)
	ListExpiredRestrictions(ctx context.Context, asOf time.Time) ([]db.Restriction, error)
}

type store interface {
	warningStore
	restrictionLedger
}

// Engine turns inbound chat events into moderation directives. All
// mutations for one UserKey run under that key's critical section.
type Engine struct {
	store     store
	transport Transport
	guard     *flood.Guard
	scorer    *score.Scorer
	locks     *keyLocks

	maxWarnings int
}

func New(store db.Client, transport Transport, guard *flood.Guard, scorer *score.Scorer, cfg config.Moderation) *Engine {
	return &Engine{
		store:       store,
		transport:   transport,
		guard:       guard,
		scorer:      scorer,
		locks:       newKeyLocks(),
		maxWarnings: cfg.MaxWarnings,
	}
}

func (e *Engine) MaxWarnings() int {
	return e.maxWarnings
}

// HandleMessage gathers the flood and content-risk signals, decides,
// and persists any warning before the directive is returned. A
// persistence failure aborts the decision; the caller never sees a
// warning count that was not durably committed.
func (e *Engine) HandleMessage(ctx context.Context, key db.UserKey, messageID int, text string, ts time.Time) (Directive, error) {
	ctx, span := otel.Tracer("moderation-engine").Start(ctx, "handle-message")
	defer span.End()
	done := observability.StartMessageProcessing()

	unlock := e.locks.Lock(key)
	defer unlock()

	var (
		floodResult flood.Result
		verdict     score.Verdict
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		floodResult = e.guard.Evaluate(key, ts)
		return nil
	})
	group.Go(func() error {
		verdict = e.scorer.Score(groupCtx, key, text)
		return nil
	})
	_ = group.Wait()

	if floodResult.IsFlood {
		verdict.IsViolation = true
		verdict.Reasons = append([]string{"flood"}, verdict.Reasons...)
		if verdict.Confidence < 1 {
			verdict.Confidence = 1
		}
	}
	if !verdict.IsViolation {
		done("clean")
		return Directive{Kind: DirectiveNone}, nil
	}

	caseID := uuid.New()
	entry := e.getLogEntry().WithFields(log.Fields{
		"case_id":    caseID,
		"key":        key.String(),
		"reasons":    verdict.Reasons,
		"confidence": verdict.Confidence,
	})
	for _, reason := range verdict.Reasons {
		observability.RecordViolation(reason)
	}
	observability.LogDecision("violation detected",
		zap.String("case_id", caseID),
		zap.String("key", key.String()),
		zap.Strings("reasons", verdict.Reasons),
		zap.Float64("confidence", verdict.Confidence),
	)

	count, err := e.store.CountWarnings(ctx, key.ChatID, key.UserID)
	if err != nil {
		done("error")
		return Directive{}, errors.Wrap(err, "count warnings")
	}

	if StateOf(count, e.maxWarnings) == StateMaxReached {
		entry.WithField("warnings", count).Info("violation at max warnings, escalating")
		done("escalated")
		return Directive{
			Kind:             DirectiveEscalate,
			CaseID:           caseID,
			WarningCount:     count,
			Reasons:          verdict.Reasons,
			CandidateActions: escalationCandidates(),
		}, nil
	}

	newCount, err := e.store.AddWarning(ctx, &db.Warning{
		ChatID:    key.ChatID,
		UserID:    key.UserID,
		Reason:    firstReason(verdict.Reasons),
		IssuerID:  0,
		CreatedAt: ts,
	})
	if err != nil {
		done("error")
		return Directive{}, errors.Wrap(err, "add warning")
	}
	observability.RecordWarning()
	entry.WithField("warnings", newCount).Info("violation, message suppressed")

	directive := Directive{
		Kind:         DirectiveDeleteAndWarn,
		CaseID:       caseID,
		WarningCount: newCount,
		Reasons:      verdict.Reasons,
	}
	if StateOf(newCount, e.maxWarnings) == StateMaxReached {
		directive.Kind = DirectiveEscalate
		directive.CandidateActions = escalationCandidates()
		done("escalated")
	} else {
		done("warned")
	}
	return directive, nil
}

// HandleEditedMessage re-checks a message after an edit, with the
// stateless detectors only. A violating edit is suppressed without
// advancing the warning ladder; the original already passed moderation
// once, and edits must not churn the near-duplicate history.
func (e *Engine) HandleEditedMessage(ctx context.Context, key db.UserKey, text string) (Directive, error) {
	ctx, span := otel.Tracer("moderation-engine").Start(ctx, "handle-edited-message")
	defer span.End()

	unlock := e.locks.Lock(key)
	defer unlock()

	verdict := e.scorer.ScoreContent(text)
	if !verdict.IsViolation {
		return Directive{Kind: DirectiveNone}, nil
	}

	caseID := uuid.New()
	for _, reason := range verdict.Reasons {
		observability.RecordViolation(reason)
	}
	observability.LogDecision("violating edit suppressed",
		zap.String("case_id", caseID),
		zap.String("key", key.String()),
		zap.Strings("reasons", verdict.Reasons),
		zap.Float64("confidence", verdict.Confidence),
	)
	e.getLogEntry().WithFields(log.Fields{
		"case_id": caseID,
		"key":     key.String(),
		"reasons": verdict.Reasons,
	}).Info("violating edit, message suppressed")

	return Directive{
		Kind:    DirectiveDelete,
		CaseID:  caseID,
		Reasons: verdict.Reasons,
	}, nil
}

// HandleExplicitWarn records an admin-issued warning and returns the
// new durable count.
func (e *Engine) HandleExplicitWarn(ctx context.Context, key db.UserKey, reason string, issuerID int64) (int, error) {
	unlock := e.locks.Lock(key)
	defer unlock()

	count, err := e.store.AddWarning(ctx, &db.Warning{
		ChatID:    key.ChatID,
		UserID:    key.UserID,
		Reason:    reason,
		IssuerID:  issuerID,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return 0, errors.Wrap(err, "add warning")
	}
	observability.RecordWarning()
	return count, nil
}

// HandleRemoveWarning drops the most recent warning; false when the
// history is empty.
func (e *Engine) HandleRemoveWarning(ctx context.Context, key db.UserKey) (bool, error) {
	unlock := e.locks.Lock(key)
	defer unlock()
	return e.store.RemoveLastWarning(ctx, key.ChatID, key.UserID)
}

func (e *Engine) HandleClearWarnings(ctx context.Context, key db.UserKey) error {
	unlock := e.locks.Lock(key)
	defer unlock()
	return e.store.ClearWarnings(ctx, key.ChatID, key.UserID)
}

func (e *Engine) ListWarnings(ctx context.Context, key db.UserKey) ([]db.Warning, error) {
	return e.store.ListWarnings(ctx, key.ChatID, key.UserID)
}

// HandleExplicitRestriction applies a timed ban or mute: the platform
// restriction first, then the durable ledger write. A ledger failure
// is a hard failure even after the platform call succeeded.
func (e *Engine) HandleExplicitRestriction(ctx context.Context, key db.UserKey, kind string, duration time.Duration, reason string) (*db.Restriction, error) {
	if !db.ValidRestrictionKind(kind) {
		return nil, errors.Wrapf(ErrInvalidKind, "kind %q", kind)
	}
	if duration <= 0 {
		return nil, errors.Wrapf(ErrInvalidDuration, "duration %s", duration)
	}

	unlock := e.locks.Lock(key)
	defer unlock()

	now := time.Now()
	restriction := &db.Restriction{
		ChatID:    key.ChatID,
		UserID:    key.UserID,
		Kind:      kind,
		Until:     now.Add(duration),
		Reason:    reason,
		CreatedAt: now,
	}

	if err := e.transport.RestrictUser(ctx, key.ChatID, key.UserID, kind, restriction.Until); err != nil {
		return nil, errors.Wrap(err, "restrict user")
	}
	if err := e.store.UpsertRestriction(ctx, restriction); err != nil {
		return nil, errors.Wrap(err, "persist restriction")
	}
	observability.RecordRestriction(kind)
	e.scorer.ResetHistory(key)
	return restriction, nil
}

// HandleLiftRestriction removes a restriction ahead of its expiry;
// false when no restriction of that kind was active.
func (e *Engine) HandleLiftRestriction(ctx context.Context, key db.UserKey, kind string) (bool, error) {
	if !db.ValidRestrictionKind(kind) {
		return false, errors.Wrapf(ErrInvalidKind, "kind %q", kind)
	}

	unlock := e.locks.Lock(key)
	defer unlock()

	if err := e.transport.LiftRestriction(ctx, key.ChatID, key.UserID, kind); err != nil {
		// Lifting at the platform is idempotent, keep going.
		e.getLogEntry().WithError(err).WithField("key", key.String()).Warn("transport lift failed")
	}
	return e.store.DeleteRestriction(ctx, key.ChatID, key.UserID, kind)
}

func (e *Engine) IsRestricted(ctx context.Context, key db.UserKey, kind string) (bool, error) {
	restriction, err := e.store.GetRestriction(ctx, key.ChatID, key.UserID, kind)
	if err != nil {
		return false, err
	}
	return restriction != nil, nil
}

func (e *Engine) getLogEntry() *log.Entry {
	return log.WithField("object", "Engine")
}

func firstReason(reasons []string) string {
	if len(reasons) == 0 {
		return "violation"
	}
	return reasons[0]
}
