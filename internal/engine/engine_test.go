package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/iamwavecut/guardbot/internal/config"
	"github.com/iamwavecut/guardbot/internal/db"
	"github.com/iamwavecut/guardbot/internal/flood"
	"github.com/iamwavecut/guardbot/internal/score"
)

type fakeStore struct {
	mu           sync.Mutex
	warnings     []db.Warning
	restrictions map[string]db.Restriction
	nextID       int64

	addWarningErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{restrictions: make(map[string]db.Restriction)}
}

func restrictionKey(chatID, userID int64, kind string) string {
	return fmt.Sprintf("%d/%d/%s", chatID, userID, kind)
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) AddWarning(_ context.Context, warning *db.Warning) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addWarningErr != nil {
		return 0, f.addWarningErr
	}
	f.nextID++
	warning.ID = f.nextID
	f.warnings = append(f.warnings, *warning)
	return f.countLocked(warning.ChatID, warning.UserID), nil
}

func (f *fakeStore) RemoveLastWarning(_ context.Context, chatID, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.warnings) - 1; i >= 0; i-- {
		if f.warnings[i].ChatID == chatID && f.warnings[i].UserID == userID {
			f.warnings = append(f.warnings[:i], f.warnings[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) ListWarnings(_ context.Context, chatID, userID int64) ([]db.Warning, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []db.Warning
	for _, w := range f.warnings {
		if w.ChatID == chatID && w.UserID == userID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (f *fakeStore) CountWarnings(_ context.Context, chatID, userID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.countLocked(chatID, userID), nil
}

func (f *fakeStore) countLocked(chatID, userID int64) int {
	count := 0
	for _, w := range f.warnings {
		if w.ChatID == chatID && w.UserID == userID {
			count++
		}
	}
	return count
}

func (f *fakeStore) ClearWarnings(_ context.Context, chatID, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.warnings[:0]
	for _, w := range f.warnings {
		if w.ChatID != chatID || w.UserID != userID {
			kept = append(kept, w)
		}
	}
	f.warnings = kept
	return nil
}

func (f *fakeStore) UpsertRestriction(_ context.Context, restriction *db.Restriction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restrictions[restrictionKey(restriction.ChatID, restriction.UserID, restriction.Kind)] = *restriction
	return nil
}

func (f *fakeStore) DeleteRestriction(_ context.Context, chatID, userID int64, kind string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := restrictionKey(chatID, userID, kind)
	if _, ok := f.restrictions[key]; !ok {
		return false, nil
	}
	delete(f.restrictions, key)
	return true, nil
}

func (f *fakeStore) GetRestriction(_ context.Context, chatID, userID int64, kind string) (*db.Restriction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if restriction, ok := f.restrictions[restrictionKey(chatID, userID, kind)]; ok {
		return &restriction, nil
	}
	return nil, nil
}

func (f *fakeStore) ListExpiredRestrictions(_ context.Context, asOf time.Time) ([]db.Restriction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var expired []db.Restriction
	for _, restriction := range f.restrictions {
		if !restriction.Until.After(asOf) {
			expired = append(expired, restriction)
		}
	}
	return expired, nil
}

type transportCall struct {
	chatID int64
	userID int64
	kind   string
}

type fakeTransport struct {
	mu        sync.Mutex
	restricts []transportCall
	lifts     []transportCall
	deletes   int
	notices   []string

	restrictErr error
	liftErr     error
}

func (f *fakeTransport) DeleteMessage(_ context.Context, _ int64, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	return nil
}

func (f *fakeTransport) RestrictUser(_ context.Context, chatID, userID int64, kind string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.restrictErr != nil {
		return f.restrictErr
	}
	f.restricts = append(f.restricts, transportCall{chatID, userID, kind})
	return nil
}

func (f *fakeTransport) LiftRestriction(_ context.Context, chatID, userID int64, kind string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.liftErr != nil {
		return f.liftErr
	}
	f.lifts = append(f.lifts, transportCall{chatID, userID, kind})
	return nil
}

func (f *fakeTransport) IsAdmin(_ context.Context, _, _ int64) (bool, error) {
	return false, nil
}

func (f *fakeTransport) SendNotice(_ context.Context, _ int64, text string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, text)
	return len(f.notices), nil
}

func (f *fakeTransport) liftCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.lifts)
}

func newTestEngine(store *fakeStore, transport *fakeTransport) *Engine {
	rules := &score.Rules{
		BannedTerms: []string{"casino"},
		SpamPhrases: []string{"free money"},
	}
	scorer := score.NewScorer(rules, nil,
		config.LLM{Timeout: time.Second, SpamThreshold: 0.7, ToxicityThreshold: 0.8},
		config.Moderation{SimilarityThreshold: 0.8, HistoryDepth: 5},
	)
	guard := flood.NewGuard(config.Flood{Window: time.Minute, Threshold: 10})
	return New(store, transport, guard, scorer, config.Moderation{MaxWarnings: 3})
}

func TestHandleMessageCleanMessage(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	eng := newTestEngine(store, &fakeTransport{})
	key := db.UserKey{ChatID: -100, UserID: 1}

	directive, err := eng.HandleMessage(context.Background(), key, 10, "good morning all", time.Now())
	if err != nil {
		t.Fatalf("handle message: %v", err)
	}
	if directive.Kind != DirectiveNone {
		t.Fatalf("got directive %q, want none", directive.Kind)
	}
	if count, _ := store.CountWarnings(context.Background(), key.ChatID, key.UserID); count != 0 {
		t.Fatalf("clean message produced %d warnings", count)
	}
}

func TestHandleMessageEscalationLadder(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	eng := newTestEngine(store, &fakeTransport{})
	key := db.UserKey{ChatID: -100, UserID: 1}
	ctx := context.Background()

	texts := []string{
		"casino bonus one",
		"casino bonus two",
		"casino bonus three",
	}
	for i, text := range texts {
		directive, err := eng.HandleMessage(ctx, key, 10+i, text, time.Now())
		if err != nil {
			t.Fatalf("message %d: %v", i+1, err)
		}
		if directive.WarningCount != i+1 {
			t.Fatalf("message %d: got warning count %d, want %d", i+1, directive.WarningCount, i+1)
		}
		if directive.CaseID == "" {
			t.Fatalf("message %d: empty case id", i+1)
		}
		want := DirectiveDeleteAndWarn
		if i == len(texts)-1 {
			want = DirectiveEscalate
		}
		if directive.Kind != want {
			t.Fatalf("message %d: got directive %q, want %q", i+1, directive.Kind, want)
		}
	}

	// At the limit no further warning accumulates, only escalation.
	directive, err := eng.HandleMessage(ctx, key, 14, "casino bonus four", time.Now())
	if err != nil {
		t.Fatalf("message past limit: %v", err)
	}
	if directive.Kind != DirectiveEscalate || directive.WarningCount != 3 {
		t.Fatalf("past limit: got %+v", directive)
	}
	if len(directive.CandidateActions) != 4 {
		t.Fatalf("got %d candidate actions, want 4", len(directive.CandidateActions))
	}
	if count, _ := store.CountWarnings(ctx, key.ChatID, key.UserID); count != 3 {
		t.Fatalf("store holds %d warnings, want 3", count)
	}
}

func TestHandleEditedMessageViolationDeletesWithoutWarning(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	eng := newTestEngine(store, &fakeTransport{})
	key := db.UserKey{ChatID: -100, UserID: 1}
	ctx := context.Background()

	directive, err := eng.HandleEditedMessage(ctx, key, "visit my casino")
	if err != nil {
		t.Fatalf("handle edited message: %v", err)
	}
	if directive.Kind != DirectiveDelete {
		t.Fatalf("got directive %q, want delete", directive.Kind)
	}
	if directive.CaseID == "" {
		t.Fatal("empty case id")
	}
	if count, _ := store.CountWarnings(ctx, key.ChatID, key.UserID); count != 0 {
		t.Fatalf("edit produced %d warnings, want 0", count)
	}
}

func TestHandleEditedMessageCleanIsNoOp(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	eng := newTestEngine(store, &fakeTransport{})
	key := db.UserKey{ChatID: -100, UserID: 1}

	directive, err := eng.HandleEditedMessage(context.Background(), key, "fixed a typo")
	if err != nil {
		t.Fatalf("handle edited message: %v", err)
	}
	if directive.Kind != DirectiveNone {
		t.Fatalf("got directive %q, want none", directive.Kind)
	}
}

func TestHandleMessageFloodIsViolation(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	transport := &fakeTransport{}
	rules := &score.Rules{}
	scorer := score.NewScorer(rules, nil,
		config.LLM{Timeout: time.Second, SpamThreshold: 0.7, ToxicityThreshold: 0.8},
		config.Moderation{SimilarityThreshold: 0.8, HistoryDepth: 5},
	)
	guard := flood.NewGuard(config.Flood{Window: time.Minute, Threshold: 2})
	eng := New(store, transport, guard, scorer, config.Moderation{MaxWarnings: 3})

	key := db.UserKey{ChatID: -100, UserID: 1}
	ctx := context.Background()
	base := time.Now()

	for i, text := range []string{"first", "second"} {
		directive, err := eng.HandleMessage(ctx, key, i, text, base.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("message %d: %v", i+1, err)
		}
		if directive.Kind != DirectiveNone {
			t.Fatalf("message %d flagged below threshold: %+v", i+1, directive)
		}
	}

	directive, err := eng.HandleMessage(ctx, key, 3, "third", base.Add(3*time.Second))
	if err != nil {
		t.Fatalf("flooding message: %v", err)
	}
	if directive.Kind != DirectiveDeleteAndWarn {
		t.Fatalf("got directive %q, want delete_and_warn", directive.Kind)
	}
	if len(directive.Reasons) == 0 || directive.Reasons[0] != "flood" {
		t.Fatalf("got reasons %v, want flood first", directive.Reasons)
	}
}

func TestHandleMessagePersistFailureAborts(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.addWarningErr = errors.New("disk full")
	eng := newTestEngine(store, &fakeTransport{})
	key := db.UserKey{ChatID: -100, UserID: 1}

	if _, err := eng.HandleMessage(context.Background(), key, 1, "casino bonus", time.Now()); err == nil {
		t.Fatal("expected persist failure to surface")
	}
}

func TestExplicitWarnRemoveClear(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	eng := newTestEngine(store, &fakeTransport{})
	key := db.UserKey{ChatID: -100, UserID: 1}
	ctx := context.Background()

	if count, err := eng.HandleExplicitWarn(ctx, key, "offtopic", 42); err != nil || count != 1 {
		t.Fatalf("first warn: count %d, err %v", count, err)
	}
	if count, err := eng.HandleExplicitWarn(ctx, key, "offtopic again", 42); err != nil || count != 2 {
		t.Fatalf("second warn: count %d, err %v", count, err)
	}

	if removed, err := eng.HandleRemoveWarning(ctx, key); err != nil || !removed {
		t.Fatalf("remove warning: removed %v, err %v", removed, err)
	}
	if err := eng.HandleClearWarnings(ctx, key); err != nil {
		t.Fatalf("clear warnings: %v", err)
	}
	if removed, err := eng.HandleRemoveWarning(ctx, key); err != nil || removed {
		t.Fatalf("remove on empty: removed %v, err %v", removed, err)
	}
}

func TestExplicitRestrictionValidation(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(newFakeStore(), &fakeTransport{})
	key := db.UserKey{ChatID: -100, UserID: 1}
	ctx := context.Background()

	if _, err := eng.HandleExplicitRestriction(ctx, key, "freeze", time.Minute, "x"); !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("got %v, want ErrInvalidKind", err)
	}
	if _, err := eng.HandleExplicitRestriction(ctx, key, db.RestrictionMute, 0, "x"); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("got %v, want ErrInvalidDuration", err)
	}
}

func TestExplicitRestrictionPersists(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	transport := &fakeTransport{}
	eng := newTestEngine(store, transport)
	key := db.UserKey{ChatID: -100, UserID: 1}
	ctx := context.Background()

	restriction, err := eng.HandleExplicitRestriction(ctx, key, db.RestrictionMute, 5*time.Minute, "spamming")
	if err != nil {
		t.Fatalf("restrict: %v", err)
	}
	if restriction.Until.Before(time.Now().Add(4 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", restriction.Until)
	}
	if len(transport.restricts) != 1 || transport.restricts[0].kind != db.RestrictionMute {
		t.Fatalf("unexpected transport calls: %+v", transport.restricts)
	}
	if active, err := eng.IsRestricted(ctx, key, db.RestrictionMute); err != nil || !active {
		t.Fatalf("restriction not active: %v, err %v", active, err)
	}
}

func TestExplicitRestrictionTransportFailure(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	transport := &fakeTransport{restrictErr: errors.New("no rights")}
	eng := newTestEngine(store, transport)
	key := db.UserKey{ChatID: -100, UserID: 1}

	if _, err := eng.HandleExplicitRestriction(context.Background(), key, db.RestrictionBan, time.Hour, "x"); err == nil {
		t.Fatal("expected transport failure to surface")
	}
	if active, _ := eng.IsRestricted(context.Background(), key, db.RestrictionBan); active {
		t.Fatal("restriction persisted despite transport failure")
	}
}

func TestLiftRestriction(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	transport := &fakeTransport{}
	eng := newTestEngine(store, transport)
	key := db.UserKey{ChatID: -100, UserID: 1}
	ctx := context.Background()

	if _, err := eng.HandleExplicitRestriction(ctx, key, db.RestrictionBan, time.Hour, "x"); err != nil {
		t.Fatalf("restrict: %v", err)
	}

	lifted, err := eng.HandleLiftRestriction(ctx, key, db.RestrictionBan)
	if err != nil || !lifted {
		t.Fatalf("lift: lifted %v, err %v", lifted, err)
	}
	if lifted, err = eng.HandleLiftRestriction(ctx, key, db.RestrictionBan); err != nil || lifted {
		t.Fatalf("second lift: lifted %v, err %v", lifted, err)
	}
}
