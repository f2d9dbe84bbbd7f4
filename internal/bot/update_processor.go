package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iamwavecut/guardbot/internal/config"
	"github.com/iamwavecut/guardbot/internal/db"
	"github.com/iamwavecut/guardbot/internal/engine"
)

const UpdateTimeout = 5 * time.Minute

// UpdateProcessor fans inbound updates out to a bounded worker pool.
// Ordering per user is enforced by the engine's per-key locks, not by
// the pool, so slow keys do not stall unrelated traffic.
type UpdateProcessor struct {
	s         Service
	transport engine.Transport
	cfg       config.Config
	commands  map[string]commandHandler

	pool       *errgroup.Group
	runtimeCtx context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.Mutex
	started    bool
}

func NewUpdateProcessor(s Service, transport engine.Transport, cfg config.Config) *UpdateProcessor {
	up := &UpdateProcessor{
		s:         s,
		transport: transport,
		cfg:       cfg,
	}
	up.commands = commandTable(up)
	return up
}

func (up *UpdateProcessor) Start(ctx context.Context) error {
	up.mu.Lock()
	defer up.mu.Unlock()
	if up.started {
		return nil
	}
	up.runtimeCtx, up.cancel = context.WithCancel(ctx)
	up.pool = &errgroup.Group{}
	workers := up.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	up.pool.SetLimit(workers)
	up.started = true
	return nil
}

func (up *UpdateProcessor) Stop(ctx context.Context) error {
	up.mu.Lock()
	if !up.started {
		up.mu.Unlock()
		return nil
	}
	up.started = false
	cancel := up.cancel
	pool := up.pool
	up.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if pool != nil {
			_ = pool.Wait()
		}
		up.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Process enqueues one update; it blocks only when all workers are
// busy, which backpressures the long-poll loop.
func (up *UpdateProcessor) Process(ctx context.Context, u *api.Update) error {
	if u == nil {
		return errors.New("update is nil")
	}
	up.mu.Lock()
	pool := up.pool
	started := up.started
	up.mu.Unlock()
	if !started {
		return errors.New("processor is not started")
	}

	update := *u
	pool.Go(func() error {
		if err := up.handleUpdate(up.runtimeCtx, &update); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Errorln("cant process update")
		}
		return nil
	})
	return nil
}

func (up *UpdateProcessor) handleUpdate(ctx context.Context, u *api.Update) error {
	msg, edited := u.Message, false
	if msg == nil {
		msg, edited = u.EditedMessage, true
	}
	if msg == nil || msg.From == nil {
		return nil
	}
	if !msg.Chat.IsGroup() && !msg.Chat.IsSuperGroup() {
		return nil
	}
	if botAPI := up.s.GetBot(); botAPI != nil && msg.From.ID == botAPI.Self.ID {
		return nil
	}

	dateUnix := msg.Date
	if edited && msg.EditDate != 0 {
		dateUnix = msg.EditDate
	}
	updateTime := time.Unix(int64(dateUnix), 0)
	if time.Since(updateTime) > UpdateTimeout {
		log.WithFields(log.Fields{
			"update_time": updateTime,
			"age":         time.Since(updateTime),
		}).Debug("Skipping outdated update")
		return nil
	}

	if msg.IsCommand() {
		if edited {
			return nil
		}
		return up.dispatchCommand(ctx, msg)
	}

	text := extractText(msg)
	if text == "" {
		return nil
	}

	key := db.UserKey{ChatID: msg.Chat.ID, UserID: msg.From.ID}
	if edited {
		directive, err := up.s.GetEngine().HandleEditedMessage(ctx, key, text)
		if err != nil {
			return errors.Wrap(err, "handle edited message")
		}
		return up.applyDirective(ctx, msg, directive)
	}
	directive, err := up.s.GetEngine().HandleMessage(ctx, key, msg.MessageID, text, updateTime)
	if err != nil {
		return errors.Wrap(err, "handle message")
	}
	return up.applyDirective(ctx, msg, directive)
}

func (up *UpdateProcessor) applyDirective(ctx context.Context, msg *api.Message, directive engine.Directive) error {
	switch directive.Kind {
	case engine.DirectiveNone:
		return nil
	case engine.DirectiveDelete, engine.DirectiveDeleteAndWarn, engine.DirectiveEscalate:
	default:
		return fmt.Errorf("unknown directive kind %q", directive.Kind)
	}

	if err := up.transport.DeleteMessage(ctx, msg.Chat.ID, msg.MessageID); err != nil {
		log.WithError(err).WithField("chat_id", msg.Chat.ID).Error("failed to delete message")
	}

	var text string
	switch directive.Kind {
	case engine.DirectiveDeleteAndWarn:
		text = fmt.Sprintf("⚠️ %s warned (%d/%d): %s",
			userName(msg.From),
			directive.WarningCount,
			up.s.GetEngine().MaxWarnings(),
			strings.Join(directive.Reasons, ", "),
		)
	case engine.DirectiveEscalate:
		actions := make([]string, 0, len(directive.CandidateActions))
		for _, action := range directive.CandidateActions {
			actions = append(actions, string(action))
		}
		text = fmt.Sprintf("🚨 %s reached the warning limit (%d). Admins, choose an action: %s",
			userName(msg.From),
			directive.WarningCount,
			strings.Join(actions, ", "),
		)
	}
	if text != "" {
		up.sendEphemeralNotice(ctx, msg.Chat.ID, text)
	}
	return nil
}

// sendEphemeralNotice posts a notice and schedules its deletion, so
// moderation chatter does not pile up in the group.
func (up *UpdateProcessor) sendEphemeralNotice(ctx context.Context, chatID int64, text string) {
	noticeID, err := up.transport.SendNotice(ctx, chatID, text)
	if err != nil {
		log.WithError(err).Error("failed to send notice")
		return
	}
	up.scheduleAfter(up.cfg.Moderation.NoticeTTL, func(runCtx context.Context) {
		if err := up.transport.DeleteMessage(runCtx, chatID, noticeID); err != nil {
			log.WithError(err).Debug("failed to delete notice")
		}
	})
}

func (up *UpdateProcessor) scheduleAfter(delay time.Duration, task func(ctx context.Context)) {
	runCtx := up.getRuntimeContext()
	up.wg.Add(1)
	go func() {
		defer up.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-runCtx.Done():
			return
		case <-timer.C:
			task(runCtx)
		}
	}()
}

func (up *UpdateProcessor) getRuntimeContext() context.Context {
	up.mu.Lock()
	defer up.mu.Unlock()
	if up.runtimeCtx != nil {
		return up.runtimeCtx
	}
	return context.Background()
}

func extractText(msg *api.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}

func userName(user *api.User) string {
	if user.UserName != "" {
		return "@" + user.UserName
	}
	name := user.FirstName
	if user.LastName != "" {
		name += " " + user.LastName
	}
	if name == "" {
		name = fmt.Sprintf("user %d", user.ID)
	}
	return name
}
