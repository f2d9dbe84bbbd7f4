package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/iamwavecut/tool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/guardbot/internal/db"
	"github.com/iamwavecut/guardbot/internal/engine"
)

// permanentDuration stands in for "no expiry" in the ledger; the
// reconciler never reaches it.
const permanentDuration = 10 * 365 * 24 * time.Hour

type commandHandler func(ctx context.Context, msg *api.Message, target *api.User, args []string) error

// commandTable maps a command tag to its handler. Parsing stays here;
// handlers only talk to the engine contracts.
func commandTable(up *UpdateProcessor) map[string]commandHandler {
	return map[string]commandHandler{
		"warn":          up.cmdWarn,
		"unwarn":        up.cmdUnwarn,
		"warnings":      up.cmdWarnings,
		"clearwarnings": up.cmdClearWarnings,
		"ban":           up.cmdBan,
		"tban":          up.cmdTempBan,
		"unban":         up.cmdUnban,
		"mute":          up.cmdMute,
		"tmute":         up.cmdTempMute,
		"unmute":        up.cmdUnmute,
		"kick":          up.cmdKick,
	}
}


func (up *UpdateProcessor) dispatchCommand(ctx context.Context, msg *api.Message) error {
	command := msg.Command()
	handler, ok := up.commands[command]
	if !ok {
		return nil
	}

	isAdmin, err := up.transport.IsAdmin(ctx, msg.Chat.ID, msg.From.ID)
	if err != nil {
		return errors.Wrap(err, "check issuer admin")
	}
	if !isAdmin {
		up.sendEphemeralNotice(ctx, msg.Chat.ID, "❌ You need admin privileges to use this command.")
		return nil
	}

	target, args, err := resolveTarget(msg)
	if err != nil {
		up.sendEphemeralNotice(ctx, msg.Chat.ID, fmt.Sprintf("📝 Usage: /%s — reply to a message or pass a numeric user id.", command))
		return nil
	}

	// restrictive commands may not target chat administrators
	if tool.In(command, "warn", "ban", "tban", "mute", "tmute", "kick") {
		targetIsAdmin, err := up.transport.IsAdmin(ctx, msg.Chat.ID, target.ID)
		if err != nil {
			log.WithError(err).Debug("cant check target admin status")
		} else if targetIsAdmin {
			up.sendEphemeralNotice(ctx, msg.Chat.ID, "❌ Cannot moderate an administrator.")
			return nil
		}
	}

	if err := handler(ctx, msg, target, args); err != nil {
		return errors.Wrapf(err, "command %s", command)
	}
	return nil
}

// resolveTarget picks the moderation target from the replied-to
// message, falling back to a numeric user id argument.
func resolveTarget(msg *api.Message) (*api.User, []string, error) {
	args := strings.Fields(msg.CommandArguments())
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil {
		return msg.ReplyToMessage.From, args, nil
	}
	if len(args) > 0 {
		if userID, err := strconv.ParseInt(args[0], 10, 64); err == nil {
			return &api.User{ID: userID}, args[1:], nil
		}
	}
	return nil, nil, errors.New("no target user")
}

func (up *UpdateProcessor) cmdWarn(ctx context.Context, msg *api.Message, target *api.User, args []string) error {
	key := db.UserKey{ChatID: msg.Chat.ID, UserID: target.ID}
	reason := reasonFrom(args)

	count, err := up.s.GetEngine().HandleExplicitWarn(ctx, key, reason, msg.From.ID)
	if err != nil {
		return err
	}

	maxWarnings := up.s.GetEngine().MaxWarnings()
	if engine.StateOf(count, maxWarnings) == engine.StateMaxReached {
		up.sendEphemeralNotice(ctx, msg.Chat.ID, fmt.Sprintf(
			"🚨 %s reached the warning limit (%d/%d). Admins, choose an action: ban, kick, timed_mute, clear_warnings",
			userName(target), count, maxWarnings,
		))
		return nil
	}
	up.sendEphemeralNotice(ctx, msg.Chat.ID, fmt.Sprintf("⚠️ %s warned (%d/%d): %s", userName(target), count, maxWarnings, reason))
	return nil
}

func (up *UpdateProcessor) cmdUnwarn(ctx context.Context, msg *api.Message, target *api.User, _ []string) error {
	key := db.UserKey{ChatID: msg.Chat.ID, UserID: target.ID}
	removed, err := up.s.GetEngine().HandleRemoveWarning(ctx, key)
	if err != nil {
		return err
	}
	if !removed {
		up.sendEphemeralNotice(ctx, msg.Chat.ID, fmt.Sprintf("%s has no warnings.", userName(target)))
		return nil
	}
	up.sendEphemeralNotice(ctx, msg.Chat.ID, fmt.Sprintf("✅ Removed the last warning for %s.", userName(target)))
	return nil
}

func (up *UpdateProcessor) cmdClearWarnings(ctx context.Context, msg *api.Message, target *api.User, _ []string) error {
	key := db.UserKey{ChatID: msg.Chat.ID, UserID: target.ID}
	if err := up.s.GetEngine().HandleClearWarnings(ctx, key); err != nil {
		return err
	}
	up.sendEphemeralNotice(ctx, msg.Chat.ID, fmt.Sprintf("✅ Cleared all warnings for %s.", userName(target)))
	return nil
}

func (up *UpdateProcessor) cmdWarnings(ctx context.Context, msg *api.Message, target *api.User, _ []string) error {
	key := db.UserKey{ChatID: msg.Chat.ID, UserID: target.ID}
	warnings, err := up.s.GetEngine().ListWarnings(ctx, key)
	if err != nil {
		return err
	}

	var builder strings.Builder
	if len(warnings) == 0 {
		fmt.Fprintf(&builder, "%s has no warnings.\n", userName(target))
	} else {
		fmt.Fprintf(&builder, "⚠️ Warnings for %s (%d/%d):\n", userName(target), len(warnings), up.s.GetEngine().MaxWarnings())
		for i, warning := range warnings {
			fmt.Fprintf(&builder, "%d. %s — %s\n", i+1, warning.CreatedAt.Format("2006-01-02 15:04"), warning.Reason)
		}
	}
	for _, kind := range []string{db.RestrictionBan, db.RestrictionMute} {
		restriction, err := up.s.GetDB().GetRestriction(ctx, key.ChatID, key.UserID, kind)
		if err != nil {
			return errors.Wrap(err, "get restriction")
		}
		if restriction != nil {
			fmt.Fprintf(&builder, "⛔ Active %s until %s\n", kind, restriction.Until.Format("2006-01-02 15:04"))
		}
	}
	up.sendEphemeralNotice(ctx, msg.Chat.ID, strings.TrimRight(builder.String(), "\n"))
	return nil
}

func (up *UpdateProcessor) cmdBan(ctx context.Context, msg *api.Message, target *api.User, args []string) error {
	return up.applyRestriction(ctx, msg, target, db.RestrictionBan, permanentDuration, reasonFrom(args))
}

func (up *UpdateProcessor) cmdMute(ctx context.Context, msg *api.Message, target *api.User, args []string) error {
	return up.applyRestriction(ctx, msg, target, db.RestrictionMute, permanentDuration, reasonFrom(args))
}

func (up *UpdateProcessor) cmdTempBan(ctx context.Context, msg *api.Message, target *api.User, args []string) error {
	return up.applyTimedRestriction(ctx, msg, target, db.RestrictionBan, args)
}

func (up *UpdateProcessor) cmdTempMute(ctx context.Context, msg *api.Message, target *api.User, args []string) error {
	return up.applyTimedRestriction(ctx, msg, target, db.RestrictionMute, args)
}

func (up *UpdateProcessor) applyTimedRestriction(ctx context.Context, msg *api.Message, target *api.User, kind string, args []string) error {
	if len(args) == 0 {
		up.sendEphemeralNotice(ctx, msg.Chat.ID, fmt.Sprintf("📝 Usage: /t%s <duration> [reason] — durations like 30s, 5m, 2h, 1d, 1w.", kind))
		return nil
	}
	duration, err := ParseRestrictionDuration(args[0])
	if err != nil {
		up.sendEphemeralNotice(ctx, msg.Chat.ID, "❌ Invalid duration. Use formats like 30s, 5m, 2h, 1d, 1w.")
		return nil
	}
	return up.applyRestriction(ctx, msg, target, kind, duration, reasonFrom(args[1:]))
}

func (up *UpdateProcessor) applyRestriction(ctx context.Context, msg *api.Message, target *api.User, kind string, duration time.Duration, reason string) error {
	key := db.UserKey{ChatID: msg.Chat.ID, UserID: target.ID}
	restriction, err := up.s.GetEngine().HandleExplicitRestriction(ctx, key, kind, duration, reason)
	if err != nil {
		if errors.Is(err, ErrNoPrivileges) {
			up.sendEphemeralNotice(ctx, msg.Chat.ID, "❌ I don't have enough rights to restrict this user.")
			return nil
		}
		return err
	}

	notice := fmt.Sprintf("🔨 %s %sd: %s", userName(target), kind, reason)
	if duration < permanentDuration {
		notice += fmt.Sprintf("\nUntil: %s", restriction.Until.Format("2006-01-02 15:04:05"))
	}
	up.sendEphemeralNotice(ctx, msg.Chat.ID, notice)
	return nil
}

// cmdKick removes the user without a ledger entry: a platform ban
// followed by an immediate unban, so they can rejoin.
func (up *UpdateProcessor) cmdKick(ctx context.Context, msg *api.Message, target *api.User, args []string) error {
	if err := up.transport.RestrictUser(ctx, msg.Chat.ID, target.ID, db.RestrictionBan, time.Now().Add(time.Minute)); err != nil {
		if errors.Is(err, ErrNoPrivileges) {
			up.sendEphemeralNotice(ctx, msg.Chat.ID, "❌ I don't have enough rights to kick this user.")
			return nil
		}
		return err
	}
	if err := up.transport.LiftRestriction(ctx, msg.Chat.ID, target.ID, db.RestrictionBan); err != nil {
		return err
	}
	up.sendEphemeralNotice(ctx, msg.Chat.ID, fmt.Sprintf("👢 %s kicked: %s", userName(target), reasonFrom(args)))
	return nil
}

func (up *UpdateProcessor) cmdUnban(ctx context.Context, msg *api.Message, target *api.User, _ []string) error {
	return up.liftRestriction(ctx, msg, target, db.RestrictionBan)
}

func (up *UpdateProcessor) cmdUnmute(ctx context.Context, msg *api.Message, target *api.User, _ []string) error {
	return up.liftRestriction(ctx, msg, target, db.RestrictionMute)
}

func (up *UpdateProcessor) liftRestriction(ctx context.Context, msg *api.Message, target *api.User, kind string) error {
	key := db.UserKey{ChatID: msg.Chat.ID, UserID: target.ID}
	lifted, err := up.s.GetEngine().HandleLiftRestriction(ctx, key, kind)
	if err != nil {
		return err
	}
	if !lifted {
		up.sendEphemeralNotice(ctx, msg.Chat.ID, fmt.Sprintf("%s has no active %s.", userName(target), kind))
		return nil
	}
	up.sendEphemeralNotice(ctx, msg.Chat.ID, fmt.Sprintf("✅ Lifted %s for %s.", kind, userName(target)))
	return nil
}

func reasonFrom(args []string) string {
	reason := strings.TrimSpace(strings.Join(args, " "))
	if reason == "" {
		return "no reason specified"
	}
	return reason
}
