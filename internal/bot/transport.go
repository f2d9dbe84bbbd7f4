package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"

	"github.com/iamwavecut/guardbot/internal/db"
)

const MsgNoPrivileges = "not enough rights"

var ErrNoPrivileges = errors.New("no privileges")

// telegramTransport binds the engine's Transport collaborator to the
// Telegram Bot API.
type telegramTransport struct {
	bot *api.BotAPI
}

func NewTelegramTransport(bot *api.BotAPI) *telegramTransport {
	return &telegramTransport{bot: bot}
}

func (t *telegramTransport) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if _, err := t.bot.Request(api.NewDeleteMessage(chatID, messageID)); err != nil {
		return withPrivilegeError(err, "delete message")
	}
	return nil
}

func (t *telegramTransport) RestrictUser(ctx context.Context, chatID, userID int64, kind string, until time.Time) error {
	member := api.ChatMemberConfig{
		ChatConfig: api.ChatConfig{ChatID: chatID},
		UserID:     userID,
	}

	var err error
	switch kind {
	case db.RestrictionBan:
		_, err = t.bot.Request(api.BanChatMemberConfig{
			ChatMemberConfig: member,
			UntilDate:        until.Unix(),
			RevokeMessages:   false,
		})
	case db.RestrictionMute:
		_, err = t.bot.Request(api.RestrictChatMemberConfig{
			ChatMemberConfig: member,
			UntilDate:        until.Unix(),
			Permissions: &api.ChatPermissions{
				CanSendMessages:       false,
				CanSendOtherMessages:  false,
				CanAddWebPagePreviews: false,
			},
		})
	default:
		return fmt.Errorf("unknown restriction kind %q", kind)
	}
	if err != nil {
		return withPrivilegeError(err, "restrict user")
	}
	return nil
}

func (t *telegramTransport) LiftRestriction(ctx context.Context, chatID, userID int64, kind string) error {
	member := api.ChatMemberConfig{
		ChatConfig: api.ChatConfig{ChatID: chatID},
		UserID:     userID,
	}

	var err error
	switch kind {
	case db.RestrictionBan:
		_, err = t.bot.Request(api.UnbanChatMemberConfig{
			ChatMemberConfig: member,
			OnlyIfBanned:     true,
		})
	case db.RestrictionMute:
		_, err = t.bot.Request(api.RestrictChatMemberConfig{
			ChatMemberConfig: member,
			Permissions: &api.ChatPermissions{
				CanSendMessages:       true,
				CanSendOtherMessages:  true,
				CanAddWebPagePreviews: true,
			},
		})
	default:
		return fmt.Errorf("unknown restriction kind %q", kind)
	}
	if err != nil {
		return withPrivilegeError(err, "lift restriction")
	}
	return nil
}

func (t *telegramTransport) IsAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	member, err := t.bot.GetChatMember(api.GetChatMemberConfig{
		ChatConfigWithUser: api.ChatConfigWithUser{
			ChatConfig: api.ChatConfig{ChatID: chatID},
			UserID:     userID,
		},
	})
	if err != nil {
		return false, fmt.Errorf("get chat member: %w", err)
	}
	return member.IsAdministrator() || member.IsCreator(), nil
}

func (t *telegramTransport) SendNotice(ctx context.Context, chatID int64, text string) (int, error) {
	notice := api.NewMessage(chatID, text)
	notice.DisableNotification = true
	notice.LinkPreviewOptions.IsDisabled = true
	sent, err := t.bot.Send(notice)
	if err != nil {
		return 0, withPrivilegeError(err, "send notice")
	}
	return sent.MessageID, nil
}

func withPrivilegeError(err error, operation string) error {
	if strings.Contains(err.Error(), MsgNoPrivileges) {
		return ErrNoPrivileges
	}
	return fmt.Errorf("failed to %s: %w", operation, err)
}
