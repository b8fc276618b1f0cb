package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"keyword_bot/internal/filter"
	"keyword_bot/internal/model"
	"keyword_bot/internal/session"
)

const (
	startText = `👋 Welcome to Keyword Watcher!

Add me to the groups you read, pick keywords, and I'll message you here whenever someone mentions them.

Quick start:
1. Add me to a group
2. /groups - enable tracking for that group
3. /use - choose the group to manage
4. /add job, intern, remote - add keywords

Use /help for the full command reference.`

	helpText = `Group management:
/groups - list groups and enable, mute or leave them
/use - choose the group whose keywords you manage

Keyword management:
/add k1, k2 - add comma-separated keywords to the current group
/list - show keywords of the current group
/remove - select keywords to remove
/keywords - all your keywords across groups

Other:
/reset - delete all your data
/help - this message

Keywords are case-insensitive and match anywhere in a message.`

	noActiveRoomText = "No group selected. Use /use to choose one first."
)

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID
	userID := msg.From.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "user_id", userID)

	switch cmd {
	case "start":
		b.reply(chatID, startText)
	case "help":
		b.reply(chatID, helpText)
	case "groups":
		b.showGroups(ctx, chatID, 0, userID, 0)
	case "use":
		b.handleUse(ctx, chatID, userID)
	case "add":
		b.handleAdd(ctx, chatID, userID, args)
	case "list":
		b.handleList(ctx, chatID, userID)
	case "remove":
		b.handleRemove(ctx, chatID, userID)
	case "keywords":
		b.showDashboard(ctx, chatID, 0, userID, 0)
	case "reset":
		b.show(chatID, 0, formatResetConfirm())
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}

// userError turns a service error into a reply. Unexpected errors are logged.
func (b *Bot) userError(err error, userID int64) string {
	switch {
	case errors.Is(err, model.ErrTooManyInBatch):
		return fmt.Sprintf("⚠️ Too many keywords at once. You can add up to %d per message.", b.cfg.MaxKeywordsPerAdd)
	case errors.Is(err, model.ErrInvalidInput):
		return fmt.Sprintf("⚠️ Invalid keywords. Separate them with commas, each up to %d characters.", filter.MaxKeywordLength)
	case errors.Is(err, model.ErrNotSubscribed):
		return "You are not tracking this group. Enable it in /groups first."
	case errors.Is(err, model.ErrSubscriptionNotFound):
		return "You are not tracking this group."
	case errors.Is(err, model.ErrRoomNotFound):
		return "This group is no longer available."
	case errors.Is(err, model.ErrConflict):
		return "The keyword list changed while saving. Please try again."
	}
	b.log.Error("request failed", "user_id", userID, "error", err)
	return "Something went wrong. Please try again later."
}

// activeRoom returns the user's selected room and its display name.
func (b *Bot) activeRoom(userID int64) (int64, string, bool) {
	st := b.svc.Sessions.View(userID)
	if st.ActiveRoom == 0 {
		return 0, "", false
	}
	return st.ActiveRoom, st.ActiveRoomName, true
}

func (b *Bot) showGroups(ctx context.Context, chatID int64, messageID int, userID int64, page int) {
	rooms, err := b.svc.Rooms.Rooms(ctx)
	if err != nil {
		b.reply(chatID, b.userError(err, userID))
		return
	}
	subs, err := b.svc.Subscriptions.ListForUser(ctx, userID)
	if err != nil {
		b.reply(chatID, b.userError(err, userID))
		return
	}
	byRoom := make(map[int64]model.Subscription, len(subs))
	for _, sub := range subs {
		byRoom[sub.RoomID] = sub
	}
	b.svc.Sessions.Update(userID, func(st *session.State) { st.GroupsPage = page })
	b.show(chatID, messageID, formatGroups(rooms, byRoom, page))
}

func (b *Bot) handleUse(ctx context.Context, chatID, userID int64) {
	subs, err := b.svc.Subscriptions.ListForUser(ctx, userID)
	if err != nil {
		b.reply(chatID, b.userError(err, userID))
		return
	}
	b.show(chatID, 0, formatUseMenu(subs))
}

func (b *Bot) handleAdd(ctx context.Context, chatID, userID int64, args string) {
	roomID, name, ok := b.activeRoom(userID)
	if !ok {
		b.reply(chatID, noActiveRoomText)
		return
	}
	raw, err := ParseKeywordArgs(args)
	if err != nil {
		b.reply(chatID, "Usage: /add keyword1, keyword2, ...")
		return
	}

	res, err := b.svc.Subscriptions.AddKeywords(ctx, userID, roomID, raw)
	if err != nil {
		b.reply(chatID, b.userError(err, userID))
		return
	}
	b.reply(chatID, formatAddResult(name, res, b.svc.Subscriptions.MaxPerRoom()))
}

func (b *Bot) handleList(ctx context.Context, chatID, userID int64) {
	roomID, name, ok := b.activeRoom(userID)
	if !ok {
		b.reply(chatID, noActiveRoomText)
		return
	}
	sub, err := b.svc.Subscriptions.Get(ctx, userID, roomID)
	if err != nil {
		b.reply(chatID, b.userError(err, userID))
		return
	}
	b.reply(chatID, formatKeywordList(name, sub.Keywords))
}

func (b *Bot) handleRemove(ctx context.Context, chatID, userID int64) {
	roomID, name, ok := b.activeRoom(userID)
	if !ok {
		b.reply(chatID, noActiveRoomText)
		return
	}
	sub, err := b.svc.Subscriptions.Get(ctx, userID, roomID)
	if err != nil {
		b.reply(chatID, b.userError(err, userID))
		return
	}
	if len(sub.Keywords) == 0 {
		b.reply(chatID, fmt.Sprintf("No keywords in %s to remove.", name))
		return
	}

	removal := &session.Removal{RoomID: roomID, Keywords: sub.Keywords}
	b.svc.Sessions.Update(userID, func(st *session.State) { st.Removal = removal })
	b.show(chatID, 0, formatRemovalMenu(name, removal))
}

func (b *Bot) showDashboard(ctx context.Context, chatID int64, messageID int, userID int64, page int) {
	subs, err := b.svc.Subscriptions.ListForUser(ctx, userID)
	if err != nil {
		b.reply(chatID, b.userError(err, userID))
		return
	}
	b.svc.Sessions.Update(userID, func(st *session.State) { st.KeywordsPage = page })
	b.show(chatID, messageID, formatDashboard(subs, page))
}
