package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"keyword_bot/internal/model"
	"keyword_bot/internal/session"
)

const sessionExpiredText = "Session expired. Please start over with /remove"

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	messageID := cb.Message.MessageID
	userID := cb.From.ID

	action, arg, err := ParseCallback(cb.Data)
	if err != nil {
		b.ack(cb.ID, "")
		b.log.Warn("bad callback", "data", cb.Data, "error", err)
		return
	}

	b.log.Info("callback",
		"action", action,
		"arg", arg,
		"user_id", userID,
		"username", cb.From.UserName,
	)

	switch action {
	case actionGroups:
		b.ack(cb.ID, "")
		b.showGroups(ctx, chatID, messageID, userID, int(arg))
	case actionRoom:
		b.ack(cb.ID, "")
		b.showRoom(ctx, chatID, messageID, userID, arg)
	case actionJoin:
		if _, err := b.svc.Subscriptions.Join(ctx, userID, arg); err != nil {
			b.ack(cb.ID, b.userError(err, userID))
			return
		}
		b.ack(cb.ID, "Notifications enabled")
		b.showRoom(ctx, chatID, messageID, userID, arg)
	case actionMute:
		if err := b.svc.Subscriptions.Mute(ctx, userID, arg); err != nil {
			b.ack(cb.ID, b.userError(err, userID))
			return
		}
		b.ack(cb.ID, "Notifications muted")
		b.showRoom(ctx, chatID, messageID, userID, arg)
	case actionLeave:
		if err := b.svc.Subscriptions.Leave(ctx, userID, arg); err != nil {
			b.ack(cb.ID, b.userError(err, userID))
			return
		}
		b.svc.Sessions.Update(userID, func(st *session.State) {
			if st.ActiveRoom == arg {
				st.ActiveRoom, st.ActiveRoomName, st.Removal = 0, "", nil
			}
		})
		b.ack(cb.ID, "Left group")
		b.showGroups(ctx, chatID, messageID, userID, b.svc.Sessions.View(userID).GroupsPage)
	case actionUse:
		b.handleUseCallback(ctx, cb, arg)
	case actionToggle, actionRemovePage, actionRemoveSelected, actionRemoveAll, actionRemoveAllConfirm:
		b.handleRemovalCallback(ctx, cb, action, arg)
	case actionDashboard:
		b.ack(cb.ID, "")
		b.showDashboard(ctx, chatID, messageID, userID, int(arg))
	case actionReset:
		b.ack(cb.ID, "")
		if arg == 0 {
			b.show(chatID, messageID, view{text: "Reset cancelled. Your data is safe."})
			return
		}
		n, err := b.svc.Subscriptions.ResetAll(ctx, userID)
		if err != nil {
			b.show(chatID, messageID, view{text: b.userError(err, userID)})
			return
		}
		b.svc.Sessions.Clear(userID)
		b.log.Info("user reset", "user_id", userID, "subscriptions", n)
		b.show(chatID, messageID, view{text: "✅ All your data has been reset. Use /groups to start again."})
	default:
		b.ack(cb.ID, "")
	}
}

func (b *Bot) showRoom(ctx context.Context, chatID int64, messageID int, userID, roomID int64) {
	room, err := b.svc.Rooms.Room(ctx, roomID)
	if err != nil {
		b.show(chatID, messageID, view{text: b.userError(err, userID)})
		return
	}
	sub, err := b.svc.Subscriptions.Get(ctx, userID, roomID)
	if err != nil && !errors.Is(err, model.ErrSubscriptionNotFound) {
		b.show(chatID, messageID, view{text: b.userError(err, userID)})
		return
	}
	b.show(chatID, messageID, formatRoomDetail(room, sub))
}

func (b *Bot) handleUseCallback(ctx context.Context, cb *tgbotapi.CallbackQuery, roomID int64) {
	userID := cb.From.ID
	sub, err := b.svc.Subscriptions.Get(ctx, userID, roomID)
	if err != nil {
		b.ack(cb.ID, b.userError(err, userID))
		return
	}
	if !sub.Subscribed {
		b.ack(cb.ID, "Notifications for this group are muted. Enable them in /groups.")
		return
	}
	name := displayName(*sub)
	b.svc.Sessions.Update(userID, func(st *session.State) {
		st.ActiveRoom = roomID
		st.ActiveRoomName = name
		st.Removal = nil
	})
	b.ack(cb.ID, "")
	b.show(cb.Message.Chat.ID, cb.Message.MessageID, view{
		text: fmt.Sprintf("✅ Managing keywords for: %s\n\nUse /add, /list or /remove.", name),
	})
}

func (b *Bot) handleRemovalCallback(ctx context.Context, cb *tgbotapi.CallbackQuery, action string, arg int64) {
	userID := cb.From.ID
	chatID := cb.Message.Chat.ID
	messageID := cb.Message.MessageID

	st := b.svc.Sessions.View(userID)
	if st.Removal == nil {
		b.ack(cb.ID, "")
		b.show(chatID, messageID, view{text: sessionExpiredText})
		return
	}
	removal := st.Removal
	name := st.ActiveRoomName
	if removal.RoomID != st.ActiveRoom {
		name = fmt.Sprintf("Group %d", removal.RoomID)
	}

	switch action {
	case actionToggle:
		b.svc.Sessions.Update(userID, func(st *session.State) {
			if st.Removal != nil {
				st.Removal.Toggle(int(arg))
			}
		})
		removal.Toggle(int(arg))
		b.ack(cb.ID, "")
		b.show(chatID, messageID, formatRemovalMenu(name, removal))

	case actionRemovePage:
		b.svc.Sessions.Update(userID, func(st *session.State) {
			if st.Removal != nil {
				st.Removal.Page = int(arg)
			}
		})
		removal.Page = int(arg)
		b.ack(cb.ID, "")
		b.show(chatID, messageID, formatRemovalMenu(name, removal))

	case actionRemoveSelected:
		selected := removal.SelectedKeywords()
		if len(selected) == 0 {
			b.ack(cb.ID, "No keywords selected")
			return
		}
		res, err := b.svc.Subscriptions.RemoveKeywords(ctx, userID, removal.RoomID, selected)
		b.clearRemoval(userID)
		if err != nil {
			b.ack(cb.ID, "")
			b.show(chatID, messageID, view{text: b.userError(err, userID)})
			return
		}
		b.ack(cb.ID, fmt.Sprintf("Removed %d keywords", len(res.Removed)))
		b.show(chatID, messageID, view{
			text: fmt.Sprintf("✅ Removed %d keywords from %s. %d left.", len(res.Removed), name, res.Total),
		})

	case actionRemoveAll:
		b.ack(cb.ID, "")
		b.show(chatID, messageID, formatRemoveAllConfirm())

	case actionRemoveAllConfirm:
		b.ack(cb.ID, "")
		if arg == 0 {
			b.show(chatID, messageID, formatRemovalMenu(name, removal))
			return
		}
		n, err := b.svc.Subscriptions.RemoveAll(ctx, userID, removal.RoomID)
		b.clearRemoval(userID)
		if err != nil {
			b.show(chatID, messageID, view{text: b.userError(err, userID)})
			return
		}
		b.show(chatID, messageID, view{text: fmt.Sprintf("✅ Removed all %d keywords from %s.", n, name)})
	}
}

func (b *Bot) clearRemoval(userID int64) {
	b.svc.Sessions.Update(userID, func(st *session.State) { st.Removal = nil })
}
