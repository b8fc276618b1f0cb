package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"keyword_bot/internal/model"
)

func chatKind(chat tgbotapi.Chat) model.RoomKind {
	switch {
	case chat.IsPrivate():
		return model.KindDirect
	case chat.IsGroup():
		return model.KindGroup
	default:
		return model.KindSupergroup
	}
}

func chatMetadata(chat tgbotapi.Chat) model.RoomMetadata {
	return model.RoomMetadata{
		Title:        chat.Title,
		Kind:         chatKind(chat),
		PublicHandle: chat.UserName,
	}
}

func senderOf(msg *tgbotapi.Message) model.Sender {
	if msg.From == nil {
		if msg.SenderChat != nil {
			return model.Sender{ID: msg.SenderChat.ID, FullName: msg.SenderChat.Title, Username: msg.SenderChat.UserName}
		}
		return model.Sender{}
	}
	name := strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	return model.Sender{ID: msg.From.ID, FullName: name, Username: msg.From.UserName}
}

func (b *Bot) handleMembership(ctx context.Context, upd *tgbotapi.ChatMemberUpdated) {
	chat := upd.Chat
	if chat.IsPrivate() || chat.IsChannel() {
		return
	}
	ev := model.MembershipEvent{
		RoomID:       chat.ID,
		Kind:         chatKind(chat),
		Title:        chat.Title,
		PublicHandle: chat.UserName,
		Status:       model.MembershipStatus(upd.NewChatMember.Status),
	}
	b.log.Info("membership changed", "room_id", ev.RoomID, "title", ev.Title, "status", ev.Status)

	b.svc.Lanes.Go(chat.ID, func() {
		if err := b.svc.Events.HandleMembership(ctx, ev); err != nil {
			b.log.Error("handle membership", "room_id", ev.RoomID, "error", err)
		}
	})
}

// handleRoomMessage routes a group message. Migration service messages are
// keyed by the old room id so both halves of a move share one lane.
func (b *Bot) handleRoomMessage(ctx context.Context, msg *tgbotapi.Message) {
	chat := msg.Chat
	if chat.IsChannel() {
		return
	}

	switch {
	case msg.MigrateToChatID != 0:
		ev := model.MigrationEvent{OldRoomID: chat.ID, NewRoomID: msg.MigrateToChatID}
		b.svc.Lanes.Go(ev.OldRoomID, func() { b.migrate(ctx, ev) })
	case msg.MigrateFromChatID != 0:
		ev := model.MigrationEvent{OldRoomID: msg.MigrateFromChatID, NewRoomID: chat.ID}
		b.svc.Lanes.Go(ev.OldRoomID, func() { b.migrate(ctx, ev) })
	case msg.NewChatTitle != "":
		ev := model.TitleEvent{RoomID: chat.ID, NewTitle: msg.NewChatTitle}
		b.svc.Lanes.Go(chat.ID, func() {
			if err := b.svc.Events.HandleTitleChange(ctx, ev); err != nil {
				b.log.Error("handle title change", "room_id", ev.RoomID, "error", err)
			}
		})
	default:
		text := msg.Text
		if text == "" {
			text = msg.Caption
		}
		if text == "" {
			return
		}
		ev := model.MessageEvent{
			RoomID:       chat.ID,
			RoomTitle:    chat.Title,
			RoomKind:     chatKind(*chat),
			Sender:       senderOf(msg),
			Text:         text,
			MessageID:    msg.MessageID,
			PublicHandle: chat.UserName,
		}
		b.svc.Lanes.Go(chat.ID, func() {
			if _, err := b.svc.Events.HandleMessage(ctx, ev); err != nil {
				b.log.Error("handle message", "room_id", ev.RoomID, "message_id", ev.MessageID, "error", err)
			}
		})
	}
}

func (b *Bot) migrate(ctx context.Context, ev model.MigrationEvent) {
	if err := b.svc.Events.HandleMigration(ctx, ev); err != nil {
		b.log.Error("handle migration", "old_room_id", ev.OldRoomID, "new_room_id", ev.NewRoomID, "error", err)
	}
}

// GetRoomMetadata asks Telegram for the current state of a room.
// Errors meaning the bot can no longer see the room match
// model.ErrUnreachable; a migrated group yields *model.MovedError.
func (b *Bot) GetRoomMetadata(ctx context.Context, roomID int64) (model.RoomMetadata, error) {
	type result struct {
		chat tgbotapi.Chat
		err  error
	}
	done := make(chan result, 1)
	go func() {
		chat, err := b.api.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: roomID}})
		done <- result{chat: chat, err: err}
	}()

	select {
	case <-ctx.Done():
		return model.RoomMetadata{}, fmt.Errorf("get chat %d: %w", roomID, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return model.RoomMetadata{}, classifyChatError(roomID, r.err)
		}
		return chatMetadata(r.chat), nil
	}
}

func classifyChatError(roomID int64, err error) error {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("get chat %d: %w: %w", roomID, model.ErrTransient, err)
	}
	if apiErr.MigrateToChatID != 0 {
		return &model.MovedError{RoomID: roomID, NewRoomID: apiErr.MigrateToChatID}
	}
	switch {
	case apiErr.Code == http.StatusForbidden:
		return fmt.Errorf("get chat %d: %w: %w", roomID, model.ErrUnreachable, err)
	case apiErr.Code == http.StatusBadRequest && strings.Contains(strings.ToLower(apiErr.Message), "chat not found"):
		return fmt.Errorf("get chat %d: %w: %w", roomID, model.ErrUnreachable, err)
	}
	return fmt.Errorf("get chat %d: %w: %w", roomID, model.ErrTransient, err)
}
