package bot

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"keyword_bot/internal/config"
	"keyword_bot/internal/dispatcher"
	"keyword_bot/internal/model"
	"keyword_bot/internal/session"
	"keyword_bot/internal/subscription"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChat(config tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Rooms is the read side of the room registry.
type Rooms interface {
	Room(ctx context.Context, roomID int64) (*model.Room, error)
	Rooms(ctx context.Context) ([]model.Room, error)
}

// Subscriptions is the per-user subscription API behind the menus.
type Subscriptions interface {
	MaxPerRoom() int
	Join(ctx context.Context, userID, roomID int64) (*model.Subscription, error)
	Mute(ctx context.Context, userID, roomID int64) error
	Leave(ctx context.Context, userID, roomID int64) error
	Get(ctx context.Context, userID, roomID int64) (*model.Subscription, error)
	AddKeywords(ctx context.Context, userID, roomID int64, raw []string) (subscription.AddResult, error)
	RemoveKeywords(ctx context.Context, userID, roomID int64, keywords []string) (subscription.RemoveResult, error)
	RemoveAll(ctx context.Context, userID, roomID int64) (int, error)
	ListForUser(ctx context.Context, userID int64) ([]model.Subscription, error)
	ResetAll(ctx context.Context, userID int64) (int64, error)
}

// Events consumes room events decoded from updates.
type Events interface {
	HandleMembership(ctx context.Context, ev model.MembershipEvent) error
	HandleTitleChange(ctx context.Context, ev model.TitleEvent) error
	HandleMigration(ctx context.Context, ev model.MigrationEvent) error
	HandleMessage(ctx context.Context, msg model.MessageEvent) (dispatcher.Result, error)
}

// Lanes runs functions one at a time per key.
type Lanes interface {
	Go(key int64, fn func())
	Wait()
}

// Services are the components the bot routes updates to.
type Services struct {
	Rooms         Rooms
	Subscriptions Subscriptions
	Events        Events
	Sessions      *session.Store
	Lanes         Lanes
}

// Bot is the Telegram transport: it decodes updates into room events,
// serves the private-chat menus and delivers notifications.
type Bot struct {
	api telegramAPI
	cfg *config.Config
	log *slog.Logger
	svc Services
}

// New creates a Bot with the given Telegram token and config. Services must
// be attached before Run.
func New(token string, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	log.Info("authorized", "username", api.Self.UserName)

	return &Bot{
		api: api,
		cfg: cfg,
		log: log,
	}, nil
}

// Attach sets the services updates are routed to.
func (b *Bot) Attach(svc Services) {
	b.svc = svc
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
// Pending room events are drained before it returns.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{"message", "callback_query", "my_chat_member"}

	updates := b.api.GetUpdatesChan(u)
	defer b.svc.Lanes.Wait()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.MyChatMember != nil:
		b.handleMembership(ctx, update.MyChatMember)
	case update.CallbackQuery != nil:
		cb := update.CallbackQuery
		if cb.From == nil || cb.Message == nil {
			return
		}
		if !b.cfg.IsUserAllowed(cb.From.ID) {
			b.ack(cb.ID, "Access denied.")
			return
		}
		b.handleCallback(ctx, cb)
	case update.Message != nil:
		msg := update.Message
		if msg.Chat == nil {
			return
		}
		if msg.Chat.IsPrivate() {
			b.handlePrivate(ctx, msg)
			return
		}
		b.handleRoomMessage(ctx, msg)
	}
}

func (b *Bot) handlePrivate(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	if !b.cfg.IsUserAllowed(msg.From.ID) {
		b.reply(msg.Chat.ID, "Access denied.")
		return
	}
	if !msg.IsCommand() {
		b.reply(msg.Chat.ID, "Use /help to see what I can do.")
		return
	}
	b.handleCommand(ctx, msg)
}

// SendMessage sends a plain text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

// SendPrivate delivers an HTML notification to a user's private chat.
func (b *Bot) SendPrivate(ctx context.Context, userID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(userID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send to %d: %w", userID, err)
	}
	return nil
}

// show sends v as a new message, or replaces the menu in messageID when set.
func (b *Bot) show(chatID int64, messageID int, v view) {
	var c tgbotapi.Chattable
	switch {
	case messageID == 0:
		msg := tgbotapi.NewMessage(chatID, v.text)
		msg.DisableWebPagePreview = true
		if v.markup != nil {
			msg.ReplyMarkup = *v.markup
		}
		c = msg
	case v.markup != nil:
		c = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, v.text, *v.markup)
	default:
		c = tgbotapi.NewEditMessageText(chatID, messageID, v.text)
	}
	if _, err := b.api.Send(c); err != nil {
		b.log.Error("show menu", "chat_id", chatID, "message_id", messageID, "error", err)
	}
}

func (b *Bot) ack(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.log.Error("send callback ack", "error", err)
	}
}
