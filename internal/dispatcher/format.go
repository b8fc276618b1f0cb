package dispatcher

import (
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"keyword_bot/internal/filter"
	"keyword_bot/internal/model"
)

const (
	unknownRoom     = "Unknown Group"
	privateLinkText = "<i>Message link unavailable (private group)</i>"
	timeFormat      = "2006-01-02 15:04:05 MST"
)

// Notification is the content of one keyword alert.
type Notification struct {
	Matched  []string
	Sender   model.Sender
	RoomName string
	Time     time.Time
	// Link is empty when the room has no public handle.
	Link string
	Text string
}

// MessageLink builds the public deep link to a message.
func MessageLink(handle string, messageID int) string {
	return fmt.Sprintf("https://t.me/%s/%d", handle, messageID)
}

// FormatNotification renders n as Telegram HTML. Keywords may contain any
// character, so every user-supplied value is escaped.
func FormatNotification(n Notification) string {
	quoted := make([]string, 0, len(n.Matched))
	for _, kw := range n.Matched {
		quoted = append(quoted, "<code>"+escape(kw)+"</code>")
	}

	sender := n.Sender.FullName
	if sender == "" {
		sender = "Unknown"
	}
	if n.Sender.Username != "" {
		sender += " (@" + n.Sender.Username + ")"
	}

	room := n.RoomName
	if room == "" {
		room = unknownRoom
	}

	link := privateLinkText
	if n.Link != "" {
		link = fmt.Sprintf(`<a href="%s">View message</a>`, escape(n.Link))
	}

	body := filter.Highlight(n.Text, n.Matched,
		func(s string) string { return "<b>" + escape(s) + "</b>" },
		escape,
	)

	var b strings.Builder
	b.WriteString("📌 <b>Keyword Match!</b>\n")
	fmt.Fprintf(&b, "🔍 <b>Matched:</b> %s\n", strings.Join(quoted, ", "))
	fmt.Fprintf(&b, "👤 <b>Sender:</b> %s\n", escape(sender))
	fmt.Fprintf(&b, "👥 <b>Group:</b> %s\n", escape(room))
	fmt.Fprintf(&b, "🕒 <b>Time:</b> <code>%s</code>\n", n.Time.UTC().Format(timeFormat))
	b.WriteString(link)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "🗨️ <b>Message:</b> %s", body)
	return b.String()
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeHTML, s)
}
