package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"keyword_bot/internal/model"
	"keyword_bot/internal/session"
	"keyword_bot/internal/subscription"
)

const (
	groupsPerPage    = 5
	keywordsPerPage  = 10
	dashboardPerPage = 3

	statusTracking    = "🟢 Tracking"
	statusMuted       = "🔴 Muted"
	statusNotTracking = "⚪️ Not tracking"
)

// view is a message body with an optional inline keyboard.
type view struct {
	text   string
	markup *tgbotapi.InlineKeyboardMarkup
}

func withKeyboard(text string, rows [][]tgbotapi.InlineKeyboardButton) view {
	if len(rows) == 0 {
		return view{text: text}
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return view{text: text, markup: &markup}
}

func button(label, action string, arg int64) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(label, callbackData(action, arg))
}

// pageBounds clamps page into range and returns it with the slice bounds.
func pageBounds(page, total, perPage int) (int, int, int) {
	pages := max((total+perPage-1)/perPage, 1)
	page = min(max(page, 0), pages-1)
	start := page * perPage
	end := min(start+perPage, total)
	return page, start, end
}

func pageCount(total, perPage int) int {
	return max((total+perPage-1)/perPage, 1)
}

func subscriptionStatus(sub *model.Subscription) string {
	switch {
	case sub == nil:
		return statusNotTracking
	case sub.Subscribed:
		return statusTracking
	default:
		return statusMuted
	}
}

// formatGroups renders one page of the room list with the user's status in each.
func formatGroups(rooms []model.Room, subs map[int64]model.Subscription, page int) view {
	if len(rooms) == 0 {
		return view{text: "No active groups found.\n\nAdd the bot to a group first, then come back to /groups."}
	}

	page, start, end := pageBounds(page, len(rooms), groupsPerPage)

	var b strings.Builder
	b.WriteString("Your groups\n\n")
	b.WriteString(statusTracking + " - you get notifications for matching keywords\n")
	b.WriteString(statusMuted + " - notifications are off, keywords are kept\n")
	b.WriteString(statusNotTracking + " - keyword alerts are not enabled\n")
	if pages := pageCount(len(rooms), groupsPerPage); pages > 1 {
		fmt.Fprintf(&b, "\nPage %d of %d", page+1, pages)
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, room := range rooms[start:end] {
		var status string
		if sub, ok := subs[room.ID]; ok {
			status = subscriptionStatus(&sub)
		} else {
			status = subscriptionStatus(nil)
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			button(fmt.Sprintf("%s - %s", room.Name, status), actionRoom, room.ID),
		))
	}

	var nav []tgbotapi.InlineKeyboardButton
	if start > 0 {
		nav = append(nav, button("⬅️ Previous", actionGroups, int64(page-1)))
	}
	if end < len(rooms) {
		nav = append(nav, button("➡️ More groups", actionGroups, int64(page+1)))
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	return withKeyboard(b.String(), rows)
}

// formatRoomDetail renders the actions available for one room.
func formatRoomDetail(room *model.Room, sub *model.Subscription) view {
	text := fmt.Sprintf("⚙️ %s\nStatus: %s", room.Name, subscriptionStatus(sub))
	if sub != nil {
		text += fmt.Sprintf("\nKeywords: %d", len(sub.Keywords))
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	switch {
	case sub == nil:
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(button("➕ Start tracking", actionJoin, room.ID)))
	case sub.Subscribed:
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(button("🔇 Mute notifications", actionMute, room.ID)))
	default:
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(button("🔔 Enable notifications", actionJoin, room.ID)))
	}
	if sub != nil {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(button("🚪 Leave group", actionLeave, room.ID)))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(button("🔙 Back to list", actionGroups, 0)))
	return withKeyboard(text, rows)
}

// formatUseMenu lists the rooms the user can pick as the active room.
func formatUseMenu(subs []model.Subscription) view {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, sub := range subs {
		if !sub.Subscribed {
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(button(displayName(sub), actionUse, sub.RoomID)))
	}
	if len(rows) == 0 {
		return view{text: "You are not tracking any group yet. Use /groups to start."}
	}
	return withKeyboard("Select a group to manage keywords:", rows)
}

// formatKeywordList renders the keywords of the active room.
func formatKeywordList(roomName string, keywords []string) string {
	if len(keywords) == 0 {
		return fmt.Sprintf("No keywords in %s yet. Add some with /add job, intern, remote", roomName)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Keywords in %s (%d):\n", roomName, len(keywords))
	for _, kw := range keywords {
		fmt.Fprintf(&b, "• %s\n", kw)
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatAddResult summarizes an add operation.
func formatAddResult(roomName string, res subscription.AddResult, roomCap int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📌 Group: %s\n", roomName)
	switch len(res.Added) {
	case 0:
		b.WriteString("No new keywords were added.\n")
	case 1:
		fmt.Fprintf(&b, "✅ Added keyword: %s\n", res.Added[0])
	default:
		fmt.Fprintf(&b, "✅ Added %d keywords:\n", len(res.Added))
		for _, kw := range res.Added {
			fmt.Fprintf(&b, "• %s\n", kw)
		}
	}
	if len(res.Duplicates) > 0 {
		fmt.Fprintf(&b, "⚠️ Already tracked: %s\n", strings.Join(res.Duplicates, ", "))
	}
	if len(res.Truncated) > 0 {
		fmt.Fprintf(&b, "🚫 Limit of %d keywords reached, skipped: %s\n", roomCap, strings.Join(res.Truncated, ", "))
	}
	fmt.Fprintf(&b, "Total: %d/%d", res.Total, roomCap)
	return b.String()
}

// formatRemovalMenu renders the paged keyword selection for removal.
func formatRemovalMenu(roomName string, r *session.Removal) view {
	page, start, end := pageBounds(r.Page, len(r.Keywords), keywordsPerPage)

	text := fmt.Sprintf("✏️ Keyword management for %s\n\nPage %d of %d\n%d tracked keywords\n%d selected\n\nTap keywords to select or deselect them.",
		roomName, page+1, pageCount(len(r.Keywords), keywordsPerPage), len(r.Keywords), len(r.Selected))

	var rows [][]tgbotapi.InlineKeyboardButton
	for i := start; i < end; i++ {
		mark := "🔹"
		if r.Selected[i] {
			mark = "✅"
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			button(mark+" "+r.Keywords[i], actionToggle, int64(i)),
		))
	}

	var nav []tgbotapi.InlineKeyboardButton
	if start > 0 {
		nav = append(nav, button("⬅️ Prev", actionRemovePage, int64(page-1)))
	}
	if end < len(r.Keywords) {
		nav = append(nav, button("➡️ Next", actionRemovePage, int64(page+1)))
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}

	var actions []tgbotapi.InlineKeyboardButton
	if len(r.Selected) > 0 {
		actions = append(actions, button("🗑️ Remove selected", actionRemoveSelected, 0))
	}
	actions = append(actions, button("💣 Remove ALL", actionRemoveAll, 0))
	rows = append(rows, actions)
	return withKeyboard(text, rows)
}

// formatRemoveAllConfirm asks before clearing a room's keywords.
func formatRemoveAllConfirm() view {
	return withKeyboard("🚨 Danger zone\n\nYou are about to remove ALL keywords from this group.\nThis cannot be undone!",
		[][]tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardRow(button("⚠️ Confirm remove all", actionRemoveAllConfirm, 1)),
			tgbotapi.NewInlineKeyboardRow(button("❌ Cancel", actionRemoveAllConfirm, 0)),
		})
}

// formatDashboard renders a page of the user's keywords across active rooms.
func formatDashboard(subs []model.Subscription, page int) view {
	var active []model.Subscription
	total := 0
	for _, sub := range subs {
		if sub.Subscribed {
			active = append(active, sub)
			total += len(sub.Keywords)
		}
	}
	if len(active) == 0 {
		return view{text: "You don't have any active keyword subscriptions."}
	}

	page, start, end := pageBounds(page, len(active), dashboardPerPage)

	var b strings.Builder
	fmt.Fprintf(&b, "🔍 Your keyword dashboard (page %d of %d)\n", page+1, pageCount(len(active), dashboardPerPage))
	for _, sub := range active[start:end] {
		b.WriteString("\n")
		if len(sub.Keywords) == 0 {
			fmt.Fprintf(&b, "📌 %s\nNo keywords tracked in this group yet.\n", displayName(sub))
			continue
		}
		fmt.Fprintf(&b, "📌 %s (%d keywords)\n", displayName(sub), len(sub.Keywords))
		for _, kw := range sub.Keywords {
			fmt.Fprintf(&b, "• %s\n", kw)
		}
	}
	fmt.Fprintf(&b, "\nTotal: %d groups, %d keywords", len(active), total)

	var nav []tgbotapi.InlineKeyboardButton
	if start > 0 {
		nav = append(nav, button("⬅️ Previous", actionDashboard, int64(page-1)))
	}
	if end < len(active) {
		nav = append(nav, button("➡️ Next", actionDashboard, int64(page+1)))
	}
	if len(nav) == 0 {
		return view{text: b.String()}
	}
	return withKeyboard(b.String(), [][]tgbotapi.InlineKeyboardButton{nav})
}

// formatResetConfirm asks before wiping all of a user's data.
func formatResetConfirm() view {
	return withKeyboard("🚨 Danger zone\n\nThis will:\n1. Remove ALL your keywords\n2. Stop tracking ALL groups\n3. Delete ALL your data\n\nThis cannot be undone!",
		[][]tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardRow(button("⚠️ Confirm reset all", actionReset, 1)),
			tgbotapi.NewInlineKeyboardRow(button("❌ Cancel", actionReset, 0)),
		})
}

func displayName(sub model.Subscription) string {
	if sub.RoomName != "" {
		return sub.RoomName
	}
	return fmt.Sprintf("Group %d", sub.RoomID)
}
