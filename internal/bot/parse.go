package bot

import (
	"fmt"
	"strconv"
	"strings"

	"keyword_bot/internal/filter"
)

// Callback actions. Callback data is "action:arg" and must fit in 64 bytes,
// so keywords are referenced by index into the session's removal list.
const (
	actionGroups           = "g"
	actionRoom             = "r"
	actionJoin             = "j"
	actionMute             = "m"
	actionLeave            = "l"
	actionUse              = "u"
	actionToggle           = "kt"
	actionRemovePage       = "kp"
	actionRemoveSelected   = "ks"
	actionRemoveAll        = "ka"
	actionRemoveAllConfirm = "kc"
	actionDashboard        = "d"
	actionReset            = "x"
)

func callbackData(action string, arg int64) string {
	return action + ":" + strconv.FormatInt(arg, 10)
}

// ParseCallback splits callback data into its action and numeric argument.
func ParseCallback(data string) (string, int64, error) {
	action, raw, ok := strings.Cut(data, ":")
	if !ok || action == "" {
		return "", 0, fmt.Errorf("malformed callback data %q", data)
	}
	arg, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid callback argument %q", raw)
	}
	return action, arg, nil
}

// ParseKeywordArgs extracts the comma-separated keywords of /add.
func ParseKeywordArgs(args string) ([]string, error) {
	if strings.TrimSpace(args) == "" {
		return nil, fmt.Errorf("usage: /add keyword1, keyword2, ...")
	}
	return filter.SplitList(args), nil
}
