package notify

import (
	"fmt"
	"strconv"

	"github.com/Septrum101/aliddns/common/notify/pushplus"
	"github.com/Septrum101/aliddns/common/notify/telegram"
	"github.com/Septrum101/aliddns/config"
)

type Notify interface {
	Webhook(title string, content string) error
}

// New builds the notifier selected in c. It returns nil when notifications
// are disabled.
func New(c *config.Notify) (Notify, error) {
	if c == nil || !c.Enable {
		return nil, nil
	}

	switch c.Provider {
	case "pushplus":
		return &pushplus.PushPlus{Token: c.Config["pushplus_token"]}, nil
	case "telegram":
		chatID, err := strconv.ParseInt(c.Config["telegram_chatid"], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("telegram_chatid: %w", err)
		}
		return &telegram.Telegram{
			ApiHost: c.Config["telegram_apihost"],
			ChatID:  chatID,
			Token:   c.Config["telegram_token"],
		}, nil
	default:
		return nil, fmt.Errorf("unknown notify provider %q", c.Provider)
	}
}
