package telegram

import (
	"fmt"

	tg "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Septrum101/aliddns/config"
)

type Telegram struct {
	ApiHost string
	ChatID  int64
	Token   string
}

func (t *Telegram) Webhook(title string, content string) error {
	endpoint := tg.APIEndpoint
	if t.ApiHost != "" {
		endpoint = "https://" + t.ApiHost + "/bot%s/%s"
	}

	bot, err := tg.NewBotAPIWithAPIEndpoint(t.Token, endpoint)
	if err != nil {
		return err
	}

	msg := tg.NewMessage(t.ChatID, fmt.Sprintf("#%s\n%s\n%s",
		config.AppName,
		title,
		content,
	))
	if _, err = bot.Send(msg); err != nil {
		return err
	}
	return nil
}
