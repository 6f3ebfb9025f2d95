package pushplus

import (
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/Septrum101/aliddns/config"
)

const defaultAPI = "https://www.pushplus.plus/send/"

type PushPlus struct {
	Token string
	// API overrides the send endpoint.
	API string
}

type message struct {
	Token    string `json:"token"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Template string `json:"template"`
}

type pushPlusResp struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (p *PushPlus) Webhook(title string, content string) error {
	api := p.API
	if api == "" {
		api = defaultAPI
	}

	rtn := &pushPlusResp{}
	resp, err := resty.New().SetRetryCount(3).R().SetResult(rtn).SetBody(&message{
		Token:    p.Token,
		Title:    fmt.Sprintf("[%s] %s", config.AppName, title),
		Content:  content,
		Template: "txt",
	}).ForceContentType("application/json").Post(api)
	if err != nil {
		return err
	}

	switch rtn.Code {
	case 0:
		return fmt.Errorf("[PushPlus] %s", resp.String())
	case 200:
		return nil
	default:
		return fmt.Errorf("[PushPlus] %s", rtn.Msg)
	}
}
