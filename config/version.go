package config

import (
	"fmt"
)

var (
	version = "dev"
	AppName = "aliddns"
	intro   = "A dynamic DNS service that keeps Aliyun DNS records pointed at this host."
	date    = "unknown"
)

func ShowVersion() {
	fmt.Printf("%s %s, built at %s\n%s\n", AppName, version, date, intro)
}
