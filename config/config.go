package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/Septrum101/aliddns/helper"
)

var (
	viperOnce sync.Once
	v         *viper.Viper
)

// GetConfig reads <dir>/config.toml once and returns the shared viper
// instance. When dir is empty the usual locations are searched.
func GetConfig(dir string) *viper.Viper {
	viperOnce.Do(func() {
		var err error
		if v, err = newViper(dir); err != nil {
			log.Panic(err)
		}
	})

	return v
}

func newViper(dir string) (*viper.Viper, error) {
	vp := viper.New()
	vp.SetConfigName("config")
	vp.SetConfigType("toml")
	if dir != "" {
		vp.AddConfigPath(dir)
	} else {
		vp.AddConfigPath(".")
		vp.AddConfigPath("/etc/" + AppName)
		vp.AddConfigPath("$HOME/." + AppName)
	}

	vp.SetEnvPrefix(AppName)
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()
	setDefaults(vp)

	if err := vp.ReadInConfig(); err != nil {
		return nil, err
	}
	return vp, nil
}

func setDefaults(vp *viper.Viper) {
	vp.SetDefault("endpoint", "alidns.cn-shanghai.aliyuncs.com")
	vp.SetDefault("nameserver", "223.5.5.5:53")
	vp.SetDefault("timeout", 10)
	vp.SetDefault("concurrent", 1)
	vp.SetDefault("interval.check_interval", 43200)
	vp.SetDefault("interval.enable_recheck", true)
	vp.SetDefault("interval.recheck_interval", 3)
	vp.SetDefault("log.console_level", "info")
	vp.SetDefault("log.file_level", "info")
	vp.SetDefault("log.enable_file", false)
	vp.SetDefault("log.path", "logs")
	vp.SetDefault("log.prefix", AppName)
}

// Unmarshal decodes vp into a Config, fills derived defaults and validates it.
func Unmarshal(vp *viper.Viper) (*Config, error) {
	c := new(Config)
	if err := vp.Unmarshal(c); err != nil {
		return nil, err
	}
	if c.RecordDir == "" {
		if f := vp.ConfigFileUsed(); f != "" {
			c.RecordDir = filepath.Dir(f)
		} else {
			c.RecordDir = "."
		}
	}
	if c.Interval == nil {
		c.Interval = &Interval{}
	}
	if c.Log == nil {
		c.Log = &Log{}
	}
	if c.Concurrent < 1 {
		c.Concurrent = 1
	}

	return c, c.Validate()
}

func (c *Config) Validate() error {
	var errs []error
	if c.DomainName == "" {
		errs = append(errs, errors.New("domain_name is required"))
	} else if _, err := helper.ToASCII(c.DomainName); err != nil {
		errs = append(errs, fmt.Errorf("domain_name %q: %w", c.DomainName, err))
	}
	if c.Auth == nil || c.Auth.AuthID == "" || c.Auth.AuthToken == "" {
		errs = append(errs, errors.New("auth.auth_id and auth.auth_token are required"))
	}
	if c.Interval.CheckInterval <= 0 {
		errs = append(errs, errors.New("interval.check_interval must be positive"))
	}
	if c.Interval.RecheckInterval <= 0 {
		errs = append(errs, errors.New("interval.recheck_interval must be positive"))
	}
	for i, r := range c.Records {
		r.RecordType = strings.ToUpper(r.RecordType)
		if r.RecordType != "A" && r.RecordType != "AAAA" {
			errs = append(errs, fmt.Errorf("records[%d]: unsupported record_type %q", i, r.RecordType))
		}
		if r.Hostname == "" {
			errs = append(errs, fmt.Errorf("records[%d]: hostname is required", i))
		}
	}
	if c.Notify != nil && c.Notify.Enable {
		switch c.Notify.Provider {
		case "pushplus":
		case "telegram":
			if _, err := strconv.ParseInt(c.Notify.Config["telegram_chatid"], 10, 64); err != nil {
				errs = append(errs, fmt.Errorf("notify.config.telegram_chatid: %w", err))
			}
		default:
			errs = append(errs, fmt.Errorf("notify: unknown provider %q", c.Notify.Provider))
		}
	}

	return errors.Join(errs...)
}
