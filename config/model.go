package config

type Config struct {
	DomainName string    `mapstructure:"domain_name"`
	RecordDir  string    `mapstructure:"record_dir"`
	Endpoint   string    `mapstructure:"endpoint"`
	Nameserver string    `mapstructure:"nameserver"`
	Timeout    int       `mapstructure:"timeout"`
	Concurrent int       `mapstructure:"concurrent"`
	Auth       *Auth     `mapstructure:"auth"`
	Interval   *Interval `mapstructure:"interval"`
	Log        *Log      `mapstructure:"log"`
	Records    []*Record `mapstructure:"records"`
	Notify     *Notify   `mapstructure:"notify"`
	Metrics    *Metrics  `mapstructure:"metrics"`
}

type Auth struct {
	AuthID    string `mapstructure:"auth_id"`
	AuthToken string `mapstructure:"auth_token"`
}

// Interval values are in seconds.
type Interval struct {
	CheckInterval   int  `mapstructure:"check_interval"`
	EnableRecheck   bool `mapstructure:"enable_recheck"`
	RecheckInterval int  `mapstructure:"recheck_interval"`
}

type Log struct {
	ConsoleLevel string `mapstructure:"console_level"`
	FileLevel    string `mapstructure:"file_level"`
	EnableFile   bool   `mapstructure:"enable_file"`
	Path         string `mapstructure:"path"`
	Prefix       string `mapstructure:"prefix"`
}

// Record binds an interface to a DNS record. An empty NicName selects the
// default outbound route.
type Record struct {
	NicName      string `mapstructure:"nic_name"`
	RecordType   string `mapstructure:"record_type"`
	Hostname     string `mapstructure:"hostname"`
	UseTemporary bool   `mapstructure:"use_temporary"`
}

type Notify struct {
	Enable   bool              `mapstructure:"enable"`
	Provider string            `mapstructure:"provider"`
	Config   map[string]string `mapstructure:"config"`
}

type Metrics struct {
	Listen string `mapstructure:"listen"`
}
