package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Threads           int  `yaml:"threads"`
	MinProxyScore     int  `yaml:"minProxyScore"`
	StrictProxyParity bool `yaml:"strictProxyParity"`
	Debug             bool `yaml:"debug"`

	Mode    ModeConfig    `yaml:"mode"`
	Files   FilesConfig   `yaml:"files"`
	Storage StorageConfig `yaml:"storage"`
	API     APIConfig     `yaml:"api"`
	Mining  MiningConfig  `yaml:"mining"`
	IMAP    IMAPConfig    `yaml:"imap"`
	Captcha CaptchaConfig `yaml:"captcha"`
	Notify  NotifyConfig  `yaml:"notify"`
}

type ModeConfig struct {
	RegisterOnly             bool `yaml:"registerOnly"`
	ApproveEmail             bool `yaml:"approveEmail"`
	ConnectWallet            bool `yaml:"connectWallet"`
	SendWalletApproveEmail   bool `yaml:"sendWalletApproveEmail"`
	ApproveWalletOnEmail     bool `yaml:"approveWalletOnEmail"`
	ClaimRewardsOnly         bool `yaml:"claimRewardsOnly"`
	SemiAutomaticApproveLink bool `yaml:"semiAutomaticApproveLink"`

	RegisterDelayMinMs int `yaml:"registerDelayMinMs"`
	RegisterDelayMaxMs int `yaml:"registerDelayMaxMs"`
}

func (c ModeConfig) RegisterDelayMin() time.Duration {
	if c.RegisterDelayMinMs <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.RegisterDelayMinMs) * time.Millisecond
}

func (c ModeConfig) RegisterDelayMax() time.Duration {
	min := c.RegisterDelayMin()
	if c.RegisterDelayMaxMs <= 0 || time.Duration(c.RegisterDelayMaxMs)*time.Millisecond < min {
		return min + 4*time.Second
	}
	return time.Duration(c.RegisterDelayMaxMs) * time.Millisecond
}

type FilesConfig struct {
	Accounts string `yaml:"accounts"`
	Proxies  string `yaml:"proxies"`
	Wallets  string `yaml:"wallets"`
}

type StorageConfig struct {
	SQLitePath string `yaml:"sqlitePath"`
}

type APIConfig struct {
	BaseURL   string `yaml:"baseURL"`
	WSURL     string `yaml:"wsURL"`
	UserAgent string `yaml:"userAgent"`
	NodeType  string `yaml:"nodeType"`
	TimeoutMs int    `yaml:"timeoutMs"`

	QPS   float64 `yaml:"qps"`
	Burst int     `yaml:"burst"`

	Retry RetryConfig `yaml:"retry"`
}

type RetryConfig struct {
	Count     int `yaml:"count"`
	WaitMs    int `yaml:"waitMs"`
	MaxWaitMs int `yaml:"maxWaitMs"`
}

func (c APIConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (c RetryConfig) Wait() time.Duration {
	if c.WaitMs <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.WaitMs) * time.Millisecond
}

func (c RetryConfig) MaxWait() time.Duration {
	if c.MaxWaitMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.MaxWaitMs) * time.Millisecond
}

type MiningConfig struct {
	StartDelayBaseMs    int  `yaml:"startDelayBaseMs"`
	CheckPoints         bool `yaml:"checkPoints"`
	PointsIntervalMs    int  `yaml:"pointsIntervalMs"`
	StopWhenSiteDown    bool `yaml:"stopWhenSiteDown"`
	SiteDownCooldownMin int  `yaml:"siteDownCooldownMin"`
}

func (c MiningConfig) StartDelayBase() time.Duration {
	if c.StartDelayBaseMs <= 0 {
		return time.Second
	}
	return time.Duration(c.StartDelayBaseMs) * time.Millisecond
}

func (c MiningConfig) PointsInterval() time.Duration {
	if c.PointsIntervalMs <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.PointsIntervalMs) * time.Millisecond
}

func (c MiningConfig) SiteDownCooldown() time.Duration {
	if c.SiteDownCooldownMin <= 0 {
		return 20 * time.Minute
	}
	return time.Duration(c.SiteDownCooldownMin) * time.Minute
}

type IMAPConfig struct {
	// SingleAccount forwards every approval mail to one mailbox,
	// "name@domain.com:password" form.
	SingleAccount string `yaml:"singleAccount"`
	Domain        string `yaml:"domain"`
	Folder        string `yaml:"folder"`
}

type CaptchaConfig struct {
	TwoCaptchaKey  string `yaml:"twoCaptchaKey"`
	AntiCaptchaKey string `yaml:"antiCaptchaKey"`
	CapMonsterKey  string `yaml:"capMonsterKey"`
	CapSolverKey   string `yaml:"capSolverKey"`
	CaptchaAIKey   string `yaml:"captchaAIKey"`

	SiteKey string `yaml:"siteKey"`
	PageURL string `yaml:"pageURL"`
}

type NotifyConfig struct {
	Enabled  bool   `yaml:"enabled"`
	SMTPHost string `yaml:"smtpHost"`
	SMTPPort int    `yaml:"smtpPort"`
	From     string `yaml:"from"`
	Password string `yaml:"password"`
	To       string `yaml:"to"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Threads <= 0 {
		c.Threads = 5
	}
	if c.Files.Accounts == "" {
		c.Files.Accounts = "data/accounts.txt"
	}
	if c.Files.Proxies == "" {
		c.Files.Proxies = "data/proxies.txt"
	}
	if c.Files.Wallets == "" {
		c.Files.Wallets = "data/wallets.txt"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/grass_auto.db"
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = "https://api.getgrass.io"
	}
	if c.API.WSURL == "" {
		c.API.WSURL = "wss://proxy2.wynd.network:4650"
	}
	if c.API.NodeType == "" {
		c.API.NodeType = "2x"
	}
	if c.API.UserAgent == "" {
		c.API.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36"
	}
	if c.API.QPS <= 0 {
		c.API.QPS = 10
	}
	if c.API.Burst <= 0 {
		c.API.Burst = 5
	}
	if c.API.Retry.Count < 0 {
		c.API.Retry.Count = 0
	}
	if c.Captcha.SiteKey == "" {
		c.Captcha.SiteKey = "6LeeT-0pAAAAAFJ5JnCpNcbYCBcAerNHlkK4nm6y"
	}
	if c.Captcha.PageURL == "" {
		c.Captcha.PageURL = "https://app.getgrass.io/register"
	}
}

func (c Config) validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.baseURL is required")
	}
	if c.API.WSURL == "" {
		return errors.New("api.wsURL is required")
	}
	if c.IMAP.SingleAccount != "" && !strings.Contains(c.IMAP.SingleAccount, ":") {
		return errors.New(`imap.singleAccount must be "name@domain.com:password"`)
	}
	if c.Notify.Enabled {
		if c.Notify.SMTPHost == "" || c.Notify.From == "" || c.Notify.To == "" {
			return errors.New("notify requires smtpHost, from and to")
		}
	}
	return nil
}
