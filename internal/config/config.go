package config

import (
	"fmt"

	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/dropcast/dropcast/pkg/logger"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logger    logger.Config   `yaml:"logger"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Dropbox   DropboxConfig   `yaml:"dropbox"`
	Instagram InstagramConfig `yaml:"instagram"`
	GitHub    GitHubConfig    `yaml:"github"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Runner    RunnerConfig    `yaml:"runner"`
	Wizard    WizardConfig    `yaml:"wizard"`
	Auth      AuthConfig      `yaml:"auth"`
	Accounts  []AccountConfig `yaml:"accounts"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	Mode     string `yaml:"mode"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
}

type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

type DropboxConfig struct {
	TokenURL string `yaml:"token_url"`
	APIBase  string `yaml:"api_base"`
}

type InstagramConfig struct {
	APIBase string `yaml:"api_base"`
	// PollInterval and PollAttempts bound the container processing loop
	// for video publishes.
	PollInterval string `yaml:"poll_interval"`
	PollAttempts int    `yaml:"poll_attempts"`
	// ShareReelsToFeed controls whether published reels also appear in the
	// main feed. Off by default: reels stay standalone.
	ShareReelsToFeed bool `yaml:"share_reels_to_feed"`
}

type GitHubConfig struct {
	APIBase    string `yaml:"api_base"`
	Repository string `yaml:"repository"`
	Token      string `yaml:"token"`
}

type ScheduleConfig struct {
	Timezone       string `yaml:"timezone"`
	GraceSeconds   int    `yaml:"grace_seconds"`
	MaxWaitSeconds int    `yaml:"max_wait_seconds"`
}

type RunnerConfig struct {
	Enabled       bool   `yaml:"enabled"`
	CheckInterval string `yaml:"check_interval"`
}

type WizardConfig struct {
	Password string `yaml:"password"`
}

type AuthConfig struct {
	TOTPSecret string `yaml:"totp_secret"`
}

// AccountConfig is the per-account record resolved once at startup: folder
// path, API identifiers and secret names all live here instead of being
// derived from the account name at call sites.
type AccountConfig struct {
	Name                string `yaml:"name"`
	Folder              string `yaml:"folder"`
	InstagramAccountID  string `yaml:"instagram_account_id"`
	InstagramToken      string `yaml:"instagram_token"`
	DropboxAppKey       string `yaml:"dropbox_app_key"`
	DropboxAppSecret    string `yaml:"dropbox_app_secret"`
	DropboxRefreshToken string `yaml:"dropbox_refresh_token"`
	// SecretName is the remote secret the refreshed Dropbox access token is
	// pushed to after every refresh.
	SecretName string `yaml:"secret_name"`
	// InstagramSecretName is the remote secret the wizard's token rotation
	// writes the new Instagram access token to. It must differ from
	// SecretName: the Dropbox refresh overwrites that one on every run.
	InstagramSecretName string `yaml:"instagram_secret_name"`
	Caption             string `yaml:"caption"`
}

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	// Set default values
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5180
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.TimeZone == "" {
		cfg.Database.TimeZone = "UTC"
	}
	if cfg.Dropbox.TokenURL == "" {
		cfg.Dropbox.TokenURL = "https://api.dropbox.com/oauth2/token"
	}
	if cfg.Dropbox.APIBase == "" {
		cfg.Dropbox.APIBase = "https://api.dropboxapi.com/2"
	}
	if cfg.Instagram.APIBase == "" {
		cfg.Instagram.APIBase = "https://graph.facebook.com/v18.0"
	}
	if cfg.Instagram.PollInterval == "" {
		cfg.Instagram.PollInterval = "5s"
	}
	if cfg.Instagram.PollAttempts == 0 {
		cfg.Instagram.PollAttempts = 12
	}
	if cfg.GitHub.APIBase == "" {
		cfg.GitHub.APIBase = "https://api.github.com"
	}
	if cfg.Schedule.Timezone == "" {
		cfg.Schedule.Timezone = "UTC"
	}
	if cfg.Schedule.GraceSeconds == 0 {
		cfg.Schedule.GraceSeconds = 120
	}
	if cfg.Schedule.MaxWaitSeconds == 0 {
		cfg.Schedule.MaxWaitSeconds = 600
	}
	if cfg.Runner.CheckInterval == "" {
		cfg.Runner.CheckInterval = "1m"
	}

	return cfg, nil
}

// Account looks up the configuration record for the named account.
func (c *Config) Account(name string) (*AccountConfig, error) {
	for i := range c.Accounts {
		if c.Accounts[i].Name == name {
			return &c.Accounts[i], nil
		}
	}
	return nil, fmt.Errorf("account %q is not configured", name)
}

// AccountNames returns the configured account names in declaration order.
func (c *Config) AccountNames() []string {
	names := make([]string, 0, len(c.Accounts))
	for _, acc := range c.Accounts {
		names = append(names, acc.Name)
	}
	return names
}
