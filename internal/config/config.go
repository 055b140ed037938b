package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Server   Server
	Mode     Mode
	Upstream Upstream
	OAuth    OAuth
	Poll     Poll
	Storage  Storage
}

type Server struct {
	Host        string        `env:"host" env-default:"localhost"`
	Port        string        `env:"port" env-default:"8080"`
	Timeout     time.Duration `env:"timeout" env-default:"15s"`
	IdleTimeout time.Duration `env:"idle_timeout" env-default:"30s"`
}

// Mode selects the deployment variant. In hosted mode end users sign in via
// OAuth and their bearer token is relayed upstream; in self-hosted mode the
// operator's API key is used and the sign-in flow never activates.
type Mode struct {
	Hosted bool `env:"hosted" env-default:"false"`
}

type Upstream struct {
	BaseURL string        `env:"upstream_base_url" env-default:"https://api.deepresearch.dev"`
	APIKey  string        `env:"upstream_api_key"`
	Timeout time.Duration `env:"upstream_timeout" env-default:"30s"`
}

type OAuth struct {
	ClientID    string `env:"oauth_client_id"`
	AuthURL     string `env:"oauth_auth_url"`
	RedirectURI string `env:"oauth_redirect_uri"`
}

type Poll struct {
	Interval time.Duration `env:"poll_interval" env-default:"10s"`
}

type Storage struct {
	SQLitePath string `env:"sqlite_path" env-default:"supplement-research.db"`
	ArchiveDir string `env:"archive_dir"`
}

const configPath = "config/local.env"

func MustLoad() *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatal("config file does not exist: " + configPath)
	}

	if err := godotenv.Load(configPath); err != nil {
		log.Fatalf("cannot load env file: %s", err)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatal("failed to read config: " + err.Error())
	}

	if cfg.Storage.ArchiveDir == "" {
		cfg.Storage.ArchiveDir = os.TempDir()
	}

	return &cfg
}

// OAuthConfigured reports whether every field the PKCE flow needs is present.
// Initiation is a warning no-op without them.
func (c *Config) OAuthConfigured() bool {
	return c.OAuth.ClientID != "" && c.OAuth.AuthURL != "" && c.OAuth.RedirectURI != ""
}
