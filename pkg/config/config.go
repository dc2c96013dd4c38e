package config

import (
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/iancoleman/strcase"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const (
	configFileENV     = "CONFIG_FILE"
	defaultConfigFile = "/config/renamer.yaml"
)

// Config holds every tunable of the bot. Keys are the snake_case field names
// in the YAML file and the SCREAMING_SNAKE_CASE names in the environment.
type Config struct {
	AdminAPIKey               string        `koanf:"admin_api_key"`
	AdminIDs                  []int64       `koanf:"admin_ids"`
	APIRequestsPerSecond      float64       `koanf:"api_requests_per_second" default:"25" validate:"gt=0"`
	BotAPIEndpoint            string        `koanf:"bot_api_endpoint" default:"https://api.telegram.org/bot%s/%s" validate:"required"`
	BotFileEndpoint           string        `koanf:"bot_file_endpoint" default:"https://api.telegram.org/file/bot%s/%s" validate:"required"`
	BotToken                  string        `koanf:"bot_token" validate:"required"`
	DatabaseBusyTimeout       time.Duration `koanf:"database_busy_timeout" default:"5s"`
	DatabaseConnectRetryCount int           `koanf:"database_connect_retry_count" default:"5" validate:"min=1"`
	DatabaseConnectRetryDelay time.Duration `koanf:"database_connect_retry_delay" default:"2s"`
	DatabaseDebug             bool          `koanf:"database_debug"`
	DatabaseFilePath          string        `koanf:"database_file_path" default:"./data/renamer.sqlite" validate:"required"`
	DatabaseMaxRetries        int           `koanf:"database_max_retries" default:"5" validate:"min=0"`
	EventBuffer               int           `koanf:"event_buffer" default:"256" validate:"min=1"`
	MaxFileSize               int64         `koanf:"max_file_size" default:"2147483648" validate:"min=1"`
	MaxQueuePerUser           int           `koanf:"max_queue_per_user" default:"20" validate:"min=0"`
	Port                      int           `koanf:"port" default:"8080" validate:"min=0,max=65535"`
	ScratchDir                string        `koanf:"scratch_dir" default:"./tmp/scratch" validate:"required"`
	ScratchMaxAge             time.Duration `koanf:"scratch_max_age" default:"6h"`
	ScratchSweepSchedule      string        `koanf:"scratch_sweep_schedule" default:"@every 30m"`
	ServerHost                string        `koanf:"server_host" default:"0.0.0.0"`
	ShutdownTimeout           time.Duration `koanf:"shutdown_timeout" default:"30s"`
	UploadsPerHour            int           `koanf:"uploads_per_hour" default:"50" validate:"min=0"`
	WebServer                 bool          `koanf:"web_server" default:"true"`
	WebhookPath               string        `koanf:"webhook_path" default:"/webhook" validate:"startswith=/"`
	WebhookSecret             string        `koanf:"webhook_secret"`
	WebhookURL                string        `koanf:"webhook_url"`
	WorkerProcesses           int           `koanf:"worker_processes" default:"2" validate:"min=1"`
}

// New loads the config from the optional YAML file named by CONFIG_FILE and
// then from the environment, which takes precedence.
func New() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.WithStack(err)
	}

	k := koanf.New(".")

	path := os.Getenv(configFileENV)
	if path == "" {
		path = defaultConfigFile
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "failed to load config file %s", path)
		}
	}

	known := knownKeys()
	err := k.Load(env.Provider("", ".", func(s string) string {
		key := strings.ToLower(s)
		if _, ok := known[key]; !ok {
			return ""
		}
		return key
	}), nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// NewForTest returns a config with defaults applied and paths that are safe to
// use from tests.
func NewForTest() *Config {
	cfg := &Config{}
	_ = defaults.Set(cfg)
	cfg.BotToken = "test-token"
	cfg.DatabaseFilePath = ":memory:"
	cfg.ScratchDir = os.TempDir()
	cfg.DatabaseConnectRetryDelay = 0
	return cfg
}

// IsAdmin reports whether the user is in the admin allowlist.
func (cfg *Config) IsAdmin(userID int64) bool {
	for _, id := range cfg.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// WebhookRoute is the path the listener accepts updates on. A configured
// secret becomes its last segment so that only the platform knows the URL.
func (cfg *Config) WebhookRoute() string {
	route := strings.TrimRight(cfg.WebhookPath, "/")
	if cfg.WebhookSecret != "" {
		route += "/" + cfg.WebhookSecret
	}
	if route == "" {
		return "/"
	}
	return route
}

// WebhookEndpoint is the public URL the platform should deliver updates to.
func (cfg *Config) WebhookEndpoint() string {
	return strings.TrimRight(cfg.WebhookURL, "/") + cfg.WebhookRoute()
}

func knownKeys() map[string]struct{} {
	keys := map[string]struct{}{}
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		keys[t.Field(i).Tag.Get("koanf")] = struct{}{}
	}
	return keys
}

func validate(cfg *Config) error {
	v := validator.New()
	err := v.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.WithStack(err)
	}
	fe := verrs[0]
	key := strcase.ToSnake(fe.StructField())
	name := strcase.ToScreamingSnake(fe.StructField())
	if fe.Tag() == "required" {
		return errors.Errorf("missing required config: set %s in the environment or %s in the config file", name, key)
	}
	return errors.Errorf("invalid config %s (%s): failed %q validation", name, key, fe.Tag())
}
