package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Commands CommandConfig  `mapstructure:"commands"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Tenants  []string       `mapstructure:"tenants"`
	Queues   []QueueConfig  `mapstructure:"queues"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
	return c.Path
}

type StorageConfig struct {
	Type      string `mapstructure:"type"` // minio, s3, r2, s3compatible
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
}

// EngineConfig tunes the queue dispatch engine.
type EngineConfig struct {
	// PollInterval is the timer period between poll requests.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// BatchSize is the maximum number of stream entries read per pass.
	BatchSize int `mapstructure:"batch_size"`
	// JobTimeout is the heartbeat age after which an assignment is abandoned.
	JobTimeout time.Duration `mapstructure:"job_timeout"`
	// RetryLimit is how many times a timed-out job is requeued before it is
	// terminally failed.
	RetryLimit int `mapstructure:"retry_limit"`
	// MonitorInterval is the timeout monitor schedule.
	MonitorInterval time.Duration `mapstructure:"monitor_interval"`
	// MonitorInitialDelay shortens the first monitor run in development.
	MonitorInitialDelay time.Duration `mapstructure:"monitor_initial_delay"`
}

type CommandConfig struct {
	// Bus selects the command transport: "local" appends events to the
	// stream store directly, "http" posts commands to the domain layer.
	Bus      string `mapstructure:"bus"`
	Endpoint string `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type WorkerConfig struct {
	APIBaseURL   string        `mapstructure:"api_base_url"`
	Queues       []string      `mapstructure:"queues"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// HeartbeatInterval is how often a busy worker renews its lease. It
	// must stay under the engine's job_timeout; leave it at zero to derive
	// it from the timeout.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	WorkDir           string        `mapstructure:"work_dir"`
	// SofficePath locates the external LibreOffice binary used by the
	// office conversion.
	SofficePath string `mapstructure:"soffice_path"`
}

// QueueConfig is the declarative matching rule for one queue, loaded at
// startup and immutable thereafter. Extensions and formats are pipe-delimited
// lists; empty means match-all (extensions) or no prerequisite (formats).
type QueueConfig struct {
	Name       string            `mapstructure:"name"`
	Pipeline   string            `mapstructure:"pipeline"`
	Extensions string            `mapstructure:"extensions"`
	Formats    string            `mapstructure:"formats"`
	Parameters map[string]string `mapstructure:"parameters"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	// Set config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/docpipe.db")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("storage.type", "minio")
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.bucket", "docpipe")
	v.SetDefault("engine.poll_interval", 5*time.Second)
	v.SetDefault("engine.batch_size", 50)
	v.SetDefault("engine.job_timeout", 10*time.Minute)
	v.SetDefault("engine.retry_limit", 3)
	v.SetDefault("engine.monitor_interval", 2*time.Minute)
	v.SetDefault("engine.monitor_initial_delay", 0)
	v.SetDefault("commands.bus", "local")
	v.SetDefault("commands.timeout", 15*time.Second)
	v.SetDefault("worker.api_base_url", "http://localhost:8080")
	v.SetDefault("worker.poll_interval", 2*time.Second)
	v.SetDefault("worker.heartbeat_interval", time.Duration(0))
	v.SetDefault("worker.work_dir", "./data/work")
	v.SetDefault("worker.soffice_path", "soffice")
	v.SetDefault("tenants", []string{"default"})

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.password", "DOCPIPE_DB_PASSWORD")
	v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("storage.use_ssl", "STORAGE_USE_SSL")
	v.BindEnv("commands.endpoint", "COMMANDS_ENDPOINT")
	v.BindEnv("worker.api_base_url", "WORKER_API_BASE_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(cfg.Queues) == 0 {
		cfg.Queues = DefaultQueues()
	}

	return &cfg, nil
}

// DefaultQueues returns the built-in queue set covering the standard
// conversion families. Deployments normally override this in config.
func DefaultQueues() []QueueConfig {
	return []QueueConfig{
		{
			Name:       "office",
			Pipeline:   "^(?!office$).*",
			Extensions: "xls|xlsx|docx|doc|ppt|pptx|pps|ppsx|rtf|odt|ods|odp",
		},
		{
			Name:       "tika",
			Pipeline:   "^(?!tika$).*",
			Extensions: "pdf|xls|xlsx|docx|doc|ppt|pptx|pps|ppsx|rtf|odt|ods|odp",
		},
		{
			Name:       "email",
			Extensions: "eml|msg",
		},
		{
			Name:       "htmlzip",
			Extensions: "html|htm|mht|mhtml",
		},
		{
			Name:       "imgresize",
			Pipeline:   "^(?!img$).*",
			Extensions: "png|jpg|gif|jpeg",
			Parameters: map[string]string{
				"thumb_format": "png",
				"sizes":        "small:200x200|large:800x800",
			},
		},
		{
			Name:       "videothumb",
			Extensions: "mp4|avi|mkv|mov",
			Parameters: map[string]string{
				"thumb_format": "jpg",
			},
		},
	}
}
