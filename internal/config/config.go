package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Import   ImportConfig   `yaml:"import"`
	Export   ExportConfig   `yaml:"export"`
	API      APIConfig      `yaml:"api"`
	LogLevel string         `yaml:"log_level"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	DBName          string        `yaml:"dbname"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// StorageConfig points at a Supabase Storage bucket.
type StorageConfig struct {
	URL           string        `yaml:"url"`
	Key           string        `yaml:"key"`
	Bucket        string        `yaml:"bucket"`
	PublicBaseURL string        `yaml:"public_base_url"`
	Timeout       time.Duration `yaml:"timeout"`
}

// RabbitMQConfig is optional. Events are not published when URL is empty.
type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
}

type ImportConfig struct {
	RootDir     string `yaml:"root_dir"`
	AuthorsFile string `yaml:"authors_file"`
	Transfers   int    `yaml:"transfers"`
}

// ExportConfig.Interval repeats the export when set; zero runs it once.
type ExportConfig struct {
	OutputDir  string        `yaml:"output_dir"`
	Transfers  int           `yaml:"transfers"`
	Interval   time.Duration `yaml:"interval"`
	RunTimeout time.Duration `yaml:"run_timeout"`
}

type APIConfig struct {
	Addr            string        `yaml:"addr"`
	JWTSecret       string        `yaml:"jwt_secret"`
	JWTIssuer       string        `yaml:"jwt_issuer"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	MaxContentBytes int           `yaml:"max_content_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

// Validate reports the settings every command needs: a database and a blob
// store.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.Host == "" {
		errs = append(errs, errors.New("database.host is required"))
	}
	if c.Database.DBName == "" {
		errs = append(errs, errors.New("database.dbname is required"))
	}
	if c.Storage.URL == "" {
		errs = append(errs, errors.New("storage.url is required"))
	}
	if c.Storage.Key == "" {
		errs = append(errs, errors.New("storage.key is required"))
	}
	if c.Storage.Bucket == "" {
		errs = append(errs, errors.New("storage.bucket is required"))
	}
	return errors.Join(errs...)
}

func (c *Config) setDefaults() {
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if c.Storage.Timeout == 0 {
		c.Storage.Timeout = 60 * time.Second
	}
	if c.RabbitMQ.URL != "" {
		if c.RabbitMQ.Exchange == "" {
			c.RabbitMQ.Exchange = "guides"
		}
		if c.RabbitMQ.RoutingKey == "" {
			c.RabbitMQ.RoutingKey = "articles"
		}
		if c.RabbitMQ.QueueName == "" {
			c.RabbitMQ.QueueName = "guide_articles"
		}
	}
	if c.Import.RootDir == "" {
		c.Import.RootDir = "import_data"
	}
	if c.Import.AuthorsFile == "" {
		c.Import.AuthorsFile = "import-users.json"
	}
	if c.Import.Transfers == 0 {
		c.Import.Transfers = 4
	}
	if c.Export.OutputDir == "" {
		c.Export.OutputDir = "exported_data"
	}
	if c.Export.Transfers == 0 {
		c.Export.Transfers = 4
	}
	if c.Export.Interval > 0 && c.Export.RunTimeout == 0 {
		c.Export.RunTimeout = c.Export.Interval
	}
	if c.API.Addr == "" {
		c.API.Addr = ":3000"
	}
	if c.API.JWTIssuer == "" {
		c.API.JWTIssuer = "asian-guide-web"
	}
	if c.API.MaxUploadBytes == 0 {
		c.API.MaxUploadBytes = 10 << 20
	}
	if c.API.MaxContentBytes == 0 {
		c.API.MaxContentBytes = 1 << 20
	}
	if c.API.ShutdownTimeout == 0 {
		c.API.ShutdownTimeout = 10 * time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
