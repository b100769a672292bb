package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the working directories used by the pipeline.
type Paths struct {
	BaseDir    string `toml:"base_dir"`
	MessageDir string `toml:"message_dir"`
	LogDir     string `toml:"log_dir"`
	LogFile    string `toml:"log_file"`
	ArchiveDir string `toml:"archive_dir"`
	TmpDir     string `toml:"tmp_dir"`
	EnvFile    string `toml:"env_file"`
}

// RabbitMQ contains broker connection and topology settings.
type RabbitMQ struct {
	Host             string `toml:"host"`
	Port             int    `toml:"port"`
	User             string `toml:"user"`
	Password         string `toml:"password"`
	VHost            string `toml:"vhost"`
	ExchangeName     string `toml:"exchange_name"`
	ExchangeType     string `toml:"exchange_type"`
	ExchangeDurable  bool   `toml:"x_durable"`
	QueueDurable     bool   `toml:"q_durable"`
	AutoDelete       bool   `toml:"auto_delete"`
	Prefetch         int    `toml:"prefetch"`
	HeartbeatSeconds int    `toml:"heartbeat_seconds"`
	ReconnectSeconds int    `toml:"reconnect_seconds"`
	ConsumerTag      string `toml:"consumer_tag"`
}

// Route maps a routing key to its processing settings.
type Route struct {
	Queue      string `toml:"queue"`
	RoutingKey string `toml:"routing_key"`
	Directory  string `toml:"directory"`
	Prename    string `toml:"prename"`
	Postname   string `toml:"postname"`
	Mode       string `toml:"mode"`
	Ext        string `toml:"ext"`
	SType      string `toml:"stype"`
	Archive    bool   `toml:"archive"`
}

// Encoded reports whether message bodies on this route are base64 encoded.
func (r Route) Encoded() bool {
	return strings.EqualFold(strings.TrimSpace(r.SType), EncodedSType)
}

// NER contains the Stanford named entity recognizer settings.
type NER struct {
	JavaBinary     string   `toml:"java_binary"`
	StanfordJar    string   `toml:"stanford_jar"`
	LangModule     string   `toml:"lang_module"`
	Encoding       string   `toml:"encoding"`
	TokenTypes     []string `toml:"token_types"`
	Heap           string   `toml:"heap"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// Extraction contains settings shared by the text extraction backends.
type Extraction struct {
	TimeoutSeconds  int      `toml:"timeout_seconds"`
	Concurrent      bool     `toml:"concurrent"`
	PdftotextBinary string   `toml:"pdftotext_binary"`
	StripSequence   string   `toml:"strip_sequence"`
	CodecAllowlist  []string `toml:"codec_allowlist"`
}

// Store selects and configures the document store backend.
type Store struct {
	Backend         string `toml:"backend"`
	SQLitePath      string `toml:"sqlite_path"`
	DSN             string `toml:"dsn"`
	Database        string `toml:"database"`
	Collection      string `toml:"collection"`
	ProjectID       string `toml:"project_id"`
	CredentialsFile string `toml:"credentials_file"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
}

// Mirror configures optional off-host copies of archived and quarantined bodies.
type Mirror struct {
	Backend         string `toml:"backend"`
	Bucket          string `toml:"bucket"`
	Prefix          string `toml:"prefix"`
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	AccessKey       string `toml:"access_key"`
	SecretKey       string `toml:"secret_key"`
	CredentialsFile string `toml:"credentials_file"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
}

// Notifications contains alerting settings for quarantined messages.
type Notifications struct {
	ToLine         []string `toml:"to_line"`
	FromLine       string   `toml:"from_line"`
	SMTPHost       string   `toml:"smtp_host"`
	SMTPPort       int      `toml:"smtp_port"`
	SMTPUser       string   `toml:"smtp_user"`
	SMTPPassword   string   `toml:"smtp_password"`
	NtfyTopic      string   `toml:"ntfy_topic"`
	RequestTimeout int      `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Metrics controls the Prometheus endpoint.
type Metrics struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

// Daemon contains process supervision settings.
type Daemon struct {
	FlavorID string `toml:"flavor_id"`
}

// Config encapsulates all configuration values for rmqmeta.
//
// Configuration sections by subsystem:
//   - Paths: working directories (quarantine, logs, archive, tmp)
//   - RabbitMQ: broker connection and exchange topology
//   - Routes: one entry per monitored queue/routing key
//   - NER: Stanford classifier jar, model and entity types
//   - Extraction: backend timeouts, codec allow-list, strip sequence
//   - Store: document store backend
//   - Mirror: optional S3/GCS copy of raw bodies
//   - Notifications: email and ntfy alerting
//   - Logging: log format, level, and retention
//   - Metrics: Prometheus listener
//   - Daemon: program lock flavor
type Config struct {
	Paths         Paths         `toml:"paths"`
	RabbitMQ      RabbitMQ      `toml:"rabbitmq"`
	Routes        []Route       `toml:"routes"`
	NER           NER           `toml:"ner"`
	Extraction    Extraction    `toml:"extraction"`
	Store         Store         `toml:"store"`
	Mirror        Mirror        `toml:"mirror"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
	Metrics       Metrics       `toml:"metrics"`
	Daemon        Daemon        `toml:"daemon"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.loadEnvFile(filepath.Dir(resolvedPath)); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("rmqmeta.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the working directories the pipeline writes to.
// Route destination directories are not created; they must already exist.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.MessageDir, c.Paths.LogDir, c.Paths.TmpDir}
	if strings.TrimSpace(c.Paths.ArchiveDir) != "" {
		dirs = append(dirs, c.Paths.ArchiveDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LogFilePath returns the absolute path of the stable log file pointer.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.Paths.LogDir, c.Paths.LogFile)
}

// LockPath returns the program lock path for the configured flavor.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "rmqmeta-"+c.flavor()+".lock")
}

// PIDPath returns the pidfile path for the configured flavor.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.LogDir, "rmqmeta-"+c.flavor()+".pid")
}

// SocketPath returns the IPC socket path for the configured flavor.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.LogDir, "rmqmeta-"+c.flavor()+".sock")
}

// AMQPURL builds the broker URL from the rabbitmq section.
func (c *Config) AMQPURL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.RabbitMQ.User, c.RabbitMQ.Password),
		Host:   net.JoinHostPort(c.RabbitMQ.Host, strconv.Itoa(c.RabbitMQ.Port)),
		Path:   "/",
	}
	if vhost := c.RabbitMQ.VHost; vhost != "" && vhost != "/" {
		u.Path = "/" + vhost
		u.RawPath = "/" + url.PathEscape(vhost)
	}
	return u.String()
}

// LedgerPath returns the location of the local processing ledger.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.LogDir, "ledger.db")
}

func (c *Config) flavor() string {
	flavor := strings.TrimSpace(c.Daemon.FlavorID)
	if flavor == "" {
		return defaultFlavorID
	}
	return flavor
}

// RouteFor returns the first route whose routing key matches.
func (c *Config) RouteFor(routingKey string) (Route, bool) {
	for _, route := range c.Routes {
		if route.RoutingKey == routingKey {
			return route, true
		}
	}
	return Route{}, false
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Sample returns the embedded sample configuration.
func Sample() string {
	return sampleConfig
}
