package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const (
	envRabbitPassword = "RMQ_PASSWORD"
	envStoreDSN       = "RMQMETA_STORE_DSN"
	envSMTPPassword   = "RMQMETA_SMTP_PASSWORD"
	envMirrorAccess   = "RMQMETA_MIRROR_ACCESS_KEY"
	envMirrorSecret   = "RMQMETA_MIRROR_SECRET_KEY"
)

// loadEnvFile overlays variables from the configured dotenv file. Variables
// already present in the environment win.
func (c *Config) loadEnvFile(configDir string) error {
	envFile := strings.TrimSpace(c.Paths.EnvFile)
	if envFile == "" {
		return nil
	}
	if !filepath.IsAbs(envFile) && !strings.HasPrefix(envFile, "~") {
		envFile = filepath.Join(configDir, envFile)
	}
	expanded, err := expandPath(envFile)
	if err != nil {
		return fmt.Errorf("paths.env_file: %w", err)
	}
	if err := godotenv.Load(expanded); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", expanded, err)
	}
	return nil
}

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeRabbitMQ()
	if err := c.normalizeRoutes(); err != nil {
		return err
	}
	if err := c.normalizeNER(); err != nil {
		return err
	}
	c.normalizeExtraction()
	if err := c.normalizeStore(); err != nil {
		return err
	}
	if err := c.normalizeMirror(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.BaseDir) == "" {
		c.Paths.BaseDir = defaultBaseDir
	}
	if c.Paths.BaseDir, err = expandPath(c.Paths.BaseDir); err != nil {
		return fmt.Errorf("paths.base_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.MessageDir) == "" {
		c.Paths.MessageDir = defaultMessageDir
	}
	if c.Paths.MessageDir, err = c.resolveBase(c.Paths.MessageDir); err != nil {
		return fmt.Errorf("paths.message_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = c.resolveBase(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.TmpDir) == "" {
		c.Paths.TmpDir = defaultTmpDir
	}
	if c.Paths.TmpDir, err = c.resolveBase(c.Paths.TmpDir); err != nil {
		return fmt.Errorf("paths.tmp_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ArchiveDir) != "" {
		if c.Paths.ArchiveDir, err = c.resolveBase(c.Paths.ArchiveDir); err != nil {
			return fmt.Errorf("paths.archive_dir: %w", err)
		}
	}

	logFile := filepath.Base(strings.TrimSpace(c.Paths.LogFile))
	if logFile == "" || logFile == "." || logFile == string(filepath.Separator) {
		logFile = defaultLogFile
	}
	c.Paths.LogFile = exchangeLogName(logFile, strings.TrimSpace(c.RabbitMQ.ExchangeName))
	return nil
}

// resolveBase joins relative paths onto paths.base_dir.
func (c *Config) resolveBase(value string) (string, error) {
	value = strings.TrimSpace(value)
	if !filepath.IsAbs(value) && !strings.HasPrefix(value, "~") {
		value = filepath.Join(c.Paths.BaseDir, value)
	}
	return expandPath(value)
}

// exchangeLogName appends the exchange name to the log file stem so several
// exchanges can share one log directory.
func exchangeLogName(name, exchange string) string {
	if exchange == "" {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if strings.HasSuffix(stem, "_"+exchange) {
		return name
	}
	return stem + "_" + exchange + ext
}

func (c *Config) normalizeRabbitMQ() {
	c.RabbitMQ.Host = strings.TrimSpace(c.RabbitMQ.Host)
	if c.RabbitMQ.Host == "" {
		c.RabbitMQ.Host = defaultRabbitHost
	}
	if c.RabbitMQ.Port == 0 {
		c.RabbitMQ.Port = defaultRabbitPort
	}
	if c.RabbitMQ.Password == "" {
		if value, ok := os.LookupEnv(envRabbitPassword); ok {
			c.RabbitMQ.Password = value
		}
	}
	if strings.TrimSpace(c.RabbitMQ.VHost) == "" {
		c.RabbitMQ.VHost = defaultRabbitVHost
	}
	c.RabbitMQ.ExchangeName = strings.TrimSpace(c.RabbitMQ.ExchangeName)
	c.RabbitMQ.ExchangeType = strings.ToLower(strings.TrimSpace(c.RabbitMQ.ExchangeType))
	if c.RabbitMQ.ExchangeType == "" {
		c.RabbitMQ.ExchangeType = defaultExchangeType
	}
	if strings.TrimSpace(c.RabbitMQ.ConsumerTag) == "" {
		c.RabbitMQ.ConsumerTag = defaultConsumerTag
	}
}

func (c *Config) normalizeRoutes() error {
	for i := range c.Routes {
		route := &c.Routes[i]
		route.Queue = strings.TrimSpace(route.Queue)
		route.RoutingKey = strings.TrimSpace(route.RoutingKey)
		route.Prename = strings.TrimSpace(route.Prename)
		route.Postname = strings.TrimSpace(route.Postname)
		route.Ext = strings.TrimPrefix(strings.TrimSpace(route.Ext), ".")
		route.SType = strings.ToLower(strings.TrimSpace(route.SType))
		route.Mode = strings.TrimSpace(route.Mode)
		if route.Mode == "" {
			route.Mode = "w"
		}
		if strings.TrimSpace(route.Directory) == "" {
			continue
		}
		dir, err := expandPath(strings.TrimSpace(route.Directory))
		if err != nil {
			return fmt.Errorf("routes[%d].directory: %w", i, err)
		}
		route.Directory = dir
	}
	return nil
}

func (c *Config) normalizeNER() error {
	c.NER.JavaBinary = strings.TrimSpace(c.NER.JavaBinary)
	if c.NER.JavaBinary == "" {
		c.NER.JavaBinary = defaultJavaBinary
	}
	// Only tilde paths are expanded; relative model paths are rejected by Validate.
	var err error
	if strings.HasPrefix(c.NER.StanfordJar, "~") {
		if c.NER.StanfordJar, err = expandPath(c.NER.StanfordJar); err != nil {
			return fmt.Errorf("ner.stanford_jar: %w", err)
		}
	}
	if strings.HasPrefix(c.NER.LangModule, "~") {
		if c.NER.LangModule, err = expandPath(c.NER.LangModule); err != nil {
			return fmt.Errorf("ner.lang_module: %w", err)
		}
	}
	if strings.TrimSpace(c.NER.Encoding) == "" {
		c.NER.Encoding = defaultNEREncoding
	}
	if strings.TrimSpace(c.NER.Heap) == "" {
		c.NER.Heap = defaultNERHeap
	}
	c.NER.TokenTypes = normalizeList(c.NER.TokenTypes, strings.ToUpper)
	if len(c.NER.TokenTypes) == 0 {
		c.NER.TokenTypes = append([]string(nil), DefaultTokenTypes...)
	}
	return nil
}

func (c *Config) normalizeExtraction() {
	c.Extraction.PdftotextBinary = strings.TrimSpace(c.Extraction.PdftotextBinary)
	if c.Extraction.PdftotextBinary == "" {
		c.Extraction.PdftotextBinary = defaultPdftotextBinary
	}
	c.Extraction.CodecAllowlist = normalizeList(c.Extraction.CodecAllowlist, strings.ToLower)
	if len(c.Extraction.CodecAllowlist) == 0 {
		c.Extraction.CodecAllowlist = append([]string(nil), DefaultCodecAllowlist...)
	}
}

func (c *Config) normalizeStore() error {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = defaultStoreBackend
	}
	if c.Store.DSN == "" {
		if value, ok := os.LookupEnv(envStoreDSN); ok {
			c.Store.DSN = value
		}
	}
	if c.Store.Backend == StoreSQLite {
		if strings.TrimSpace(c.Store.SQLitePath) == "" {
			c.Store.SQLitePath = defaultStoreSQLiteName
		}
		path, err := c.resolveBase(c.Store.SQLitePath)
		if err != nil {
			return fmt.Errorf("store.sqlite_path: %w", err)
		}
		c.Store.SQLitePath = path
	}
	if strings.TrimSpace(c.Store.Database) == "" {
		c.Store.Database = defaultStoreDatabase
	}
	if strings.TrimSpace(c.Store.Collection) == "" {
		c.Store.Collection = defaultStoreCollection
	}
	if c.Store.CredentialsFile != "" {
		path, err := expandPath(c.Store.CredentialsFile)
		if err != nil {
			return fmt.Errorf("store.credentials_file: %w", err)
		}
		c.Store.CredentialsFile = path
	}
	return nil
}

func (c *Config) normalizeMirror() error {
	c.Mirror.Backend = strings.ToLower(strings.TrimSpace(c.Mirror.Backend))
	c.Mirror.Bucket = strings.TrimSpace(c.Mirror.Bucket)
	c.Mirror.Prefix = strings.Trim(strings.TrimSpace(c.Mirror.Prefix), "/")
	c.Mirror.Endpoint = strings.TrimSpace(c.Mirror.Endpoint)
	if c.Mirror.AccessKey == "" {
		c.Mirror.AccessKey = os.Getenv(envMirrorAccess)
	}
	if c.Mirror.SecretKey == "" {
		c.Mirror.SecretKey = os.Getenv(envMirrorSecret)
	}
	if c.Mirror.CredentialsFile != "" {
		path, err := expandPath(c.Mirror.CredentialsFile)
		if err != nil {
			return fmt.Errorf("mirror.credentials_file: %w", err)
		}
		c.Mirror.CredentialsFile = path
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.ToLine = normalizeList(c.Notifications.ToLine, func(s string) string { return s })
	c.Notifications.FromLine = strings.TrimSpace(c.Notifications.FromLine)
	c.Notifications.SMTPHost = strings.TrimSpace(c.Notifications.SMTPHost)
	if c.Notifications.SMTPPort == 0 {
		c.Notifications.SMTPPort = defaultSMTPPort
	}
	if c.Notifications.SMTPPassword == "" {
		if value, ok := os.LookupEnv(envSMTPPassword); ok {
			c.Notifications.SMTPPassword = value
		}
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func normalizeList(values []string, transform func(string) string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		value = transform(strings.TrimSpace(value))
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
