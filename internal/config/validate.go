package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateRabbitMQ(); err != nil {
		return err
	}
	if err := c.validateRoutes(); err != nil {
		return err
	}
	if err := c.validateNER(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateMirror(); err != nil {
		return err
	}
	if err := c.validateTimeouts(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.ExchangeName == "" {
		return errors.New("rabbitmq.exchange_name must be set")
	}
	switch c.RabbitMQ.ExchangeType {
	case "direct", "topic", "fanout", "headers":
	default:
		return fmt.Errorf("rabbitmq.exchange_type %q is not supported", c.RabbitMQ.ExchangeType)
	}
	if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
		return errors.New("rabbitmq.port must be between 1 and 65535")
	}
	if c.RabbitMQ.Prefetch < 0 {
		return errors.New("rabbitmq.prefetch must not be negative")
	}
	return nil
}

func (c *Config) validateRoutes() error {
	if len(c.Routes) == 0 {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("at least one [[routes]] entry is required; edit %s (create with 'rmqmeta config init')", defaultPath)
	}
	for i, route := range c.Routes {
		if route.Queue == "" {
			return fmt.Errorf("routes[%d].queue must be set", i)
		}
		if route.RoutingKey == "" {
			return fmt.Errorf("routes[%d].routing_key must be set", i)
		}
		if route.Directory == "" {
			return fmt.Errorf("routes[%d].directory must be set", i)
		}
		if route.SType != "" && route.SType != EncodedSType {
			return fmt.Errorf("routes[%d].stype must be empty or %q", i, EncodedSType)
		}
		if route.Mode != "w" && route.Mode != "a" {
			return fmt.Errorf("routes[%d].mode must be \"w\" or \"a\"", i)
		}
	}
	return nil
}

// DuplicateRoutingKeys lists routing keys that appear more than once. Only the
// first entry for each key is ever used.
func (c *Config) DuplicateRoutingKeys() []string {
	seen := make(map[string]int, len(c.Routes))
	var dups []string
	for _, route := range c.Routes {
		seen[route.RoutingKey]++
		if seen[route.RoutingKey] == 2 {
			dups = append(dups, route.RoutingKey)
		}
	}
	return dups
}

func (c *Config) validateNER() error {
	if strings.TrimSpace(c.NER.LangModule) == "" {
		return errors.New("ner.lang_module must be set")
	}
	if !filepath.IsAbs(c.NER.LangModule) {
		return fmt.Errorf("ner.lang_module must be an absolute path: %s", c.NER.LangModule)
	}
	if strings.TrimSpace(c.NER.StanfordJar) == "" {
		return errors.New("ner.stanford_jar must be set")
	}
	if !filepath.IsAbs(c.NER.StanfordJar) {
		return fmt.Errorf("ner.stanford_jar must be an absolute path: %s", c.NER.StanfordJar)
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("store.sqlite_path must be set when store.backend is sqlite")
		}
	case StorePostgres, StoreMongo:
		if strings.TrimSpace(c.Store.DSN) == "" {
			return fmt.Errorf("store.dsn must be set when store.backend is %s (or export %s)", c.Store.Backend, envStoreDSN)
		}
	case StoreFirestore:
		if strings.TrimSpace(c.Store.ProjectID) == "" {
			return errors.New("store.project_id must be set when store.backend is firestore")
		}
	default:
		return fmt.Errorf("store.backend %q is not supported (sqlite, postgres, mongo, firestore)", c.Store.Backend)
	}
	return nil
}

func (c *Config) validateMirror() error {
	switch c.Mirror.Backend {
	case MirrorNone:
		return nil
	case MirrorS3, MirrorGCS:
		if c.Mirror.Bucket == "" {
			return fmt.Errorf("mirror.bucket must be set when mirror.backend is %s", c.Mirror.Backend)
		}
		if c.Mirror.Backend == MirrorS3 && strings.TrimSpace(c.Mirror.Region) == "" {
			return errors.New("mirror.region must be set when mirror.backend is s3")
		}
		return nil
	default:
		return fmt.Errorf("mirror.backend %q is not supported (s3, gcs)", c.Mirror.Backend)
	}
}

func (c *Config) validateTimeouts() error {
	return ensurePositiveMap(map[string]int{
		"extraction.timeout_seconds":    c.Extraction.TimeoutSeconds,
		"ner.timeout_seconds":           c.NER.TimeoutSeconds,
		"store.timeout_seconds":         c.Store.TimeoutSeconds,
		"mirror.timeout_seconds":        c.Mirror.TimeoutSeconds,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
		"rabbitmq.reconnect_seconds":    c.RabbitMQ.ReconnectSeconds,
	})
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q is not supported (console, json)", c.Logging.Format)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must not be negative")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
