package config

const (
	defaultConfigPath        = "~/.config/rmqmeta/config.toml"
	defaultBaseDir           = "~/.local/share/rmqmeta"
	defaultMessageDir        = "message_dir"
	defaultLogDir            = "logs"
	defaultLogFile           = "rmq_metadata.log"
	defaultTmpDir            = "tmp"
	defaultEnvFile           = ".env"
	defaultRabbitHost        = "localhost"
	defaultRabbitPort        = 5672
	defaultRabbitUser        = "guest"
	defaultRabbitVHost       = "/"
	defaultExchangeType      = "direct"
	defaultPrefetch          = 1
	defaultHeartbeatSeconds  = 60
	defaultReconnectSeconds  = 15
	defaultConsumerTag       = "rmqmeta"
	defaultJavaBinary        = "java"
	defaultNEREncoding       = "utf-8"
	defaultNERHeap           = "1000m"
	defaultNERTimeout        = 300
	defaultExtractionTimeout = 300
	defaultPdftotextBinary   = "pdftotext"
	defaultStripSequence     = "."
	defaultStoreBackend      = StoreSQLite
	defaultStoreSQLiteName   = "metadata.db"
	defaultStoreDatabase     = "rmq_metadata"
	defaultStoreCollection   = "metadata"
	defaultStoreTimeout      = 30
	defaultMirrorTimeout     = 120
	defaultSMTPPort          = 25
	defaultRequestTimeout    = 10
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultLogRetentionDays  = 30
	defaultMetricsListen     = "127.0.0.1:9464"
	defaultFlavorID          = "rmq_metadata"
)

// EncodedSType marks a route whose message bodies arrive base64 encoded.
const EncodedSType = "encoded"

// Document store backends.
const (
	StoreSQLite    = "sqlite"
	StorePostgres  = "postgres"
	StoreMongo     = "mongo"
	StoreFirestore = "firestore"
)

// Mirror backends.
const (
	MirrorNone = ""
	MirrorS3   = "s3"
	MirrorGCS  = "gcs"
)

// DefaultTokenTypes are the entity types kept when ner.token_types is empty.
var DefaultTokenTypes = []string{"LOCATION", "PERSON", "ORGANIZATION"}

// DefaultCodecAllowlist lists the codecs eligible for a decode retry.
var DefaultCodecAllowlist = []string{"utf-8", "ascii", "iso-8859-1"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			BaseDir:    defaultBaseDir,
			MessageDir: defaultMessageDir,
			LogDir:     defaultLogDir,
			LogFile:    defaultLogFile,
			TmpDir:     defaultTmpDir,
			EnvFile:    defaultEnvFile,
		},
		RabbitMQ: RabbitMQ{
			Host:             defaultRabbitHost,
			Port:             defaultRabbitPort,
			User:             defaultRabbitUser,
			VHost:            defaultRabbitVHost,
			ExchangeType:     defaultExchangeType,
			ExchangeDurable:  true,
			QueueDurable:     true,
			Prefetch:         defaultPrefetch,
			HeartbeatSeconds: defaultHeartbeatSeconds,
			ReconnectSeconds: defaultReconnectSeconds,
			ConsumerTag:      defaultConsumerTag,
		},
		NER: NER{
			JavaBinary:     defaultJavaBinary,
			Encoding:       defaultNEREncoding,
			TokenTypes:     append([]string(nil), DefaultTokenTypes...),
			Heap:           defaultNERHeap,
			TimeoutSeconds: defaultNERTimeout,
		},
		Extraction: Extraction{
			TimeoutSeconds:  defaultExtractionTimeout,
			PdftotextBinary: defaultPdftotextBinary,
			StripSequence:   defaultStripSequence,
			CodecAllowlist:  append([]string(nil), DefaultCodecAllowlist...),
		},
		Store: Store{
			Backend:        defaultStoreBackend,
			Database:       defaultStoreDatabase,
			Collection:     defaultStoreCollection,
			TimeoutSeconds: defaultStoreTimeout,
		},
		Mirror: Mirror{
			TimeoutSeconds: defaultMirrorTimeout,
		},
		Notifications: Notifications{
			SMTPPort:       defaultSMTPPort,
			RequestTimeout: defaultRequestTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Metrics: Metrics{
			Listen: defaultMetricsListen,
		},
		Daemon: Daemon{
			FlavorID: defaultFlavorID,
		},
	}
}
