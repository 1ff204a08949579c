package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Environment string         `yaml:"environment" mapstructure:"environment"`
	Data        DataConfig     `yaml:"data" mapstructure:"data"`
	Store       StoreConfig    `yaml:"store" mapstructure:"store"`
	Queue       QueueConfig    `yaml:"queue" mapstructure:"queue"`
	Stream      StreamConfig   `yaml:"stream" mapstructure:"stream"`
	Secrets     SecretsConfig  `yaml:"secrets" mapstructure:"secrets"`
	Rulesets    RulesetsConfig `yaml:"rulesets" mapstructure:"rulesets"`
	Locator     LocatorConfig  `yaml:"locator" mapstructure:"locator"`
	Router      RouterConfig   `yaml:"router" mapstructure:"router"`
	Log         LogConfig      `yaml:"log" mapstructure:"log"`
}

// DataConfig points at the bundled reference data and task schemas.
type DataConfig struct {
	Dir       string `yaml:"dir" mapstructure:"dir"`
	SchemaDir string `yaml:"schema_dir" mapstructure:"schema_dir"`
}

// StoreConfig names the DynamoDB tables.
type StoreConfig struct {
	GeocodesTable string `yaml:"geocodes_table" mapstructure:"geocodes_table"`
	TransferTable string `yaml:"transfer_table" mapstructure:"transfer_table"`
}

// QueueConfig names the SQS task queues.
type QueueConfig struct {
	GeocoderQueue string `yaml:"geocoder_queue" mapstructure:"geocoder_queue"`
	InputQueue    string `yaml:"input_queue" mapstructure:"input_queue"`
}

// StreamConfig names the Kinesis streams and the transfer table's
// DynamoDB stream.
type StreamConfig struct {
	InputStream       string `yaml:"input_stream" mapstructure:"input_stream"`
	OutputStream      string `yaml:"output_stream" mapstructure:"output_stream"`
	CandidateGeoData  string `yaml:"candidate_geo_data" mapstructure:"candidate_geo_data"`
	TransferStreamARN string `yaml:"transfer_stream_arn" mapstructure:"transfer_stream_arn"`
}

// SecretsConfig names the Secrets Manager entry holding the geocoder keys
// and the JSON key of the credential pools within it.
type SecretsConfig struct {
	Name string `yaml:"name" mapstructure:"name"`
	Key  string `yaml:"key" mapstructure:"key"`
}

// RulesetsConfig pins the consolidation ruleset versions.
type RulesetsConfig struct {
	GeocoderVersion string `yaml:"geocoder_version" mapstructure:"geocoder_version"`
	PartnerVersion  string `yaml:"partner_version" mapstructure:"partner_version"`
}

// LocatorConfig configures the location API client.
type LocatorConfig struct {
	APIID  string `yaml:"api_id" mapstructure:"api_id"`
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
	Region string `yaml:"region" mapstructure:"region"`
}

// RouterConfig configures candidate fan-out.
type RouterConfig struct {
	Providers []string `yaml:"providers" mapstructure:"providers"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GEOPIPELINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("environment", "dev")
	v.SetDefault("data.dir", "data")
	v.SetDefault("data.schema_dir", "schemas")
	v.SetDefault("secrets.key", "geocoders")
	v.SetDefault("rulesets.geocoder_version", "1")
	v.SetDefault("rulesets.partner_version", "1")
	v.SetDefault("locator.region", "eu-west-1")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the configuration carries everything the given
// worker needs before it starts.
func (c *Config) Validate(worker string) error {
	var missing []string
	need := func(value, key string) {
		if value == "" {
			missing = append(missing, key+" is required")
		}
	}

	switch worker {
	case "router":
		need(c.Stream.InputStream, "stream.input_stream")
		need(c.Queue.GeocoderQueue, "queue.geocoder_queue")
		need(c.Store.GeocodesTable, "store.geocodes_table")
	case "geocoder":
		need(c.Queue.GeocoderQueue, "queue.geocoder_queue")
		need(c.Store.GeocodesTable, "store.geocodes_table")
		need(c.Secrets.Name, "secrets.name")
	case "consolidator":
		need(c.Queue.InputQueue, "queue.input_queue")
		need(c.Store.GeocodesTable, "store.geocodes_table")
		need(c.Stream.OutputStream, "stream.output_stream")
	case "locator":
		need(c.Stream.OutputStream, "stream.output_stream")
		need(c.Store.TransferTable, "store.transfer_table")
		need(c.Locator.APIID, "locator.api_id")
		need(c.Locator.APIKey, "locator.api_key")
	case "streamer":
		need(c.Stream.TransferStreamARN, "stream.transfer_stream_arn")
		need(c.Stream.CandidateGeoData, "stream.candidate_geo_data")
	default:
		return eris.Errorf("config: unknown worker %q", worker)
	}

	if len(missing) > 0 {
		return eris.New("config: " + strings.Join(missing, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
