package main

var DefConfig Config

type Config struct {
	Host      string `json:"host"`
	PprofHost string `json:"pprof_host" yaml:"pprof_host" mapstructure:"pprof_host"`
	DB        string `json:"db"`
	DBLog     bool   `json:"dblog"`

	Redis       RedisConfig       `json:"redis" yaml:"redis" mapstructure:"redis"`
	Client      ClientConfig      `json:"client" yaml:"client" mapstructure:"client"`
	Distributor DistributorConfig `json:"distributor" yaml:"distributor" mapstructure:"distributor"`
}

type RedisConfig struct {
	Host    string `json:"host" yaml:"host" mapstructure:"host"`
	Channel string `json:"channel" yaml:"channel" mapstructure:"channel"`
}

// DistributorConfig decides whether this instance runs the distribution
// trigger. Exactly one instance per deployment should enable it, otherwise
// every instance re-runs the pass and recipients get duplicate notifications.
type DistributorConfig struct {
	Enable bool `json:"enable" yaml:"enable" mapstructure:"enable"`
}

type ClientConfig struct {
	ReadMessageSizeLimit int64 `json:"read_message_size_limit" yaml:"read_message_size_limit" mapstructure:"read_message_size_limit"`
	Compression          bool  `json:"compression" yaml:"compression" mapstructure:"compression"`
	CompressionLevel     int   `json:"compression_level" yaml:"compression_level" mapstructure:"compression_level"`
	ReadBufferSize       int   `json:"read_buffer_size" yaml:"read_buffer_size" mapstructure:"read_buffer_size"`
	WriteBufferSize      int   `json:"write_buffer_size" yaml:"write_buffer_size" mapstructure:"write_buffer_size"`
	SendBufferSize       int   `json:"send_buffer_size" yaml:"send_buffer_size" mapstructure:"send_buffer_size"`
}
