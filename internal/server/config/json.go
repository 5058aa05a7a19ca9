package config

import (
	"os"
	"time"

	"github.com/dmitrijs2005/evidencekeeper/internal/flagx"
	"github.com/dmitrijs2005/evidencekeeper/internal/timex"
	"github.com/goccy/go-json"
)

// JsonConfig is the JSON file form of Config. Durations accept strings such
// as "15s" or integer nanoseconds.
type JsonConfig struct {
	EndpointAddrGRPC    string         `json:"endpoint_addr_grpc"`
	MetricsAddr         string         `json:"metrics_addr"`
	StorageBackend      string         `json:"storage_backend"`
	DatabaseDSN         string         `json:"database_dsn"`
	BlobBackend         string         `json:"blob_backend"`
	S3RootUser          string         `json:"s3_root_user"`
	S3RootPassword      string         `json:"s3_root_password"`
	S3Bucket            string         `json:"s3_bucket"`
	S3Region            string         `json:"s3_region"`
	S3BaseEndpoint      string         `json:"s3_base_endpoint"`
	RedisAddr           string         `json:"redis_addr"`
	RedisPassword       string         `json:"redis_password"`
	QueueName           string         `json:"queue_name"`
	QueuePartitions     int            `json:"queue_partitions"`
	MaxDeliveryAttempts int            `json:"max_delivery_attempts"`
	RetryBaseDelay      timex.Duration `json:"retry_base_delay"`
	PartTimeout         timex.Duration `json:"part_timeout"`
	RequestTimeout      timex.Duration `json:"request_timeout"`
	DownloadURLExpiry   timex.Duration `json:"download_url_expiry"`
	HoldCacheTTL        timex.Duration `json:"hold_cache_ttl"`
	LogLevel            string         `json:"log_level"`
}

// parseJson overlays the JSON file named by -c or -config onto config.
// Keys missing from the file keep their current values. An unreadable or
// malformed file panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFileFlag()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := toJson(config)
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}
	fromJson(c, config)
}

func toJson(config *Config) *JsonConfig {
	return &JsonConfig{
		EndpointAddrGRPC:    config.EndpointAddrGRPC,
		MetricsAddr:         config.MetricsAddr,
		StorageBackend:      config.StorageBackend,
		DatabaseDSN:         config.DatabaseDSN,
		BlobBackend:         config.BlobBackend,
		S3RootUser:          config.S3RootUser,
		S3RootPassword:      config.S3RootPassword,
		S3Bucket:            config.S3Bucket,
		S3Region:            config.S3Region,
		S3BaseEndpoint:      config.S3BaseEndpoint,
		RedisAddr:           config.RedisAddr,
		RedisPassword:       config.RedisPassword,
		QueueName:           config.QueueName,
		QueuePartitions:     config.QueuePartitions,
		MaxDeliveryAttempts: config.MaxDeliveryAttempts,
		RetryBaseDelay:      timex.Duration{Duration: config.RetryBaseDelay},
		PartTimeout:         timex.Duration{Duration: config.PartTimeout},
		RequestTimeout:      timex.Duration{Duration: config.RequestTimeout},
		DownloadURLExpiry:   timex.Duration{Duration: config.DownloadURLExpiry},
		HoldCacheTTL:        timex.Duration{Duration: config.HoldCacheTTL},
		LogLevel:            config.LogLevel,
	}
}

func fromJson(c *JsonConfig, config *Config) {
	config.EndpointAddrGRPC = c.EndpointAddrGRPC
	config.MetricsAddr = c.MetricsAddr
	config.StorageBackend = c.StorageBackend
	config.DatabaseDSN = c.DatabaseDSN
	config.BlobBackend = c.BlobBackend
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
	config.RedisAddr = c.RedisAddr
	config.RedisPassword = c.RedisPassword
	config.QueueName = c.QueueName
	config.QueuePartitions = c.QueuePartitions
	config.MaxDeliveryAttempts = c.MaxDeliveryAttempts
	config.RetryBaseDelay = time.Duration(c.RetryBaseDelay.Duration)
	config.PartTimeout = time.Duration(c.PartTimeout.Duration)
	config.RequestTimeout = time.Duration(c.RequestTimeout.Duration)
	config.DownloadURLExpiry = time.Duration(c.DownloadURLExpiry.Duration)
	config.HoldCacheTTL = time.Duration(c.HoldCacheTTL.Duration)
	config.LogLevel = c.LogLevel
}
