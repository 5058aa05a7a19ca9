package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/evidencekeeper/internal/flagx"
)

var serverFlags = []string{
	"-a", "-m", "-k", "-d", "-o", "-u", "-p", "-b", "-g", "-e",
	"-r", "-w", "-q", "-n", "-x", "-y", "-t", "-s", "-l", "-v",
}

// parseFlags populates Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   gRPC bind address (e.g., ":50051")
//	-m string   metrics bind address
//	-k string   storage backend: postgres | memory
//	-d string   PostgreSQL DSN
//	-o string   blob backend: s3 | minio | memory
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-r string   Redis address
//	-w string   Redis password
//	-q string   queue name
//	-n int      queue partitions
//	-x int      max delivery attempts
//	-y int      retry base delay, milliseconds
//	-t int      part timeout, seconds
//	-s int      request timeout, seconds
//	-l int      download URL expiry, minutes
//	-v string   log level
//
// os.Args is filtered with flagx.FilterArgs first, so the -c config flag
// and unknown flags are ignored here.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], serverFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.MetricsAddr, "m", config.MetricsAddr, "address and port to serve metrics")
	fs.StringVar(&config.StorageBackend, "k", config.StorageBackend, "catalog storage backend")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.BlobBackend, "o", config.BlobBackend, "blob storage backend")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "Redis address")
	fs.StringVar(&config.RedisPassword, "w", config.RedisPassword, "Redis password")
	fs.StringVar(&config.QueueName, "q", config.QueueName, "queue name")
	fs.IntVar(&config.QueuePartitions, "n", config.QueuePartitions, "queue partitions")
	fs.IntVar(&config.MaxDeliveryAttempts, "x", config.MaxDeliveryAttempts, "max delivery attempts")

	retryBaseDelay := fs.Int("y", int(config.RetryBaseDelay.Milliseconds()), "retry base delay (in milliseconds)")
	partTimeout := fs.Int("t", int(config.PartTimeout.Seconds()), "part timeout (in seconds)")
	requestTimeout := fs.Int("s", int(config.RequestTimeout.Seconds()), "request timeout (in seconds)")
	downloadURLExpiry := fs.Int("l", int(config.DownloadURLExpiry.Minutes()), "download URL expiry (in minutes)")

	fs.StringVar(&config.LogLevel, "v", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.RetryBaseDelay = time.Duration(*retryBaseDelay) * time.Millisecond
	config.PartTimeout = time.Duration(*partTimeout) * time.Second
	config.RequestTimeout = time.Duration(*requestTimeout) * time.Second
	config.DownloadURLExpiry = time.Duration(*downloadURLExpiry) * time.Minute
}
