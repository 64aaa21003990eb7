package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables that override file and default settings.
const (
	EnvDaemon          = "CAMCONFORM_DAEMON"
	EnvChannel         = "CAMCONFORM_CHANNEL"
	EnvStill           = "CAMCONFORM_STILL"
	EnvVideo           = "CAMCONFORM_VIDEO"
	EnvPreview         = "CAMCONFORM_PREVIEW"
	EnvMotion          = "CAMCONFORM_MOTION"
	EnvReport          = "CAMCONFORM_REPORT"
	EnvHistoryDB       = "CAMCONFORM_HISTORY_DB"
	EnvPoll            = "CAMCONFORM_POLL"
	EnvSettle          = "CAMCONFORM_SETTLE"
	EnvArchiveEndpoint = "CAMCONFORM_ARCHIVE_ENDPOINT"
	EnvArchiveBucket   = "CAMCONFORM_ARCHIVE_BUCKET"
	EnvArchiveRegion   = "CAMCONFORM_ARCHIVE_REGION"
	EnvArchiveKey      = "CAMCONFORM_ARCHIVE_ACCESS_KEY"
	EnvArchiveSecret   = "CAMCONFORM_ARCHIVE_SECRET_KEY"
	EnvArchiveSSL      = "CAMCONFORM_ARCHIVE_USE_SSL"
)

// LoadDotenv loads KEY=VALUE pairs from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotenv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// ApplyEnv returns a copy of c with CAMCONFORM_* overrides applied.
func (c Config) ApplyEnv() (Config, error) {
	setString(&c.Daemon.Path, EnvDaemon)
	setString(&c.Paths.Channel, EnvChannel)
	setString(&c.Paths.Still, EnvStill)
	setString(&c.Paths.Video, EnvVideo)
	setString(&c.Paths.Preview, EnvPreview)
	setString(&c.Paths.Motion, EnvMotion)
	setString(&c.Report.Path, EnvReport)
	if v, ok := os.LookupEnv(EnvHistoryDB); ok {
		c.History.Path = strings.TrimSpace(v)
	}

	if err := setBool(&c.Waits.Poll, EnvPoll); err != nil {
		return c, err
	}
	if err := setDuration(&c.Waits.Settle, EnvSettle); err != nil {
		return c, err
	}

	setString(&c.Archive.Endpoint, EnvArchiveEndpoint)
	setString(&c.Archive.Bucket, EnvArchiveBucket)
	setString(&c.Archive.Region, EnvArchiveRegion)
	setString(&c.Archive.AccessKey, EnvArchiveKey)
	setString(&c.Archive.SecretKey, EnvArchiveSecret)
	if err := setBool(&c.Archive.UseSSL, EnvArchiveSSL); err != nil {
		return c, err
	}

	return c, c.Validate()
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
