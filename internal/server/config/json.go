package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/timecapsule/internal/flagx"
	"github.com/dmitrijs2005/timecapsule/internal/timex"
)

// JsonConfig is the on-disk JSON shape of Config. Durations use
// timex.Duration so both "15m" and integer nanoseconds are accepted.
// Pointer fields distinguish "absent" from "false"/"0".
type JsonConfig struct {
	HTTPAddr                     string         `json:"http_addr"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKey                    string         `json:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	ShutdownTimeout              timex.Duration `json:"shutdown_timeout"`
	LogLevel                     string         `json:"log_level"`
	StorageBackend               string         `json:"storage_backend"`
	UploadDir                    string         `json:"upload_dir"`
	S3RootUser                   string         `json:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket"`
	S3Region                     string         `json:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint"`
	TwilioAccountSID             string         `json:"twilio_account_sid"`
	TwilioAuthToken              string         `json:"twilio_auth_token"`
	TwilioFromNumber             string         `json:"twilio_from_number"`
	TwilioBaseURL                string         `json:"twilio_base_url"`
	DevMode                      *bool          `json:"dev_mode"`
	SMSPerSecond                 *int           `json:"sms_per_second"`
}

// parseJson loads the file named by -c / -config (if any) and overlays every
// field present in it onto config. Unreadable or invalid JSON panics.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	if c.AccessTokenValidityDuration.Duration > 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration.Duration > 0 {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.ShutdownTimeout.Duration > 0 {
		config.ShutdownTimeout = c.ShutdownTimeout.Duration
	}
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.StorageBackend, c.StorageBackend)
	setString(&config.UploadDir, c.UploadDir)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.TwilioAccountSID, c.TwilioAccountSID)
	setString(&config.TwilioAuthToken, c.TwilioAuthToken)
	setString(&config.TwilioFromNumber, c.TwilioFromNumber)
	setString(&config.TwilioBaseURL, c.TwilioBaseURL)
	if c.DevMode != nil {
		config.DevMode = *c.DevMode
	}
	if c.SMSPerSecond != nil {
		config.SMSPerSecond = *c.SMSPerSecond
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
