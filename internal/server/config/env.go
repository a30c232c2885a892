package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/dmitrijs2005/timecapsule/internal/flagx"
	"github.com/joho/godotenv"
)

const defaultEnvFile = ".env"

// parseEnv overlays values from process environment variables. The file
// given with -env (or ./.env when present) is loaded first; variables that
// are already set in the process win over the file.
//
// Recognised variables:
//
//	HTTP_ADDR, DATABASE_URL, SECRET_KEY, ACCESS_TOKEN_EXPIRE_MINUTES,
//	REFRESH_TOKEN_EXPIRE_MINUTES, LOG_LEVEL, STORAGE_BACKEND, UPLOAD_DIR,
//	S3_ROOT_USER, S3_ROOT_PASSWORD, S3_BUCKET, S3_REGION, S3_BASE_ENDPOINT,
//	TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, TWILIO_FROM_NUMBER, TWILIO_BASE_URL,
//	DEV_MODE, SMS_PER_SECOND
//
// A malformed numeric or boolean value panics, like a malformed JSON file.
func parseEnv(config *Config) {
	envFile := flagx.EnvFileFlags()
	if envFile == "" {
		if _, err := os.Stat(defaultEnvFile); err == nil {
			envFile = defaultEnvFile
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			panic(err)
		}
	}

	envString("HTTP_ADDR", &config.HTTPAddr)
	envString("DATABASE_URL", &config.DatabaseDSN)
	envString("SECRET_KEY", &config.SecretKey)
	envMinutes("ACCESS_TOKEN_EXPIRE_MINUTES", &config.AccessTokenValidityDuration)
	envMinutes("REFRESH_TOKEN_EXPIRE_MINUTES", &config.RefreshTokenValidityDuration)
	envString("LOG_LEVEL", &config.LogLevel)
	envString("STORAGE_BACKEND", &config.StorageBackend)
	envString("UPLOAD_DIR", &config.UploadDir)
	envString("S3_ROOT_USER", &config.S3RootUser)
	envString("S3_ROOT_PASSWORD", &config.S3RootPassword)
	envString("S3_BUCKET", &config.S3Bucket)
	envString("S3_REGION", &config.S3Region)
	envString("S3_BASE_ENDPOINT", &config.S3BaseEndpoint)
	envString("TWILIO_ACCOUNT_SID", &config.TwilioAccountSID)
	envString("TWILIO_AUTH_TOKEN", &config.TwilioAuthToken)
	envString("TWILIO_FROM_NUMBER", &config.TwilioFromNumber)
	envString("TWILIO_BASE_URL", &config.TwilioBaseURL)
	envBool("DEV_MODE", &config.DevMode)
	envInt("SMS_PER_SECOND", &config.SMSPerSecond)
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envMinutes(key string, dst *time.Duration) {
	var n int
	if envInt(key, &n) {
		*dst = time.Duration(n) * time.Minute
	}
}

func envInt(key string, dst *int) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		panic(err)
	}
	*dst = n
	return true
}

func envBool(key string, dst *bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		panic(err)
	}
	*dst = b
}
