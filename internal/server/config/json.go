package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dbelyaev/authcore/internal/flagx"
	"github.com/dbelyaev/authcore/internal/timex"
)

// JsonConfig mirrors Config for JSON unmarshalling, using timex.Duration so
// interval fields accept both "5m" strings and integer nanoseconds. Only
// fields present in the file override the defaults.
type JsonConfig struct {
	APIAddr     *string `json:"api_addr"`
	DatabaseDSN *string `json:"database_dsn"`
	RedisAddr   *string `json:"redis_addr"`

	SecretKey                    *string         `json:"secret_key"`
	TokenIssuer                  *string         `json:"token_issuer"`
	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`

	OtpCodeLength                *int            `json:"otp_code_length"`
	OtpValidityDuration          *timex.Duration `json:"otp_validity_duration"`
	OtpMaxAttempts               *int            `json:"otp_max_attempts"`
	OtpResendWindow              *timex.Duration `json:"otp_resend_window"`
	PhonePendingValidityDuration *timex.Duration `json:"phone_pending_validity_duration"`

	ProviderTimeout *timex.Duration `json:"provider_timeout"`
	DevOtpCode      *string         `json:"dev_otp_code"`
}

// parseJson loads configuration values from the JSON file named by the
// -c/-config flags, if any, into the provided Config.
func parseJson(config *Config) error {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return nil
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		return err
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return err
	}

	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setDuration := func(dst *time.Duration, src *timex.Duration) {
		if src != nil {
			*dst = src.Duration
		}
	}

	setString(&config.APIAddr, c.APIAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.TokenIssuer, c.TokenIssuer)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	setInt(&config.OtpCodeLength, c.OtpCodeLength)
	setDuration(&config.OtpValidityDuration, c.OtpValidityDuration)
	setInt(&config.OtpMaxAttempts, c.OtpMaxAttempts)
	setDuration(&config.OtpResendWindow, c.OtpResendWindow)
	setDuration(&config.PhonePendingValidityDuration, c.PhonePendingValidityDuration)
	setDuration(&config.ProviderTimeout, c.ProviderTimeout)
	setString(&config.DevOtpCode, c.DevOtpCode)

	return nil
}
