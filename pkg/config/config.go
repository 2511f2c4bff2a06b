package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr      string
	MySQLDSN      string
	RedisAddr     string
	MQNameServer  string
	GatewayURL    string
	GatewayAPIKey string
	GatewaySecret string
	MailerURL     string

	// TokenExpiry is the hosted-checkout token validity window. Confirm
	// against the gateway contract before shortening it.
	TokenExpiry time.Duration

	RunInterval time.Duration
}

func Load() *Config {
	return &Config{
		HTTPAddr:      getEnv("HTTP_ADDR", ":8082"),
		MySQLDSN:      getEnv("MYSQL_ADDR", "root:root_password@tcp(127.0.0.1:3306)/storefront?parseTime=true"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		MQNameServer:  getEnv("MQ_NAMESERVER", "localhost:9876"),
		GatewayURL:    getEnv("GATEWAY_BASE_URL", "https://sandbox-api.checkout.example.com"),
		GatewayAPIKey: getEnv("GATEWAY_API_KEY", ""),
		GatewaySecret: getEnv("GATEWAY_SECRET_KEY", ""),
		MailerURL:     getEnv("MAILER_BASE_URL", "http://notification-service:8090"),
		TokenExpiry:   time.Duration(getEnvInt("TOKEN_EXPIRY_MINUTES", 30)) * time.Minute,
		RunInterval:   time.Duration(getEnvInt("AUTOMATION_INTERVAL_SECONDS", 60)) * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
