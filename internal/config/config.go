package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	SourceDynamoDB = "dynamodb"
	SourceSQLite   = "sqlite"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	// StaticDir is the absolute path to the directory served at /static/.
	// Set via STATIC_DIR (relative paths are resolved against the process working directory at startup).
	StaticDir string

	// SourceDriver selects the row source: "dynamodb" or "sqlite".
	SourceDriver string
	FetchTimeout time.Duration

	AWSRegion               string
	DynamoDBTable           string
	DynamoDBEndpoint        string
	DynamoDBAccessKeyID     string
	DynamoDBSecretAccessKey string

	// DisplayLocation is used for clock labels and the Today/ThisMonth windows.
	DisplayLocation *time.Location
	VariantsFile    string

	SQLiteDriver          string
	SQLiteDSN             string
	SQLitePath            string
	SQLiteMaxOpenConns    int
	SQLiteMaxIdleConns    int
	SQLiteConnMaxLifetime time.Duration

	// MQTTBroker empty disables telemetry ingest.
	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string
	MQTTTopic    string
}

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	httpAddr := strings.TrimSpace(os.Getenv("HTTP_ADDR"))
	if httpAddr == "" {
		httpAddr = ":8080"
	}

	staticDir := strings.TrimSpace(os.Getenv("STATIC_DIR"))
	if staticDir == "" {
		staticDir = "static"
	}
	staticDir, err = filepath.Abs(staticDir)
	if err != nil {
		return Config{}, fmt.Errorf("STATIC_DIR %q: %w", staticDir, err)
	}

	sourceDriver := strings.ToLower(strings.TrimSpace(os.Getenv("SOURCE_DRIVER")))
	if sourceDriver == "" {
		sourceDriver = SourceDynamoDB
	}
	switch sourceDriver {
	case SourceDynamoDB, SourceSQLite:
	default:
		return Config{}, fmt.Errorf("invalid SOURCE_DRIVER %q (allowed: dynamodb, sqlite)", sourceDriver)
	}

	fetchTimeout, err := durationFromEnv("FETCH_TIMEOUT", "30s")
	if err != nil {
		return Config{}, err
	}
	if fetchTimeout <= 0 {
		return Config{}, fmt.Errorf("FETCH_TIMEOUT must be positive, got %v", fetchTimeout)
	}

	awsRegion := strings.TrimSpace(os.Getenv("AWS_REGION"))
	if awsRegion == "" {
		awsRegion = "us-east-1"
	}
	table := strings.TrimSpace(os.Getenv("DYNAMODB_TABLE"))
	if table == "" {
		table = "DHT"
	}
	accessKeyID := strings.TrimSpace(os.Getenv("DYNAMODB_ACCESS_KEY_ID"))
	secretAccessKey := strings.TrimSpace(os.Getenv("DYNAMODB_SECRET_ACCESS_KEY"))
	if (accessKeyID == "") != (secretAccessKey == "") {
		return Config{}, fmt.Errorf("DYNAMODB_ACCESS_KEY_ID and DYNAMODB_SECRET_ACCESS_KEY must be set together")
	}

	loc := time.Local
	if tz := strings.TrimSpace(os.Getenv("DISPLAY_TZ")); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DISPLAY_TZ %q: %w", tz, err)
		}
	}

	driver := strings.TrimSpace(os.Getenv("DB_DRIVER"))
	if driver == "" {
		driver = "sqlite3"
	}
	dsn := strings.TrimSpace(os.Getenv("DB_DSN"))
	path := strings.TrimSpace(os.Getenv("SQLITE_PATH"))
	if path == "" {
		path = "../dev/sqlite/app.db"
	}

	maxOpenConns, err := intFromEnv("DB_MAX_OPEN_CONNS", "1")
	if err != nil {
		return Config{}, err
	}
	maxIdleConns, err := intFromEnv("DB_MAX_IDLE_CONNS", "1")
	if err != nil {
		return Config{}, err
	}
	connMaxLifetime, err := durationFromEnv("DB_CONN_MAX_LIFETIME", "0s")
	if err != nil {
		return Config{}, err
	}

	mqttPort, err := intFromEnv("MQTT_PORT", "1883")
	if err != nil {
		return Config{}, err
	}
	mqttClientID := strings.TrimSpace(os.Getenv("MQTT_CLIENT_ID"))
	if mqttClientID == "" {
		mqttClientID = "bsf-dashboard"
	}
	mqttTopic := strings.TrimSpace(os.Getenv("MQTT_TOPIC"))
	if mqttTopic == "" {
		mqttTopic = "sensors/+/dht"
	}

	return Config{
		AppEnv:                  appEnv,
		LogLevel:                level,
		HTTPAddr:                httpAddr,
		StaticDir:               staticDir,
		SourceDriver:            sourceDriver,
		FetchTimeout:            fetchTimeout,
		AWSRegion:               awsRegion,
		DynamoDBTable:           table,
		DynamoDBEndpoint:        strings.TrimSpace(os.Getenv("DYNAMODB_ENDPOINT")),
		DynamoDBAccessKeyID:     accessKeyID,
		DynamoDBSecretAccessKey: secretAccessKey,
		DisplayLocation:         loc,
		VariantsFile:            strings.TrimSpace(os.Getenv("VARIANTS_FILE")),
		SQLiteDriver:            driver,
		SQLiteDSN:               dsn,
		SQLitePath:              path,
		SQLiteMaxOpenConns:      maxOpenConns,
		SQLiteMaxIdleConns:      maxIdleConns,
		SQLiteConnMaxLifetime:   connMaxLifetime,
		MQTTBroker:              strings.TrimSpace(os.Getenv("MQTT_BROKER")),
		MQTTPort:                mqttPort,
		MQTTClientID:            mqttClientID,
		MQTTTopic:               mqttTopic,
	}, nil
}

func intFromEnv(key, def string) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		s = def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return n, nil
}

func durationFromEnv(key, def string) (time.Duration, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		s = def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return d, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
