package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	RPCURL                     string
	RPCTimeout                 time.Duration
	RPCMaxInFlight             int64
	ParticipantRegistryAddress string
	AssetRegistryAddress       string
	StartBlock                 uint64
	LogFetchChunkSize          uint64
	PipelineWorkers            int
	ReportDSN                  string
	RedisAddr                  string
	ReportCacheTTL             time.Duration
	HTTPAddr                   string
	OtelEndpoint               string
	KafkaBrokers               []string
	KafkaTopicPrefix           string
	LogLevel                   string
	LogFormat                  string
	LogFile                    string
	LogMaxSizeMB               int
	LogMaxBackups              int
}

type EnvSource interface {
	Lookup(key string) (string, bool)
}

type EnvMap map[string]string

func (e EnvMap) Lookup(key string) (string, bool) {
	value, ok := e[key]
	return value, ok
}

func FromEnviron() EnvSource {
	env := make(EnvMap)
	for _, entry := range os.Environ() {
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		env[parts[0]] = parts[1]
	}
	return env
}

func Load(source EnvSource) (Config, error) {
	if source == nil {
		return Config{}, errors.New("env source is required")
	}

	rpcURL, ok := source.Lookup("RPC_URL")
	if !ok || strings.TrimSpace(rpcURL) == "" {
		return Config{}, errors.New("RPC_URL is required")
	}
	participantRegistry, ok := source.Lookup("PARTICIPANT_REGISTRY_ADDRESS")
	if !ok || strings.TrimSpace(participantRegistry) == "" {
		return Config{}, errors.New("PARTICIPANT_REGISTRY_ADDRESS is required")
	}
	assetRegistry, ok := source.Lookup("ASSET_REGISTRY_ADDRESS")
	if !ok || strings.TrimSpace(assetRegistry) == "" {
		return Config{}, errors.New("ASSET_REGISTRY_ADDRESS is required")
	}

	startBlock, err := parseUintEnv(source, "START_BLOCK", 0)
	if err != nil {
		return Config{}, err
	}
	chunkSize, err := parseUintEnv(source, "LOG_FETCH_CHUNK_SIZE", 0)
	if err != nil {
		return Config{}, err
	}
	workers, err := parseUintEnv(source, "PIPELINE_WORKERS", 16)
	if err != nil {
		return Config{}, err
	}
	maxInFlight, err := parseUintEnv(source, "RPC_MAX_IN_FLIGHT", 32)
	if err != nil {
		return Config{}, err
	}
	if workers == 0 || maxInFlight == 0 {
		return Config{}, errors.New("PIPELINE_WORKERS and RPC_MAX_IN_FLIGHT must be positive")
	}
	rpcTimeout, err := parseDurationEnv(source, "RPC_TIMEOUT", 10*time.Second)
	if err != nil {
		return Config{}, err
	}
	cacheTTL, err := parseDurationEnv(source, "REPORT_CACHE_TTL", time.Minute)
	if err != nil {
		return Config{}, err
	}

	reportDSN, ok := source.Lookup("REPORT_DSN")
	if !ok || strings.TrimSpace(reportDSN) == "" {
		reportDSN = "sqlite://data/reports.db"
	}

	httpAddr := ":8080"
	if raw, ok := source.Lookup("HTTP_ADDR"); ok && raw != "" {
		httpAddr = raw
	}

	redisAddr, _ := source.Lookup("REDIS_ADDR")
	redisAddr = strings.TrimSpace(redisAddr)

	otelEndpoint, _ := source.Lookup("OTEL_EXPORTER_OTLP_ENDPOINT")
	otelEndpoint = strings.TrimSpace(otelEndpoint)

	kafkaBrokers, err := parseList(source, "KAFKA_BROKERS", "localhost:9092")
	if err != nil {
		return Config{}, err
	}
	kafkaTopicPrefix, ok := source.Lookup("KAFKA_TOPIC_PREFIX")
	if !ok || kafkaTopicPrefix == "" {
		kafkaTopicPrefix = "provenance"
	}

	logLevel, _ := source.Lookup("LOG_LEVEL")
	logFormat, _ := source.Lookup("LOG_FORMAT")
	logFile, _ := source.Lookup("LOG_FILE")
	logMaxSize, err := parseUintEnv(source, "LOG_MAX_SIZE_MB", 100)
	if err != nil {
		return Config{}, err
	}
	logMaxBackups, err := parseUintEnv(source, "LOG_MAX_BACKUPS", 3)
	if err != nil {
		return Config{}, err
	}

	return Config{
		RPCURL:                     strings.TrimSpace(rpcURL),
		RPCTimeout:                 rpcTimeout,
		RPCMaxInFlight:             int64(maxInFlight),
		ParticipantRegistryAddress: strings.TrimSpace(participantRegistry),
		AssetRegistryAddress:       strings.TrimSpace(assetRegistry),
		StartBlock:                 startBlock,
		LogFetchChunkSize:          chunkSize,
		PipelineWorkers:            int(workers),
		ReportDSN:                  reportDSN,
		RedisAddr:                  redisAddr,
		ReportCacheTTL:             cacheTTL,
		HTTPAddr:                   httpAddr,
		OtelEndpoint:               otelEndpoint,
		KafkaBrokers:               kafkaBrokers,
		KafkaTopicPrefix:           kafkaTopicPrefix,
		LogLevel:                   logLevel,
		LogFormat:                  logFormat,
		LogFile:                    logFile,
		LogMaxSizeMB:               int(logMaxSize),
		LogMaxBackups:              int(logMaxBackups),
	}, nil
}

func parseUintEnv(source EnvSource, key string, defaultValue uint64) (uint64, error) {
	raw, ok := source.Lookup(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func parseDurationEnv(source EnvSource, key string, defaultValue time.Duration) (time.Duration, error) {
	raw, ok := source.Lookup(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func parseList(source EnvSource, key string, defaultValue string) ([]string, error) {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		raw = defaultValue
	}
	items := strings.Split(raw, ",")
	var values []string
	for _, item := range items {
		value := strings.TrimSpace(item)
		if value == "" {
			continue
		}
		values = append(values, value)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s is required", key)
	}
	return values, nil
}
