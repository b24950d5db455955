// Package ohlcvconfig loads the YAML pairs configuration, applies
// environment-variable fallbacks, and validates each pair's timeframe
// hierarchy before the ingestion process is allowed to start.
package ohlcvconfig

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"upbit_ingestor/internal/ohlcv/domain"
	"upbit_ingestor/internal/ohlcv/timeframe"
	"upbit_ingestor/pkg/apperrors"
)

const (
	envConfigPath      = "OHLCV_CONFIG_PATH"
	envDefaultTargets  = "DEFAULT_TARGET_TIMEFRAMES"
	envCollectStart    = "OHLCV_COLLECT_START"
	envRetryLimit      = "OHLCV_RETRY_LIMIT"
	envOffsetSeconds   = "OHLCV_EXECUTION_OFFSET_SECONDS"
	envUpbitBaseURL    = "UPBIT_API_BASE_URL"

	defaultConfigPath     = "config/ohlcv_settings.yml"
	defaultTargetsFallback = "60m,240m,1d"
	defaultRetryLimit     = 1
	defaultOffsetSeconds  = 3
	defaultUpbitBaseURL   = "https://api.upbit.com/v1"
)

// pairFile is the raw YAML shape: pairs: [{symbol, base_timeframe, target_timeframes}].
type pairFile struct {
	Pairs []rawPair `mapstructure:"pairs"`
}

type rawPair struct {
	Symbol            string   `mapstructure:"symbol"`
	BaseTimeframe     string   `mapstructure:"base_timeframe"`
	TargetTimeframes  []string `mapstructure:"target_timeframes"`
}

// Settings holds the fully resolved, validated configuration.
type Settings struct {
	Pairs           []domain.SymbolTimeframeConfig
	RetryLimit      int
	OffsetSeconds   int
	UpbitBaseURL    string
}

// Load reads the pairs config from OHLCV_CONFIG_PATH (or its default),
// applies env-var fallbacks, and validates every pair's timeframe
// hierarchy. Any failure here is a ConfigurationError, fatal at startup.
func Load() (*Settings, error) {
	collectStart := os.Getenv(envCollectStart)
	if collectStart == "" {
		return nil, apperrors.NewConfigurationError(envCollectStart+" is required", nil)
	}

	path := os.Getenv(envConfigPath)
	if path == "" {
		path = defaultConfigPath
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, apperrors.NewConfigurationError("failed to read pairs config "+path, err)
	}

	var file pairFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, apperrors.NewConfigurationError("failed to unmarshal pairs config", err)
	}

	fallbackTargets := os.Getenv(envDefaultTargets)
	if fallbackTargets == "" {
		fallbackTargets = defaultTargetsFallback
	}

	pairs := make([]domain.SymbolTimeframeConfig, 0, len(file.Pairs))
	for _, raw := range file.Pairs {
		cfg, err := resolvePair(raw, fallbackTargets, collectStart)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, cfg)
	}
	if len(pairs) == 0 {
		return nil, apperrors.NewConfigurationError("pairs config has no entries", nil)
	}

	retryLimit := intEnvOrDefault(envRetryLimit, defaultRetryLimit)
	offsetSeconds := intEnvOrDefault(envOffsetSeconds, defaultOffsetSeconds)

	baseURL := os.Getenv(envUpbitBaseURL)
	if baseURL == "" {
		baseURL = defaultUpbitBaseURL
	}

	return &Settings{
		Pairs:         pairs,
		RetryLimit:    retryLimit,
		OffsetSeconds: offsetSeconds,
		UpbitBaseURL:  baseURL,
	}, nil
}

// resolvePair parses one pair's timeframes, defaults its targets from
// fallbackTargets when absent, inserts the base into the target set if
// missing, and validates the resulting hierarchy.
func resolvePair(raw rawPair, fallbackTargets, collectStart string) (domain.SymbolTimeframeConfig, error) {
	if raw.Symbol == "" {
		return domain.SymbolTimeframeConfig{}, apperrors.NewConfigurationError("pair is missing symbol", nil)
	}

	base, err := timeframe.Parse(raw.BaseTimeframe)
	if err != nil {
		return domain.SymbolTimeframeConfig{}, errors.Wrapf(err, "pair %q has invalid base_timeframe", raw.Symbol)
	}

	targetLabels := raw.TargetTimeframes
	if len(targetLabels) == 0 {
		targetLabels = strings.Split(fallbackTargets, ",")
	}

	targets := make([]timeframe.Spec, 0, len(targetLabels)+1)
	hasBase := false
	for _, label := range targetLabels {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		spec, err := timeframe.Parse(label)
		if err != nil {
			return domain.SymbolTimeframeConfig{}, errors.Wrapf(err, "pair %q has invalid target timeframe %q", raw.Symbol, label)
		}
		if spec.Raw == base.Raw {
			hasBase = true
		}
		targets = append(targets, spec)
	}
	if !hasBase {
		targets = append([]timeframe.Spec{base}, targets...)
	}

	if err := domain.ValidateHierarchy(base, targets); err != nil {
		return domain.SymbolTimeframeConfig{}, errors.Wrapf(err, "pair %q", raw.Symbol)
	}

	return domain.SymbolTimeframeConfig{
		Symbol:       raw.Symbol,
		Base:         base,
		Targets:      targets,
		CollectStart: collectStart,
	}, nil
}

func intEnvOrDefault(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
