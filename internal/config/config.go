// Package config centralizes the runtime configuration surface described
// in spec §6.5: scheduler cadence and parallelism, the alert rate-limit
// window, compiler limits, and validator strictness.
//
// The teacher reads ad hoc os.Getenv calls with inline defaults
// (internal/config/config.go's getConnectionString). We generalize that
// into github.com/spf13/viper with explicit env bindings and defaults, the
// way the pack's other financial-services example binds server.port through
// viper (penny-vault-pvbt/cmd/serve.go's viper.BindEnv/viper.GetString).
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Keys are the canonical viper keys for every recognized option in spec §6.5.
const (
	KeySchedulerCadenceSeconds    = "scheduler.cadence_seconds"
	KeySchedulerRateLimitWindow   = "scheduler.rate_limit_window"
	KeySchedulerMaxParallelGroups = "scheduler.max_parallel_groups"
	KeyCompilerDefaultLimit       = "compiler.default_limit"
	KeyCompilerMaxNestingDepth    = "compiler.max_nesting_depth"
	KeyValidatorStrictMode        = "validator.strict_mode"
	KeyDataStoreConnString        = "datastore.conn_string"
	KeyDataStoreType              = "datastore.type"
	KeyDataStoreMockPath          = "datastore.mock_data_path"
	KeyFetchTimeoutSeconds        = "evaluator.fetch_timeout_seconds"
	KeyHTTPPort                   = "http.port"
)

// Load installs every default and env-var binding spec §6.5 names, then
// returns a ready-to-read *viper.Viper. Callers may call Load multiple times
// in tests; each call returns an independent instance.
func Load() *viper.Viper {
	v := viper.New()

	v.SetDefault(KeySchedulerCadenceSeconds, 60)
	v.SetDefault(KeySchedulerRateLimitWindow, "24h")
	v.SetDefault(KeySchedulerMaxParallelGroups, 32)
	v.SetDefault(KeyCompilerDefaultLimit, 100)
	v.SetDefault(KeyCompilerMaxNestingDepth, 5)
	v.SetDefault(KeyValidatorStrictMode, true)
	v.SetDefault(KeyDataStoreType, "postgresql")
	v.SetDefault(KeyDataStoreConnString, "postgres://localhost:5432/screenforge?sslmode=disable")
	v.SetDefault(KeyDataStoreMockPath, "data/mocks")
	v.SetDefault(KeyFetchTimeoutSeconds, 10)
	v.SetDefault(KeyHTTPPort, 8080)

	_ = v.BindEnv(KeySchedulerCadenceSeconds, "SCREENER_SCHEDULER_CADENCE_SECONDS")
	_ = v.BindEnv(KeySchedulerRateLimitWindow, "SCREENER_SCHEDULER_RATE_LIMIT_WINDOW")
	_ = v.BindEnv(KeySchedulerMaxParallelGroups, "SCREENER_SCHEDULER_MAX_PARALLEL_GROUPS")
	_ = v.BindEnv(KeyCompilerDefaultLimit, "SCREENER_COMPILER_DEFAULT_LIMIT")
	_ = v.BindEnv(KeyCompilerMaxNestingDepth, "SCREENER_COMPILER_MAX_NESTING_DEPTH")
	_ = v.BindEnv(KeyValidatorStrictMode, "SCREENER_VALIDATOR_STRICT_MODE")
	_ = v.BindEnv(KeyDataStoreType, "SCREENER_DATASTORE_TYPE")
	_ = v.BindEnv(KeyDataStoreConnString, "DB_CONN_STRING")
	_ = v.BindEnv(KeyDataStoreMockPath, "SCREENER_MOCK_DATA_PATH")
	_ = v.BindEnv(KeyFetchTimeoutSeconds, "SCREENER_FETCH_TIMEOUT_SECONDS")
	_ = v.BindEnv(KeyHTTPPort, "PORT")

	return v
}

// Scheduler is the subset of config the Alert Scheduler reads (spec §4.6, §5).
type Scheduler struct {
	Cadence          time.Duration
	RateLimitWindow  time.Duration
	MaxParallelGroup int
}

// SchedulerFrom extracts the Scheduler config bundle from a loaded viper.
func SchedulerFrom(v *viper.Viper) Scheduler {
	return Scheduler{
		Cadence:          time.Duration(v.GetInt(KeySchedulerCadenceSeconds)) * time.Second,
		RateLimitWindow:  v.GetDuration(KeySchedulerRateLimitWindow),
		MaxParallelGroup: v.GetInt(KeySchedulerMaxParallelGroups),
	}
}

// Compiler is the subset of config the Compiler reads (spec §6.5).
type Compiler struct {
	DefaultLimit    int
	MaxNestingDepth int
}

// CompilerFrom extracts the Compiler config bundle from a loaded viper.
func CompilerFrom(v *viper.Viper) Compiler {
	return Compiler{
		DefaultLimit:    v.GetInt(KeyCompilerDefaultLimit),
		MaxNestingDepth: v.GetInt(KeyCompilerMaxNestingDepth),
	}
}

// FetchTimeout is the per-call deadline the evaluator applies to each data
// fetch (spec §5 "Cancellation / timeouts").
func FetchTimeout(v *viper.Viper) time.Duration {
	return time.Duration(v.GetInt(KeyFetchTimeoutSeconds)) * time.Second
}
