// Package cucfg loads the CU's configuration, adapted from the teacher's
// cmn.Config + GCO global holder (cmn/rom.go): a single nested struct
// populated once at startup and handed out by value/pointer to every
// component constructor, instead of components reaching for a service
// locator. Values are read from the environment, optionally pre-loaded
// from a .env file via github.com/joho/godotenv (the one pack repo,
// ClusterCockpit-cc-backend, that loads .env-style config) -- the exact
// on-disk config *format* is explicitly out of scope per spec.md §1/§6,
// so this package only fixes the recognized option names, not a file
// schema.
package cucfg

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config mirrors every recognized option in spec.md §6.
type Config struct {
	Workers struct {
		MaxWorkers           int
		PrimaryPct           int
		DryRunMaxQueue       int
		ModuleCacheMaxSize   int
		InstanceCacheMaxSize int
	}
	Wasm struct {
		BinaryFileDirectory  string
		MemoryMaxLimit       int64
		ComputeMaxLimit      int64
		SupportedFormats     []string
		SupportedExtensions  []string
	}
	ProcessMemory struct {
		CacheMaxSize int64
		CacheTTL     time.Duration
		FileDir      string
	}
	Checkpoint struct {
		FileDirectory               string
		DisableCreation              bool
		CreationThrottle             time.Duration
		EagerAccumulatedGasThreshold int64
		IgnoreArweaveCheckpoints     []string
		ProcessIgnoreArweave         []string
		TrustedOwners                []string
	}
	Access struct {
		AllowOwners      []string
		RestrictProcesses bool
		AllowProcesses   []string
	}
	Endpoints struct {
		GraphQLURL         string
		CheckpointGraphQL  string
		ArweaveURL         string
		UploaderURL        string
		DBURL              string
		Wallet             string
	}
}

// Load reads environment variables (optionally pre-seeded from a .env
// file at path, if non-empty) into a populated Config, applying the
// same defaults the original deployment does.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		// best-effort like the teacher's config loader: a missing .env is
		// not fatal, the environment may already be fully populated.
		_ = godotenv.Load(envFile)
	}

	c := &Config{}
	c.Workers.MaxWorkers = getInt("WASM_EVALUATION_MAX_WORKERS", 8)
	c.Workers.PrimaryPct = getInt("WASM_EVALUATION_PRIMARY_WORKERS_PERCENTAGE", 70)
	c.Workers.DryRunMaxQueue = getInt("WASM_EVALUATION_WORKERS_DRY_RUN_MAX_QUEUE", 100)
	c.Workers.ModuleCacheMaxSize = getInt("WASM_MODULE_CACHE_MAX_SIZE", 50)
	c.Workers.InstanceCacheMaxSize = getInt("WASM_INSTANCE_CACHE_MAX_SIZE", 50)

	c.Wasm.BinaryFileDirectory = getStr("WASM_BINARY_FILE_DIRECTORY", "./wasm-binaries")
	c.Wasm.MemoryMaxLimit = getInt64("PROCESS_WASM_MEMORY_MAX_LIMIT", 1<<30)
	c.Wasm.ComputeMaxLimit = getInt64("PROCESS_WASM_COMPUTE_MAX_LIMIT", 9_000_000_000_000)
	c.Wasm.SupportedFormats = getList("PROCESS_WASM_SUPPORTED_FORMATS", []string{"wasm32-unknown-emscripten", "wasm64-unknown-emscripten"})
	c.Wasm.SupportedExtensions = getList("PROCESS_WASM_SUPPORTED_EXTENSIONS", nil)

	c.ProcessMemory.CacheMaxSize = getInt64("PROCESS_MEMORY_CACHE_MAX_SIZE", 1<<31)
	c.ProcessMemory.CacheTTL = getDuration("PROCESS_MEMORY_CACHE_TTL", 24*time.Hour)
	c.ProcessMemory.FileDir = getStr("PROCESS_MEMORY_CACHE_FILE_DIR", "./process-memory-cache")

	c.Checkpoint.FileDirectory = getStr("PROCESS_CHECKPOINT_FILE_DIRECTORY", "./checkpoints")
	c.Checkpoint.DisableCreation = getBool("DISABLE_PROCESS_CHECKPOINT_CREATION", false)
	c.Checkpoint.CreationThrottle = getDuration("PROCESS_CHECKPOINT_CREATION_THROTTLE", 24*time.Hour)
	c.Checkpoint.EagerAccumulatedGasThreshold = getInt64("EAGER_CHECKPOINT_ACCUMULATED_GAS_THRESHOLD", 1_000_000_000_000)
	c.Checkpoint.IgnoreArweaveCheckpoints = getList("IGNORE_ARWEAVE_CHECKPOINTS", nil)
	c.Checkpoint.ProcessIgnoreArweave = getList("PROCESS_IGNORE_ARWEAVE_CHECKPOINTS", nil)
	c.Checkpoint.TrustedOwners = getList("PROCESS_CHECKPOINT_TRUSTED_OWNERS", nil)

	c.Access.AllowOwners = getList("ALLOW_OWNERS", nil)
	c.Access.RestrictProcesses = getBool("RESTRICT_PROCESSES", false)
	c.Access.AllowProcesses = getList("ALLOW_PROCESSES", nil)

	c.Endpoints.GraphQLURL = getStr("GRAPHQL_URL", "")
	c.Endpoints.CheckpointGraphQL = getStr("CHECKPOINT_GRAPHQL_URL", "")
	c.Endpoints.ArweaveURL = getStr("ARWEAVE_URL", "")
	c.Endpoints.UploaderURL = getStr("UPLOADER_URL", "")
	c.Endpoints.DBURL = getStr("DB_URL", "./cu.db")
	c.Endpoints.Wallet = getStr("WALLET", "")

	return c, nil
}

// MaxPrimary implements spec.md §4.F's sizing formula.
func (c *Config) MaxPrimary() int {
	n := c.Workers.MaxWorkers
	pct := c.Workers.PrimaryPct
	v := ceilDiv(n*pct, 100)
	if v < 1 {
		v = 1
	}
	if max := n - 1; max >= 1 && v > max {
		v = max
	} else if max < 1 {
		v = 1
	}
	return v
}

// MaxDryRun implements spec.md §4.F's sizing formula.
func (c *Config) MaxDryRun() int {
	n := c.Workers.MaxWorkers
	pct := c.Workers.PrimaryPct
	v := (n * (100 - pct)) / 100
	if v < 1 {
		v = 1
	}
	return v
}

func ceilDiv(a, b int) int {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

func getStr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getInt64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getList(key string, def []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
