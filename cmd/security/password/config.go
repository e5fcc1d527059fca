package password

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Env var names.
const (
	EnvMinLen         = "BINHACKEN_PASSWORD_MIN_LEN"
	EnvMaxLen         = "BINHACKEN_PASSWORD_MAX_LEN"
	EnvRejectVeryWeak = "BINHACKEN_PASSWORD_REJECT_VERY_WEAK"
	EnvMemoryKiB      = "BINHACKEN_ARGON2_MEMORY_KIB"
	EnvIterations     = "BINHACKEN_ARGON2_ITERATIONS"
	EnvParallelism    = "BINHACKEN_ARGON2_PARALLELISM"
	EnvSaltLen        = "BINHACKEN_ARGON2_SALT_LEN"
	EnvKeyLen         = "BINHACKEN_ARGON2_KEY_LEN"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy controls password validation.
type Policy struct {
	MinLength int
	MaxLength int
	// RejectVeryWeak enables a minimal trivial-pattern check.
	RejectVeryWeak bool
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams
	Policy Policy
}

// DefaultConfig returns interactive-login Argon2id costs and a lenient policy
// suited to a small community site.
func DefaultConfig() Config {
	// Clamp parallelism to [1..4] so containers on big hosts stay predictable.
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024, // 64 MiB
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above; safe conversion.
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength:      8,
			MaxLength:      256,
			RejectVeryWeak: false,
		},
	}
}

// FastConfig returns cheap Argon2id costs for tests and local tooling.
// Never use it for production hashes.
func FastConfig() Config {
	cfg := DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

// FromEnv loads config from environment variables on top of DefaultConfig.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	ints := []struct {
		name     string
		min, max int
		dst      *int
	}{
		{EnvMinLen, 1, 1024, &cfg.Policy.MinLength},
		{EnvMaxLen, 1, 4096, &cfg.Policy.MaxLength},
	}
	for _, f := range ints {
		v, ok := os.LookupEnv(f.name)
		if !ok {
			continue
		}
		n, err := atoiPositiveInt(v, f.min, f.max)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = n
	}

	if v, ok := os.LookupEnv(EnvRejectVeryWeak); ok {
		b, err := parseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvRejectVeryWeak, err)
		}
		cfg.Policy.RejectVeryWeak = b
	}

	u32s := []struct {
		name     string
		min, max uint32
		dst      *uint32
	}{
		{EnvMemoryKiB, 8 * 1024, 1024 * 1024, &cfg.Params.MemoryKiB}, // 8 MiB .. 1 GiB
		{EnvIterations, 1, 20, &cfg.Params.Iterations},
		{EnvSaltLen, 8, 64, &cfg.Params.SaltLength},
		{EnvKeyLen, 16, 64, &cfg.Params.KeyLength},
	}
	for _, f := range u32s {
		v, ok := os.LookupEnv(f.name)
		if !ok {
			continue
		}
		u, err := atou32(v, f.min, f.max)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = u
	}

	if v, ok := os.LookupEnv(EnvParallelism); ok {
		u, err := atou32(v, 1, 64)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvParallelism, err)
		}
		p, err := u32ToU8(u)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvParallelism, err)
		}
		cfg.Params.Parallelism = p
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength,
			cfg.Policy.MaxLength,
		)
	}

	return cfg, nil
}

func atoiPositiveInt(s string, minVal, maxVal int) (int, error) {
	i64, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an integer")
	}
	i := int(i64)
	if i < minVal || i > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return i, nil
}

func atou32(s string, minVal, maxVal uint32) (uint32, error) {
	u64, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an unsigned integer")
	}
	u := uint32(u64)
	if u < minVal || u > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return u, nil
}

func u32ToU8(u uint32) (uint8, error) {
	if u > math.MaxUint8 {
		return 0, fmt.Errorf("out of range [0..%d]", math.MaxUint8)
	}
	return uint8(u), nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean")
	}
}
