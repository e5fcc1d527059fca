package password

import (
	"os"
	"testing"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{
		EnvMinLen, EnvMaxLen, EnvRejectVeryWeak,
		EnvMemoryKiB, EnvIterations, EnvParallelism, EnvSaltLen, EnvKeyLen,
	} {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv error: %v", err)
	}

	def := DefaultConfig()
	if cfg.Policy.MinLength != def.Policy.MinLength {
		t.Fatalf("min length mismatch")
	}
	if cfg.Params.MemoryKiB != def.Params.MemoryKiB {
		t.Fatalf("memory mismatch")
	}
}

func TestFromEnv_Override(t *testing.T) {
	t.Setenv(EnvMinLen, "10")
	t.Setenv(EnvMaxLen, "200")
	t.Setenv(EnvRejectVeryWeak, "yes")
	t.Setenv(EnvMemoryKiB, "32768")
	t.Setenv(EnvIterations, "4")
	t.Setenv(EnvParallelism, "2")
	t.Setenv(EnvSaltLen, "24")
	t.Setenv(EnvKeyLen, "32")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv error: %v", err)
	}

	if cfg.Policy.MinLength != 10 || cfg.Policy.MaxLength != 200 || !cfg.Policy.RejectVeryWeak {
		t.Fatalf("policy override failed: %+v", cfg.Policy)
	}
	if cfg.Params.MemoryKiB != 32768 || cfg.Params.Iterations != 4 || cfg.Params.Parallelism != 2 {
		t.Fatalf("argon2 override failed: %+v", cfg.Params)
	}
	if cfg.Params.SaltLength != 24 || cfg.Params.KeyLength != 32 {
		t.Fatalf("len override failed: %+v", cfg.Params)
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"min above max": {EnvMinLen: "20", EnvMaxLen: "10"},
		"not a number":  {EnvIterations: "three"},
		"memory range":  {EnvMemoryKiB: "16"},
		"bad bool":      {EnvRejectVeryWeak: "maybe"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := FromEnv(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
