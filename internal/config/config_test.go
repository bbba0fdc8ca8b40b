package config

import (
	"os"
	"reflect"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.GRPCHealthAddr != ":9090" {
		t.Errorf("GRPCHealthAddr = %q, want %q", cfg.GRPCHealthAddr, ":9090")
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if cfg.RecoveryCodeCount != 10 {
		t.Errorf("RecoveryCodeCount = %d, want 10", cfg.RecoveryCodeCount)
	}
	if cfg.TOTPIssuer != "TwoFactorSession" {
		t.Errorf("TOTPIssuer = %q, want default", cfg.TOTPIssuer)
	}
	if cfg.AllowSelfRevoke {
		t.Error("AllowSelfRevoke should default to false")
	}
	if cfg.JWTIssuer != "twofactor-session" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "twofactor-session")
	}
	if cfg.LoginRateLimit != 10 {
		t.Errorf("LoginRateLimit = %d, want 10", cfg.LoginRateLimit)
	}
	if cfg.AuthEventsTopic != "auth-events" {
		t.Errorf("AuthEventsTopic = %q, want auth-events", cfg.AuthEventsTopic)
	}
	if cfg.SessionTTL() != 168*time.Hour {
		t.Errorf("SessionTTL = %v, want 168h", cfg.SessionTTL())
	}
	if cfg.PendingTTL() != 5*time.Minute {
		t.Errorf("PendingTTL = %v, want 5m", cfg.PendingTTL())
	}
	if cfg.SecureCookies() {
		t.Error("SecureCookies should be false outside production")
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":9999")
	os.Setenv("BCRYPT_COST", "10")
	os.Setenv("SESSION_TTL", "24h")
	os.Setenv("ALLOW_SELF_REVOKE", "true")
	os.Setenv("RECOVERY_CODE_COUNT", "12")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9999")
	}
	if cfg.BcryptCost != 10 {
		t.Errorf("BcryptCost = %d, want 10", cfg.BcryptCost)
	}
	if cfg.SessionTTL() != 24*time.Hour {
		t.Errorf("SessionTTL = %v, want 24h", cfg.SessionTTL())
	}
	if !cfg.AllowSelfRevoke {
		t.Error("AllowSelfRevoke should be true")
	}
	if cfg.RecoveryCodeCount != 12 {
		t.Errorf("RecoveryCodeCount = %d, want 12", cfg.RecoveryCodeCount)
	}
}

func TestLoad_BCRYPT_COSTRange(t *testing.T) {
	testCases := []struct {
		name  string
		value string
		want  int
		err   bool
	}{
		{"valid min", "4", 4, false},
		{"valid max", "31", 31, false},
		{"valid middle", "12", 12, false},
		{"too low", "3", 0, true},
		{"too high", "32", 0, true},
		{"zero", "0", 12, false}, // Should default to 12
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			os.Setenv("BCRYPT_COST", tc.value)

			cfg, err := Load()
			if tc.err {
				if err == nil {
					t.Fatal("Load should return error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.BcryptCost != tc.want {
				t.Errorf("BcryptCost = %d, want %d", cfg.BcryptCost, tc.want)
			}
		})
	}
}

func TestLoad_RecoveryCodeCountRange(t *testing.T) {
	for _, v := range []string{"-1", "51"} {
		os.Clearenv()
		os.Setenv("RECOVERY_CODE_COUNT", v)
		if _, err := Load(); err == nil {
			t.Errorf("Load with RECOVERY_CODE_COUNT=%s should return error", v)
		}
	}
}

func TestLoad_JWTKeysMustBePaired(t *testing.T) {
	os.Clearenv()
	os.Setenv("JWT_PRIVATE_KEY", "/path/to/key.pem")

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load should return error when only JWT_PRIVATE_KEY is set")
	}
	if cfg != nil {
		t.Error("Load should return nil config on error")
	}
}

func TestLoad_ProductionRequiresTurnstile(t *testing.T) {
	os.Clearenv()
	os.Setenv("APP_ENV", "production")

	if _, err := Load(); err == nil {
		t.Fatal("Load should return error in production without TURNSTILE_SECRET_KEY")
	}

	os.Setenv("TURNSTILE_SECRET_KEY", "secret")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.SecureCookies() {
		t.Error("SecureCookies should be true in production")
	}
}

func TestDurations_FallBackOnInvalid(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
	}{
		{"invalid", "invalid"},
		{"zero", "0"},
		{"negative", "-5m"},
		{"empty", ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{
				SessionTTLRaw:      tc.raw,
				PendingTTLRaw:      tc.raw,
				LoginRateWindowRaw: tc.raw,
				LoginRateBlockRaw:  tc.raw,
				JanitorIntervalRaw: tc.raw,
			}
			if got := cfg.SessionTTL(); got != 168*time.Hour {
				t.Errorf("SessionTTL = %v, want 168h", got)
			}
			if got := cfg.PendingTTL(); got != 5*time.Minute {
				t.Errorf("PendingTTL = %v, want 5m", got)
			}
			if got := cfg.LoginRateWindow(); got != time.Minute {
				t.Errorf("LoginRateWindow = %v, want 1m", got)
			}
			if got := cfg.LoginRateBlock(); got != 15*time.Minute {
				t.Errorf("LoginRateBlock = %v, want 15m", got)
			}
			if got := cfg.JanitorInterval(); got != time.Hour {
				t.Errorf("JanitorInterval = %v, want 1h", got)
			}
		})
	}
}

func TestKafkaBrokersList(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
		want []string
	}{
		{"empty", "", nil},
		{"single", "localhost:9092", []string{"localhost:9092"}},
		{"multiple with spaces", " a:9092 , b:9092 ,", []string{"a:9092", "b:9092"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{KafkaBrokers: tc.raw}
			got := cfg.KafkaBrokersList()
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("KafkaBrokersList = %v, want %v", got, tc.want)
			}
		})
	}
	var nilCfg *Config
	if nilCfg.KafkaBrokersList() != nil {
		t.Error("nil config should return nil brokers")
	}
}

func TestTrustedProxiesList(t *testing.T) {
	os.Clearenv()
	os.Setenv("TRUSTED_PROXIES", " 10.0.0.0/8, ,127.0.0.1 ")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"10.0.0.0/8", "127.0.0.1"}
	if got := cfg.TrustedProxiesList(); !reflect.DeepEqual(got, want) {
		t.Errorf("TrustedProxiesList = %v, want %v", got, want)
	}

	os.Clearenv()
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.TrustedProxiesList(); got != nil {
		t.Errorf("TrustedProxiesList default = %v, want nil", got)
	}
}
