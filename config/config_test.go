package config

import "testing"

func productionConfig() Config {
	return Config{
		Env: EnvProduction,
		JWT: JWTConfig{
			AccessSecret:  "prod-access-secret",
			RefreshSecret: "prod-refresh-secret",
		},
		OpenAI: OpenAIConfig{APIKey: "sk-test"},
	}
}

func TestValidateDevelopmentAllowsDefaults(t *testing.T) {
	cfg := Config{Env: EnvDevelopment}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("development config should validate, got %v", err)
	}
}

func TestValidateProduction(t *testing.T) {
	if err := productionConfig().Validate(); err != nil {
		t.Fatalf("valid production config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"default access secret", func(c *Config) { c.JWT.AccessSecret = defaultAccessSecret }},
		{"empty access secret", func(c *Config) { c.JWT.AccessSecret = "" }},
		{"default refresh secret", func(c *Config) { c.JWT.RefreshSecret = defaultRefreshSecret }},
		{"identical secrets", func(c *Config) { c.JWT.RefreshSecret = c.JWT.AccessSecret }},
		{"missing openai key", func(c *Config) { c.OpenAI.APIKey = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := productionConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TEST_CONFIG_INT", "42")
	if got := getEnvInt("TEST_CONFIG_INT", 7); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	if got := getEnvInt("TEST_CONFIG_INT_MISSING", 7); got != 7 {
		t.Fatalf("expected default 7, got %d", got)
	}

	t.Setenv("TEST_CONFIG_BOOL", "true")
	if !getEnvBool("TEST_CONFIG_BOOL", false) {
		t.Fatalf("expected true")
	}

	t.Setenv("TEST_CONFIG_LIST", "http://a.example, http://b.example")
	list := getEnvList("TEST_CONFIG_LIST", nil)
	if len(list) != 2 || list[0] != "http://a.example" || list[1] != "http://b.example" {
		t.Fatalf("unexpected list: %v", list)
	}
}
