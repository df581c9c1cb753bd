package tracing

import "testing"

func Test_Tracing_DisabledWithoutKeys(t *testing.T) {
	t.Parallel()

	cases := []Config{
		{},
		{PublicKey: "pk"},
		{SecretKey: "sk"},
		{Host: "http://langfuse.internal"},
	}
	for _, cfg := range cases {
		if cfg.Enabled() {
			t.Errorf("config %+v should be disabled", cfg)
		}
		if h, flush, ok := Setup(cfg); ok || h != nil || flush != nil {
			t.Errorf("Setup(%+v) should be a no-op", cfg)
		}
	}
}

func Test_Tracing_FromEnv(t *testing.T) {
	t.Setenv("LANGFUSE_HOST", "http://langfuse.internal")
	t.Setenv("LANGFUSE_PUBLIC_KEY", "pk")
	t.Setenv("LANGFUSE_SECRET_KEY", "sk")

	cfg := FromEnv()
	if !cfg.Enabled() {
		t.Fatal("fully-keyed config should be enabled")
	}
	if cfg.Host != "http://langfuse.internal" {
		t.Errorf("host = %q", cfg.Host)
	}
}
