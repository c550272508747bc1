package config

import (
	"testing"

	"github.com/spf13/viper"

	"github.com/sentinel-voice/core/internal/apperr"
)

type testServiceConfig struct {
	Bus Bus `mapstructure:"bus"`
}

func TestLoadFailsValidationWhenRequiredFieldMissing(t *testing.T) {
	var dest testServiceConfig
	err := Load("gatewaytest", &dest, nil)
	if err == nil {
		t.Fatal("expected Load to fail when Bus.URL is unset and required")
	}

	e, ok := apperr.As(err)
	if !ok {
		t.Fatalf("expected an apperr.Error, got %v", err)
	}
	if e.Kind != apperr.KindConfig {
		t.Errorf("Kind = %v, want %v", e.Kind, apperr.KindConfig)
	}
	if !e.Fatal() {
		t.Error("expected a config error to be Fatal()")
	}
}

func TestLoadAppliesSetDefaultsCallback(t *testing.T) {
	called := false
	setDefaults := func(v *viper.Viper) {
		called = true
	}

	var dest testServiceConfig
	_ = Load("gatewaytest2", &dest, setDefaults)

	if !called {
		t.Error("expected the setDefaults callback to be invoked")
	}
}
