package captcha

import (
	"errors"
	"testing"

	"grass_auto/internal/config"
)

func TestNewPicksProviderByKeyOrder(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.CaptchaConfig
		want string
	}{
		{"2captcha", config.CaptchaConfig{TwoCaptchaKey: "k"}, "2captcha"},
		{"anticaptcha", config.CaptchaConfig{AntiCaptchaKey: "k"}, "anticaptcha"},
		{"capmonster", config.CaptchaConfig{CapMonsterKey: "k"}, "capmonster"},
		{"capsolver", config.CaptchaConfig{CapSolverKey: "k"}, "capsolver"},
		{"captchaai", config.CaptchaConfig{CaptchaAIKey: "k"}, "captchaai"},
		{
			"2captcha wins over later keys",
			config.CaptchaConfig{TwoCaptchaKey: "a", CapSolverKey: "b", CaptchaAIKey: "c"},
			"2captcha",
		},
		{
			"anticaptcha wins over capmonster",
			config.CaptchaConfig{AntiCaptchaKey: "a", CapMonsterKey: "b"},
			"anticaptcha",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.cfg)
			if err != nil {
				t.Fatal(err)
			}
			if s.Name() != tt.want {
				t.Fatalf("provider = %q, want %q", s.Name(), tt.want)
			}
		})
	}
}

func TestNewWithoutKeys(t *testing.T) {
	_, err := New(config.CaptchaConfig{})
	if !errors.Is(err, ErrNoProvider) {
		t.Fatalf("err = %v, want ErrNoProvider", err)
	}
}
