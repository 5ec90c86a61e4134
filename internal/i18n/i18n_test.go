package i18n

import (
	"testing"

	"github.com/parleychat/parley/internal/config"
)

func TestGetFallsBackToDefaultLanguage(t *testing.T) {
	l, err := NewLocalizer(&config.I18nConfig{DefaultLanguage: "en", Languages: []string{"en"}})
	if err != nil {
		t.Fatalf("NewLocalizer: %v", err)
	}

	if got := l.Get("de", MsgAutoChatDisabled, nil); got != "Auto-chat disabled." {
		t.Errorf("Get(de) = %q", got)
	}
}

func TestGetSurvivesMisconfiguredDefaultLanguage(t *testing.T) {
	// default_language outside the languages list must not panic; the
	// built-in English bundle serves instead.
	l, err := NewLocalizer(&config.I18nConfig{DefaultLanguage: "fr", Languages: []string{"en"}})
	if err != nil {
		t.Fatalf("NewLocalizer: %v", err)
	}

	if got := l.Default(MsgAutoChatDisabled, nil); got != "Auto-chat disabled." {
		t.Errorf("Default = %q", got)
	}
	if got := l.Get("fr", MsgAgentApology, nil); got == "" {
		t.Error("Get(fr) returned empty message")
	}
}

func TestTemplateData(t *testing.T) {
	l, err := NewLocalizer(&config.I18nConfig{DefaultLanguage: "en", Languages: []string{"en"}})
	if err != nil {
		t.Fatalf("NewLocalizer: %v", err)
	}

	got := l.Default(MsgWelcome, map[string]interface{}{"Members": "Ada"})
	if got != "Connected to Ada" {
		t.Errorf("welcome = %q", got)
	}
}
