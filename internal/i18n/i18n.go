package i18n

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"

	"github.com/parleychat/parley/internal/config"
)

// Localizer manages internationalization of user-visible engine
// messages (system announcements, apologies, welcome lines).
type Localizer struct {
	bundle          *i18n.Bundle
	defaultLanguage string
	localizers      map[string]*i18n.Localizer
}

// NewLocalizer creates a new localizer. English messages are built in;
// additional language files are loaded from the configured directory.
func NewLocalizer(cfg *config.I18nConfig) (*Localizer, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	if err := bundle.AddMessages(language.English, defaultMessages...); err != nil {
		return nil, fmt.Errorf("failed to register default messages: %w", err)
	}

	for _, lang := range cfg.Languages {
		if lang == "en" || cfg.Directory == "" {
			continue
		}
		path := filepath.Join(cfg.Directory, lang+".json")
		if _, err := bundle.LoadMessageFile(path); err != nil {
			return nil, fmt.Errorf("failed to load language file %s: %w", path, err)
		}
	}

	localizers := make(map[string]*i18n.Localizer)
	for _, lang := range cfg.Languages {
		localizers[lang] = i18n.NewLocalizer(bundle, lang)
	}
	if _, ok := localizers["en"]; !ok {
		localizers["en"] = i18n.NewLocalizer(bundle, "en")
	}

	defaultLang := cfg.DefaultLanguage
	if defaultLang == "" {
		defaultLang = "en"
	}

	return &Localizer{
		bundle:          bundle,
		defaultLanguage: defaultLang,
		localizers:      localizers,
	}, nil
}

// Get returns localized message
func (l *Localizer) Get(lang, messageID string, data map[string]interface{}) string {
	localizer, exists := l.localizers[lang]
	if !exists {
		localizer, exists = l.localizers[l.defaultLanguage]
	}
	if !exists {
		// The English localizer always exists; a misconfigured default
		// language must not panic here.
		localizer = l.localizers["en"]
	}

	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return messageID // Fallback to message ID
	}

	return msg
}

// Default returns a message in the default language.
func (l *Localizer) Default(messageID string, data map[string]interface{}) string {
	return l.Get(l.defaultLanguage, messageID, data)
}

// Message IDs
const (
	MsgAutoChatEnabled  = "auto_chat_enabled"
	MsgAutoChatDisabled = "auto_chat_disabled"
	MsgAgentApology     = "agent_apology"
	MsgWelcome          = "welcome_connected"
	MsgHistoryCleared   = "history_cleared"
	MsgLoadFailed       = "load_failed"
	MsgTopicOpener      = "topic_opener"
)

var defaultMessages = []*i18n.Message{
	{
		ID:    MsgAutoChatEnabled,
		Other: "Auto-chat enabled. Active participants: {{.Participants}}. They will converse based on their unique personalities.",
	},
	{
		ID:    MsgAutoChatDisabled,
		Other: "Auto-chat disabled.",
	},
	{
		ID:    MsgAgentApology,
		Other: "I apologize, but I'm having trouble responding right now.",
	},
	{
		ID:    MsgWelcome,
		Other: "Connected to {{.Members}}",
	},
	{
		ID:    MsgHistoryCleared,
		Other: "Chat history cleared successfully",
	},
	{
		ID:    MsgLoadFailed,
		Other: "Error loading previous messages.",
	},
	{
		ID:    MsgTopicOpener,
		Other: "I've been thinking about {{.Topic}}. What are your thoughts on this?",
	},
}
