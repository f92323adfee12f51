package locales

import (
	"embed"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed *.json
var localeFS embed.FS

var (
	mu              sync.RWMutex
	bundle          *i18n.Bundle
	defaultLanguage = language.English
)

// Init initializes the i18n bundle by loading the embedded message files
// and setting the default language. It is safe to call more than once.
func Init(defaultLangCode string) error {
	tag, err := language.Parse(defaultLangCode)
	if err != nil {
		log.Printf("WARN: Failed to parse default language code '%s': %v. Falling back to English.", defaultLangCode, err)
		tag = language.English
	}

	b := i18n.NewBundle(tag)
	b.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir(".")
	if err != nil {
		return fmt.Errorf("read embedded locales: %w", err)
	}
	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if _, err := b.LoadMessageFileFS(localeFS, entry.Name()); err != nil {
			return fmt.Errorf("load message file %s: %w", entry.Name(), err)
		}
		loaded++
	}
	if loaded == 0 {
		return fmt.Errorf("no message files embedded")
	}

	mu.Lock()
	bundle = b
	defaultLanguage = tag
	mu.Unlock()
	log.Printf("i18n bundle initialized with %d file(s). Default language: %s", loaded, tag)
	return nil
}

// DefaultLanguage returns the configured default language code.
func DefaultLanguage() string {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLanguage.String()
}

// SupportedLanguages lists the languages with a loaded message file.
func SupportedLanguages() []language.Tag {
	mu.RLock()
	defer mu.RUnlock()
	if bundle == nil {
		return nil
	}
	return bundle.LanguageTags()
}

// NewLocalizer creates a localizer for the given language preferences,
// falling back to the default language.
func NewLocalizer(langPrefs ...string) *i18n.Localizer {
	mu.RLock()
	defer mu.RUnlock()
	if bundle == nil {
		log.Panicln("Attempted to create localizer before i18n bundle initialization.")
	}
	prefs := append(append([]string(nil), langPrefs...), defaultLanguage.String())
	return i18n.NewLocalizer(bundle, prefs...)
}

// GetMessage retrieves and formats a message by its ID using the provided localizer.
// The message ID itself is returned when no translation exists.
func GetMessage(localizer *i18n.Localizer, msgID string, templateData map[string]interface{}) string {
	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    msgID,
		TemplateData: templateData,
	})
	if err != nil {
		log.Printf("ERROR: Failed to localize message ID '%s': %v", msgID, err)
		return msgID
	}
	return msg
}
