package appconfig

import (
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// geometryKeys must hold positive integers.
var geometryKeys = []string{"width", "height"}

// ValidateAndMigrate repairs doc against the default schema, in order:
// removed keys are dropped, deprecated keys are moved to their nested home,
// missing schema keys are back-filled from the defaults and malformed window
// geometry is reset. It never fails; the returned bool is false when any
// repair beyond migration was needed.
func ValidateAndMigrate(doc *Document, logger *slog.Logger) (*Document, bool) {
	if logger == nil {
		logger = slog.Default()
	}

	if doc.Has(removedDrawerKey) {
		logger.Warn("config: 'drawer' option was removed and will be ignored")
		doc.Delete(removedDrawerKey)
	}

	if md, ok := doc.Get(deprecatedMarkdownKey); ok {
		logger.Warn("config: deprecated 'markdown' option converted to 'preview_customize.markdown'")
		preview, _ := doc.Get(previewCustomizeKey)
		custom, isMap := preview.(map[string]any)
		if !isMap {
			custom = make(map[string]any, 1)
		}
		custom[deprecatedMarkdownKey] = md
		doc.Set(previewCustomizeKey, custom)
		doc.Delete(deprecatedMarkdownKey)
	}

	valid := true
	defaults := DefaultDocument()
	for _, key := range defaults.Keys() {
		if doc.Has(key) {
			continue
		}
		logger.Warn("config: key not found, using default", slog.String("key", key))
		v, _ := defaults.Get(key)
		doc.Set(key, v)
		valid = false
	}

	for _, key := range geometryKeys {
		v, _ := doc.Get(key)
		n, ok := asInt(v)
		if ok && validation.Validate(n, validation.Required, validation.Min(1)) == nil {
			continue
		}
		logger.Warn("config: invalid window size, using default", slog.String("key", key))
		def, _ := defaults.Get(key)
		doc.Set(key, def)
		valid = false
	}

	return doc, valid
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}
