package appconfig

// File names looked up in the data directory, in order.
const (
	FileName       = "config.yaml"
	LegacyFileName = "config.json"
)

// FileNames lists every file name that backs the document.
var FileNames = []string{FileName, LegacyFileName}

// Keys recognised for backward compatibility.
const (
	deprecatedMarkdownKey = "markdown"
	removedDrawerKey      = "drawer"
	previewCustomizeKey   = "preview_customize"
)

// DefaultDocument returns a fresh copy of the compiled-in default document.
// Its top-level keys define the schema.
func DefaultDocument() *Document {
	d := NewDocument()
	d.Set("linter", map[string]any{
		"remark_lint": map[string]any{
			"enabled": true,
			"presets": []any{"lint-consistent"},
			"rules":   []any{},
		},
		"redpen": map[string]any{
			"enabled":        false,
			"server_command": "",
			"port":           7890,
		},
		"textlint": map[string]any{
			"enabled": false,
		},
		"proselint": map[string]any{
			"enabled": false,
			"command": "proselint",
		},
	})
	d.Set("file_ext", map[string]any{
		"markdown": []any{"md", "markdown", "mkd"},
	})
	d.Set("width", 920)
	d.Set("height", 800)
	d.Set("restore_window_state", true)
	d.Set("ignore_path_pattern", `[\\/]\.`)
	d.Set("voice", nil)
	d.Set("menu", map[string]any{
		"visible": true,
	})
	d.Set("hide_title_bar", false)
	d.Set("hide_menu_bar", true)
	d.Set(previewCustomizeKey, nil)
	d.Set("shortcuts", map[string]any{
		"j":        "PageDown",
		"k":        "PageUp",
		"down":     "PageDown",
		"up":       "PageUp",
		"pagedown": "PageDown",
		"pageup":   "PageUp",
		"h":        "PageLeft",
		"l":        "PageRight",
		"left":     "PageLeft",
		"right":    "PageRight",
		"i":        "PageTop",
		"m":        "PageBottom",
		"home":     "PageTop",
		"end":      "PageBottom",
		"ctrl+p":   "ChangePath",
		"ctrl+l":   "Lint",
		"r":        "Reload",
		"s":        "Search",
		"o":        "Outline",
	})
	return d
}
