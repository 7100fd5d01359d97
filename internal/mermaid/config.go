package mermaid

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RenderConfig is the fixed configuration handed to the diagram renderer
// together with the sanitized source.
type RenderConfig struct {
	Theme                  string          `yaml:"theme" json:"theme"`
	SecurityLevel          string          `yaml:"security_level" json:"securityLevel"`
	SuppressErrorRendering bool            `yaml:"suppress_error_rendering" json:"suppressErrorRendering"`
	LogLevel               string          `yaml:"log_level" json:"logLevel"`
	MaxTextSize            int             `yaml:"max_text_size" json:"maxTextSize"`
	FontFamily             string          `yaml:"font_family" json:"fontFamily"`
	HTMLLabels             bool            `yaml:"html_labels" json:"htmlLabels"`
	Flowchart              FlowchartConfig `yaml:"flowchart" json:"flowchart"`
	Sequence               SequenceConfig  `yaml:"sequence" json:"sequence"`
	CSS                    ThemeCSS        `yaml:"css" json:"-"`
}

// FlowchartConfig controls flow diagram layout.
type FlowchartConfig struct {
	HTMLLabels  bool   `yaml:"html_labels" json:"htmlLabels"`
	Curve       string `yaml:"curve" json:"curve"`
	NodeSpacing int    `yaml:"node_spacing" json:"nodeSpacing"`
	RankSpacing int    `yaml:"rank_spacing" json:"rankSpacing"`
	Padding     int    `yaml:"padding" json:"padding"`
}

// SequenceConfig controls sequence diagram layout.
type SequenceConfig struct {
	ShowSequenceNumbers bool `yaml:"show_sequence_numbers" json:"showSequenceNumbers"`
	ActorMargin         int  `yaml:"actor_margin" json:"actorMargin"`
	MessageMargin       int  `yaml:"message_margin" json:"messageMargin"`
	MirrorActors        bool `yaml:"mirror_actors" json:"mirrorActors"`
	Wrap                bool `yaml:"wrap" json:"wrap"`
}

// ThemeCSS holds the palette overrides for each color scheme.
type ThemeCSS struct {
	Light string `yaml:"light"`
	Dark  string `yaml:"dark"`
}

const defaultLightCSS = `.node rect, .node circle, .node polygon { fill: #f4f1ea; stroke: #8a7d6b; }
.edgePath .path { stroke: #8a7d6b; }
.label, .nodeLabel { color: #3b342c; }
.actor { fill: #f4f1ea; stroke: #8a7d6b; }
.messageLine0, .messageLine1 { stroke: #8a7d6b; }`

const defaultDarkCSS = `.node rect, .node circle, .node polygon { fill: #2a2723; stroke: #b3a58f; }
.edgePath .path { stroke: #b3a58f; }
.label, .nodeLabel { color: #e8e1d5; }
.actor { fill: #2a2723; stroke: #b3a58f; }
.messageLine0, .messageLine1 { stroke: #b3a58f; }`

// DefaultRenderConfig returns the configuration used when no file overrides it.
func DefaultRenderConfig() RenderConfig {
	return RenderConfig{
		Theme:                  "neutral",
		SecurityLevel:          "loose",
		SuppressErrorRendering: true,
		LogLevel:               "error",
		MaxTextSize:            100000,
		FontFamily:             "var(--font-geist-sans), sans-serif",
		HTMLLabels:             true,
		Flowchart: FlowchartConfig{
			HTMLLabels:  true,
			Curve:       "basis",
			NodeSpacing: 60,
			RankSpacing: 60,
			Padding:     20,
		},
		Sequence: SequenceConfig{
			ActorMargin:   50,
			MessageMargin: 40,
			MirrorActors:  false,
			Wrap:          true,
		},
		CSS: ThemeCSS{
			Light: defaultLightCSS,
			Dark:  defaultDarkCSS,
		},
	}
}

// LoadRenderConfig reads a YAML file over the defaults. An empty path returns
// the defaults unchanged.
func LoadRenderConfig(path string) (RenderConfig, error) {
	cfg := DefaultRenderConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read render config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse render config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("invalid render config %s: %w", path, err)
	}
	return cfg, nil
}

func (c RenderConfig) validate() error {
	switch c.SecurityLevel {
	case "strict", "loose", "antiscript", "sandbox":
	default:
		return fmt.Errorf("unknown security_level %q", c.SecurityLevel)
	}
	if c.Flowchart.NodeSpacing < 0 || c.Flowchart.RankSpacing < 0 || c.Flowchart.Padding < 0 {
		return fmt.Errorf("flowchart spacing must not be negative")
	}
	if c.MaxTextSize <= 0 {
		return fmt.Errorf("max_text_size must be greater than 0")
	}
	return nil
}

// CSSFor returns the CSS for the requested color scheme.
func (c RenderConfig) CSSFor(dark bool) string {
	if dark {
		return c.CSS.Dark
	}
	return c.CSS.Light
}
