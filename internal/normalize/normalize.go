package normalize

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/zxsharp/active-app-worker/internal/config"
	"github.com/zxsharp/active-app-worker/internal/logger"
)

// Reason identifies which strategy produced a canonical app label.
type Reason string

const (
	ReasonOwnerMap          Reason = "owner-map"
	ReasonOwnerTitlecase    Reason = "owner-titlecase"
	ReasonOwnerPath         Reason = "ownerpath"
	ReasonOwnerPathFallback Reason = "ownerpath-fallback"
	ReasonWMClass           Reason = "xprop-wmclass"
	ReasonTitleContains     Reason = "title-contains"
	ReasonFallback          Reason = "fallback"
)

// Confidence grades how trustworthy a resolution reason is. Direct owner
// lookups rank highest, heuristics lower, the terminal fallback lowest.
func (r Reason) Confidence() string {
	switch r {
	case ReasonOwnerMap, ReasonOwnerPath:
		return "high"
	case ReasonOwnerTitlecase, ReasonOwnerPathFallback, ReasonWMClass:
		return "medium"
	case ReasonTitleContains:
		return "low"
	default:
		return "none"
	}
}

// Result is a canonical app label plus the reason it was chosen. Derived
// purely from a sample and the optional class resolution, never empty.
type Result struct {
	App    string `json:"app"`
	Reason Reason `json:"reason"`
}

// ClassResolver supplies a window-manager class string for a window id.
// Implementations are best-effort; errors mean "no data".
type ClassResolver interface {
	ResolveClass(windowID uint32) (string, error)
}

// ownerMap maps lower-cased owner process names directly to app labels.
var ownerMap = map[string]string{
	"gnome-terminal-server": "Terminal",
	"gnome-terminal":        "Terminal",
	"tilix":                 "Terminal",
	"konsole":               "Terminal",
	"xfce4-terminal":        "Terminal",
	"alacritty":             "Terminal",
	"kitty":                 "Terminal",
	"xterm":                 "Terminal",

	"code":               "VS Code",
	"visual studio code": "VS Code",

	"brave-browser": "Brave",
	"brave":         "Brave",
	"google-chrome": "Chrome",
	"chromium":      "Chromium",
	"firefox":       "Firefox",

	"gnome-control-center":           "Settings",
	"org.gnome.gnome-control-center": "Settings",

	"nautilus":           "Files",
	"nemo":               "Files",
	"org.gnome.nautilus": "Files",
}

// classRule matches a lower-cased executable basename or WM class string.
type classRule struct {
	Pattern *regexp.Regexp
	App     string
}

// classRules are tested in order; the first match wins. Shared by the
// owner-path and wm-class strategies.
var classRules = []classRule{
	{regexp.MustCompile(`control-center`), "Settings"},
	{regexp.MustCompile(`terminal|tilix|konsole|alacritty|kitty|xterm`), "Terminal"},
	{regexp.MustCompile(`code`), "VS Code"},
	{regexp.MustCompile(`brave`), "Brave"},
	{regexp.MustCompile(`chrome`), "Chrome"},
	{regexp.MustCompile(`firefox`), "Firefox"},
	{regexp.MustCompile(`nautilus|nemo`), "Files"},
}

// titleRule matches case-insensitive substrings of a window title.
type titleRule struct {
	Needles []string
	App     string
}

// titleRules are deliberately generic: a title mentioning "chrome" or
// "brave" maps to plain "Browser", not the branded labels of the owner map.
var titleRules = []titleRule{
	{[]string{"settings", "control center"}, "Settings"},
	{[]string{"terminal", "bash", "zsh", "fish"}, "Terminal"},
	{[]string{"file", "nautilus", "files"}, "Files"},
	{[]string{"vscode", "visual studio code"}, "VS Code"},
	{[]string{"firefox", "mozilla"}, "Firefox"},
	{[]string{"chrome", "brave"}, "Browser"},
}

var wordSplit = regexp.MustCompile(`[-_.\s]+`)

// TitleCase splits on runs of dashes, underscores, dots and whitespace,
// capitalizes the first character of each word and joins with single spaces.
// Empty input is returned unchanged.
func TitleCase(s string) string {
	if s == "" {
		return s
	}
	words := wordSplit.Split(s, -1)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w == "" {
			continue
		}
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		out = append(out, string(runes))
	}
	return strings.Join(out, " ")
}

// strategy inspects a sample and either resolves it or returns nil to pass
// resolution to the next strategy.
type strategy func(*config.Sample) *Result

// Normalizer turns raw window samples into canonical app labels by running
// an ordered list of strategies, first match wins.
type Normalizer struct {
	resolver   ClassResolver
	strategies []strategy
}

// New creates a normalizer. The resolver may be nil, in which case the
// wm-class strategy never matches.
func New(resolver ClassResolver) *Normalizer {
	n := &Normalizer{resolver: resolver}
	n.strategies = []strategy{
		n.fromOwnerName,
		n.fromOwnerPath,
		n.fromWMClass,
		n.fromTitle,
		n.fallback,
	}
	return n
}

// Normalize resolves a sample to an app label. It is total: the final
// fallback strategy always produces a result.
func (n *Normalizer) Normalize(s *config.Sample) Result {
	if s == nil {
		s = &config.Sample{}
	}
	for _, strat := range n.strategies {
		if res := strat(s); res != nil {
			return *res
		}
	}
	// unreachable, fallback always resolves
	return Result{App: "Unknown", Reason: ReasonFallback}
}

// fromOwnerName resolves via the fixed owner-name table. An unmapped owner
// name longer than one character still resolves, title-cased.
func (n *Normalizer) fromOwnerName(s *config.Sample) *Result {
	if s.OwnerName == "" {
		return nil
	}
	if app, ok := ownerMap[strings.ToLower(s.OwnerName)]; ok {
		return &Result{App: app, Reason: ReasonOwnerMap}
	}
	if len(s.OwnerName) > 1 {
		return &Result{App: TitleCase(s.OwnerName), Reason: ReasonOwnerTitlecase}
	}
	return nil
}

// fromOwnerPath resolves via the executable basename. Always resolves when
// a path is present: unmatched basenames are title-cased.
func (n *Normalizer) fromOwnerPath(s *config.Sample) *Result {
	if s.OwnerPath == "" {
		return nil
	}
	base := strings.ToLower(filepath.Base(s.OwnerPath))
	if app, ok := matchClass(base); ok {
		return &Result{App: app, Reason: ReasonOwnerPath}
	}
	return &Result{App: TitleCase(base), Reason: ReasonOwnerPathFallback}
}

// fromWMClass queries the injected resolver. Resolution failures, empty
// classes and the resolver's "unknown" placeholder all skip the strategy.
// Only named rule matches resolve; there is no title-case fallback here.
func (n *Normalizer) fromWMClass(s *config.Sample) *Result {
	if n.resolver == nil || s.WindowID == 0 {
		return nil
	}
	class, err := n.resolver.ResolveClass(s.WindowID)
	if err != nil {
		logger.WithComponent("normalize").Debug().
			Uint32("window_id", s.WindowID).
			Err(err).
			Msg("WM class lookup failed")
		return nil
	}
	class = strings.ToLower(strings.TrimSpace(class))
	if class == "" || class == "unknown" {
		return nil
	}
	if app, ok := matchClass(class); ok {
		return &Result{App: app, Reason: ReasonWMClass}
	}
	return nil
}

// fromTitle resolves via case-insensitive title substrings.
func (n *Normalizer) fromTitle(s *config.Sample) *Result {
	if s.Title == "" {
		return nil
	}
	title := strings.ToLower(s.Title)
	for _, rule := range titleRules {
		for _, needle := range rule.Needles {
			if strings.Contains(title, needle) {
				return &Result{App: rule.App, Reason: ReasonTitleContains}
			}
		}
	}
	return nil
}

// fallback always resolves: title-cased title, else the raw owner name,
// else "Unknown".
func (n *Normalizer) fallback(s *config.Sample) *Result {
	switch {
	case s.Title != "":
		return &Result{App: TitleCase(s.Title), Reason: ReasonFallback}
	case s.OwnerName != "":
		return &Result{App: s.OwnerName, Reason: ReasonFallback}
	default:
		return &Result{App: TitleCase("unknown"), Reason: ReasonFallback}
	}
}

// matchClass tests a lower-cased class string against the ordered rules.
func matchClass(class string) (string, bool) {
	for _, rule := range classRules {
		if rule.Pattern.MatchString(class) {
			return rule.App, true
		}
	}
	return "", false
}

// RuleSet is a read-only view of the resolution tables, exposed for the
// rules CLI and the status API.
type RuleSet struct {
	OwnerMap   map[string]string `json:"owner_map"`
	ClassRules []ClassRuleView   `json:"class_rules"`
	TitleRules []TitleRuleView   `json:"title_rules"`
}

// ClassRuleView is one basename/wm-class pattern and its app label.
type ClassRuleView struct {
	Pattern string `json:"pattern"`
	App     string `json:"app"`
}

// TitleRuleView is one set of title substrings and its app label.
type TitleRuleView struct {
	Needles []string `json:"needles"`
	App     string   `json:"app"`
}

// Rules returns a copy of the resolution tables.
func Rules() RuleSet {
	owners := make(map[string]string, len(ownerMap))
	for k, v := range ownerMap {
		owners[k] = v
	}
	classes := make([]ClassRuleView, 0, len(classRules))
	for _, r := range classRules {
		classes = append(classes, ClassRuleView{Pattern: r.Pattern.String(), App: r.App})
	}
	titles := make([]TitleRuleView, 0, len(titleRules))
	for _, r := range titleRules {
		needles := make([]string, len(r.Needles))
		copy(needles, r.Needles)
		titles = append(titles, TitleRuleView{Needles: needles, App: r.App})
	}
	return RuleSet{OwnerMap: owners, ClassRules: classes, TitleRules: titles}
}
