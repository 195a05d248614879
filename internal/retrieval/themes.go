package retrieval

import (
	"sort"
	"strings"
)

// themeKeywords maps a theme tag to phrases that signal it in a prompt.
var themeKeywords = map[string][]string{
	"leadership":           {"leader", "leadership", "led ", "lead a", "captain", "president", "initiative"},
	"community service":    {"community", "volunteer", "service", "nonprofit", "non-profit", "give back"},
	"academic excellence":  {"academic", "gpa", "scholar", "honor", "grades", "excellence"},
	"overcoming adversity": {"adversity", "challenge", "obstacle", "hardship", "overcome", "setback", "struggle"},
	"innovation":           {"innovat", "invent", "creative", "design", "build", "new idea"},
	"career goals":         {"career", "goal", "future", "aspiration", "profession", "plan to"},
	"diversity":            {"diversity", "diverse", "culture", "inclusion", "background", "identity", "heritage"},
	"research":             {"research", "experiment", "laboratory", " lab", "study", "hypothesis"},
	"teamwork":             {"team", "collaborat", "together", "group project"},
	"entrepreneurship":     {"entrepreneur", "startup", "start-up", "business", "founded", "venture"},
}

// DeriveThemes returns, in alphabetical order, every theme whose keywords
// appear in text.
func DeriveThemes(text string) []string {
	lower := " " + strings.ToLower(text) + " "
	themes := []string{}
	for theme, keywords := range themeKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				themes = append(themes, theme)
				break
			}
		}
	}
	sort.Strings(themes)
	return themes
}
