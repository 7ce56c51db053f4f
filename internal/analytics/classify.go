// Package analytics turns redirects into click events and click events
// into per-link reports.
package analytics

import "strings"

type Classification struct {
	Device  string
	Browser string
	OS      string
}

type Classifier interface {
	Classify(userAgent string) Classification
}

type rule struct {
	needles []string
	label   string
}

// Order matters: the first matching rule wins.
var (
	deviceRules = []rule{
		{[]string{"ipad", "tablet"}, "Tablet"},
		{[]string{"mobile", "android", "iphone"}, "Mobile"},
	}
	browserRules = []rule{
		{[]string{"edg"}, "Edge"},
		{[]string{"opr", "opera"}, "Opera"},
		{[]string{"chrome"}, "Chrome"},
		{[]string{"firefox"}, "Firefox"},
		{[]string{"safari"}, "Safari"},
	}
	osRules = []rule{
		{[]string{"windows"}, "Windows"},
		{[]string{"android"}, "Android"},
		{[]string{"iphone", "ipad"}, "iOS"},
		{[]string{"mac"}, "MacOS"},
		{[]string{"linux"}, "Linux"},
	}
)

// HeuristicClassifier matches lower-cased substrings of the user agent.
type HeuristicClassifier struct{}

func (HeuristicClassifier) Classify(userAgent string) Classification {
	ua := strings.ToLower(userAgent)
	return Classification{
		Device:  match(ua, deviceRules, "Desktop"),
		Browser: match(ua, browserRules, "Other"),
		OS:      match(ua, osRules, "Other"),
	}
}

func match(ua string, rules []rule, fallback string) string {
	for _, r := range rules {
		for _, n := range r.needles {
			if strings.Contains(ua, n) {
				return r.label
			}
		}
	}
	return fallback
}
