package agent

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Intent is a tool call recognized without a model.
type Intent struct {
	Tool string
	Arg  string
}

// RouteInput is one command as seen by the rules. Folded is lower-cased
// with diacritics removed and rune-aligned with Text, so byte offsets found
// in Folded can be mapped back to the original spelling.
type RouteInput struct {
	Text   string
	Lower  string
	Folded string
}

func newRouteInput(text string) RouteInput {
	text = stripWake(strings.TrimSpace(text))
	return RouteInput{Text: text, Lower: strings.ToLower(text), Folded: Fold(text)}
}

// Span returns the original text between two byte offsets of Folded.
func (in RouteInput) Span(start, end int) string {
	rs := utf8.RuneCountInString(in.Folded[:start])
	re := rs + utf8.RuneCountInString(in.Folded[start:end])
	runes := []rune(in.Text)
	if re > len(runes) {
		re = len(runes)
	}
	return strings.TrimSpace(string(runes[rs:re]))
}

// IntentRule is one row of the routing table.
type IntentRule struct {
	Name  string
	Match func(in RouteInput) (Intent, bool)
}

// IntentRouter returns the first matching rule's intent.
type IntentRouter struct {
	rules []IntentRule
}

// NewIntentRouter uses DefaultIntentRules when rules is nil.
func NewIntentRouter(rules []IntentRule) *IntentRouter {
	if rules == nil {
		rules = DefaultIntentRules()
	}
	return &IntentRouter{rules: rules}
}

// Rules returns the table in evaluation order.
func (r *IntentRouter) Rules() []IntentRule {
	return append([]IntentRule(nil), r.rules...)
}

// Route maps text to a tool call. It has no side effects.
func (r *IntentRouter) Route(text string) (Intent, bool) {
	in := newRouteInput(text)
	if in.Text == "" {
		return Intent{}, false
	}
	for _, rule := range r.rules {
		if intent, ok := rule.Match(in); ok {
			return intent, true
		}
	}
	return Intent{}, false
}

// patternRule captures the argument from group 1 of re (matched against
// the folded text) when the group exists.
func patternRule(name, tool string, re *regexp.Regexp) IntentRule {
	return IntentRule{Name: name, Match: func(in RouteInput) (Intent, bool) {
		loc := re.FindStringSubmatchIndex(in.Folded)
		if loc == nil {
			return Intent{}, false
		}
		arg := ""
		if len(loc) >= 4 && loc[2] >= 0 {
			arg = in.Span(loc[2], loc[3])
		}
		return Intent{Tool: tool, Arg: arg}, true
	}}
}

// literalRule matches any of res and returns a fixed argument.
func literalRule(name, tool, arg string, res ...*regexp.Regexp) IntentRule {
	return IntentRule{Name: name, Match: func(in RouteInput) (Intent, bool) {
		for _, re := range res {
			if re.MatchString(in.Folded) {
				return Intent{Tool: tool, Arg: arg}, true
			}
		}
		return Intent{}, false
	}}
}

// hasWord reports whether kw occurs in folded starting at a word boundary.
func hasWord(folded, kw string) bool {
	for off := 0; ; {
		i := strings.Index(folded[off:], kw)
		if i < 0 {
			return false
		}
		i += off
		if i == 0 {
			return true
		}
		prev, _ := utf8.DecodeLastRuneInString(folded[:i])
		if !isWordRune(prev) {
			return true
		}
		off = i + 1
	}
}

func hasAnyWord(folded string, kws ...string) bool {
	for _, kw := range kws {
		if hasWord(folded, kw) {
			return true
		}
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// keywordRule routes on topic keywords and passes the lower-cased text.
func keywordRule(name string, keywords []string, pick func(folded string) string) IntentRule {
	return IntentRule{Name: name, Match: func(in RouteInput) (Intent, bool) {
		if !hasAnyWord(in.Folded, keywords...) {
			return Intent{}, false
		}
		return Intent{Tool: pick(in.Folded), Arg: in.Lower}, true
	}}
}

func fixed(tool string) func(string) string { return func(string) string { return tool } }

const readVerbs = `(?:czytaj|odczytaj|wczytaj|przeczytaj)`
const summaryVerbs = `(?:podsumuj|stresc|streszcz)`

var (
	reFileRead = regexp.MustCompile(`(?:^|\s)(?:czytaj|odczytaj|wczytaj|przeczytaj|pokaz|wyswietl)\s+(?:zawartosc\s+)?(?:pliku|plik)\s*:?\s+(.+)$`)
	reSummary  = regexp.MustCompile(`^` + summaryVerbs + `\s+(.+)$`)

	reLastFile1 = regexp.MustCompile(`^o czym jest ten plik(?:\s+co\s+przeczytal(?:as|am))?\s*\??$`)
	reLastFile2 = regexp.MustCompile(`^co bylo ciekawego w tym pliku\s*\??$`)

	reDrivers = regexp.MustCompile(`^sprawdz\s+sterowniki\b`)

	reTime1 = regexp.MustCompile(`^(?:ktora|ktorej)\s+(?:jest\s+)?godzina(?:\s+(?:teraz|jest))?\s*\??$`)
	reTime2 = regexp.MustCompile(`^ktora\s+jest\s+teraz\s*\??$`)

	reCommands1 = regexp.MustCompile(`^(?:pokaz|wyswietl|lista)\s+komend\w*`)
	reCommands2 = regexp.MustCompile(`^(?:jakie\s+)?komendy\s*\??$`)

	reSummaryShort = regexp.MustCompile(`^` + readVerbs + `\s+(.+?)\s+i\s+` + summaryVerbs + `\s+(?:krotko|krocej)$`)
	reSummaryLong  = regexp.MustCompile(`^` + readVerbs + `\s+(.+?)\s+i\s+` + summaryVerbs + `\s+(?:dlugo|szczegolowo)$`)
	reSummaryN     = regexp.MustCompile(`^` + readVerbs + `\s+(.+?\s+)i\s+` + summaryVerbs + `(?:\s+\w+)?\s+(w\s+\d+\s+zdani(?:ach|a))$`)
	reSummaryTail  = regexp.MustCompile(`^` + readVerbs + `\s+(.+?)\s+i\s+` + summaryVerbs + `$`)
	reSummaryHead  = regexp.MustCompile(`^` + readVerbs + `\s+i\s+` + summaryVerbs + `\s+(.+)$`)

	reShortRead = regexp.MustCompile(`^(?:pokaz|wyswietl|przeczytaj)\s+(.+)$`)

	reFileEdit = []*regexp.Regexp{
		regexp.MustCompile(`^dodaj (?:na koncu|na poczatku|w srodku)\s+`),
		regexp.MustCompile(`^dodaj w linii numer\s+\d+\s+`),
		regexp.MustCompile(`^zahaszuj linie (?:nr|od)\s+`),
		regexp.MustCompile(`^zacznij plik\s+`),
	}

	reLogs = regexp.MustCompile(`\blog(?:i|ow)?\b`)

	reAppGuard   = regexp.MustCompile(`(?:^|\s)(?:monitoruj|pilnuj|guard)(?:\s+(.*))?$`)
	reAppControl = regexp.MustCompile(`(?:^|\s)(?:uruchom|otworz|wlacz)(?:\s+(.*))?$`)
)

var searchTriggers = []string{
	"sprawdz w internecie",
	"wyszukaj w internecie",
	"znajdz w internecie",
	"poszukaj w internecie",
	"szukaj w internecie",
	"aktualne informacje",
	"co nowego",
	"najswiezsze",
	"najnowsze informacje",
}

func internetSearchRule() IntentRule {
	return IntentRule{Name: "internet-search", Match: func(in RouteInput) (Intent, bool) {
		for _, trig := range searchTriggers {
			i := strings.Index(in.Folded, trig)
			if i < 0 {
				continue
			}
			query := strings.TrimSpace(in.Span(0, i) + " " + in.Span(i+len(trig), len(in.Folded)))
			query = strings.TrimSpace(strings.TrimLeft(query, ":,"))
			if query == "" {
				query = in.Text
			}
			return Intent{Tool: "INTERNET_SEARCH", Arg: query}, true
		}
		return Intent{}, false
	}}
}

func fileEditRule() IntentRule {
	return IntentRule{Name: "file-edit", Match: func(in RouteInput) (Intent, bool) {
		for _, re := range reFileEdit {
			if re.MatchString(in.Folded) {
				return Intent{Tool: "FILE_EDIT", Arg: in.Text}, true
			}
		}
		return Intent{}, false
	}}
}

func shortReadRule() IntentRule {
	return IntentRule{Name: "file-read-short", Match: func(in RouteInput) (Intent, bool) {
		loc := reShortRead.FindStringSubmatchIndex(in.Folded)
		if loc == nil {
			return Intent{}, false
		}
		path := in.Span(loc[2], loc[3])
		if !strings.ContainsAny(path, "/.") {
			return Intent{}, false
		}
		return Intent{Tool: "FILE_READ", Arg: path}, true
	}}
}

func summaryWithCountRule() IntentRule {
	return IntentRule{Name: "file-summary-sentences", Match: func(in RouteInput) (Intent, bool) {
		loc := reSummaryN.FindStringSubmatchIndex(in.Folded)
		if loc == nil {
			return Intent{}, false
		}
		return Intent{Tool: "FILE_READ_SUMMARY", Arg: in.Span(loc[2], loc[3]) + " " + in.Span(loc[4], loc[5])}, true
	}}
}

func appRule(name, tool string, re *regexp.Regexp) IntentRule {
	return IntentRule{Name: name, Match: func(in RouteInput) (Intent, bool) {
		loc := re.FindStringSubmatchIndex(in.Folded)
		if loc == nil {
			return Intent{}, false
		}
		arg := ""
		if loc[2] >= 0 {
			arg = in.Span(loc[2], loc[3])
		}
		return Intent{Tool: tool, Arg: arg}, true
	}}
}

// DefaultIntentRules is Lyra's routing table. Order matters: the first
// match wins, so "dyski" beats the generic system keywords.
func DefaultIntentRules() []IntentRule {
	return []IntentRule{
		patternRule("file-read", "FILE_READ", reFileRead),
		patternRule("file-summary", "FILE_READ_SUMMARY", reSummary),
		literalRule("last-file-summary", "LAST_FILE_SUMMARY", "", reLastFile1, reLastFile2),
		literalRule("drivers", "SYSTEM_DIAG", "sterowniki", reDrivers),
		internetSearchRule(),
		literalRule("time", "SYSTEM_DIAG", "time", reTime1, reTime2),
		literalRule("command-list", "COMMAND_LIST", "", reCommands1, reCommands2),
		patternRule("file-summary-short", "FILE_READ_SUMMARY_SHORT", reSummaryShort),
		patternRule("file-summary-long", "FILE_READ_SUMMARY_LONG", reSummaryLong),
		summaryWithCountRule(),
		patternRule("file-summary-tail", "FILE_READ_SUMMARY", reSummaryTail),
		patternRule("file-summary-head", "FILE_READ_SUMMARY", reSummaryHead),
		shortReadRule(),
		fileEditRule(),
		keywordRule("disk", []string{
			"dysk", "partycj", "wolne miejsce", "ile mam miejsca", "miejsce na dysku", "przestrzen na dysku",
		}, fixed("DISK_DIAG")),
		keywordRule("network", []string{
			"internet", "siec", "sieci", "wifi", "wi-fi", "ping", "lan", "ethernet", "polaczenie", "lacze",
		}, func(f string) string {
			switch {
			case containsAny(f, "napraw", "restart"):
				return "NET_FIX"
			case containsAny(f, "diagnoz", "sprawdz", "testuj"):
				return "NET_DIAG"
			}
			return "NET_INFO"
		}),
		keywordRule("audio", []string{
			"dzwiek", "audio", "glosnosc", "glosnik", "mikrofon", "mikro", "sound",
		}, func(f string) string {
			if containsAny(f, "napraw", "restart") {
				return "AUDIO_FIX"
			}
			return "AUDIO_DIAG"
		}),
		keywordRule("system", []string{
			"procesor", "cpu", "ram", "pamiec", "system", "kernel", "update", "procesy", "obciazenie",
		}, func(f string) string {
			switch {
			case strings.Contains(f, "opt"):
				return "AUTO_OPTIMIZE"
			case strings.Contains(f, "napraw"):
				return "SYSTEM_FIX"
			}
			return "SYSTEM_DIAG"
		}),
		appRule("app-guard", "APP_GUARD", reAppGuard),
		appRule("app-control", "APP_CONTROL", reAppControl),
		{Name: "logs", Match: func(in RouteInput) (Intent, bool) {
			if reLogs.MatchString(in.Folded) || containsAny(in.Folded, "dziennik", "journal") {
				return Intent{Tool: "LOG_ANALYZE", Arg: in.Lower}, true
			}
			return Intent{}, false
		}},
		keywordRule("desktop", []string{"cinnamon", "ekran", "pulpit", "panel", "tray"}, fixed("DESKTOP_DIAG")),
	}
}
