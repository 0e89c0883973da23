package naf

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// Bracket is one INSEE workforce bracket (tranche d'effectif salarié).
// Value is the bracket's lower bound, used for numeric exports and marker
// sizing.
type Bracket struct {
	Code  string
	Label string
	Value int
}

// brackets in INSEE order. NN marks units with no employer activity at all,
// distinct from 00 (zero employees at the establishment).
var brackets = []Bracket{
	{"NN", "Non employeuse", 0},
	{"00", "0 salarié", 0},
	{"01", "1 ou 2 salariés", 1},
	{"02", "3 à 5 salariés", 3},
	{"03", "6 à 9 salariés", 6},
	{"11", "10 à 19 salariés", 10},
	{"12", "20 à 49 salariés", 20},
	{"21", "50 à 99 salariés", 50},
	{"22", "100 à 199 salariés", 100},
	{"31", "200 à 249 salariés", 200},
	{"32", "250 à 499 salariés", 250},
	{"41", "500 à 999 salariés", 500},
	{"42", "1 000 à 1 999 salariés", 1000},
	{"51", "2 000 à 4 999 salariés", 2000},
	{"52", "5 000 à 9 999 salariés", 5000},
	{"53", "10 000 salariés et plus", 10000},
}

// markerRadii give the map circle radius in meters per bracket, so bigger
// employers read bigger on the map.
var markerRadii = map[string]int{
	"NN": 15, "00": 20, "01": 30, "02": 40, "03": 50,
	"11": 70, "12": 90, "21": 120, "22": 150, "31": 180,
	"32": 220, "41": 260, "42": 300, "51": 350, "52": 400, "53": 450,
}

// Group is a named bundle of brackets for coarse selection.
type Group struct {
	Code     string
	Label    string
	Brackets []string
}

var groups = []Group{
	{"INDIV", "0 salarié (entreprise individuelle)", []string{"00"}},
	{"TPE", "1-9 salariés (TPE)", []string{"01", "02", "03"}},
	{"PME_S", "10-49 salariés (PME)", []string{"11", "12"}},
	{"PME_M", "50-249 salariés (PME/ETI)", []string{"21", "22"}},
	{"GE", "250+ salariés (Grande Ent.)", []string{"31", "32", "41", "42", "51", "52", "53"}},
	{"NN", "Unités non-employeuses", []string{"NN"}},
}

// Brackets lists every workforce bracket in INSEE order.
func Brackets() []Bracket {
	out := make([]Bracket, len(brackets))
	copy(out, brackets)
	return out
}

// AllBracketCodes returns every bracket code in INSEE order.
func AllBracketCodes() []string {
	codes := make([]string, len(brackets))
	for i, b := range brackets {
		codes[i] = b.Code
	}
	return codes
}

// ValidBracket reports whether code is a known bracket code.
func ValidBracket(code string) bool {
	for _, b := range brackets {
		if b.Code == code {
			return true
		}
	}
	return false
}

// BracketLabel returns the human label for a bracket code, or "N/A".
func BracketLabel(code string) string {
	for _, b := range brackets {
		if b.Code == code {
			return b.Label
		}
	}
	return "N/A"
}

// BracketValue returns the numeric lower bound of a bracket, 0 when unknown.
func BracketValue(code string) int {
	for _, b := range brackets {
		if b.Code == code {
			return b.Value
		}
	}
	return 0
}

// MarkerRadius returns the map marker radius in meters for a bracket code.
func MarkerRadius(code string) int {
	if r, ok := markerRadii[code]; ok {
		return r
	}
	return 10
}

// Groups lists the named bracket groups.
func Groups() []Group {
	out := make([]Group, len(groups))
	copy(out, groups)
	return out
}

// DefaultGroups are the groups selected when the user picks nothing: every
// employer of ten or more.
func DefaultGroups() []string {
	return []string{"PME_S", "PME_M", "GE"}
}

// ExpandGroups resolves group names and explicit bracket codes into the
// deduplicated bracket set, in INSEE order. Group names are matched
// case-insensitively.
func ExpandGroups(groupCodes, bracketCodes []string) ([]string, error) {
	want := make(map[string]bool)

	for _, g := range groupCodes {
		name := strings.ToUpper(strings.TrimSpace(g))
		found := false
		for _, grp := range groups {
			if grp.Code == name {
				for _, b := range grp.Brackets {
					want[b] = true
				}
				found = true
				break
			}
		}
		if !found {
			return nil, eris.Errorf("naf: unknown headcount group %q", g)
		}
	}

	for _, c := range bracketCodes {
		code := strings.ToUpper(strings.TrimSpace(c))
		if !ValidBracket(code) {
			return nil, eris.Errorf("naf: unknown headcount bracket %q", c)
		}
		want[code] = true
	}

	if len(want) == 0 {
		return nil, eris.New("naf: empty headcount selection")
	}

	out := make([]string, 0, len(want))
	for _, b := range brackets {
		if want[b.Code] {
			out = append(out, b.Code)
		}
	}
	return out, nil
}

// SortBrackets orders bracket codes in INSEE order, dropping unknowns.
func SortBrackets(codes []string) []string {
	rank := make(map[string]int, len(brackets))
	for i, b := range brackets {
		rank[b.Code] = i
	}
	var out []string
	for _, c := range codes {
		if _, ok := rank[c]; ok {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return rank[out[i]] < rank[out[j]] })
	return out
}
