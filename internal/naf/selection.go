package naf

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ExpandSelection turns the user's section and code choices into the concrete
// NAF code list sent to the search API, sorted ascending.
//
// A selected section with no chosen codes under it means "everything in that
// section": the whole section is expanded from the reference table. Codes
// chosen under a selected section narrow that section to just those codes.
// Codes outside any selected section are kept as explicit additions.
func ExpandSelection(sections, codes []string, table *Table) ([]string, error) {
	if len(sections) == 0 && len(codes) == 0 {
		return nil, eris.New("naf: empty selection, pick at least one section or code")
	}

	selected := make(map[string]bool, len(sections))
	for _, s := range sections {
		letter := strings.ToUpper(strings.TrimSpace(s))
		if _, ok := SectionLabel(letter); !ok {
			return nil, eris.Errorf("naf: unknown section %q", s)
		}
		selected[letter] = true
	}

	bySection := make(map[string][]string)
	var loose []string
	for _, c := range codes {
		code := strings.TrimSpace(c)
		letter, ok := SectionForCode(code)
		if !ok {
			return nil, eris.Errorf("naf: invalid code %q", c)
		}
		if selected[letter] {
			bySection[letter] = append(bySection[letter], code)
		} else {
			loose = append(loose, code)
		}
	}

	result := make(map[string]struct{})
	for letter := range selected {
		chosen := bySection[letter]
		if len(chosen) == 0 {
			chosen = table.CodesInSection(letter)
			if len(chosen) == 0 {
				zap.L().Warn("section has no codes in the reference table",
					zap.String("section", letter))
			}
		}
		for _, c := range chosen {
			result[c] = struct{}{}
		}
	}
	for _, c := range loose {
		result[c] = struct{}{}
	}

	out := make([]string, 0, len(result))
	for c := range result {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}
