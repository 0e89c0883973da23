// Package naf holds the French activity-classification reference data: the 21
// NAF rev. 2 sections, the division-to-section mapping, the code/label table
// loaded from a local CSV, and the INSEE workforce brackets.
package naf

import (
	"fmt"
	"strconv"
	"strings"
)

// Section is one top-level NAF section.
type Section struct {
	Letter string
	Label  string
}

var sections = []Section{
	{"A", "Agriculture, sylviculture et pêche"},
	{"B", "Industries extractives"},
	{"C", "Industrie manufacturière"},
	{"D", "Electricité, gaz, vapeur et air conditionné"},
	{"E", "Eau, assainissement, gestion déchets, dépollution"},
	{"F", "Construction"},
	{"G", "Commerce ; réparation auto / moto"},
	{"H", "Transports et entreposage"},
	{"I", "Hébergement et restauration"},
	{"J", "Information et communication"},
	{"K", "Activités financières et d'assurance"},
	{"L", "Activités immobilières"},
	{"M", "Activités spécialisées, scientifiques et techniques"},
	{"N", "Services administratifs et de soutien"},
	{"O", "Administration publique"},
	{"P", "Enseignement"},
	{"Q", "Santé humaine et action sociale"},
	{"R", "Arts, spectacles et activités récréatives"},
	{"S", "Autres activités de services"},
	{"T", "Activités des ménages en tant qu'employeurs"},
	{"U", "Activités extra-territoriales"},
}

// Sections lists the 21 NAF sections in order.
func Sections() []Section {
	out := make([]Section, len(sections))
	copy(out, sections)
	return out
}

// SectionLabel returns the label of a section letter.
func SectionLabel(letter string) (string, bool) {
	letter = strings.ToUpper(strings.TrimSpace(letter))
	for _, s := range sections {
		if s.Letter == letter {
			return s.Label, true
		}
	}
	return "", false
}

// sectionForDivision maps a two-digit NAF division to its section letter.
// Unassigned divisions (04, 34, 40, ...) return the empty string.
func sectionForDivision(div int) string {
	switch {
	case div >= 1 && div <= 3:
		return "A"
	case div >= 5 && div <= 9:
		return "B"
	case div >= 10 && div <= 33:
		return "C"
	case div == 35:
		return "D"
	case div >= 36 && div <= 39:
		return "E"
	case div >= 41 && div <= 43:
		return "F"
	case div >= 45 && div <= 47:
		return "G"
	case div >= 49 && div <= 53:
		return "H"
	case div == 55 || div == 56:
		return "I"
	case div >= 58 && div <= 63:
		return "J"
	case div >= 64 && div <= 66:
		return "K"
	case div == 68:
		return "L"
	case div >= 69 && div <= 75:
		return "M"
	case div >= 77 && div <= 82:
		return "N"
	case div == 84:
		return "O"
	case div == 85:
		return "P"
	case div >= 86 && div <= 88:
		return "Q"
	case div >= 90 && div <= 93:
		return "R"
	case div >= 94 && div <= 96:
		return "S"
	case div == 97 || div == 98:
		return "T"
	case div == 99:
		return "U"
	default:
		return ""
	}
}

// SectionForCode derives the section letter from a NAF code such as "62.01Z"
// or "6201Z". ok is false when the code carries no recognizable division.
func SectionForCode(code string) (string, bool) {
	code = strings.ReplaceAll(strings.TrimSpace(code), ".", "")
	if len(code) < 2 {
		return "", false
	}
	div, err := strconv.Atoi(code[:2])
	if err != nil {
		return "", false
	}
	letter := sectionForDivision(div)
	return letter, letter != ""
}

// sectionColors are the per-section map colors, RGB.
var sectionColors = map[string][3]uint8{
	"A": {210, 4, 45},
	"B": {139, 69, 19},
	"C": {255, 140, 0},
	"D": {255, 215, 0},
	"E": {173, 255, 47},
	"F": {255, 105, 180},
	"G": {0, 191, 255},
	"H": {70, 130, 180},
	"I": {255, 0, 0},
	"J": {128, 0, 128},
	"K": {0, 128, 0},
	"L": {160, 82, 45},
	"M": {0, 0, 128},
	"N": {128, 128, 128},
	"O": {0, 0, 0},
	"P": {255, 255, 0},
	"Q": {0, 255, 0},
	"R": {255, 20, 147},
	"S": {192, 192, 192},
	"T": {245, 245, 220},
	"U": {112, 128, 144},
}

// fallbackColor marks establishments whose section could not be derived.
var fallbackColor = [3]uint8{220, 220, 220}

// SectionColor returns the RGB map color for a section letter.
func SectionColor(letter string) [3]uint8 {
	if c, ok := sectionColors[strings.ToUpper(strings.TrimSpace(letter))]; ok {
		return c
	}
	return fallbackColor
}

// SectionColorHex returns the section color as a #rrggbb string.
func SectionColorHex(letter string) string {
	c := SectionColor(letter)
	return fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2])
}
