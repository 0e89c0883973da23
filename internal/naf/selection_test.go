package naf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selectionTable(t *testing.T) *Table {
	t.Helper()
	table, err := ParseTable([]byte("Code,Libellé\n" +
		"62.01Z,Programmation informatique\n" +
		"62.02A,Conseil en systèmes informatiques\n" +
		"63.11Z,Traitement de données\n" +
		"43.21A,Installation électrique\n" +
		"43.22A,Plomberie\n" +
		"47.11B,Commerce d'alimentation générale\n"))
	require.NoError(t, err)
	return table
}

func TestExpandSelection_WholeSection(t *testing.T) {
	t.Parallel()

	codes, err := ExpandSelection([]string{"J"}, nil, selectionTable(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"62.01Z", "62.02A", "63.11Z"}, codes)
}

func TestExpandSelection_SectionNarrowedByCodes(t *testing.T) {
	t.Parallel()

	codes, err := ExpandSelection([]string{"J"}, []string{"62.01Z"}, selectionTable(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"62.01Z"}, codes)
}

func TestExpandSelection_MixedSections(t *testing.T) {
	t.Parallel()

	// J narrowed to one code, F fully expanded.
	codes, err := ExpandSelection([]string{"J", "F"}, []string{"62.01Z"}, selectionTable(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"43.21A", "43.22A", "62.01Z"}, codes)
}

func TestExpandSelection_LooseCodeOutsideSections(t *testing.T) {
	t.Parallel()

	codes, err := ExpandSelection([]string{"F"}, []string{"47.11B"}, selectionTable(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"43.21A", "43.22A", "47.11B"}, codes)
}

func TestExpandSelection_CodesOnly(t *testing.T) {
	t.Parallel()

	codes, err := ExpandSelection(nil, []string{"62.01Z", "43.21A"}, selectionTable(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"43.21A", "62.01Z"}, codes)
}

func TestExpandSelection_Dedup(t *testing.T) {
	t.Parallel()

	codes, err := ExpandSelection([]string{"J"}, []string{"62.01Z", "62.01Z"}, selectionTable(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"62.01Z"}, codes)
}

func TestExpandSelection_EmptySelection(t *testing.T) {
	t.Parallel()

	_, err := ExpandSelection(nil, nil, selectionTable(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty selection")
}

func TestExpandSelection_UnknownSection(t *testing.T) {
	t.Parallel()

	_, err := ExpandSelection([]string{"Z"}, nil, selectionTable(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown section")
}

func TestExpandSelection_InvalidCode(t *testing.T) {
	t.Parallel()

	_, err := ExpandSelection([]string{"J"}, []string{"not-a-code"}, selectionTable(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid code")
}

func TestExpandSelection_CaseInsensitiveSections(t *testing.T) {
	t.Parallel()

	codes, err := ExpandSelection([]string{"j"}, nil, selectionTable(t))
	require.NoError(t, err)
	assert.Len(t, codes, 3)
}
