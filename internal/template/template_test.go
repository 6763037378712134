package template

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlots(t *testing.T) {
	body := "Dear {{FIRM_NAME}},\n{{CUSTOM_1}} and {{CUSTOM_2}}.\nSincerely, {{NAME}} ({{CUSTOM_1}})"
	assert.Equal(t, []string{"FIRM_NAME", "CUSTOM_1", "CUSTOM_2", "NAME"}, Slots(body))
}

func TestCustomSlots_ExcludesReserved(t *testing.T) {
	body := "{{NAME}} {{PHONE}} {{EMAIL}} {{FIRM_NAME}} {{POSITION}} {{CUSTOM_1}}"
	assert.Equal(t, []string{"CUSTOM_1"}, CustomSlots(body))
}

func TestValidate_Consistent(t *testing.T) {
	tpl := &Template{
		Body: "Intro {{CUSTOM_1}} middle {{CUSTOM_2}} end {{NAME}}",
		Definitions: []SlotDefinition{
			{Name: "CUSTOM_1", Description: "opener"},
			{Name: "CUSTOM_2", Description: "closer"},
		},
	}
	assert.NoError(t, tpl.Validate())
}

func TestValidate_MissingDefinition(t *testing.T) {
	tpl := &Template{
		Body:        "Intro {{CUSTOM_1}}",
		Definitions: nil,
	}
	err := tpl.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CUSTOM_1")
}

func TestValidate_OrphanDefinition(t *testing.T) {
	tpl := &Template{
		Body: "No slots here",
		Definitions: []SlotDefinition{
			{Name: "CUSTOM_1", Description: "unused"},
		},
	}
	err := tpl.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "never referenced")
}

const sampleDefinitions = `[CUSTOM_1]: why this firm
PROMPT: Write one sentence about why the applicant wants to join this firm.
EXAMPLES: I have long admired Studio A's adaptive reuse projects.
CONSTRAINTS: 30 words. two sentences
KEY INFORMATIONS: adaptive reuse, Rhino, competition experience

[CUSTOM_2]: relevant project
PROMPT: Describe one relevant project matching the firm's specialty.
EXAMPLES: My thesis proposed a timber community hall.
CONSTRAINTS: 40 words
KEY INFORMATIONS: timber construction, thesis project`

func TestParseDefinitions(t *testing.T) {
	defs := ParseDefinitions(sampleDefinitions)
	require.Len(t, defs, 2)

	assert.Equal(t, "CUSTOM_1", defs[0].Name)
	assert.Equal(t, "why this firm", defs[0].Description)
	assert.Equal(t, "Write one sentence about why the applicant wants to join this firm.", defs[0].Prompt)
	assert.Equal(t, "I have long admired Studio A's adaptive reuse projects.", defs[0].Example)
	assert.Equal(t, "30 words. two sentences", defs[0].Constraints)
	assert.Equal(t, "adaptive reuse, Rhino, competition experience", defs[0].KeyInfo)

	assert.Equal(t, "CUSTOM_2", defs[1].Name)
	assert.Equal(t, "timber construction, thesis project", defs[1].KeyInfo)
}

func TestParseDefinitions_ContinuationLines(t *testing.T) {
	text := `[CUSTOM_1]: multi-line prompt
PROMPT: First line of the instruction.
Second line continues the instruction.
CONSTRAINTS: 20 words`

	defs := ParseDefinitions(text)
	require.Len(t, defs, 1)
	assert.Equal(t, "First line of the instruction.\nSecond line continues the instruction.", defs[0].Prompt)
}

func TestParseDefinitions_MalformedLinesSkipped(t *testing.T) {
	text := `random preamble the model emitted
[CUSTOM_1]: desc
PROMPT: do the thing`

	defs := ParseDefinitions(text)
	require.Len(t, defs, 1)
	assert.Equal(t, "CUSTOM_1", defs[0].Name)
}

func TestFormatDefinitions_RoundTrip(t *testing.T) {
	defs := ParseDefinitions(sampleDefinitions)
	formatted := FormatDefinitions(defs)
	reparsed := ParseDefinitions(formatted)

	if diff := cmp.Diff(defs, reparsed); diff != "" {
		t.Errorf("definitions changed across format/parse round trip (-want +got):\n%s", diff)
	}
}
