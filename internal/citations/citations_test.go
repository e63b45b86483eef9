package citations_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/analyst/internal/citations"
)

func TestExtractUnitIDs(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "single id",
			text: "The Fed raised rates (Z7O1DCHS7) last week.",
			want: []string{"Z7O1DCHS7"},
		},
		{
			name: "adjacent ids and duplicates",
			text: "Confirmed twice (K8M2NQWER)(A3B4C5D6E), then again (K8M2NQWER).",
			want: []string{"A3B4C5D6E", "K8M2NQWER"},
		},
		{
			name: "legacy prefix resolves to raw id",
			text: "Older drafts cite (unit_REALID123) like this.",
			want: []string{"REALID123"},
		},
		{
			name: "wrong lengths ignored",
			text: "Not ids: (ABC123) (TOOLONGID12) (abc123def).",
			want: nil,
		},
		{
			name: "empty text",
			text: "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, citations.ExtractUnitIDs(tt.text))
		})
	}
}

func TestExtractSectionRefs(t *testing.T) {
	text := "Summarizing (sec_gold_current) and (sec_gold_risks), not (section_gold)."
	assert.Equal(t, []string{"sec_gold_current", "sec_gold_risks"}, citations.ExtractSectionRefs(text))
}

func TestValidate_FabricatedIDCaught(t *testing.T) {
	text := "Gold rallied on safe-haven flows (Z7O1DCHS7), though one desk disagrees (Z9Z9Z9Z9Z)."

	report := citations.Validate(text, []string{"Z7O1DCHS7", "K8M2NQWER"}, nil)

	assert.False(t, report.Valid())
	assert.Equal(t, 1, report.IssueCount())
	assert.Equal(t, []string{"Z9Z9Z9Z9Z"}, report.InvalidUnitIDs)
	assert.Equal(t, []string{"Z7O1DCHS7", "Z9Z9Z9Z9Z"}, report.UnitIDs)
}

func TestValidate_NilAllowedSkipsClass(t *testing.T) {
	text := "Claim (Z9Z9Z9Z9Z) with ref (sec_gold_current)."

	report := citations.Validate(text, nil, nil)
	assert.True(t, report.Valid(), "nil allowed sets mean nothing is checked")

	report = citations.Validate(text, []string{}, []string{})
	assert.False(t, report.Valid(), "empty allowed sets reject every citation")
	assert.Equal(t, []string{"Z9Z9Z9Z9Z"}, report.InvalidUnitIDs)
	assert.Equal(t, []string{"sec_gold_current"}, report.InvalidSectionRefs)
}

func TestValidate_SectionRefs(t *testing.T) {
	text := "From (sec_gold_current) and (sec_gold_outlook)."

	report := citations.Validate(text, nil, []string{"sec_gold_current"})
	assert.False(t, report.Valid())
	assert.Equal(t, []string{"sec_gold_outlook"}, report.InvalidSectionRefs)
}

func TestRetryInstructions(t *testing.T) {
	report := citations.Validate(
		"Bad claim (Z9Z9Z9Z9Z) and bad ref (sec_gold_nope).",
		[]string{"Z7O1DCHS7"},
		[]string{"sec_gold_current"},
	)
	require.False(t, report.Valid())

	msg := report.RetryInstructions()
	assert.Contains(t, msg, "(Z9Z9Z9Z9Z)")
	assert.Contains(t, msg, "(sec_gold_nope)")
	assert.Contains(t, msg, "Do not invent new ids")

	clean := citations.Validate("All good (Z7O1DCHS7).", []string{"Z7O1DCHS7"}, nil)
	assert.Empty(t, clean.RetryInstructions())
}
