package policy

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

func findByID(t *testing.T, merged []MergedRequirement, id uuid.UUID) MergedRequirement {
	t.Helper()
	for _, m := range merged {
		if m.DocTypeID == id {
			return m
		}
	}
	t.Fatalf("doc type %s not found in merged output", id)
	return MergedRequirement{}
}

func TestMergeEmptyInputs(t *testing.T) {
	require.Empty(t, Merge(nil, nil))
	require.Empty(t, Merge([]Requirement{}, []Requirement{}))
}

func TestMergeAppliesDefaults(t *testing.T) {
	docType := uuid.New()

	merged := Merge([]Requirement{{DocTypeID: docType.String()}}, nil)

	require.Len(t, merged, 1)
	require.Equal(t, docType, merged[0].DocTypeID)
	require.True(t, merged[0].IsMandatory)
	require.Equal(t, 1, merged[0].MinItems)
	require.Equal(t, 1, merged[0].MaxItems)
	require.Equal(t, SourceProgram, merged[0].Source)
}

func TestMergeDeduplicatesAcrossSources(t *testing.T) {
	shared := uuid.New()
	programOnly := uuid.New()
	studentOnly := uuid.New()

	programReqs := []Requirement{
		{DocTypeID: shared.String(), IsMandatory: boolPtr(false), MinItems: intPtr(1), MaxItems: intPtr(2)},
		{DocTypeID: programOnly.String()},
	}
	studentReqs := []Requirement{
		{DocTypeID: shared.String(), IsMandatory: boolPtr(true), MinItems: intPtr(3), MaxItems: intPtr(1)},
		{DocTypeID: studentOnly.String(), IsMandatory: boolPtr(false)},
	}

	merged := Merge(programReqs, studentReqs)
	require.Len(t, merged, 3)

	got := findByID(t, merged, shared)
	require.True(t, got.IsMandatory, "mandatory must be OR across sources")
	require.Equal(t, 3, got.MinItems, "min_items must be max across sources")
	require.Equal(t, 2, got.MaxItems, "max_items must be max across sources")
	require.Equal(t, SourceProgram, got.Source, "program provenance wins on overlap")

	require.Equal(t, SourceProgram, findByID(t, merged, programOnly).Source)
	require.Equal(t, SourceStudent, findByID(t, merged, studentOnly).Source)
}

func TestMergeDuplicatesWithinOneList(t *testing.T) {
	docType := uuid.New()

	merged := Merge([]Requirement{
		{DocTypeID: docType.String(), IsMandatory: boolPtr(false), MaxItems: intPtr(2)},
		{DocTypeID: docType.String(), IsMandatory: boolPtr(true), MinItems: intPtr(2)},
	}, nil)

	require.Len(t, merged, 1)
	require.True(t, merged[0].IsMandatory)
	require.Equal(t, 2, merged[0].MinItems)
	require.Equal(t, 2, merged[0].MaxItems)
}

func TestMergeDropsMalformedEntries(t *testing.T) {
	valid := uuid.New()

	merged := Merge([]Requirement{
		{DocTypeID: ""},
		{DocTypeID: "not-a-uuid"},
		{DocTypeID: valid.String()},
	}, []Requirement{
		{DocTypeID: uuid.Nil.String()},
	})

	require.Len(t, merged, 1)
	require.Equal(t, valid, merged[0].DocTypeID)
}

func TestMergeStudentOverlapKeepsProgramSource(t *testing.T) {
	shared := uuid.New()

	// Student entry processed second must not demote program provenance,
	// and a later program duplicate must promote a student-sourced entry.
	merged := Merge(
		[]Requirement{{DocTypeID: shared.String()}},
		[]Requirement{{DocTypeID: shared.String(), MinItems: intPtr(2)}},
	)
	require.Len(t, merged, 1)
	require.Equal(t, SourceProgram, merged[0].Source)
	require.Equal(t, 2, merged[0].MinItems)
}
