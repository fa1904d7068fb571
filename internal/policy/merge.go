package policy

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Provenance of a merged requirement.
const (
	SourceProgram = "program"
	SourceStudent = "student"
)

// Requirement is a document requirement as returned by the catalog service.
// Optional fields are pointers so absent values can fall back to defaults
// (mandatory, one item).
type Requirement struct {
	DocTypeID   string `json:"doc_type_id"`
	IsMandatory *bool  `json:"is_mandatory"`
	MinItems    *int   `json:"min_items"`
	MaxItems    *int   `json:"max_items"`
}

// MergedRequirement is one deduplicated row of the policy snapshot.
type MergedRequirement struct {
	DocTypeID   uuid.UUID
	IsMandatory bool
	MinItems    int
	MaxItems    int
	Source      string
}

// Merge unions program and student requirement lists by doc type. When both
// sides specify the same doc type: mandatory is OR'd, min/max items take the
// stricter (larger) value, and the source stays "program" if any program
// entry contributed. Entries with a missing or malformed doc_type_id are
// dropped with a warning. Output order is not significant.
func Merge(programReqs, studentReqs []Requirement) []MergedRequirement {
	byID := make(map[uuid.UUID]*MergedRequirement)
	order := make([]uuid.UUID, 0, len(programReqs)+len(studentReqs))

	upsert := func(items []Requirement, source string) {
		for _, it := range items {
			docTypeID, err := uuid.Parse(it.DocTypeID)
			if err != nil || docTypeID == uuid.Nil {
				log.Warn().
					Str("doc_type_id", it.DocTypeID).
					Str("source", source).
					Msg("Dropping requirement with invalid doc_type_id")
				continue
			}

			isMandatory := true
			if it.IsMandatory != nil {
				isMandatory = *it.IsMandatory
			}
			minItems := 1
			if it.MinItems != nil {
				minItems = *it.MinItems
			}
			maxItems := 1
			if it.MaxItems != nil {
				maxItems = *it.MaxItems
			}

			if prev, ok := byID[docTypeID]; ok {
				prev.IsMandatory = prev.IsMandatory || isMandatory
				if minItems > prev.MinItems {
					prev.MinItems = minItems
				}
				if maxItems > prev.MaxItems {
					prev.MaxItems = maxItems
				}
				if prev.Source != SourceProgram && source == SourceProgram {
					prev.Source = SourceProgram
				}
				continue
			}

			byID[docTypeID] = &MergedRequirement{
				DocTypeID:   docTypeID,
				IsMandatory: isMandatory,
				MinItems:    minItems,
				MaxItems:    maxItems,
				Source:      source,
			}
			order = append(order, docTypeID)
		}
	}

	upsert(programReqs, SourceProgram)
	upsert(studentReqs, SourceStudent)

	merged := make([]MergedRequirement, 0, len(order))
	for _, id := range order {
		merged = append(merged, *byID[id])
	}
	return merged
}
