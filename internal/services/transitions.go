package services

import (
	"github.com/google/uuid"

	"example.com/studyabroad/services/applications/internal/apperrors"
	"example.com/studyabroad/services/applications/internal/auth"
	"example.com/studyabroad/services/applications/internal/models"
)

// TransitionType identifies a status transition request.
type TransitionType string

const (
	TransitionSubmit      TransitionType = "submit"
	TransitionStartReview TransitionType = "start_review"
	TransitionOffer       TransitionType = "offer"
	TransitionReject      TransitionType = "reject"
	TransitionWithdraw    TransitionType = "withdraw"
	TransitionAcceptOffer TransitionType = "accept_offer"
)

// transitionRule is the policy for one transition type. ConditionalOffer is
// a reachable status reserved for future rules and appears in no rule.
type transitionRule struct {
	From  []models.Status
	To    models.Status
	Roles []auth.Role
}

var transitionRules = map[TransitionType]transitionRule{
	TransitionSubmit: {
		From:  []models.Status{models.StatusDraft},
		To:    models.StatusSubmitted,
		Roles: []auth.Role{auth.RoleStudent},
	},
	TransitionStartReview: {
		From:  []models.Status{models.StatusSubmitted},
		To:    models.StatusUnderReview,
		Roles: []auth.Role{auth.RoleStaff},
	},
	TransitionOffer: {
		From:  []models.Status{models.StatusUnderReview},
		To:    models.StatusOffer,
		Roles: []auth.Role{auth.RoleStaff},
	},
	TransitionReject: {
		From:  []models.Status{models.StatusUnderReview, models.StatusOffer},
		To:    models.StatusRejected,
		Roles: []auth.Role{auth.RoleStaff},
	},
	TransitionWithdraw: {
		From:  []models.Status{models.StatusDraft, models.StatusSubmitted, models.StatusUnderReview, models.StatusOffer},
		To:    models.StatusWithdrawn,
		Roles: []auth.Role{auth.RoleStudent},
	},
	TransitionAcceptOffer: {
		From:  []models.Status{models.StatusOffer},
		To:    models.StatusAccepted,
		Roles: []auth.Role{auth.RoleStudent},
	},
}

// ruleFor looks up the rule for a transition type.
func ruleFor(transitionType TransitionType) (transitionRule, error) {
	rule, ok := transitionRules[transitionType]
	if !ok {
		return transitionRule{}, apperrors.Newf(apperrors.KindBadRequest, "unknown transition type %q", transitionType)
	}
	return rule, nil
}

// allowsRole reports whether the rule permits the given actor role.
func (r transitionRule) allowsRole(role auth.Role) bool {
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

// allowsFrom reports whether the rule permits leaving the given status.
func (r transitionRule) allowsFrom(status models.Status) bool {
	for _, from := range r.From {
		if from == status {
			return true
		}
	}
	return false
}

// checkTransition validates role, ownership and current status against the
// rule. A disallowed from-status is a Conflict for submit (double-submit
// refresh case) and an UnprocessableTransition for everything else.
func checkTransition(app *models.Application, identity auth.Identity, transitionType TransitionType, rule transitionRule) error {
	if identity.Role == auth.RoleStudent && app.StudentID != identity.UserID {
		return apperrors.New(apperrors.KindForbidden, "not your application")
	}
	if !rule.allowsRole(identity.Role) {
		return apperrors.Newf(apperrors.KindForbidden, "role %q may not perform %q", identity.Role, transitionType)
	}
	if !rule.allowsFrom(app.Status) {
		if transitionType == TransitionSubmit {
			return apperrors.Newf(apperrors.KindConflict, "application cannot be submitted from status %q", app.Status)
		}
		return apperrors.Newf(apperrors.KindUnprocessableTransition, "transition %q not allowed from status %q", transitionType, app.Status)
	}
	return nil
}

// MissingDocument describes one unmet mandatory requirement at submission.
type MissingDocument struct {
	DocTypeID string `json:"doc_type_id"`
	MinItems  int    `json:"min_items"`
	Attached  int64  `json:"attached"`
}

// missingMandatoryDocuments collects every mandatory requirement whose
// attached count falls short of min_items, not just the first.
func missingMandatoryDocuments(requirements []models.RequiredDocument, counts map[uuid.UUID]int64) []MissingDocument {
	var missing []MissingDocument
	for _, req := range requirements {
		if !req.IsMandatory {
			continue
		}
		attached := counts[req.DocTypeID]
		if attached < int64(req.MinItems) {
			missing = append(missing, MissingDocument{
				DocTypeID: req.DocTypeID.String(),
				MinItems:  req.MinItems,
				Attached:  attached,
			})
		}
	}
	return missing
}
