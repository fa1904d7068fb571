package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"example.com/studyabroad/services/applications/internal/apperrors"
	"example.com/studyabroad/services/applications/internal/auth"
	"example.com/studyabroad/services/applications/internal/models"
)

func TestTransitionRuleTable(t *testing.T) {
	owner := uuid.New()
	cases := []struct {
		name       string
		transition TransitionType
		role       auth.Role
		from       models.Status
		wantKind   apperrors.Kind
		wantTo     models.Status
	}{
		{"submit from draft", TransitionSubmit, auth.RoleStudent, models.StatusDraft, "", models.StatusSubmitted},
		{"submit twice", TransitionSubmit, auth.RoleStudent, models.StatusSubmitted, apperrors.KindConflict, ""},
		{"submit by staff", TransitionSubmit, auth.RoleStaff, models.StatusDraft, apperrors.KindForbidden, ""},
		{"start review", TransitionStartReview, auth.RoleStaff, models.StatusSubmitted, "", models.StatusUnderReview},
		{"start review by student", TransitionStartReview, auth.RoleStudent, models.StatusSubmitted, apperrors.KindForbidden, ""},
		{"start review from draft", TransitionStartReview, auth.RoleStaff, models.StatusDraft, apperrors.KindUnprocessableTransition, ""},
		{"offer", TransitionOffer, auth.RoleStaff, models.StatusUnderReview, "", models.StatusOffer},
		{"reject under review", TransitionReject, auth.RoleStaff, models.StatusUnderReview, "", models.StatusRejected},
		{"reject offered", TransitionReject, auth.RoleStaff, models.StatusOffer, "", models.StatusRejected},
		{"reject accepted", TransitionReject, auth.RoleStaff, models.StatusAccepted, apperrors.KindUnprocessableTransition, ""},
		{"withdraw draft", TransitionWithdraw, auth.RoleStudent, models.StatusDraft, "", models.StatusWithdrawn},
		{"withdraw offer", TransitionWithdraw, auth.RoleStudent, models.StatusOffer, "", models.StatusWithdrawn},
		{"withdraw by staff", TransitionWithdraw, auth.RoleStaff, models.StatusDraft, apperrors.KindForbidden, ""},
		{"withdraw rejected", TransitionWithdraw, auth.RoleStudent, models.StatusRejected, apperrors.KindUnprocessableTransition, ""},
		{"accept offer", TransitionAcceptOffer, auth.RoleStudent, models.StatusOffer, "", models.StatusAccepted},
		{"accept before offer", TransitionAcceptOffer, auth.RoleStudent, models.StatusUnderReview, apperrors.KindUnprocessableTransition, ""},
		{"accept by staff", TransitionAcceptOffer, auth.RoleStaff, models.StatusOffer, apperrors.KindForbidden, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rule, err := ruleFor(tc.transition)
			require.NoError(t, err)

			identity := auth.Identity{UserID: owner, Role: tc.role}
			if tc.role == auth.RoleStaff {
				identity.UserID = uuid.New()
			}
			app := &models.Application{ID: uuid.New(), StudentID: owner, Status: tc.from}

			err = checkTransition(app, identity, tc.transition, rule)
			if tc.wantKind != "" {
				require.Equal(t, tc.wantKind, apperrors.KindOf(err))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantTo, rule.To)
		})
	}
}

func TestRuleForUnknownTransition(t *testing.T) {
	_, err := ruleFor(TransitionType("promote"))
	require.True(t, apperrors.Is(err, apperrors.KindBadRequest))
}

func TestCheckTransitionOwnership(t *testing.T) {
	rule, err := ruleFor(TransitionWithdraw)
	require.NoError(t, err)

	app := &models.Application{ID: uuid.New(), StudentID: uuid.New(), Status: models.StatusDraft}
	stranger := auth.Identity{UserID: uuid.New(), Role: auth.RoleStudent}

	err = checkTransition(app, stranger, TransitionWithdraw, rule)
	require.True(t, apperrors.Is(err, apperrors.KindForbidden))
}

func TestConditionalOfferHasNoRule(t *testing.T) {
	for transitionType, rule := range transitionRules {
		require.NotEqual(t, models.StatusConditionalOffer, rule.To, "transition %q", transitionType)
		for _, from := range rule.From {
			require.NotEqual(t, models.StatusConditionalOffer, from, "transition %q", transitionType)
		}
	}
}

func TestMissingMandatoryDocuments(t *testing.T) {
	appID := uuid.New()
	met := uuid.New()
	unmet := uuid.New()
	partial := uuid.New()
	optional := uuid.New()

	requirements := []models.RequiredDocument{
		{ApplicationID: appID, DocTypeID: met, IsMandatory: true, MinItems: 1},
		{ApplicationID: appID, DocTypeID: unmet, IsMandatory: true, MinItems: 1},
		{ApplicationID: appID, DocTypeID: partial, IsMandatory: true, MinItems: 3},
		{ApplicationID: appID, DocTypeID: optional, IsMandatory: false, MinItems: 1},
	}
	counts := map[uuid.UUID]int64{met: 1, partial: 2}

	missing := missingMandatoryDocuments(requirements, counts)
	require.Len(t, missing, 2)

	byID := make(map[string]MissingDocument, len(missing))
	for _, m := range missing {
		byID[m.DocTypeID] = m
	}
	require.Equal(t, MissingDocument{DocTypeID: unmet.String(), MinItems: 1, Attached: 0}, byID[unmet.String()])
	require.Equal(t, MissingDocument{DocTypeID: partial.String(), MinItems: 3, Attached: 2}, byID[partial.String()])
}
