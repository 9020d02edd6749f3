package impl

import (
	"strings"

	"flagfeed/internal/domain/entity"
	"flagfeed/internal/usecase"
)

// genderFilterService implements the GenderFilterUsecase interface.
// Pure derivation; it never touches the store.
type genderFilterService struct{}

// NewGenderFilterService creates a new gender filter service instance.
func NewGenderFilterService() usecase.GenderFilterUsecase {
	return &genderFilterService{}
}

// Normalize trims and lowercases free-typed input into a gender tag.
func (srv *genderFilterService) Normalize(raw string) (entity.Gender, bool) {
	normalized := entity.Gender(strings.ToLower(strings.TrimSpace(raw)))
	switch normalized {
	case entity.GenderMale, entity.GenderFemale, entity.GenderOther:
		return normalized, true
	default:
		return "", false
	}
}

// Active reports whether a non-empty gender makes filtering active.
func (srv *genderFilterService) Active(gender entity.Gender) bool {
	return gender != ""
}

// CanSee applies the match rule. Filtering inactive on either side means
// everything is visible; the live feed currently loads all profiles and
// does not call this on its query path.
func (srv *genderFilterService) CanSee(viewerGender, creatorGender entity.Gender) bool {
	if !srv.Active(viewerGender) || !srv.Active(creatorGender) {
		return true
	}

	return viewerGender == creatorGender
}
