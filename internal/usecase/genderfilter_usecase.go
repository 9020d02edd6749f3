package usecase

import "flagfeed/internal/domain/entity"

// GenderFilterUsecase derives a normalized gender tag from free-typed
// input and reports whether filtering is active. Pure derivation, no
// store access. The feed does not consume it for its live query; the
// gender-scoped subscription exists on the repository as an inactive
// capability.
type GenderFilterUsecase interface {
	// Normalize trims and lowercases raw input into a gender tag. The
	// second return reports whether the input named a known gender.
	Normalize(raw string) (entity.Gender, bool)

	// Active reports whether a non-empty gender makes filtering active.
	Active(gender entity.Gender) bool

	// CanSee reports whether a viewer with viewerGender may see a card
	// created by creatorGender under the matching rule. With filtering
	// inactive on either side, everything is visible.
	CanSee(viewerGender, creatorGender entity.Gender) bool
}
