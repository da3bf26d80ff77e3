package service

import (
	"github.com/Laisky/capability-search/internal/web/search/model"
)

// SkillSearchOutcome is the explicit result of the skill-matching stage.
// Index failures, timeouts and empty matches all collapse into NoneFound so
// the fallback trigger stays a single observable branch rather than an
// exception path.
type SkillSearchOutcome struct {
	skills []model.SkillHit
}

// SkillsMatched wraps a non-empty set of matched skills.
func SkillsMatched(skills []model.SkillHit) SkillSearchOutcome {
	return SkillSearchOutcome{skills: skills}
}

// NoSkillsFound signals that the unfiltered fallback should apply.
func NoSkillsFound() SkillSearchOutcome {
	return SkillSearchOutcome{}
}

// Matched reports whether any skill cleared the threshold.
func (o SkillSearchOutcome) Matched() bool {
	return len(o.skills) > 0
}

// Skills returns the matched skills in index order.
func (o SkillSearchOutcome) Skills() []model.SkillHit {
	return o.skills
}

// SkillIDs returns the external IDs of the matched skills, preserving order.
func (o SkillSearchOutcome) SkillIDs() []string {
	if len(o.skills) == 0 {
		return nil
	}
	ids := make([]string, 0, len(o.skills))
	for _, skill := range o.skills {
		ids = append(ids, skill.SkillID)
	}
	return ids
}
