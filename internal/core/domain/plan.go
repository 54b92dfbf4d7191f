package domain

import "time"

// RotationPlan is what a writer started at some instant would use.
type RotationPlan struct {
	Filename     string    `json:"filename"`
	NextRotation time.Time `json:"next_rotation,omitzero"`
	RotationAge  int       `json:"rotation_age_minutes"`
	Timezone     string    `json:"timezone"`
}

// PlanRotation computes the target file and next rotation instant for a
// writer starting at now.
func PlanRotation(now time.Time, s Settings) (RotationPlan, error) {
	next := NextRotation(now, s.Location, s.RotationAge)
	start := now.Truncate(time.Minute)
	if s.RotationAge > 0 {
		start = IntervalStart(next, s.RotationAge)
	}
	name, err := ResolveFilename(s.Directory, s.Filename, start, s.Location)
	if err != nil {
		return RotationPlan{}, err
	}
	return RotationPlan{
		Filename:     name,
		NextRotation: next,
		RotationAge:  s.RotationAge,
		Timezone:     locationName(s.Location),
	}, nil
}
