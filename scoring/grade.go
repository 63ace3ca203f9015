package scoring

import (
	"fmt"
	"strings"
)

// Grade is the discrete confidence bucket derived from a score.
type Grade int

const (
	GradeNone Grade = iota
	GradeBronze
	GradeSilver
	GradeGold
)

var gradeNames = [...]string{"NONE", "BRONZE", "SILVER", "GOLD"}

func (g Grade) String() string {
	if g < GradeNone || g > GradeGold {
		return fmt.Sprintf("Grade(%d)", int(g))
	}
	return gradeNames[g]
}

// ParseGrade accepts the String form in any case.
func ParseGrade(s string) (Grade, error) {
	for i, n := range gradeNames {
		if strings.EqualFold(s, n) {
			return Grade(i), nil
		}
	}
	return GradeNone, fmt.Errorf("unknown grade %q", s)
}

func (g Grade) MarshalText() ([]byte, error) { return []byte(g.String()), nil }

func (g *Grade) UnmarshalText(b []byte) error {
	v, err := ParseGrade(string(b))
	if err != nil {
		return err
	}
	*g = v
	return nil
}

// gradeRules are checked best first.
var gradeRules = []struct {
	grade      Grade
	minScore   float64
	minReasons int
}{
	{GradeGold, 75, 3},
	{GradeSilver, 60, 2},
	{GradeBronze, 45, 1},
}

// GradeFor maps a 0-100 score and the number of supporting reasons to a grade.
func GradeFor(score float64, reasons int) Grade {
	for _, r := range gradeRules {
		if score >= r.minScore && reasons >= r.minReasons {
			return r.grade
		}
	}
	return GradeNone
}

// Downgrade returns the next lower grade. NONE stays NONE.
func (g Grade) Downgrade() Grade {
	if g <= GradeNone {
		return GradeNone
	}
	return g - 1
}
