package interest

import "fmt"

// Interest is one inferred user hobby or preference. The (Category, Name)
// pair is the natural key; Level expresses intensity and only ever grows
// for a given key.
type Interest struct {
	Category string `json:"category"`
	Name     string `json:"name"`
	Level    int    `json:"level"`
}

// Interest levels. Merges always keep the maximum observed level.
const (
	LevelMild = 1
	LevelLike = 2
	LevelLove = 3
)

// Validate checks that the interest is well-formed: non-empty category and
// name, level within the defined range.
func (i Interest) Validate() error {
	if i.Category == "" {
		return fmt.Errorf("empty category")
	}
	if i.Name == "" {
		return fmt.Errorf("empty name")
	}
	if i.Level < LevelMild || i.Level > LevelLove {
		return fmt.Errorf("level %d out of range [%d, %d]", i.Level, LevelMild, LevelLove)
	}
	return nil
}
