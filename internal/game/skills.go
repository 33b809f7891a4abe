package game

import (
	"fmt"
	"math"

	"github.com/Rune-Status/aj8/internal/db"
)

// Skill identifiers, in client order.
const (
	SkillAttack = iota
	SkillDefence
	SkillStrength
	SkillHitpoints
	SkillRanged
	SkillPrayer
	SkillMagic
	SkillCooking
	SkillWoodcutting
	SkillFletching
	SkillFishing
	SkillFiremaking
	SkillCrafting
	SkillSmithing
	SkillMining
	SkillHerblore
	SkillAgility
	SkillThieving
	SkillSlayer
	SkillFarming
	SkillRunecrafting
	SkillCount
)

// MaxLevel and MaxExperience cap skill progress.
const (
	MaxLevel      = 99
	MaxExperience = 200_000_000
)

var skillNames = [SkillCount]string{
	"Attack", "Defence", "Strength", "Hitpoints", "Ranged", "Prayer", "Magic",
	"Cooking", "Woodcutting", "Fletching", "Fishing", "Firemaking", "Crafting",
	"Smithing", "Mining", "Herblore", "Agility", "Thieving", "Slayer", "Farming",
	"Runecrafting",
}

// SkillName returns the display name of a skill.
func SkillName(id int) string {
	if id < 0 || id >= SkillCount {
		return fmt.Sprintf("skill %d", id)
	}
	return skillNames[id]
}

// experienceTable[l] is the experience needed to reach level l.
var experienceTable = func() [MaxLevel + 1]int {
	var table [MaxLevel + 1]int
	points := 0.0
	for level := 1; level < MaxLevel; level++ {
		points += math.Floor(float64(level) + 300*math.Pow(2, float64(level)/7))
		table[level+1] = int(math.Floor(points / 4))
	}
	return table
}()

// ExperienceForLevel returns the experience needed to reach level.
func ExperienceForLevel(level int) int {
	level = min(max(level, 1), MaxLevel)
	return experienceTable[level]
}

// LevelForExperience returns the level reached with experience.
func LevelForExperience(experience int) int {
	for level := MaxLevel; level > 1; level-- {
		if experience >= experienceTable[level] {
			return level
		}
	}
	return 1
}

// Skill is the progress in one skill. Level is the current, possibly boosted
// or drained, level; the maximum follows from the experience.
type Skill struct {
	Level      int
	Experience int
}

// MaximumLevel returns the level earned by the experience.
func (s Skill) MaximumLevel() int {
	return LevelForExperience(s.Experience)
}

// SkillSet holds every skill of a player.
type SkillSet struct {
	skills [SkillCount]Skill
}

// NewSkillSet creates the starting skills: level 1 everywhere except
// Hitpoints at 10.
func NewSkillSet() *SkillSet {
	s := &SkillSet{}
	for i := range s.skills {
		s.skills[i] = Skill{Level: 1}
	}
	hp := ExperienceForLevel(10)
	s.skills[SkillHitpoints] = Skill{Level: 10, Experience: hp}
	return s
}

// SkillSetFromRecords restores saved skills. Missing entries keep their
// starting values.
func SkillSetFromRecords(records []db.SkillRecord) *SkillSet {
	s := NewSkillSet()
	for i, r := range records {
		if i >= SkillCount {
			break
		}
		exp := min(max(r.Experience, 0), MaxExperience)
		level := r.Level
		if level < 1 {
			level = LevelForExperience(exp)
		}
		s.skills[i] = Skill{Level: level, Experience: exp}
	}
	return s
}

// Get returns one skill.
func (s *SkillSet) Get(id int) Skill {
	return s.skills[id]
}

// AddExperience grants experience and returns how many levels were gained.
// The current level rises with the maximum level.
func (s *SkillSet) AddExperience(id, experience int) int {
	if id < 0 || id >= SkillCount {
		panic(fmt.Sprintf("game: invalid skill id %d", id))
	}
	skill := &s.skills[id]
	before := skill.MaximumLevel()
	skill.Experience = min(skill.Experience+max(experience, 0), MaxExperience)
	gained := skill.MaximumLevel() - before
	skill.Level += gained
	return gained
}

// TotalLevel sums the maximum levels.
func (s *SkillSet) TotalLevel() int {
	total := 0
	for _, skill := range s.skills {
		total += skill.MaximumLevel()
	}
	return total
}

// Records converts the skills for persistence.
func (s *SkillSet) Records() []db.SkillRecord {
	records := make([]db.SkillRecord, SkillCount)
	for i, skill := range s.skills {
		records[i] = db.SkillRecord{Level: skill.Level, Experience: skill.Experience}
	}
	return records
}
