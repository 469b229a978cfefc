// Package rank maps experience points to levels and named tiers.
package rank

// Tier is a named band of five levels.
type Tier struct {
	Name  string
	Emoji string
}

var tiers = []Tier{
	{"Citizen", "👤"},
	{"Cleric", "✨"},
	{"Wizard", "🔮"},
	{"Mage", "🪄"},
	{"Knight", "🛡"},
	{"Elite", "⚔️"},
	{"Ace", "🎖"},
	{"Hero", "🦸"},
	{"Legend", "🏆"},
	{"Myth", "🐉"},
	{"Immortal", "👑"},
}

// LevelsPerTier is the number of levels sharing one tier.
const LevelsPerTier = 5

// Threshold returns the cumulative XP needed to leave level n.
// Level 1 starts at 0 XP.
func Threshold(n int) int64 {
	if n <= 0 {
		return 0
	}
	k := int64(n)
	return 5*k*k + 50*k
}

// Level returns the level reached with xp. Negative xp counts as zero.
func Level(xp int64) int {
	n := 1
	for xp >= Threshold(n) {
		n++
	}
	return n
}

// TierOf returns the tier of a level; the last tier absorbs every level past it.
func TierOf(level int) Tier {
	i := (level - 1) / LevelsPerTier
	if i < 0 {
		i = 0
	}
	if i >= len(tiers) {
		i = len(tiers) - 1
	}
	return tiers[i]
}

// Info describes a user's standing.
type Info struct {
	XP       int64
	Level    int
	Tier     Tier
	NextTier Tier
	// Floor is the XP at which the current level started.
	Floor int64
	// Target is the XP at which the next level starts.
	Target int64
}

// Remaining returns the XP still needed for the next level.
func (i Info) Remaining() int64 {
	return i.Target - i.XP
}

// ForXP computes the level and tier standing for xp.
func ForXP(xp int64) Info {
	lvl := Level(xp)
	return Info{
		XP:       xp,
		Level:    lvl,
		Tier:     TierOf(lvl),
		NextTier: TierOf(lvl + LevelsPerTier - (lvl-1)%LevelsPerTier),
		Floor:    Threshold(lvl - 1),
		Target:   Threshold(lvl),
	}
}
