package rank

import "testing"

func TestLevelBoundaries(t *testing.T) {
	cases := []struct {
		xp   int64
		want int
	}{
		{-10, 1},
		{0, 1},
		{54, 1},
		{55, 2},
		{119, 2},
		{120, 3},
	}
	for _, tc := range cases {
		if got := Level(tc.xp); got != tc.want {
			t.Fatalf("Level(%d) = %d, want %d", tc.xp, got, tc.want)
		}
	}
}

func TestForXP(t *testing.T) {
	info := ForXP(60)
	if info.Level != 2 || info.Floor != 55 || info.Target != 120 {
		t.Fatalf("info = %+v", info)
	}
	if info.Remaining() != 60 {
		t.Fatalf("remaining = %d", info.Remaining())
	}
	if info.Tier.Name != "Citizen" || info.NextTier.Name != "Cleric" {
		t.Fatalf("tiers = %s -> %s", info.Tier.Name, info.NextTier.Name)
	}
}

func TestTierEveryFiveLevels(t *testing.T) {
	if TierOf(5).Name != TierOf(1).Name {
		t.Fatalf("levels 1 and 5 differ")
	}
	if TierOf(6).Name == TierOf(5).Name {
		t.Fatalf("level 6 did not advance tier")
	}
	if TierOf(1000).Name != "Immortal" {
		t.Fatalf("top tier = %s", TierOf(1000).Name)
	}
}
