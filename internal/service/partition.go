package service

import (
	"fmt"
	"math/bits"
	"sort"

	"caps-bot/internal/constants"
	"caps-bot/internal/domain"
)

// GeneratePairings enumerates every balanced 4v4 split of the given players.
// All 70 four-player subsets collapse into 35 unique pairings once the
// unordered sides are canonicalized; the result is ordered by ascending skill
// difference with enumeration order breaking ties. Pairing order is fully
// deterministic for a given player order, only team names are randomized.
func GeneratePairings(players []*domain.Player) ([]domain.Pairing, error) {
	if len(players) != constants.SessionPlayerCount {
		return nil, fmt.Errorf("%w: got %d", ErrPlayerCount, len(players))
	}

	const fullMask = 1<<constants.SessionPlayerCount - 1

	seen := make(map[int]struct{}, 35)
	pairings := make([]domain.Pairing, 0, 35)

	for mask := 0; mask <= fullMask; mask++ {
		if bits.OnesCount(uint(mask)) != constants.TeamSize {
			continue
		}

		sideA, sideB := mask, fullMask&^mask
		if sideA > sideB {
			sideA, sideB = sideB, sideA
		}
		key := sideA<<constants.SessionPlayerCount | sideB
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		teamA := buildTeam(players, sideA)
		teamB := buildTeam(players, sideB)

		diff := teamA.Skill - teamB.Skill
		if diff < 0 {
			diff = -diff
		}

		pairings = append(pairings, domain.Pairing{
			TeamA:     teamA,
			TeamB:     teamB,
			SkillDiff: diff,
		})
	}

	sort.SliceStable(pairings, func(i, j int) bool {
		return pairings[i].SkillDiff < pairings[j].SkillDiff
	})

	return pairings, nil
}

func buildTeam(players []*domain.Player, mask int) *domain.Team {
	team := &domain.Team{
		Name:    randomTeamName(),
		Players: make([]*domain.Player, 0, constants.TeamSize),
	}
	for i := 0; i < constants.SessionPlayerCount; i++ {
		if mask&(1<<i) == 0 {
			continue
		}
		team.Players = append(team.Players, players[i])
		team.Skill += players[i].Tier
	}
	return team
}
