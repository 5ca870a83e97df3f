package service

import (
	"math/rand"
	"sort"
)

// mapPool holds the playable maps and their ban distance. Index 0 means the
// map is currently banned from random selection.
var mapPool = map[string]int{
	"Scarif Beach":             8,
	"Kamino Cloning Facility":  7,
	"Tatooine Mos Eisley":      6,
	"Naboo Palace":             5,
	"Hoth Outpost Delta":       4,
	"Takodana Castle":          3,
	"Death Star II":            2,
	"Yavin 4":                  1,
	"Starkiller Base":          0,
	"Endor Research Station":   1,
	"Kashyyyk":                 0,
	"Jakku The Graveyard":      4,
	"Bespin Palace":            3,
	"Jabbas Palace":            2,
	"Kessel Coaxium Mine":      1,
	"Geonosis Trippa":          0,
	"Geonosis Dreadnought":     2,
	"Naboo Ship":               1,
	"Felucia":                  0,
	"Ajan Kloss":               3,
	"Takodana MC85":            2,
	"Resurgent Star Destroyer": 1,
	"Crait":                    0,
}

// MapChoices returns the playable (non-banned) maps in stable order.
func MapChoices() []string {
	choices := make([]string, 0, len(mapPool))
	for name, index := range mapPool {
		if index != 0 {
			choices = append(choices, name)
		}
	}
	sort.Strings(choices)
	return choices
}

// KnownMap reports whether a map name is part of the playable pool.
func KnownMap(name string) bool {
	index, ok := mapPool[name]
	return ok && index != 0
}

// RandomMaps picks distinct maps with ban distance >= minIndex. When lastMap
// is set and more than one map is requested, the final slot is replaced by
// the guild's most recently requested map.
func RandomMaps(minIndex, amount int, lastMap string) []string {
	var candidates []string
	for name, index := range mapPool {
		if index >= minIndex && index != 0 {
			candidates = append(candidates, name)
		}
	}
	sort.Strings(candidates)

	if amount > len(candidates) {
		amount = len(candidates)
	}

	maps := make([]string, 0, amount)
	for i := 0; i < amount; i++ {
		pick := rand.Intn(len(candidates))
		maps = append(maps, candidates[pick])
		candidates = append(candidates[:pick], candidates[pick+1:]...)
	}

	if len(maps) > 1 && lastMap != "" {
		maps[len(maps)-1] = lastMap
	}

	return maps
}
