package service

import "math/rand"

// Team names are assembled from two seed word lists. Naming is the only
// randomized part of pairing generation; pairing order never depends on it.
var teamNamePrefixes = []string{
	"Lovely", "Huge", "Master", "Loyal", "Great", "Special", "Darth", "Black",
	"Red", "White", "Short", "Avenger", "Tall", "Scary", "Warrior", "Fearful",
	"Nice", "Old", "Insane", "Expert", "Freaky", "Cheeky", "Hippie", "Silly",
	"Small", "Raw", "Rough", "Extra",
}

var teamNameSuffixes = []string{
	"Freaks", "Gods", "Beaters", "Vaders", "Kings", "Gang", "Rats", "Bears",
	"Fairys", "Monkeys", "Miners", "Finns", "Dragons", "News", "Gerbils",
	"Diggers", "Clankers", "Batman", "Dancers", "Thieves", "Rockets",
	"Clients", "Doctors", "Eaters", "Lions", "Hosts", "Dolls", "Sons",
}

func randomTeamName() string {
	return teamNamePrefixes[rand.Intn(len(teamNamePrefixes))] +
		teamNameSuffixes[rand.Intn(len(teamNameSuffixes))]
}
