package internal

type Player struct {
	Name  string `json:"name"`
	Alive bool   `json:"alive"`
	Lover bool   `json:"lover"`
	Mayor bool   `json:"mayor"`
	Role  string `json:"role,omitempty"`
}

// RosterEntry is what a client is allowed to see about one player.
type RosterEntry struct {
	Name  string `json:"name"`
	Role  string `json:"role"`
	Alive bool   `json:"alive"`
	Lover bool   `json:"lover"`
	Mayor bool   `json:"mayor"`
}

func NewPlayer(name string) *Player {
	return &Player{
		Name:  name,
		Alive: true,
	}
}

// ToRosterEntry hides the role unless the viewer is the player itself.
func (p *Player) ToRosterEntry(self bool) RosterEntry {
	role := UnknownRole
	if self && p.Role != "" {
		role = p.Role
	}
	return RosterEntry{
		Name:  p.Name,
		Role:  role,
		Alive: p.Alive,
		Lover: p.Lover,
		Mayor: p.Mayor,
	}
}
