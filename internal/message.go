package internal

import "encoding/json"

// Message is the generic frame used for out-of-band replies such as errors
// on a websocket stream.
type Message[T any] struct {
	Type string `json:"type"`
	Data T      `json:"data"`
}

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
	UpdatePhase   UpdateKind = "phase_update"
	UpdatePlayers UpdateKind = "player_update"
)

// Update is a single event delivered to one connection. Event is the tag:
// Data holds a string for messages, a PhaseView for phase updates and a
// []RosterEntry for player updates.
type Update struct {
	Event UpdateKind `json:"event"`
	Data  any        `json:"data"`
	Retry int        `json:"retry"`
}

func NewMessageUpdate(text string) Update {
	return Update{Event: UpdateMessage, Data: text, Retry: DefaultRetry}
}

func NewPhaseUpdate(view PhaseView) Update {
	return Update{Event: UpdatePhase, Data: view, Retry: DefaultRetry}
}

func NewPlayerUpdate(roster []RosterEntry) Update {
	if roster == nil {
		roster = []RosterEntry{}
	}
	return Update{Event: UpdatePlayers, Data: roster, Retry: DefaultRetry}
}

type PhaseView struct {
	Type  PhaseName         `json:"type"`
	Day   int               `json:"day,omitempty"`
	Votes map[string]string `json:"votes,omitempty"`
}

const (
	EventJoin  = "join"
	EventVote  = "vote"
	EventStart = "start"
)

// Post is an event sent by a client, e.g. {"event": "join", "data": {...}}.
type Post struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type JoinData struct {
	Type Role   `json:"type"`
	Name string `json:"name,omitempty"`
}

type VoteData struct {
	Name string `json:"name"`
}

type StartData struct {
	RoleSelection map[string]int `json:"role_selection"`
	Options       map[string]any `json:"options,omitempty"`
}

type CreateGameRequest struct {
	Name string `json:"name"`
}

type GameList struct {
	Games []string `json:"games"`
}

type Response struct {
	StatusCode    int   `json:"status_code"`
	RespStartTime int64 `json:"resp_time_start_ms"`
	RespEndTime   int64 `json:"resp_time_end_ms"`
	NetRespTime   int64 `json:"net_resp_time_ms"`
	Data          any   `json:"data"`
}
