package domain

// Event is one message fanned out to a room, or delivered privately to a
// single connection. Payload shapes are the structs below; after a trip
// through the broadcast bus the payload arrives as generic JSON, which is
// fine because connections re-marshal it verbatim.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

const (
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
	EventChatMessage       = "chat_message"
	EventRoundStarted      = "round_started"
	EventRoundStats        = "round_stats"
	EventRankingUpdate     = "ranking_update"
	EventRoundGetReady     = "round_get_ready"
	EventAnswerResult      = "answer_result"
	EventFinalResults      = "final_results"
)

// PresencePayload accompanies participant_joined / participant_left.
type PresencePayload struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Present     int    `json:"present"`
}

// RoundStartedPayload announces a new round; payloads are pre-sanitized.
type RoundStartedPayload struct {
	Mode         GameMode         `json:"mode"`
	RoundNumber  int              `json:"roundNumber"`
	TotalRounds  int              `json:"totalRounds"`
	TimerSeconds int              `json:"timerSeconds"`
	Question     *PublicQuestion  `json:"question,omitempty"`
	Challenge    *PublicChallenge `json:"challenge,omitempty"`
}

// RankingUpdatePayload carries the re-derived scoreboard.
type RankingUpdatePayload struct {
	Ranking Ranking `json:"ranking"`
	IsFinal bool    `json:"isFinal"`
}

// RoundGetReadyPayload signals the short countdown before the next round.
type RoundGetReadyPayload struct {
	NextRound int `json:"nextRound"`
	InSeconds int `json:"inSeconds"`
}

// FinalResultsPayload closes out a game.
type FinalResultsPayload struct {
	Ranking Ranking      `json:"ranking"`
	Stats   []RoundStats `json:"stats"`
}

func NewParticipantJoined(id Identity, present int) Event {
	return Event{Type: EventParticipantJoined, Payload: PresencePayload{UserID: id.UserID, DisplayName: id.DisplayName, Present: present}}
}

func NewParticipantLeft(id Identity, present int) Event {
	return Event{Type: EventParticipantLeft, Payload: PresencePayload{UserID: id.UserID, DisplayName: id.DisplayName, Present: present}}
}

func NewChatMessage(msg ChatMessage) Event {
	return Event{Type: EventChatMessage, Payload: msg}
}

func NewRankingUpdate(r Ranking, final bool) Event {
	return Event{Type: EventRankingUpdate, Payload: RankingUpdatePayload{Ranking: r, IsFinal: final}}
}

func NewRoundStats(s RoundStats) Event {
	return Event{Type: EventRoundStats, Payload: s}
}

func NewAnswerResult(r AnswerResult) Event {
	return Event{Type: EventAnswerResult, Payload: r}
}

func NewFinalResults(r Ranking, stats []RoundStats) Event {
	return Event{Type: EventFinalResults, Payload: FinalResultsPayload{Ranking: r, Stats: stats}}
}
