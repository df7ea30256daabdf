package domain

import "time"

// Role identifies what a connected user is allowed to do in a room.
type Role string

const (
	RoleStudent   Role = "STUDENT"
	RoleProfessor Role = "PROFESSOR"
)

// Staff reports whether the role is excluded from the presence set.
func (r Role) Staff() bool {
	return r == RoleProfessor
}

// GameMode selects which kind of live game a room is running.
type GameMode string

const (
	ModeQuiz          GameMode = "QUIZ"
	ModeCodeChallenge GameMode = "CODE_CHALLENGE"
)

// GamePhase is the state-machine phase of a room's active game.
type GamePhase string

const (
	PhaseIdle          GamePhase = "IDLE"
	PhaseRoundActive   GamePhase = "ROUND_ACTIVE"
	PhaseRoundSettling GamePhase = "ROUND_SETTLING"
	PhaseGameOver      GamePhase = "GAME_OVER"
)

// Identity is the resolved participant behind a connection.
type Identity struct {
	UserID      string
	DisplayName string
	Role        Role
}

// Option represents a possible answer for a quiz question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []Option `json:"options"`
}

// PublicOption is the client-facing view of an option, without the correct marker.
type PublicOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// PublicQuestion is the client-facing view of a question.
type PublicQuestion struct {
	ID      string         `json:"id"`
	Prompt  string         `json:"prompt"`
	Options []PublicOption `json:"options"`
}

// Public strips the correct-answer marker; only this form ever leaves the server.
func (q Question) Public() PublicQuestion {
	opts := make([]PublicOption, 0, len(q.Options))
	for _, o := range q.Options {
		opts = append(opts, PublicOption{ID: o.ID, Text: o.Text})
	}
	return PublicQuestion{ID: q.ID, Prompt: q.Prompt, Options: opts}
}

// CorrectOption returns the ID of the marked correct option, or "" if none.
func (q Question) CorrectOption() string {
	for _, o := range q.Options {
		if o.Correct {
			return o.ID
		}
	}
	return ""
}

// Quiz is an ordered collection of questions.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Challenge is a single timed code exercise. The reference solution stays
// server-side and is forwarded only to the grading oracle.
type Challenge struct {
	ID                string `json:"id"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	TemplateCode      string `json:"templateCode"`
	ReferenceSolution string `json:"referenceSolution"`
}

// PublicChallenge is the client-facing view of a challenge.
type PublicChallenge struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	TemplateCode string `json:"templateCode"`
}

func (c Challenge) Public() PublicChallenge {
	return PublicChallenge{ID: c.ID, Title: c.Title, Description: c.Description, TemplateCode: c.TemplateCode}
}

// RoundPayload is the immutable snapshot of one round, taken at game start.
// Exactly one of Question or Challenge is set, depending on the game mode.
type RoundPayload struct {
	Question  *Question
	Challenge *Challenge
}

// RankingEntry is a snapshot-friendly view of one participant's score.
type RankingEntry struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
}

// Ranking is the ordered scoreboard for a room's active game.
type Ranking struct {
	RoomID    string         `json:"roomId"`
	Entries   []RankingEntry `json:"entries"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// ChatMessage is a stored chat message as broadcast to the room.
type ChatMessage struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"roomId"`
	SenderID    string    `json:"senderId"`
	SenderName  string    `json:"senderName"`
	Content     string    `json:"content"`
	ContentKind string    `json:"contentKind"`
	SentAt      time.Time `json:"sentAt"`
}

// AnswerResult summarizes the outcome of a submission for a single user.
// It is delivered privately to the submitter, never broadcast.
type AnswerResult struct {
	RoundNumber int    `json:"roundNumber"`
	Correct     bool   `json:"correct"`
	Awarded     int    `json:"awarded"`
	TotalScore  int    `json:"totalScore"`
	Feedback    string `json:"feedback,omitempty"`
}

// RoundStats are the per-round response counts broadcast while settling.
type RoundStats struct {
	RoundNumber int `json:"roundNumber"`
	Responses   int `json:"responses"`
	Correct     int `json:"correct"`
	Present     int `json:"present"`
}

// GameSnapshot is the serializable mirror of a room's game state, written to
// the TTL-bound store so abandoned games expire on their own.
type GameSnapshot struct {
	RoomID     string         `json:"roomId"`
	Generation string         `json:"generation"`
	Mode       GameMode       `json:"mode"`
	Phase      GamePhase      `json:"phase"`
	RoundIndex int            `json:"roundIndex"`
	Rounds     int            `json:"rounds"`
	Ranking    []RankingEntry `json:"ranking"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}
