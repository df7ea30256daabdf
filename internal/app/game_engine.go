package app

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"liveclass-service/internal/domain"
)

// answerRecord tracks one participant's submission for the current round.
// A record exists from the moment a submission is accepted, which is what
// makes duplicate submissions no-ops even while grading is in flight.
type answerRecord struct {
	value   string
	graded  bool
	correct bool
	awarded int
}

// gameState is the per-room record of an in-progress game. Its mutex
// serializes every mutation; timer callbacks capture (generation, round)
// at schedule time and re-validate before acting, so timers that fire
// against an already-advanced phase are no-ops.
type gameState struct {
	roomID     string
	generation string
	mode       domain.GameMode
	startedBy  string
	rounds     []domain.RoundPayload
	now        func() time.Time

	mu           sync.Mutex
	phase        domain.GamePhase
	roundIdx     int
	answers      map[string]*answerRecord
	successCount int // graded-correct submissions this round, drives code-mode decay
	scores       map[string]*playerScore
	stats        []domain.RoundStats
	roundTimer   *time.Timer
	graceTimer   *time.Timer
	closing      bool

	done atomic.Bool
}

func newGameState(roomID string, mode domain.GameMode, startedBy string, rounds []domain.RoundPayload, now func() time.Time) *gameState {
	return &gameState{
		roomID:     roomID,
		generation: uuid.NewString(),
		mode:       mode,
		startedBy:  startedBy,
		rounds:     rounds,
		now:        now,
		phase:      domain.PhaseIdle,
		answers:    make(map[string]*answerRecord),
		scores:     make(map[string]*playerScore),
	}
}

// finished is lock-free so the room lock can consult it without ordering
// against the game lock.
func (g *gameState) finished() bool {
	return g.done.Load()
}

func (g *gameState) snapshotLocked() domain.GameSnapshot {
	now := g.now()
	return domain.GameSnapshot{
		RoomID:     g.roomID,
		Generation: g.generation,
		Mode:       g.mode,
		Phase:      g.phase,
		RoundIndex: g.roundIdx,
		Rounds:     len(g.rounds),
		Ranking:    rankingSnapshot(g.roomID, g.scores, now).Entries,
		UpdatedAt:  now,
	}
}

// GameEngine runs the live-game state machine for every room: it starts
// games, scores answers, advances rounds on timers and closes games out.
type GameEngine struct {
	rooms       RoomStore
	content     ContentRepository
	bus         Broadcaster
	grader      GradingOracle
	progression ProgressionSink
	cfg         GameConfig
	now         func() time.Time
}

func NewGameEngine(rooms RoomStore, content ContentRepository, bus Broadcaster, grader GradingOracle, progression ProgressionSink, cfg GameConfig) *GameEngine {
	return &GameEngine{
		rooms:       rooms,
		content:     content,
		bus:         bus,
		grader:      grader,
		progression: progression,
		cfg:         cfg.withDefaults(),
		now:         time.Now,
	}
}

// Config exposes the effective tuning, mainly for the transport layer.
func (e *GameEngine) Config() GameConfig { return e.cfg }

// StartGame loads all round content up front, installs a fresh game state
// and publishes the first round. Content-loading failures surface to the
// caller (the initiating professor) and leave the room idle.
func (e *GameEngine) StartGame(ctx context.Context, roomID string, actor domain.Identity, mode domain.GameMode, contentID string) error {
	room, ok := e.rooms.Get(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	if room.Kind() != RoomLesson {
		return domain.ErrNotAuthorized
	}
	if actor.Role != domain.RoleProfessor {
		return domain.ErrNotProfessor
	}

	rounds, err := e.loadRounds(ctx, mode, contentID)
	if err != nil {
		return err
	}

	g := newGameState(roomID, mode, actor.UserID, rounds, e.now)
	if !room.installGame(g) {
		return domain.ErrGameInProgress
	}

	g.mu.Lock()
	g.phase = domain.PhaseRoundActive
	e.publishRoundLocked(ctx, g)
	e.armRoundTimerLocked(g)
	e.rooms.SaveGameSnapshot(g.snapshotLocked())
	g.mu.Unlock()

	log.Printf("game started: room=%s mode=%s rounds=%d by=%s", roomID, mode, len(rounds), actor.UserID)
	return nil
}

func (e *GameEngine) loadRounds(ctx context.Context, mode domain.GameMode, contentID string) ([]domain.RoundPayload, error) {
	switch mode {
	case domain.ModeQuiz:
		quiz, err := e.content.GetQuiz(ctx, contentID)
		if err != nil {
			return nil, err
		}
		if len(quiz.Questions) == 0 {
			return nil, domain.ErrContentNotFound
		}
		rounds := make([]domain.RoundPayload, 0, len(quiz.Questions))
		for i := range quiz.Questions {
			q := quiz.Questions[i]
			rounds = append(rounds, domain.RoundPayload{Question: &q})
		}
		return rounds, nil
	case domain.ModeCodeChallenge:
		challenge, err := e.content.GetChallenge(ctx, contentID)
		if err != nil {
			return nil, err
		}
		return []domain.RoundPayload{{Challenge: &challenge}}, nil
	default:
		return nil, domain.ErrContentNotFound
	}
}

// SubmitAnswer records one participant's answer for the referenced round.
// Duplicates and stale round references are rejected before any scoring
// happens; the check-record-rescore sequence runs as one atomic unit under
// the game lock.
func (e *GameEngine) SubmitAnswer(ctx context.Context, roomID string, actor domain.Identity, roundRef int, value string) (domain.AnswerResult, error) {
	room, ok := e.rooms.Get(roomID)
	if !ok {
		return domain.AnswerResult{}, domain.ErrRoomNotFound
	}
	g := room.currentGame()
	if g == nil {
		return domain.AnswerResult{}, domain.ErrNoActiveGame
	}

	if g.mode == domain.ModeCodeChallenge {
		return e.submitCode(ctx, room, g, actor, roundRef, value)
	}
	return e.submitQuizAnswer(ctx, room, g, actor, roundRef, value)
}

func (e *GameEngine) submitQuizAnswer(ctx context.Context, room *Room, g *gameState, actor domain.Identity, roundRef int, value string) (domain.AnswerResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.phase != domain.PhaseRoundActive {
		return domain.AnswerResult{}, domain.ErrNoActiveGame
	}
	if roundRef != g.roundIdx {
		return domain.AnswerResult{}, domain.ErrStaleRound
	}
	if _, dup := g.answers[actor.UserID]; dup {
		return domain.AnswerResult{}, domain.ErrAlreadyAnswered
	}

	correct, awarded := scoreQuizAnswer(e.cfg, g.rounds[g.roundIdx].Question, value, len(g.answers))
	g.answers[actor.UserID] = &answerRecord{value: value, graded: true, correct: correct, awarded: awarded}
	total := e.recordScoreLocked(g, actor, awarded)

	e.publish(ctx, g.roomID, domain.NewRankingUpdate(rankingSnapshot(g.roomID, g.scores, g.now()), false))
	e.rooms.SaveGameSnapshot(g.snapshotLocked())

	return domain.AnswerResult{
		RoundNumber: g.roundIdx + 1,
		Correct:     correct,
		Awarded:     awarded,
		TotalScore:  total,
	}, nil
}

// submitCode accepts the submission first and grades it outside the lock,
// so the round timer and chat keep progressing while the oracle runs.
func (e *GameEngine) submitCode(ctx context.Context, room *Room, g *gameState, actor domain.Identity, roundRef int, value string) (domain.AnswerResult, error) {
	g.mu.Lock()
	if g.phase != domain.PhaseRoundActive {
		g.mu.Unlock()
		return domain.AnswerResult{}, domain.ErrNoActiveGame
	}
	if roundRef != g.roundIdx {
		g.mu.Unlock()
		return domain.AnswerResult{}, domain.ErrStaleRound
	}
	if _, dup := g.answers[actor.UserID]; dup {
		g.mu.Unlock()
		return domain.AnswerResult{}, domain.ErrAlreadyAnswered
	}
	record := &answerRecord{value: value}
	g.answers[actor.UserID] = record
	challengeID := g.rounds[g.roundIdx].Challenge.ID
	generation := g.generation
	g.mu.Unlock()

	correct, err := e.grader.Evaluate(ctx, challengeID, value)
	if err != nil {
		// Fail closed: an oracle failure is an incorrect verdict, never a dead round.
		log.Printf("grading oracle failed: room=%s user=%s err=%v", g.roomID, actor.UserID, err)
		correct = false
	}

	g.mu.Lock()
	record.graded = true
	record.correct = correct
	if g.generation != generation || g.phase != domain.PhaseRoundActive {
		// Game ended while grading; deliver feedback but score nothing.
		g.mu.Unlock()
		return domain.AnswerResult{RoundNumber: roundRef + 1, Correct: correct}, nil
	}

	awarded := awardPoints(e.cfg, correct, g.successCount)
	if correct {
		g.successCount++
	}
	record.awarded = awarded
	total := e.recordScoreLocked(g, actor, awarded)

	e.publish(ctx, g.roomID, domain.NewRankingUpdate(rankingSnapshot(g.roomID, g.scores, g.now()), false))
	e.rooms.SaveGameSnapshot(g.snapshotLocked())
	e.maybeScheduleAutoCloseLocked(room, g)
	g.mu.Unlock()

	return domain.AnswerResult{
		RoundNumber: roundRef + 1,
		Correct:     correct,
		Awarded:     awarded,
		TotalScore:  total,
	}, nil
}

// recordScoreLocked creates the participant's ranking entry on first
// submission (score 0 when incorrect) and accumulates points after that.
// Scores only ever increase within a game.
func (e *GameEngine) recordScoreLocked(g *gameState, actor domain.Identity, awarded int) int {
	p, ok := g.scores[actor.UserID]
	if !ok {
		p = &playerScore{userID: actor.UserID, displayName: actor.DisplayName}
		g.scores[actor.UserID] = p
	}
	if awarded > 0 {
		p.score += awarded
		p.lastScored = g.now()
	}
	return p.score
}

// maybeScheduleAutoCloseLocked ends a code-challenge game early once every
// currently present participant has a graded submission, after a short
// grace so the last submitter sees their own feedback. Disconnects shrink
// the denominator, never grow it.
func (e *GameEngine) maybeScheduleAutoCloseLocked(room *Room, g *gameState) {
	if g.mode != domain.ModeCodeChallenge || g.phase != domain.PhaseRoundActive || g.closing {
		return
	}
	present := room.PresentUsers()
	if len(present) == 0 {
		return
	}
	// A departed submitter must not stand in for a present participant who
	// has not answered yet.
	graded := 0
	for _, userID := range present {
		if rec, ok := g.answers[userID]; ok && rec.graded {
			graded++
		}
	}
	if graded < len(present) {
		return
	}
	g.closing = true
	generation := g.generation
	g.graceTimer = time.AfterFunc(e.cfg.AutoCloseGrace, func() {
		e.onAutoClose(room.ID(), generation)
	})
}

// HandleDeparture re-checks full participation after a participant leaves
// mid-round; the remaining submitters may now be everyone present.
func (e *GameEngine) HandleDeparture(roomID string) {
	room, ok := e.rooms.Get(roomID)
	if !ok {
		return
	}
	g := room.currentGame()
	if g == nil || g.finished() {
		return
	}
	g.mu.Lock()
	e.maybeScheduleAutoCloseLocked(room, g)
	g.mu.Unlock()
}

// StopGame is the explicit professor cancellation: it short-circuits any
// pending timers and enters GAME_OVER immediately.
func (e *GameEngine) StopGame(ctx context.Context, roomID string, actor domain.Identity) error {
	if actor.Role != domain.RoleProfessor {
		return domain.ErrNotProfessor
	}
	room, ok := e.rooms.Get(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	g := room.currentGame()
	if g == nil || g.finished() {
		return domain.ErrNoActiveGame
	}

	g.mu.Lock()
	ended := e.endGameLocked(ctx, g)
	g.mu.Unlock()
	if ended {
		e.cleanupGame(room, g)
	}
	return nil
}

// onRoundTimer fires when the round's full duration elapses.
func (e *GameEngine) onRoundTimer(roomID, generation string, roundIdx int) {
	ctx := context.Background()
	room, g := e.lookupGame(roomID)
	if g == nil {
		return
	}

	g.mu.Lock()
	if g.generation != generation || g.roundIdx != roundIdx || g.phase != domain.PhaseRoundActive {
		g.mu.Unlock()
		return
	}

	if g.mode == domain.ModeCodeChallenge {
		ended := e.endGameLocked(ctx, g)
		g.mu.Unlock()
		if ended {
			e.cleanupGame(room, g)
		}
		return
	}

	g.phase = domain.PhaseRoundSettling
	stats := e.roundStatsLocked(room, g)
	g.stats = append(g.stats, stats)
	e.publish(ctx, g.roomID, domain.NewRoundStats(stats))
	e.publish(ctx, g.roomID, domain.NewRankingUpdate(rankingSnapshot(g.roomID, g.scores, g.now()), false))
	e.rooms.SaveGameSnapshot(g.snapshotLocked())

	g.roundTimer = time.AfterFunc(e.cfg.SettleDelay, func() {
		e.onSettleTimer(roomID, generation, roundIdx)
	})
	g.mu.Unlock()
}

// onSettleTimer either advances to the next round or ends the game.
func (e *GameEngine) onSettleTimer(roomID, generation string, roundIdx int) {
	ctx := context.Background()
	room, g := e.lookupGame(roomID)
	if g == nil {
		return
	}

	g.mu.Lock()
	if g.generation != generation || g.roundIdx != roundIdx || g.phase != domain.PhaseRoundSettling {
		g.mu.Unlock()
		return
	}

	if roundIdx+1 >= len(g.rounds) {
		ended := e.endGameLocked(ctx, g)
		g.mu.Unlock()
		if ended {
			e.cleanupGame(room, g)
		}
		return
	}

	e.publish(ctx, g.roomID, domain.Event{Type: domain.EventRoundGetReady, Payload: domain.RoundGetReadyPayload{
		NextRound: roundIdx + 2,
		InSeconds: int(e.cfg.GetReadyDelay / time.Second),
	}})
	g.roundTimer = time.AfterFunc(e.cfg.GetReadyDelay, func() {
		e.onNextRoundTimer(roomID, generation, roundIdx)
	})
	g.mu.Unlock()
}

// onNextRoundTimer publishes the next round payload and re-arms the round timer.
func (e *GameEngine) onNextRoundTimer(roomID, generation string, prevIdx int) {
	ctx := context.Background()
	_, g := e.lookupGame(roomID)
	if g == nil {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.generation != generation || g.roundIdx != prevIdx || g.phase != domain.PhaseRoundSettling {
		return
	}

	g.roundIdx++
	g.answers = make(map[string]*answerRecord)
	g.successCount = 0
	g.phase = domain.PhaseRoundActive
	e.publishRoundLocked(ctx, g)
	e.armRoundTimerLocked(g)
	e.rooms.SaveGameSnapshot(g.snapshotLocked())
}

// onAutoClose fires after the full-participation grace period.
func (e *GameEngine) onAutoClose(roomID, generation string) {
	ctx := context.Background()
	room, g := e.lookupGame(roomID)
	if g == nil {
		return
	}

	g.mu.Lock()
	if g.generation != generation || g.phase == domain.PhaseGameOver {
		g.mu.Unlock()
		return
	}
	ended := e.endGameLocked(ctx, g)
	g.mu.Unlock()
	if ended {
		e.cleanupGame(room, g)
	}
}

func (e *GameEngine) lookupGame(roomID string) (*Room, *gameState) {
	room, ok := e.rooms.Get(roomID)
	if !ok {
		return nil, nil
	}
	return room, room.currentGame()
}

// endGameLocked computes the final ranking, awards the top-N bonus and
// broadcasts final results. Callers must follow up with cleanupGame once
// the game lock is released.
func (e *GameEngine) endGameLocked(ctx context.Context, g *gameState) bool {
	if g.phase == domain.PhaseGameOver {
		return false
	}
	if g.roundTimer != nil {
		g.roundTimer.Stop()
	}
	if g.graceTimer != nil {
		g.graceTimer.Stop()
	}
	if g.phase == domain.PhaseRoundActive {
		// Round still open (stop, code-mode timeout or auto-close): fold the
		// current round's responses into the stats.
		g.stats = append(g.stats, e.roundStatsLocked(nil, g))
	}
	g.phase = domain.PhaseGameOver
	g.done.Store(true)

	final := rankingSnapshot(g.roomID, g.scores, g.now())
	e.publish(ctx, g.roomID, domain.NewRankingUpdate(final, true))
	e.publish(ctx, g.roomID, domain.NewFinalResults(final, g.stats))

	e.awardBonuses(final)
	log.Printf("game over: room=%s mode=%s rounds_played=%d", g.roomID, g.mode, g.roundIdx+1)
	return true
}

// cleanupGame discards the finished game state so the room is idle again.
func (e *GameEngine) cleanupGame(room *Room, g *gameState) {
	if room != nil {
		room.clearGame(g)
	}
	e.rooms.ClearGame(g.roomID)
}

// awardBonuses notifies the progression collaborator about the podium.
// Publish failures are logged, never propagated into the room.
func (e *GameEngine) awardBonuses(final domain.Ranking) {
	top := e.cfg.TopN
	if top > len(final.Entries) {
		top = len(final.Entries)
	}
	winners := make([]domain.RankingEntry, 0, top)
	for _, entry := range final.Entries[:top] {
		if entry.Score > 0 {
			winners = append(winners, entry)
		}
	}
	if len(winners) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, w := range winners {
			if err := e.progression.AwardXP(ctx, w.UserID, e.cfg.BonusXP, "game podium"); err != nil {
				log.Printf("award xp failed: user=%s err=%v", w.UserID, err)
			}
		}
	}()
}

func (e *GameEngine) roundStatsLocked(room *Room, g *gameState) domain.RoundStats {
	correct := 0
	for _, rec := range g.answers {
		if rec.graded && rec.correct {
			correct++
		}
	}
	present := 0
	if room != nil {
		present = room.PresenceCount()
	} else if r, ok := e.rooms.Get(g.roomID); ok {
		present = r.PresenceCount()
	}
	return domain.RoundStats{
		RoundNumber: g.roundIdx + 1,
		Responses:   len(g.answers),
		Correct:     correct,
		Present:     present,
	}
}

func (e *GameEngine) publishRoundLocked(ctx context.Context, g *gameState) {
	payload := domain.RoundStartedPayload{
		Mode:        g.mode,
		RoundNumber: g.roundIdx + 1,
		TotalRounds: len(g.rounds),
	}
	round := g.rounds[g.roundIdx]
	switch {
	case round.Question != nil:
		q := round.Question.Public()
		payload.Question = &q
		payload.TimerSeconds = int(e.cfg.QuizRoundDuration / time.Second)
	case round.Challenge != nil:
		c := round.Challenge.Public()
		payload.Challenge = &c
		payload.TimerSeconds = int(e.cfg.CodeRoundDuration / time.Second)
	}
	e.publish(ctx, g.roomID, domain.Event{Type: domain.EventRoundStarted, Payload: payload})
}

func (e *GameEngine) armRoundTimerLocked(g *gameState) {
	duration := e.cfg.QuizRoundDuration
	if g.mode == domain.ModeCodeChallenge {
		duration = e.cfg.CodeRoundDuration
	}
	generation := g.generation
	roundIdx := g.roundIdx
	roomID := g.roomID
	g.roundTimer = time.AfterFunc(duration, func() {
		e.onRoundTimer(roomID, generation, roundIdx)
	})
}

func (e *GameEngine) publish(ctx context.Context, roomID string, event domain.Event) {
	if err := e.bus.Publish(ctx, roomID, event); err != nil {
		log.Printf("broadcast failed: room=%s type=%s err=%v", roomID, event.Type, err)
	}
}
