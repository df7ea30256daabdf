package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"liveclass-service/internal/app"
	"liveclass-service/internal/domain"
	"liveclass-service/internal/infra/memory"
)

const testLesson = "lesson-1"

var (
	professor = domain.Identity{UserID: "prof", DisplayName: "Prof", Role: domain.RoleProfessor}
	studentX  = domain.Identity{UserID: "x", DisplayName: "Xavier", Role: domain.RoleStudent}
	studentY  = domain.Identity{UserID: "y", DisplayName: "Yara", Role: domain.RoleStudent}
	studentZ  = domain.Identity{UserID: "z", DisplayName: "Zoe", Role: domain.RoleStudent}
)

type harness struct {
	rooms   *memory.RoomStore
	sink    *memory.ProgressionSink
	engine  *app.GameEngine
	service *app.RoomService
	log     *eventLog
	cancel  func()
	conns   map[string]string
	roomID  string
}

func newHarness(t *testing.T, cfg app.GameConfig, oracle app.GradingOracle, students ...domain.Identity) *harness {
	t.Helper()

	loader := memory.NewStaticContentLoader(
		map[string]domain.Quiz{"quiz-1": twoQuestionQuiz()},
		map[string]domain.Challenge{"challenge-1": sampleChallenge()},
	)
	rooms := memory.NewRoomStore()
	bus := memory.NewBroadcaster()
	sink := memory.NewProgressionSink()
	content := memory.NewContentRepository(loader, time.Minute)
	if oracle == nil {
		oracle = memory.NewGradingOracle(loader)
	}

	membership := memory.NewMembershipRepository()
	membership.GrantLesson(testLesson, professor.UserID, true)
	for _, s := range students {
		membership.GrantLesson(testLesson, s.UserID, false)
	}

	engine := app.NewGameEngine(rooms, content, bus, oracle, sink, cfg)
	service := app.NewRoomService(rooms, membership, memory.NewMessageStore(), bus, sink, engine)

	roomID := app.LessonRoomID(testLesson)
	ctx := context.Background()

	conns := make(map[string]string)
	connID, err := service.JoinLesson(ctx, testLesson, professor)
	if err != nil {
		t.Fatalf("professor join: %v", err)
	}
	conns[professor.UserID] = connID
	for _, s := range students {
		connID, err := service.JoinLesson(ctx, testLesson, s)
		if err != nil {
			t.Fatalf("student join: %v", err)
		}
		conns[s.UserID] = connID
	}

	ch, cancel, err := bus.Subscribe(roomID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	return &harness{
		rooms:   rooms,
		sink:    sink,
		engine:  engine,
		service: service,
		log:     collectEvents(ch),
		cancel:  cancel,
		conns:   conns,
		roomID:  roomID,
	}
}

func quizConfig() app.GameConfig {
	return app.GameConfig{
		QuizRoundDuration: 300 * time.Millisecond,
		CodeRoundDuration: 5 * time.Second,
		SettleDelay:       50 * time.Millisecond,
		GetReadyDelay:     50 * time.Millisecond,
		AutoCloseGrace:    50 * time.Millisecond,
		BasePoints:        100,
		DecayStep:         10,
		FloorPoint:        10,
		TopN:              3,
		BonusXP:           50,
	}
}

func twoQuestionQuiz() domain.Quiz {
	return domain.Quiz{
		ID: "quiz-1",
		Questions: []domain.Question{
			{
				ID:     "q1",
				Prompt: "What is 2 + 2?",
				Options: []domain.Option{
					{ID: "o1", Text: "3", Correct: false},
					{ID: "o2", Text: "4", Correct: true},
				},
			},
			{
				ID:     "q2",
				Prompt: "What is 3 * 3?",
				Options: []domain.Option{
					{ID: "o1", Text: "9", Correct: true},
					{ID: "o2", Text: "6", Correct: false},
				},
			},
		},
	}
}

func sampleChallenge() domain.Challenge {
	return domain.Challenge{
		ID:                "challenge-1",
		Title:             "Echo",
		Description:       "Return the argument.",
		ReferenceSolution: "return x",
	}
}

// eventLog collects bus events so tests can assert on broadcast order
// without racing the subscriber channel.
type eventLog struct {
	mu     sync.Mutex
	events []domain.Event
}

func collectEvents(ch <-chan domain.Event) *eventLog {
	l := &eventLog{}
	go func() {
		for event := range ch {
			l.mu.Lock()
			l.events = append(l.events, event)
			l.mu.Unlock()
		}
	}()
	return l
}

func (l *eventLog) count(eventType string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func (l *eventLog) last(eventType string) (domain.Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.events) - 1; i >= 0; i-- {
		if l.events[i].Type == eventType {
			return l.events[i], true
		}
	}
	return domain.Event{}, false
}

func (l *eventLog) waitFor(t *testing.T, eventType string, timeout time.Duration) domain.Event {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if event, ok := l.last(eventType); ok {
			return event
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s event", eventType)
	return domain.Event{}
}

func TestQuizFlowFullGame(t *testing.T) {
	h := newHarness(t, quizConfig(), nil, studentX, studentY)
	defer h.cancel()
	ctx := context.Background()

	if err := h.engine.StartGame(ctx, h.roomID, professor, domain.ModeQuiz, "quiz-1"); err != nil {
		t.Fatalf("start game: %v", err)
	}
	started := h.log.waitFor(t, domain.EventRoundStarted, time.Second)
	payload := started.Payload.(domain.RoundStartedPayload)
	if payload.RoundNumber != 1 || payload.TotalRounds != 2 {
		t.Fatalf("unexpected round payload: %+v", payload)
	}
	if payload.Question == nil {
		t.Fatalf("expected question in round payload")
	}
	for _, opt := range payload.Question.Options {
		if opt.Text == "" {
			t.Fatalf("expected option text in public payload")
		}
	}

	// X answers correctly, Y incorrectly.
	resultX, err := h.engine.SubmitAnswer(ctx, h.roomID, studentX, 0, "o2")
	if err != nil {
		t.Fatalf("submit x: %v", err)
	}
	if !resultX.Correct || resultX.Awarded != 100 {
		t.Fatalf("expected x correct with 100, got %+v", resultX)
	}
	resultY, err := h.engine.SubmitAnswer(ctx, h.roomID, studentY, 0, "o1")
	if err != nil {
		t.Fatalf("submit y: %v", err)
	}
	if resultY.Correct || resultY.Awarded != 0 {
		t.Fatalf("expected y incorrect with 0, got %+v", resultY)
	}

	// Round timer expires, stats and ranking are published, the game
	// advances to round 2 and, unanswered, runs out to final results.
	stats := h.log.waitFor(t, domain.EventRoundStats, 2*time.Second).Payload.(domain.RoundStats)
	if stats.Responses != 2 || stats.Correct != 1 || stats.Present != 2 {
		t.Fatalf("unexpected round stats: %+v", stats)
	}
	h.log.waitFor(t, domain.EventRoundGetReady, 2*time.Second)

	final := h.log.waitFor(t, domain.EventFinalResults, 3*time.Second).Payload.(domain.FinalResultsPayload)
	if len(final.Ranking.Entries) != 2 {
		t.Fatalf("expected 2 ranking entries, got %+v", final.Ranking.Entries)
	}
	if final.Ranking.Entries[0].UserID != studentX.UserID || final.Ranking.Entries[0].Score < 10 {
		t.Fatalf("expected x first with at least the floor, got %+v", final.Ranking.Entries[0])
	}
	if final.Ranking.Entries[1].UserID != studentY.UserID || final.Ranking.Entries[1].Score != 0 {
		t.Fatalf("expected y second with 0, got %+v", final.Ranking.Entries[1])
	}
	if h.log.count(domain.EventRoundStarted) != 2 {
		t.Fatalf("expected 2 rounds, got %d", h.log.count(domain.EventRoundStarted))
	}

	// X reached the podium; the progression collaborator was notified.
	awards := waitAwards(t, h.sink, 1)
	if awards[0].UserID != studentX.UserID || awards[0].Points != 50 {
		t.Fatalf("unexpected award: %+v", awards[0])
	}
}

func TestDuplicateSubmissionIsNoOp(t *testing.T) {
	h := newHarness(t, quizConfig(), nil, studentX)
	defer h.cancel()
	ctx := context.Background()

	if err := h.engine.StartGame(ctx, h.roomID, professor, domain.ModeQuiz, "quiz-1"); err != nil {
		t.Fatalf("start game: %v", err)
	}

	first, err := h.engine.SubmitAnswer(ctx, h.roomID, studentX, 0, "o2")
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	h.log.waitFor(t, domain.EventRankingUpdate, time.Second)
	updatesAfterFirst := h.log.count(domain.EventRankingUpdate)

	_, err = h.engine.SubmitAnswer(ctx, h.roomID, studentX, 0, "o1")
	if !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if h.log.count(domain.EventRankingUpdate) != updatesAfterFirst {
		t.Fatalf("duplicate submission produced a ranking change")
	}

	snap, ok := h.rooms.GameSnapshot(h.roomID)
	if !ok {
		t.Fatalf("expected mirrored game snapshot")
	}
	if len(snap.Ranking) != 1 || snap.Ranking[0].Score != first.Awarded {
		t.Fatalf("expected score %d from first submission only, got %+v", first.Awarded, snap.Ranking)
	}
}

func TestStaleRoundReferenceRejected(t *testing.T) {
	h := newHarness(t, quizConfig(), nil, studentX)
	defer h.cancel()
	ctx := context.Background()

	if err := h.engine.StartGame(ctx, h.roomID, professor, domain.ModeQuiz, "quiz-1"); err != nil {
		t.Fatalf("start game: %v", err)
	}
	if _, err := h.engine.SubmitAnswer(ctx, h.roomID, studentX, 1, "o2"); !errors.Is(err, domain.ErrStaleRound) {
		t.Fatalf("expected stale round rejection, got %v", err)
	}
}

func TestStartWhileActiveRejected(t *testing.T) {
	h := newHarness(t, quizConfig(), nil, studentX)
	defer h.cancel()
	ctx := context.Background()

	if err := h.engine.StartGame(ctx, h.roomID, professor, domain.ModeQuiz, "quiz-1"); err != nil {
		t.Fatalf("start game: %v", err)
	}
	if err := h.engine.StartGame(ctx, h.roomID, professor, domain.ModeQuiz, "quiz-1"); !errors.Is(err, domain.ErrGameInProgress) {
		t.Fatalf("expected in-progress rejection, got %v", err)
	}
}

func TestStudentCannotStartOrStop(t *testing.T) {
	h := newHarness(t, quizConfig(), nil, studentX)
	defer h.cancel()
	ctx := context.Background()

	if err := h.engine.StartGame(ctx, h.roomID, studentX, domain.ModeQuiz, "quiz-1"); !errors.Is(err, domain.ErrNotProfessor) {
		t.Fatalf("expected professor-only rejection, got %v", err)
	}
	if err := h.engine.StartGame(ctx, h.roomID, professor, domain.ModeQuiz, "quiz-1"); err != nil {
		t.Fatalf("start game: %v", err)
	}
	if err := h.engine.StopGame(ctx, h.roomID, studentX); !errors.Is(err, domain.ErrNotProfessor) {
		t.Fatalf("expected professor-only rejection, got %v", err)
	}
}

func TestStopGameCancelsTimers(t *testing.T) {
	h := newHarness(t, quizConfig(), nil, studentX)
	defer h.cancel()
	ctx := context.Background()

	if err := h.engine.StartGame(ctx, h.roomID, professor, domain.ModeQuiz, "quiz-1"); err != nil {
		t.Fatalf("start game: %v", err)
	}
	if err := h.engine.StopGame(ctx, h.roomID, professor); err != nil {
		t.Fatalf("stop game: %v", err)
	}
	h.log.waitFor(t, domain.EventFinalResults, time.Second)

	// A stale round timer firing after the stop must be a no-op.
	time.Sleep(quizConfig().QuizRoundDuration + 100*time.Millisecond)
	if got := h.log.count(domain.EventRoundStats); got != 0 {
		t.Fatalf("stale timer advanced a stopped game: %d stats events", got)
	}
	if got := h.log.count(domain.EventFinalResults); got != 1 {
		t.Fatalf("expected exactly one final_results, got %d", got)
	}

	// The room is idle again; a new game can start.
	if err := h.engine.StartGame(ctx, h.roomID, professor, domain.ModeQuiz, "quiz-1"); err != nil {
		t.Fatalf("restart after stop: %v", err)
	}
}

func TestCodeChallengeAutoClose(t *testing.T) {
	h := newHarness(t, quizConfig(), nil, studentX, studentY, studentZ)
	defer h.cancel()
	ctx := context.Background()

	if err := h.engine.StartGame(ctx, h.roomID, professor, domain.ModeCodeChallenge, "challenge-1"); err != nil {
		t.Fatalf("start game: %v", err)
	}

	begin := time.Now()
	for _, s := range []domain.Identity{studentX, studentY, studentZ} {
		result, err := h.engine.SubmitAnswer(ctx, h.roomID, s, 0, "return x")
		if err != nil {
			t.Fatalf("submit %s: %v", s.UserID, err)
		}
		if !result.Correct {
			t.Fatalf("expected correct verdict for %s", s.UserID)
		}
	}

	// All present participants answered: the game ends after the grace
	// period, well before the 5s round timer.
	h.log.waitFor(t, domain.EventFinalResults, 2*time.Second)
	if elapsed := time.Since(begin); elapsed > 2*time.Second {
		t.Fatalf("auto-close took too long: %v", elapsed)
	}
}

func TestCodeChallengeDepartureShrinksDenominator(t *testing.T) {
	h := newHarness(t, quizConfig(), nil, studentX, studentY)
	defer h.cancel()
	ctx := context.Background()

	if err := h.engine.StartGame(ctx, h.roomID, professor, domain.ModeCodeChallenge, "challenge-1"); err != nil {
		t.Fatalf("start game: %v", err)
	}

	if _, err := h.engine.SubmitAnswer(ctx, h.roomID, studentX, 0, "return x"); err != nil {
		t.Fatalf("submit x: %v", err)
	}
	// One submission of two present: no close yet.
	time.Sleep(150 * time.Millisecond)
	if h.log.count(domain.EventFinalResults) != 0 {
		t.Fatalf("game closed before full participation")
	}

	// Y disconnects; everyone still present has now answered.
	h.service.Leave(ctx, h.roomID, h.conns[studentY.UserID])
	h.log.waitFor(t, domain.EventFinalResults, 2*time.Second)
}

func TestCodeChallengeSubmitterDepartureDoesNotClose(t *testing.T) {
	h := newHarness(t, quizConfig(), nil, studentX, studentY)
	defer h.cancel()
	ctx := context.Background()

	if err := h.engine.StartGame(ctx, h.roomID, professor, domain.ModeCodeChallenge, "challenge-1"); err != nil {
		t.Fatalf("start game: %v", err)
	}

	if _, err := h.engine.SubmitAnswer(ctx, h.roomID, studentX, 0, "return x"); err != nil {
		t.Fatalf("submit x: %v", err)
	}
	// The submitter disconnects while Y, still present, has not answered.
	// The departed submission must not count toward full participation.
	h.service.Leave(ctx, h.roomID, h.conns[studentX.UserID])
	time.Sleep(300 * time.Millisecond)
	if got := h.log.count(domain.EventFinalResults); got != 0 {
		t.Fatalf("game auto-closed while a present participant had not submitted")
	}

	// Once the remaining participant answers, everyone present is done.
	if _, err := h.engine.SubmitAnswer(ctx, h.roomID, studentY, 0, "return x"); err != nil {
		t.Fatalf("submit y: %v", err)
	}
	h.log.waitFor(t, domain.EventFinalResults, 2*time.Second)
}

type failingOracle struct{}

func (failingOracle) Evaluate(context.Context, string, string) (bool, error) {
	return false, errors.New("oracle unavailable")
}

func TestGraderFailureFailsClosed(t *testing.T) {
	h := newHarness(t, quizConfig(), failingOracle{}, studentX, studentY)
	defer h.cancel()
	ctx := context.Background()

	if err := h.engine.StartGame(ctx, h.roomID, professor, domain.ModeCodeChallenge, "challenge-1"); err != nil {
		t.Fatalf("start game: %v", err)
	}

	result, err := h.engine.SubmitAnswer(ctx, h.roomID, studentX, 0, "return x")
	if err != nil {
		t.Fatalf("submit should not fail on oracle error: %v", err)
	}
	if result.Correct || result.Awarded != 0 {
		t.Fatalf("expected fail-closed incorrect verdict, got %+v", result)
	}

	// The submission still counts as this participant's one answer.
	if _, err := h.engine.SubmitAnswer(ctx, h.roomID, studentX, 0, "return x"); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
}

func TestConcurrentSubmissionsRecordedExactlyOnce(t *testing.T) {
	h := newHarness(t, quizConfig(), nil, studentX)
	defer h.cancel()
	ctx := context.Background()

	if err := h.engine.StartGame(ctx, h.roomID, professor, domain.ModeQuiz, "quiz-1"); err != nil {
		t.Fatalf("start game: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.engine.SubmitAnswer(ctx, h.roomID, studentX, 0, "o2"); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if accepted != 1 {
		t.Fatalf("expected exactly one accepted submission, got %d", accepted)
	}
	snap, ok := h.rooms.GameSnapshot(h.roomID)
	if !ok {
		t.Fatalf("expected mirrored game snapshot")
	}
	if len(snap.Ranking) != 1 || snap.Ranking[0].Score != 100 {
		t.Fatalf("expected single 100-point entry, got %+v", snap.Ranking)
	}
}

func waitAwards(t *testing.T, sink *memory.ProgressionSink, want int) []memory.XPAward {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if awards := sink.Awards(); len(awards) >= want {
			return awards
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d xp awards", want)
	return nil
}
