package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"liveclass-service/internal/domain"
	"liveclass-service/internal/infra/memory"
)

func TestContentRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)

	loader := &countingLoader{
		ContentLoader: memory.NewStaticContentLoader(
			map[string]domain.Quiz{"quiz-1": sampleQuiz()},
			map[string]domain.Challenge{"challenge-1": sampleChallenge()},
		),
	}
	repo := NewContentRepository(client, loader, time.Minute)

	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.quizCalls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.quizCalls)
	}

	// Second call should hit cache, loader not incremented.
	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if loader.quizCalls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.quizCalls)
	}
	if !mr.Exists("content:quiz:quiz-1") {
		t.Fatalf("expected quiz cached in redis")
	}

	// The cached document keeps the server-side fields intact.
	quiz, err := repo.GetQuiz(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("get quiz 3: %v", err)
	}
	if quiz.Questions[0].CorrectOption() != "o2" {
		t.Fatalf("correct marker lost through the cache: %+v", quiz.Questions[0])
	}
}

func TestContentRepositoryCachesChallenges(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{
		ContentLoader: memory.NewStaticContentLoader(nil,
			map[string]domain.Challenge{"challenge-1": sampleChallenge()}),
	}
	repo := NewContentRepository(newClient(mr), loader, time.Minute)

	challenge, err := repo.GetChallenge(context.Background(), "challenge-1")
	if err != nil {
		t.Fatalf("get challenge: %v", err)
	}
	if challenge.ReferenceSolution != "return x" {
		t.Fatalf("reference solution lost: %+v", challenge)
	}
	if _, err := repo.GetChallenge(context.Background(), "challenge-1"); err != nil {
		t.Fatalf("get challenge 2: %v", err)
	}
	if loader.challengeCalls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.challengeCalls)
	}
}

func TestContentRepositoryReloadsAfterExpiry(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{
		ContentLoader: memory.NewStaticContentLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()}, nil),
	}
	repo := NewContentRepository(newClient(mr), loader, time.Minute)

	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz after expiry: %v", err)
	}
	if loader.quizCalls != 2 {
		t.Fatalf("expected reload after expiry, loader calls=%d", loader.quizCalls)
	}
}

type countingLoader struct {
	memory.ContentLoader
	quizCalls      int
	challengeCalls int
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	l.quizCalls++
	return l.ContentLoader.LoadQuiz(ctx, quizID)
}

func (l *countingLoader) LoadChallenge(ctx context.Context, challengeID string) (domain.Challenge, error) {
	l.challengeCalls++
	return l.ContentLoader.LoadChallenge(ctx, challengeID)
}

func sampleQuiz() domain.Quiz {
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

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
