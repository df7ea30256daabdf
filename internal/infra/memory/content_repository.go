package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"liveclass-service/internal/domain"
)

// ContentLoader fetches game content from a backing store (e.g., Postgres).
type ContentLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	LoadChallenge(ctx context.Context, challengeID string) (domain.Challenge, error)
}

// ContentRepository caches quizzes and challenges with TTL to avoid
// repeated backing-store hits while a game is being launched.
type ContentRepository struct {
	loader ContentLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu         sync.RWMutex
	quizzes    map[string]cachedEntry[domain.Quiz]
	challenges map[string]cachedEntry[domain.Challenge]
}

type cachedEntry[T any] struct {
	value     T
	expiresAt time.Time
}

func NewContentRepository(loader ContentLoader, ttl time.Duration) *ContentRepository {
	return &ContentRepository{
		loader:     loader,
		ttl:        ttl,
		clock:      time.Now,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
		quizzes:    make(map[string]cachedEntry[domain.Quiz]),
		challenges: make(map[string]cachedEntry[domain.Challenge]),
	}
}

func (r *ContentRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.quizzes[quizID]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.value, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do("quiz:"+quizID, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.quizzes[quizID]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.value, nil
		}
		r.mu.RUnlock()

		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}

		r.mu.Lock()
		r.quizzes[quizID] = cachedEntry[domain.Quiz]{value: quiz, expiresAt: now.Add(r.ttlWithJitter())}
		r.mu.Unlock()
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (r *ContentRepository) GetChallenge(ctx context.Context, challengeID string) (domain.Challenge, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.challenges[challengeID]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.value, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do("challenge:"+challengeID, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.challenges[challengeID]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.value, nil
		}
		r.mu.RUnlock()

		challenge, err := r.loader.LoadChallenge(ctx, challengeID)
		if err != nil {
			return domain.Challenge{}, err
		}

		r.mu.Lock()
		r.challenges[challengeID] = cachedEntry[domain.Challenge]{value: challenge, expiresAt: now.Add(r.ttlWithJitter())}
		r.mu.Unlock()
		return challenge, nil
	})
	if err != nil {
		return domain.Challenge{}, err
	}
	return result.(domain.Challenge), nil
}

func (r *ContentRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticContentLoader is a simple loader backed by in-memory maps (useful for tests/demos).
type StaticContentLoader struct {
	quizzes    map[string]domain.Quiz
	challenges map[string]domain.Challenge
}

func NewStaticContentLoader(quizzes map[string]domain.Quiz, challenges map[string]domain.Challenge) *StaticContentLoader {
	if quizzes == nil {
		quizzes = make(map[string]domain.Quiz)
	}
	if challenges == nil {
		challenges = make(map[string]domain.Challenge)
	}
	return &StaticContentLoader{quizzes: quizzes, challenges: challenges}
}

func (l *StaticContentLoader) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := l.quizzes[quizID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrContentNotFound
}

func (l *StaticContentLoader) LoadChallenge(_ context.Context, challengeID string) (domain.Challenge, error) {
	if challenge, ok := l.challenges[challengeID]; ok {
		return challenge, nil
	}
	return domain.Challenge{}, domain.ErrContentNotFound
}
