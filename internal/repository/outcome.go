package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/tictactoe-relay/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-relay/internal/entity"
)

// OutcomeRepository records the single authoritative outcome of each session.
type OutcomeRepository interface {
	// Claim stores outcome for sessionID unless one is already stored.
	// It reports whether this call made the claim.
	Claim(ctx context.Context, sessionID string, outcome entity.Outcome) (bool, error)
	GetByID(ctx context.Context, sessionID string) (entity.Outcome, error)
}

type memoryOutcome struct {
	mu       sync.Mutex
	outcomes map[string]entity.Outcome
}

func NewMemoryOutcomeRepository() OutcomeRepository {
	return &memoryOutcome{
		outcomes: make(map[string]entity.Outcome),
	}
}

func (that *memoryOutcome) Claim(_ context.Context, sessionID string, outcome entity.Outcome) (bool, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if _, ok := that.outcomes[sessionID]; ok {
		return false, nil
	}

	that.outcomes[sessionID] = outcome

	return true, nil
}

func (that *memoryOutcome) GetByID(_ context.Context, sessionID string) (entity.Outcome, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	outcome, ok := that.outcomes[sessionID]
	if !ok {
		return entity.Outcome{}, apperror.ErrOutcomeNotFound
	}

	return outcome, nil
}

type dbOutcome struct {
	client *redis.Client
	ttl    time.Duration
}

// storedOutcome is the JSON kept under outcome:<sessionID>.
type storedOutcome struct {
	Outcome   entity.Outcome `json:"outcome"`
	ClaimedAt time.Time      `json:"claimed_at"`
}

// NewRedisOutcomeRepository - outcomes shared by every relay using the same redis. A zero ttl keeps keys forever.
func NewRedisOutcomeRepository(client *redis.Client, ttl time.Duration) OutcomeRepository {
	return &dbOutcome{
		client: client,
		ttl:    ttl,
	}
}

func (that *dbOutcome) Claim(ctx context.Context, sessionID string, outcome entity.Outcome) (bool, error) {
	outcomeJSON, err := json.Marshal(storedOutcome{Outcome: outcome, ClaimedAt: time.Now().UTC()})
	if err != nil {
		return false, fmt.Errorf("could not marshal outcome: %w", err)
	}

	claimed, err := that.client.SetNX(ctx, outcomeKey(sessionID), outcomeJSON, that.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim outcome: %w", err)
	}

	return claimed, nil
}

func (that *dbOutcome) GetByID(ctx context.Context, sessionID string) (entity.Outcome, error) {
	response, err := that.client.Get(ctx, outcomeKey(sessionID)).Result()

	if errors.Is(err, redis.Nil) {
		return entity.Outcome{}, apperror.ErrOutcomeNotFound
	}

	if err != nil {
		return entity.Outcome{}, fmt.Errorf("failed to get outcome by id: %w", err)
	}

	var stored storedOutcome
	if err = json.Unmarshal([]byte(response), &stored); err != nil {
		return entity.Outcome{}, fmt.Errorf("failed to unmarshal outcome: %w", err)
	}

	return stored.Outcome, nil
}

func outcomeKey(sessionID string) string {
	return "outcome:" + sessionID
}
