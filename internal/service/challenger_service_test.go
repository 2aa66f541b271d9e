package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rl-arena/duel-arena-backend/internal/models"
	"github.com/rl-arena/duel-arena-backend/pkg/distributed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryChallengers struct {
	mu      sync.Mutex
	skills  []models.PlayerSkill
	flagged []string
	calls   int
	fail    bool
}

func (m *memoryChallengers) ListTopTier(ctx context.Context, floor float64) ([]models.PlayerSkill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errors.New("db down")
	}
	var out []models.PlayerSkill
	for _, s := range m.skills {
		if s.Skill.Score >= floor {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memoryChallengers) SetChallengers(ctx context.Context, playerIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.flagged = make([]string, len(playerIDs))
	copy(m.flagged, playerIDs)
	return nil
}

func playerSkill(id string, score float64, matches int) models.PlayerSkill {
	return models.PlayerSkill{PlayerID: id, Skill: models.SkillRecord{Score: score, Matches: matches}}
}

func TestChallengerService_Recompute(t *testing.T) {
	elo := NewELOService(models.DefaultRatingConfig())
	store := &memoryChallengers{skills: []models.PlayerSkill{
		playerSkill("gold", 1500, 100),
		playerSkill("m1", 1900, 40),
		playerSkill("m2", 2100, 40),
		playerSkill("m3", 1900, 60),
		playerSkill("m4", 1800, 10),
	}}

	tests := []struct {
		name  string
		slots int
		want  []string
	}{
		{"상위 2명", 2, []string{"m2", "m3"}},
		{"동점은 매치 수 많은 쪽 우선", 3, []string{"m2", "m3", "m1"}},
		{"슬롯이 후보보다 많음", 10, []string{"m2", "m3", "m1", "m4"}},
		{"슬롯 0이면 전원 해제", 0, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewChallengerService(store, elo, tt.slots, nil)
			ids, err := svc.RecomputeChallengers(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids)
			assert.Equal(t, tt.want, store.flagged)
		})
	}
}

func TestChallengerService_StoreError(t *testing.T) {
	store := &memoryChallengers{fail: true}
	svc := NewChallengerService(store, NewELOService(models.DefaultRatingConfig()), 3, nil)

	_, err := svc.RecomputeChallengers(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 0, store.calls)
}

func TestChallengerService_Lock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := &memoryChallengers{skills: []models.PlayerSkill{playerSkill("m1", 1900, 40)}}
	svc := NewChallengerService(store, NewELOService(models.DefaultRatingConfig()), 1, nil)
	svc.SetLocker(distributed.NewRedisLockManager(client, "instance-a"))

	t.Run("락이 비어 있으면 실행 후 해제", func(t *testing.T) {
		ids, err := svc.RecomputeChallengers(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"m1"}, ids)
		assert.False(t, mr.Exists(challengerLockKey))
	})

	t.Run("다른 인스턴스가 잡고 있으면 건너뜀", func(t *testing.T) {
		require.NoError(t, mr.Set(challengerLockKey, "instance-b"))
		before := store.calls

		ids, err := svc.RecomputeChallengers(context.Background())
		require.NoError(t, err)
		assert.Nil(t, ids)
		assert.Equal(t, before, store.calls)
	})
}
