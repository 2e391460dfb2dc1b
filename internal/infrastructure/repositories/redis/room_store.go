package redis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"pairview/internal/core/domain"
	"pairview/internal/core/ports"
)

const roomKeyPrefix = "pairview:room:"

// joinScript enforces the two-member cap atomically across processes.
// A rejoin of an existing member short-circuits before the cap check.
var joinScript = redis.NewScript(`
if redis.call("SISMEMBER", KEYS[1], ARGV[1]) == 1 then
    return redis.call("SMEMBERS", KEYS[1])
end
if redis.call("SCARD", KEYS[1]) >= tonumber(ARGV[2]) then
    return redis.error_reply("ROOM_FULL")
end
redis.call("SADD", KEYS[1], ARGV[1])
return redis.call("SMEMBERS", KEYS[1])
`)

// RoomStore is the distributed room registry for multi-process signaling
// deployments.
type RoomStore struct {
	client *redis.Client
	logger *zap.SugaredLogger
}

func NewRoomStore(client *redis.Client, logger *zap.SugaredLogger) ports.RoomStore {
	return &RoomStore{client: client, logger: logger}
}

func roomKey(roomID string) string {
	return roomKeyPrefix + roomID
}

func (s *RoomStore) Join(ctx context.Context, roomID, connID string) ([]string, error) {
	res, err := joinScript.Run(ctx, s.client, []string{roomKey(roomID)}, connID, domain.RoomCapacity).Result()
	if err != nil {
		if strings.Contains(err.Error(), "ROOM_FULL") {
			return nil, domain.ErrRoomFull
		}
		return nil, fmt.Errorf("redis join: %w", err)
	}

	members, err := toStringSlice(res)
	if err != nil {
		return nil, err
	}
	sort.Strings(members)
	return members, nil
}

func (s *RoomStore) Leave(ctx context.Context, roomID, connID string) ([]string, error) {
	key := roomKey(roomID)

	pipe := s.client.TxPipeline()
	pipe.SRem(ctx, key, connID)
	membersCmd := pipe.SMembers(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis leave: %w", err)
	}

	members := membersCmd.Val()
	if len(members) == 0 {
		if err := s.client.Del(ctx, key).Err(); err != nil {
			s.logger.Warnw("failed to delete empty room key", "room_id", roomID, "error", err)
		}
		return nil, nil
	}
	sort.Strings(members)
	return members, nil
}

func (s *RoomStore) Members(ctx context.Context, roomID string) ([]string, error) {
	members, err := s.client.SMembers(ctx, roomKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis members: %w", err)
	}
	sort.Strings(members)
	return members, nil
}

func (s *RoomStore) RoomCount(ctx context.Context) (int, error) {
	var count int
	iter := s.client.Scan(ctx, 0, roomKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis room count: %w", err)
	}
	return count, nil
}

func toStringSlice(res interface{}) ([]string, error) {
	raw, ok := res.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected script reply type %T", res)
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected member type %T", v)
		}
		out = append(out, str)
	}
	return out, nil
}
