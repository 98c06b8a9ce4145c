package redis

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestProperty_PresenceMatchesOpenConnections replays random join/leave
// sequences and checks the online set equals users with open connections.
func TestProperty_PresenceMatchesOpenConnections(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	properties := gopter.NewProperties(nil)

	round := 0
	properties.Property("online set equals users with a positive connection count",
		prop.ForAll(
			func(ops []int) bool {
				round++
				room := fmt.Sprintf("room-%d", round)
				open := make(map[string]int)

				for _, op := range ops {
					user := fmt.Sprintf("u%d", op%4)
					if op%2 == 0 || open[user] == 0 {
						if _, err := client.JoinPresence(ctx, room, user); err != nil {
							return false
						}
						open[user]++
						continue
					}
					last, err := client.LeavePresence(ctx, room, user)
					if err != nil {
						return false
					}
					open[user]--
					if last != (open[user] == 0) {
						t.Logf("leave of %s reported last=%v with %d remaining", user, last, open[user])
						return false
					}
				}

				online, err := client.OnlineUsers(ctx, room)
				if err != nil {
					return false
				}
				want := 0
				for _, n := range open {
					if n > 0 {
						want++
					}
				}
				if len(online) != want {
					return false
				}
				for _, u := range online {
					if open[u] <= 0 {
						return false
					}
				}
				return true
			},
			gen.SliceOf(gen.IntRange(0, 15)),
		))

	properties.TestingRun(t)
}
