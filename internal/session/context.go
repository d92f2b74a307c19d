package session

import (
	"github.com/wb-go/wbf/ginext"

	"confreg/internal/workflow"
)

const actorKey = "session.actor"

func SetActor(c *ginext.Context, actor *workflow.Actor) {
	c.Set(actorKey, actor)
}

// ActorFrom returns the authenticated actor of the request, or nil.
func ActorFrom(c *ginext.Context) *workflow.Actor {
	v, ok := c.Get(actorKey)
	if !ok {
		return nil
	}
	actor, _ := v.(*workflow.Actor)
	return actor
}
