package shared

import (
	"net/http"
	"strconv"
)

// ActorHeader carries the authenticated user id, set by the auth gateway
// in front of this service.
const ActorHeader = "X-Actor-ID"

// ActorFromRequest extracts the acting user id, or 0 when absent.
func ActorFromRequest(r *http.Request) int64 {
	id, err := strconv.ParseInt(r.Header.Get(ActorHeader), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
