package matchmaking

import (
	"github.com/google/uuid"
)

// roomNamespace is the fixed UUIDv5 namespace for matchmade room ids.
var roomNamespace = uuid.MustParse("9a8f3c1e-4b62-4d8a-9f0e-2c7b5d1a6e43")

// DeterministicRoomID derives the room id for a matched pair from the
// sorted participant ids, so DeterministicRoomID(a, b) == DeterministicRoomID(b, a)
// and a retried search lands on the same room instead of creating a second one.
func DeterministicRoomID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return uuid.NewSHA1(roomNamespace, []byte(a+":"+b)).String()
}
