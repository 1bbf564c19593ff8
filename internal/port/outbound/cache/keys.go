package cache

import (
	"fmt"

	"github.com/platemate/platemate-server/internal/domain/model"
)

// Cache key schema. Stable by contract: operators grep these shapes when
// debugging, so changing them is a breaking change.

func SessionKey(id string) string {
	return fmt.Sprintf("session:%s", id)
}

func SessionCodeKey(code string) string {
	return fmt.Sprintf("session:code:%s", code)
}

func SessionParticipantsKey(id string) string {
	return fmt.Sprintf("session:%s:participants", id)
}

func SessionSwipesKey(id string) string {
	return fmt.Sprintf("session:%s:swipes", id)
}

func UserKey(id string) string {
	return fmt.Sprintf("user:%s", id)
}

func UserSessionsKey(id string) string {
	return fmt.Sprintf("user:%s:sessions", id)
}

func ItemKey(itemType model.ItemType, id string) string {
	return fmt.Sprintf("%s:%s", itemType, id)
}

func RateKey(identifier string) string {
	return fmt.Sprintf("rate:%s", identifier)
}
