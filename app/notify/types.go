package notify

import (
	"context"

	"github.com/lysyi3m/match-watch/app/database"
)

// Sender delivers one payload to one device. It makes a single attempt and
// either succeeds or fails.
type Sender interface {
	Send(ctx context.Context, subscription database.PushSubscription, payload []byte) error
}

// Payload is the JSON body pushed to devices. ID and HasReport are omitted
// for ad-hoc messages.
type Payload struct {
	ID        string `json:"id,omitempty"`
	Msg       string `json:"msg"`
	HasReport *bool  `json:"hasReport,omitempty"`
}

// Stats summarises one fanout call.
type Stats struct {
	Subscribers int
	Delivered   int
	Failed      int
}
