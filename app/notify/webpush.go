package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/lysyi3m/match-watch/app/database"
)

var _ Sender = (*WebPushSender)(nil)

// WebPushSender delivers payloads through the Web Push protocol with VAPID
// authentication.
type WebPushSender struct {
	keys       *VAPIDKeys
	subject    string
	ttl        time.Duration
	httpClient *http.Client
}

// NewWebPushSender bounds every dispatch by timeout so a single unreachable
// push service cannot stall a fanout.
func NewWebPushSender(keys *VAPIDKeys, subject string, ttl, timeout time.Duration) *WebPushSender {
	return &WebPushSender{
		keys:       keys,
		subject:    subject,
		ttl:        ttl,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (s *WebPushSender) Send(ctx context.Context, subscription database.PushSubscription, payload []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: subscription.Endpoint,
		Keys: webpush.Keys{
			Auth:   subscription.Keys.Auth,
			P256dh: subscription.Keys.P256dh,
		},
	}, &webpush.Options{
		HTTPClient:      s.httpClient,
		Subscriber:      s.subject,
		TTL:             int(s.ttl.Seconds()),
		VAPIDPublicKey:  s.keys.PublicKey,
		VAPIDPrivateKey: s.keys.PrivateKey,
	})
	if err != nil {
		return fmt.Errorf("failed to send push message: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("push service rejected message: %s", resp.Status)
	}
	return nil
}
