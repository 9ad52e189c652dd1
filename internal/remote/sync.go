package remote

import (
	"context"
	"time"
)

// Kinds of settings documents mirrored per user.
const (
	KindRules   = "rules"
	KindProfile = "profile"
	KindReport  = "report"
)

// Syncer is the write-behind mirror: enqueue the latest payload for each
// settings kind and the debouncer publishes once per burst.
type Syncer struct {
	deb *Debouncer
}

// NewSyncer builds a syncer that publishes through the client as userID.
func NewSyncer(client *Client, userID string, delay time.Duration) *Syncer {
	return newSyncer(func(ctx context.Context, kind string, payload []byte) error {
		return client.Publish(ctx, &SettingsDoc{
			UserID:  userID,
			Kind:    kind,
			Payload: payload,
		})
	}, delay)
}

func newSyncer(publish PublishFunc, delay time.Duration) *Syncer {
	return &Syncer{deb: NewDebouncer(delay, publish)}
}

// Enqueue schedules a write; later payloads for the same kind replace
// earlier pending ones.
func (s *Syncer) Enqueue(kind string, payload []byte) {
	s.deb.Enqueue(kind, payload)
}

// Flush publishes everything still pending. Call before exit so a short
// process does not drop its writes.
func (s *Syncer) Flush() {
	s.deb.Flush()
}

// Close drops pending writes without publishing.
func (s *Syncer) Close() {
	s.deb.Close()
}
