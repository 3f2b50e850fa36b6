package host

import (
	"context"
	"strconv"
	"testing"
)

func benchmarkTriggerFanOut(b *testing.B, subscribers int) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil, nil)
	go hub.Run(ctx)

	subs := make([]*Subscriber, 0, subscribers)
	for i := range subscribers {
		s := NewSubscriber("s" + strconv.Itoa(i))
		hub.RegisterClient(s)
		subs = append(subs, s)
	}

	// Drain events for all but the first subscriber to avoid channel backpressure.
	target := subs[0]
	for _, s := range subs[1:] {
		go func(sub *Subscriber) {
			for range sub.Events {
			}
		}(s)
	}

	payload := map[string]any{"channelName": "bench"}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		hub.Trigger("ably-message", payload, payload)
		<-target.Events
	}
}

func BenchmarkTriggerFanOut_10(b *testing.B)  { benchmarkTriggerFanOut(b, 10) }
func BenchmarkTriggerFanOut_100(b *testing.B) { benchmarkTriggerFanOut(b, 100) }
