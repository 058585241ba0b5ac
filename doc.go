// Package channelsdk implements a client for long-lived streaming channels.
//
// A channel is a persistent, server-push connection (WebSocket by default)
// that the SDK keeps alive across transport failures: lost connections are
// re-established automatically with jittered exponential backoff, buffered
// messages are never dropped by a reconnect, and the consumer sees one
// ordered stream regardless of how many physical connections carried it.
// This package is the root of the SDK, providing convenient exports of the
// core components from the sub-packages.
//
// # Overview
//
// The SDK consists of several sub-packages:
//
//   - pkg/channel: The channel lifecycle, reconnect loop and message buffer
//   - pkg/transport: Connectors and connections (WebSocket, middleware)
//   - pkg/protocol: Frame decoding into messages
//   - pkg/errors: Structured errors with stable codes
//   - pkg/logging: Structured logging used across the SDK
//   - pkg/observability: Prometheus metrics and OpenTelemetry tracing
//
// # Receiving a Stream
//
// To connect to an endpoint and consume its messages:
//
//	import (
//	    "context"
//	    "log"
//
//	    channelsdk "github.com/channelkit/channel-sdk-go"
//	)
//
//	func main() {
//	    ctx := context.Background()
//
//	    ch, err := channelsdk.Dial(ctx, "wss://stream.example.com/v1", nil)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer ch.Close(ctx)
//
//	    for {
//	        msg, err := ch.Recv(ctx)
//	        if err != nil {
//	            log.Fatal(err)
//	        }
//	        if msg.IsDecodeError() {
//	            log.Printf("undecodable frame: %v", msg.DecodeErr)
//	            continue
//	        }
//	        log.Printf("received: %v", msg.Payload)
//	    }
//	}
//
// Recv is single-consumer: at most one goroutine may be blocked in it at a
// time. The channel.Iterator type offers a loop-friendly alternative.
//
// # Live Endpoint Updates
//
// A running channel can be retargeted without losing buffered messages:
//
//	err := ch.Update(ctx, "wss://stream-2.example.com/v1", true)
//	if errors.IsUpdateRolledBack(err) {
//	    // the new endpoint was unreachable; still connected to the old one
//	}
//
// With rollback enabled a failed update restores the previous endpoint and
// the channel stays open; without it the channel closes and the failure is
// also delivered to a consumer blocked in Recv.
//
// # Error Handling
//
// All SDK errors carry stable numeric codes and categories; see pkg/errors.
// Predicates such as errors.IsChannelClosed and errors.IsReconnectExhausted
// cover the common cases.
package channelsdk
