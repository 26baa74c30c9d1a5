// Package mqtt provides resilient MQTT connectivity for the ConsultEase
// central core.
//
// This package manages:
//   - One logical broker connection with explicit connection state
//   - A bounded, batched outbound publish pipeline with a drop-oldest
//     overflow policy
//   - Wildcard topic dispatch onto a fixed worker pool
//   - A connection supervisor with bounded reconnect attempts and cooldown
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// MQTT is the message bus between the central kiosk and the faculty desk
// units. The Service type is the only surface business code touches:
//
//	Central Core ↔ MQTT Broker ↔ Faculty Desk Units
//
// Producers enqueue through PublishAsync and never block on network I/O;
// a single drain worker moves messages to the wire. Inbound messages are
// decoded optimistically as JSON (degrading to plain strings) and routed by
// pattern to handlers running off the network thread.
//
// # Failure model
//
// Transport faults never reach business callers. A lost connection flips the
// service to disconnected; the supervisor retries with a fixed delay up to a
// configured attempt cap, cools down, and starts over - indefinitely.
// Messages drained while disconnected are discarded and counted rather than
// re-queued, so an extended outage cannot grow the queue without bound.
// Registered subscriptions are restored in registration order on every
// reconnect.
//
// # Usage
//
//	svc := mqtt.NewService(cfg.MQTT, logger)
//	svc.Start()
//	defer svc.Stop()
//
//	svc.RegisterHandler(mqtt.Topics{}.AllFacultyStatus(),
//	    mqtt.HandlerFunc(func(topic string, payload any) error {
//	        // runs on the worker pool
//	        return nil
//	    }))
//
//	svc.PublishAsync(mqtt.Topics{}.SystemNotifications(), notification, 1, true)
package mqtt
