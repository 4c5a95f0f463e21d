// Package natsclient wraps a core NATS connection for the haptics bridge.
//
// The Client tracks connection state, reports it through callbacks and
// Prometheus gauges, and exposes context-aware Publish and Subscribe with a
// per-message handler timeout. Reconnection is left to nats.go; the client
// only mirrors its disconnect, reconnect and closed notifications.
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//		natsclient.WithName("hapticd"),
//		natsclient.WithLogger(logger),
//		natsclient.WithMetrics(registry),
//	)
//	if err != nil {
//		return err
//	}
//	if err := client.Connect(ctx); err != nil {
//		return err
//	}
//	defer client.Close(context.Background())
//
//	_ = client.Subscribe(ctx, "haptics.commands.stop", func(ctx context.Context, data []byte) {
//		ctrl.Stop()
//	})
//
// TestClient starts a throwaway NATS server in a container for integration
// tests (build tag "integration").
package natsclient
