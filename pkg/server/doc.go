// Package server assembles a running broker: the store, the broker that
// serves operations from it, the protocol adapters, and the optional
// metrics endpoint and etcd registration.
//
// Example usage:
//
//	brk := broker.New(st, broker.Config{})
//	srv := server.New(st, brk, server.Options{})
//	adp, _ := fsbroker.New(cfg, brk, brokerMetrics)
//	_ = srv.AddAdapter(adp)
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
//	    log.Fatal(err)
//	}
package server
