// Package boxmgr supervises a single sing-box core process: it starts the
// core with a stored configuration, streams its output, runs lifecycle
// scripts around it and follows its control API for live metrics.
//
// The core functionality centers around the Supervisor type, which reads
// everything it needs from a Store:
//
//	sup, err := boxmgr.New(store, boxmgr.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sup.Close(context.Background())
//
//	// Start (or restart) the core with the active configuration
//	err = sup.Start(ctx)
//
//	// Read the status board
//	st := sup.Status()
//	fmt.Printf("running: %t, connections: %d\n", st.IsRunning, st.ConnectionCount)
//
// # Status and Logs
//
// Status returns a snapshot; Changed returns a channel that is closed on the
// next change, so callers can wait without polling:
//
//	for {
//	    <-sup.Changed()
//	    render(sup.Status())
//	}
//
// Core output and supervisor events go to a bounded log queue. A listener
// created by SubscribeLogs first receives the retained backlog, then live
// lines. Listeners that fall behind lose lines instead of blocking the core.
//
// # Lifecycle Scripts
//
// Up to four scripts can be attached to a configuration's life: before
// start, after start (each time the core reports it is ready), before close
// (only when the supervisor stops the core) and after close (whatever the
// cause). Script output is logged; failures never abort a start or stop.
//
// # Configuration Handling
//
// Configurations are stored as given. Before each start the supervisor
// rewrites the logging section so the core logs plain lines to stdout and
// makes sure the control API is enabled, injecting a listen address and a
// random secret when the configuration has no control API section. The
// result is written to the core's stdin and never touches disk.
//
// # Design Philosophy
//
// This library prioritizes:
//
//   - One core at a time, with start and stop serialized
//   - Configuration passed over stdin rather than temp files
//   - Context-aware operations with bounded stop times
//   - Platform specific process control isolated in internal/proc
package boxmgr
