// Package engine contains the descent simulation and the loop that drives it.
//
// ARCHITECTURAL RULE: only the Ticker goroutine mutates a Simulation.
// Observers subscribe to the events.Bus and receive value copies; other
// goroutines submit Commands and read State snapshots.
package engine
