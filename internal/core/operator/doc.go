// Package operator defines the state-persistence contract for stateful
// query operators and a few reference operators.
//
// Every operator moves through a small state machine:
//
//	Unmodified --mutation--> Dirty --SaveState + commit--> OnStateSaved --> Unmodified
//
// Differential checkpoints only save operators whose StateChanged reports
// true. OnStateSaved is called by the engine after the checkpoint is
// committed, never before.
package operator
