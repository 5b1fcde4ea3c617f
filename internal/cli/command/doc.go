// Package command defines the reactq-ckpt command line: offline
// inspection, verification and dumping of checkpoint state stores.
//
// Every command opens the store named by the global --store and --dir
// flags (or the configuration file) read-only, except prune.
package command
