// Package game is rallybot's domain core: weekly scaffolds, the concrete
// games generated from them, the game lifecycle state machine, and the
// service that runs every state-changing operation under a per-game
// exclusion lock.
//
// The package owns no I/O of its own. Persistence is behind the Store
// interface, chat output behind the Notifier interface, and runtime settings
// (timezone, deadline notations, target chat) come from a SettingsFunc so
// config edits apply on the next tick without restarts.
package game
