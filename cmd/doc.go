// Package cmd implements the questledger command line.
//
// Architecture overview:
//   - Configuration: internal/config loads questledger.yaml (or --config) plus
//     QUESTLEDGER_* environment overrides through Viper.
//   - Container: PersistentPreRunE builds an internal/app.App (logger, store,
//     page cache, progress hub and sync runner) and stores it in the command
//     context; PersistentPostRun closes it.
//   - Persistence: profiles, statuses, the catalog and sync run history live in
//     one SQLite file owned by internal/store. Fetched pages live in a separate
//     cache file so it can be deleted at any time.
//   - Sync: `questledger sync` runs the reconciler in the background, prints
//     progress as categories are scanned and saves the rebuilt catalog. Ctrl-C
//     cancels the run and leaves the stored catalog unchanged. With
//     metrics.addr set, /metrics, /healthz and the /api/runs history are served
//     while it runs.
//
// Quick checklist:
//   - questledger profile create Alice && questledger --profile Alice summary
//   - questledger status set completed "Little Tom" "Minister Cho's Estate"
//   - questledger export backup.json / questledger import backup.json
package cmd
