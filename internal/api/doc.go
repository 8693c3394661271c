// Package api serves the read-only operator HTTP surface that runs alongside a
// sync. Routes:
//   - GET /metrics and /healthz from the metrics router.
//   - GET /api/runs?status=&limit= lists recent sync runs, newest first.
//   - GET /api/runs/{run_id} returns one run.
package api
