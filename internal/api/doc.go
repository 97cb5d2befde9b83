// Package api hosts the HTTP control surface for the crawl engine. Notable
// routes:
//   - POST /v1/runs queues a links, details or all run; GET /v1/runs/{id}
//     reports its status.
//   - POST /v1/pause and /v1/resume drive the engine's pause gate.
//   - GET /v1/progress?phase=links|details reports completion.
//   - GET /v1/links, /v1/details and /v1/details.xlsx expose results, with
//     listing filters and sorting on the details routes.
//   - GET /healthz, /readyz and /metrics for probes and Prometheus.
package api
