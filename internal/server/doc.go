// Package server hosts the videobox API behind a single chi router.
//
// Every route shares one middleware chain: request IDs, request logging,
// Prometheus metrics, security headers and CORS. The versioned API is mounted
// at /api/v1 and the metrics registry at /metrics.
package server
