// Package http provides the governance gateway's REST façade: a JSON/HTTP
// surface over the same session.Manager a CLI or MCP Proxy would drive
// in-process. It exists for operators and external systems that want to
// create sessions, evaluate actions, and inspect ledgers without speaking
// MCP.
//
// # Endpoints
//
//	POST   /validate                       validate a policy document
//	POST   /sessions                       create a session
//	GET    /sessions                       list active sessions
//	GET    /sessions/{id}                  get a session's report
//	POST   /sessions/{id}/evaluate          evaluate an action
//	POST   /sessions/{id}/record            record an action's result
//	POST   /sessions/{id}/approve           resolve a pending gate: approved
//	POST   /sessions/{id}/reject            resolve a pending gate: rejected
//	POST   /sessions/{id}/terminate         terminate a session
//	GET    /sessions/{id}/report            session report (alias of GET /sessions/{id})
//	GET    /sessions/{id}/ledger            raw ledger JSONL
//	GET    /sessions/{id}/ledger/summary     per-event-type counts
//	GET    /sessions/{id}/ledger/verify      hash-chain integrity check
//	GET    /health                          liveness/readiness probe
//
// Error responses carry {"error": "..."} with an appropriate 4xx/5xx status.
package http
