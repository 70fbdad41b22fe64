// Package auth provides optional caller authentication and per-subject rate
// limiting in front of POST /invocations.
//
// Authentication uses a chain of authenticators with three-outcome voting:
// each returns Yes (identity found), No (credentials invalid) or Abstain
// (cannot handle these credentials). A default decision applies when every
// authenticator abstains.
//
// Auth is HTTP middleware and stays out of the pipeline. The operational
// endpoints (/healthz, /readyz, /metrics) bypass it.
package auth
