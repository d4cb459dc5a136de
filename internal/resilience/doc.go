// Package resilience guards every outbound call made by the alert cycles.
//
// Each external service (market data, DEX data, the messaging gateway) gets a
// token-bucket RateLimiter, a CircuitBreaker and a RetryPolicy, kept together
// in a Registry that is built once at startup. The Executor composes them in a
// fixed order: breaker check, rate limit, breaker call around the retried
// operation. Outcomes feed the HealthRegistry, which is reporting-only.
package resilience
