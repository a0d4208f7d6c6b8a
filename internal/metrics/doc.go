/*
Package metrics provides Prometheus-based metrics collection for provider
orchestration.

The Collector registers its metric families through promauto against a
caller-supplied Registerer, falling back to the default registry. Families
are namespaced and label-grouped for dashboarding:

  - Provider metrics: attempt totals and duration histograms, grouped by
    provider/operation/status.
  - Failover metrics: how often the orchestrator advanced past a failed
    provider, grouped by provider.
  - Cache metrics: analysis cache hit and miss counters.
*/
package metrics
