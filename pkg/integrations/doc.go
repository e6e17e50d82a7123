// Package integrations provides the shared HTTP client used by registry
// clients.
//
// [Client] bundles the concerns every registry call needs:
//
//   - Response caching through [cache.Cache], with a per-client key prefix
//   - Retry with exponential backoff for network errors, 5xx and 429
//   - Default headers (Accept, Authorization)
//   - Request/response hooks from [observability.HTTPHooks]
//
// Registry-specific clients live in subpackages; [npm] is the only one fyn
// needs.
//
// [npm]: github.com/matzehuels/fyn/pkg/integrations/npm
package integrations
