// Package redis opens the shared Redis connection used by the session store,
// the flow store and the event publisher, and builds namespaced keys for them.
package redis
