// Package routing holds the delivery business rules that sit between the
// message entities and the concrete channel adapters: picking the best
// channel for a recipient, deciding whether and when a failed delivery
// should be retried, and applying recipient denylist rules.
package routing
