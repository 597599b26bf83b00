// Package domain contains the core entities and value objects of the
// delivery platform: messages with their status lifecycle, communication
// templates with their rendering rules, and the immutable value objects
// (recipient, content, context, delivery result) they are built from.
//
// Everything in this package is persistence-agnostic. Repositories and
// channel adapters live elsewhere and depend on these types, never the
// other way around.
package domain
