// Package notify publishes crawl events to downstream consumers.
//
// Every written route artifact produces one DomainCrawled event. The Kafka
// publisher keys messages by domain so that all events of a domain land on
// the same partition in order.
package notify
