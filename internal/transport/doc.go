// Package transport connects the pipeline to RabbitMQ.
//
// Consumer declares the configured exchange, declares and binds one queue
// per route, and feeds deliveries to the pipeline one at a time. Messages
// are acknowledged only after the pipeline reaches a terminal state, so a
// crash mid-message leaves the delivery with the broker for redelivery.
// Publisher sends documents onto the exchange for manual testing.
package transport
