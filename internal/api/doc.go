// Package api exposes the webhook boundary used by chat transports:
// message delivery, the command catalogue for menu registration, and
// health and metrics endpoints.
package api
