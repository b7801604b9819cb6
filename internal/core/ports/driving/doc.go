// Package driving defines the interfaces the core exposes to its
// collaborators: the chat command layer, the CLI and the webhook
// receiver. Implementations live under internal/core/services.
package driving
