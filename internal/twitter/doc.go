// Package twitter is a small client for the Twitter/X v2 API surface the bot
// needs. Capabilities are split by credential type: AppClient authenticates
// with an app-only bearer token and manages filtered-stream rules and the
// stream itself; UserClient signs requests with OAuth 1.0a user context and
// posts replies and resolves the bot's own identity.
package twitter
