// Package services defines the [Collection] interface for remote ordered playlists and implements it for Spotify.
//
// # Collection Interface
//
// Jobs, undo and duplicate removal only see a playlist through [Collection]: paginated reads,
// an opaque version token, and mutations that each return the token after the change.
// [FetchAll] and [ReplaceAll] build the whole-playlist read and write on top of it.
//
// # Spotify Implementation
//
// [SpotifyService] authorizes requests with an [oauth2.TokenSource] built from the tokens in the
// config file; an expired access token is refreshed with the stored refresh token.
//
// Every request waits on a [rate.Limiter] and runs through [retry.WithRetry]:
//   - 429 is always retried, honoring Retry-After
//   - 5xx and transport failures are retried for reads only
//
// # Error Handling
//
// Non-2xx responses unwrap to shared sentinels:
//   - [shared.ErrAuthExpired] : 401, or a failed token refresh
//   - [shared.ErrNotFound] : 404
//   - [shared.ErrRateLimited] : 429 after the last attempt
//   - [shared.ErrServiceUnavailable] : 5xx
//   - [shared.ErrRemoteAPI] : everything else
package services
