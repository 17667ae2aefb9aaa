// Spotify Web API implementation of [Collection]
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/polish/internal/models"
	"github.com/desertthunder/polish/internal/retry"
	"github.com/desertthunder/polish/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	itemFields = "total,next,items(added_at,track(id,uri,name,duration_ms,artists(name),album(name,release_date)))"
)

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Country     string `json:"country"`
	Product     string `json:"product"`
}

// SpotifyArtist represents a simplified Spotify artist.
type SpotifyArtist struct {
	Name string `json:"name"`
}

// SpotifyAlbum represents a simplified Spotify album.
type SpotifyAlbum struct {
	Name        string `json:"name"`
	ReleaseDate string `json:"release_date"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      SpotifyAlbum    `json:"album"`
	DurationMS int             `json:"duration_ms"`
	URI        string          `json:"uri"`
}

// SpotifyPlaylistTrack represents a track within a playlist context.
//
// Track is nil for items the API can no longer resolve; they still occupy a position.
type SpotifyPlaylistTrack struct {
	AddedAt string        `json:"added_at"`
	Track   *SpotifyTrack `json:"track"`
}

// SpotifyPaginatedPlaylistTracks is a page of /playlists/{id}/tracks.
type SpotifyPaginatedPlaylistTracks struct {
	Items []SpotifyPlaylistTrack `json:"items"`
	Total int                    `json:"total"`
	Next  *string                `json:"next"`
}

type snapshotResponse struct {
	SnapshotID string `json:"snapshot_id"`
}

// SpotifyOptions configures a [SpotifyService].
type SpotifyOptions struct {
	ClientID     string
	ClientSecret string
	AccessToken  string
	RefreshToken string

	BaseURL  string
	TokenURL string

	RequestsPerSecond float64
	Burst             int
	Retry             retry.Config

	// HTTPClient is the transport the oauth2 client wraps. Defaults to [http.DefaultClient].
	HTTPClient *http.Client
}

// SpotifyOptionsFromConfig maps the credentials and remote sections of the config file.
func SpotifyOptionsFromConfig(cfg *shared.Config) SpotifyOptions {
	rc := retry.DefaultConfig()
	if cfg.Remote.MaxAttempts > 0 {
		rc.MaxAttempts = cfg.Remote.MaxAttempts
	}
	return SpotifyOptions{
		ClientID:          cfg.Credentials.Spotify.ClientID,
		ClientSecret:      cfg.Credentials.Spotify.ClientSecret,
		AccessToken:       cfg.Credentials.Spotify.AccessToken,
		RefreshToken:      cfg.Credentials.Spotify.RefreshToken,
		BaseURL:           cfg.Remote.BaseURL,
		RequestsPerSecond: cfg.Remote.RequestsPerSecond,
		Burst:             cfg.Remote.Burst,
		Retry:             rc,
	}
}

// SpotifyService implements [Collection] against the Spotify Web API.
//
// Requests are authorized through an [oauth2.TokenSource] that refreshes with the stored refresh
// token, paced by a shared [rate.Limiter], and retried on 429 (and on 5xx for reads).
type SpotifyService struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	retry      retry.Config
}

// NewSpotifyService creates a Spotify client from the given options.
func NewSpotifyService(ctx context.Context, opts SpotifyOptions) (*SpotifyService, error) {
	if opts.ClientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}
	if opts.ClientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}
	if opts.AccessToken == "" && opts.RefreshToken == "" {
		return nil, fmt.Errorf("%w: access_token or refresh_token required", shared.ErrNotAuthenticated)
	}

	tokenURL := opts.TokenURL
	if tokenURL == "" {
		tokenURL = spotifyTokenURL
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = spotifyBaseURL
	}

	config := &oauth2.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		Scopes: []string{
			"playlist-read-private",
			"playlist-read-collaborative",
			"playlist-modify-public",
			"playlist-modify-private",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: tokenURL,
		},
	}

	if opts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, opts.HTTPClient)
	}
	token := &oauth2.Token{AccessToken: opts.AccessToken, RefreshToken: opts.RefreshToken, TokenType: "Bearer"}
	if opts.AccessToken == "" {
		token.Expiry = time.Unix(1, 0)
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	rc := opts.Retry
	if rc.MaxAttempts == 0 {
		rc = retry.DefaultConfig()
	}

	return &SpotifyService{
		httpClient: oauth2.NewClient(ctx, config.TokenSource(ctx, token)),
		baseURL:    baseURL,
		limiter:    rate.NewLimiter(limit, burst),
		retry:      rc,
	}, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// apiError is a non-2xx response.
type apiError struct {
	Method     string
	Status     int
	Message    string
	retryAfter time.Duration
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("spotify API error: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("spotify API error: status %d", e.Status)
}

func (e *apiError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized:
		return shared.ErrAuthExpired
	case e.Status == http.StatusNotFound:
		return shared.ErrNotFound
	case e.Status == http.StatusTooManyRequests:
		return shared.ErrRateLimited
	case e.Status >= 500:
		return shared.ErrServiceUnavailable
	default:
		return shared.ErrRemoteAPI
	}
}

// RetryAfter reports the server-requested wait for 429 responses.
func (e *apiError) RetryAfter() time.Duration { return e.retryAfter }

// retryable allows a retry when the request was certainly not applied (429) or is safe to
// repeat (reads on 5xx or transport failure). Mutations are not replayed after a 5xx.
func retryable(method string) func(error) bool {
	return func(err error) bool {
		var apiErr *apiError
		if errors.As(err, &apiErr) {
			if apiErr.Status == http.StatusTooManyRequests {
				return true
			}
			return apiErr.Status >= 500 && method == http.MethodGet
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, shared.ErrAuthExpired) {
			return false
		}
		return method == http.MethodGet
	}
}

// doRequest performs an authenticated, rate-limited and retried request to the Spotify API.
func (s *SpotifyService) doRequest(ctx context.Context, method, endpoint string, body any, result any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	rc := s.retry
	rc.Retryable = retryable(method)

	return retry.WithRetry(ctx, rc, func() error {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		return s.send(ctx, method, endpoint, payload, result)
	})
}

func (s *SpotifyService) send(ctx context.Context, method, endpoint string, payload []byte, result any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		var oauthErr *oauth2.RetrieveError
		if errors.As(err, &oauthErr) {
			return fmt.Errorf("%w: token refresh failed: %v", shared.ErrAuthExpired, err)
		}
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &apiError{Method: method, Status: resp.StatusCode}
		var envelope struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096)); len(data) > 0 {
			if json.Unmarshal(data, &envelope) == nil {
				apiErr.Message = envelope.Error.Message
			}
		}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			apiErr.retryAfter = time.Duration(secs) * time.Second
		}
		return apiErr
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// UserProfile retrieves the current authenticated user's profile.
func (s *SpotifyService) UserProfile(ctx context.Context) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.doRequest(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Items retrieves one page of playlist items.
func (s *SpotifyService) Items(ctx context.Context, id string, offset, limit int) (*ItemPage, error) {
	if limit <= 0 || limit > PageSize {
		limit = PageSize
	}

	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("fields", itemFields)
	endpoint := fmt.Sprintf("/playlists/%s/tracks?%s", url.PathEscape(id), q.Encode())

	var response SpotifyPaginatedPlaylistTracks
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}

	page := &ItemPage{
		Items: make([]models.Item, 0, len(response.Items)),
		Total: response.Total,
		Next:  response.Next != nil,
	}
	for _, pt := range response.Items {
		page.Items = append(page.Items, pt.toItem())
	}
	return page, nil
}

func (pt SpotifyPlaylistTrack) toItem() models.Item {
	var item models.Item
	if t, err := time.Parse(time.RFC3339, pt.AddedAt); err == nil {
		item.AddedAt = t.UTC()
	}
	if pt.Track == nil {
		return item
	}

	item.ID = pt.Track.ID
	item.URI = pt.Track.URI
	item.Title = pt.Track.Name
	item.Album = pt.Track.Album.Name
	item.ReleaseDate = pt.Track.Album.ReleaseDate
	item.DurationMS = pt.Track.DurationMS
	for _, a := range pt.Track.Artists {
		item.Artists = append(item.Artists, a.Name)
	}
	return item
}

// VersionToken retrieves the playlist's snapshot id.
func (s *SpotifyService) VersionToken(ctx context.Context, id string) (string, error) {
	endpoint := fmt.Sprintf("/playlists/%s?fields=snapshot_id", url.PathEscape(id))

	var response snapshotResponse
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return "", err
	}
	return response.SnapshotID, nil
}

func (s *SpotifyService) mutate(ctx context.Context, method, id string, body any) (string, error) {
	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(id))

	var response snapshotResponse
	if err := s.doRequest(ctx, method, endpoint, body, &response); err != nil {
		return "", err
	}
	return response.SnapshotID, nil
}

// ReplaceItems replaces the playlist contents.
func (s *SpotifyService) ReplaceItems(ctx context.Context, id string, uris []string) (string, error) {
	if len(uris) > PageSize {
		return "", fmt.Errorf("%w: at most %d uris per request", shared.ErrInvalidArgument, PageSize)
	}
	if uris == nil {
		uris = []string{}
	}
	return s.mutate(ctx, http.MethodPut, id, map[string]any{"uris": uris})
}

// AppendItems adds uris to the end of the playlist.
func (s *SpotifyService) AppendItems(ctx context.Context, id string, uris []string) (string, error) {
	if len(uris) == 0 || len(uris) > PageSize {
		return "", fmt.Errorf("%w: between 1 and %d uris per request", shared.ErrInvalidArgument, PageSize)
	}
	return s.mutate(ctx, http.MethodPost, id, map[string]any{"uris": uris})
}

// MoveRange reorders a range of items.
func (s *SpotifyService) MoveRange(ctx context.Context, id string, start, length, insertBefore int, token string) (string, error) {
	body := map[string]any{
		"range_start":   start,
		"range_length":  length,
		"insert_before": insertBefore,
	}
	if token != "" {
		body["snapshot_id"] = token
	}
	return s.mutate(ctx, http.MethodPut, id, body)
}

// InsertItem inserts a single uri at position.
func (s *SpotifyService) InsertItem(ctx context.Context, id, uri string, position int) (string, error) {
	return s.mutate(ctx, http.MethodPost, id, map[string]any{"uris": []string{uri}, "position": position})
}

// RemovePositions removes items by position.
func (s *SpotifyService) RemovePositions(ctx context.Context, id string, positions []int, token string) (string, error) {
	if len(positions) == 0 {
		return "", fmt.Errorf("%w: no positions to remove", shared.ErrInvalidArgument)
	}
	body := map[string]any{"positions": positions}
	if token != "" {
		body["snapshot_id"] = token
	}
	return s.mutate(ctx, http.MethodDelete, id, body)
}
