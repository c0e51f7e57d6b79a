package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultAPIBaseURL  = "https://api.spotify.com/v1"
	defaultAccountsURL = "https://accounts.spotify.com/api/token"
)

// SpotifyClient implements SessionClient against the Spotify Web API using
// one host's tokens. A 401 from the API triggers a single refresh-and-retry;
// a failed refresh surfaces as ErrAuthExpired.
type SpotifyClient struct {
	clientID     string
	clientSecret string
	apiBaseURL   string
	accountsURL  string
	http         *http.Client

	accessToken  string
	refreshToken string
}

type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	APIBaseURL   string
	AccountsURL  string
}

// NewSpotifyFactory returns a SessionFactory producing clients bound to the
// given application credentials.
func NewSpotifyFactory(cfg SpotifyConfig) SessionFactory {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}
	if cfg.AccountsURL == "" {
		cfg.AccountsURL = defaultAccountsURL
	}
	return func(creds Credentials) SessionClient {
		return &SpotifyClient{
			clientID:     cfg.ClientID,
			clientSecret: cfg.ClientSecret,
			apiBaseURL:   cfg.APIBaseURL,
			accountsURL:  cfg.AccountsURL,
			http: &http.Client{
				Timeout: 10 * time.Second,
			},
			accessToken:  creds.AccessToken,
			refreshToken: creds.RefreshToken,
		}
	}
}

func (c *SpotifyClient) refresh(ctx context.Context) error {
	if c.refreshToken == "" {
		return ErrAuthExpired
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", c.refreshToken)
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.accountsURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ErrAuthExpired
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return err
	}
	if body.AccessToken == "" {
		return ErrAuthExpired
	}
	c.accessToken = body.AccessToken
	return nil
}

// do performs an API request, refreshing the access token once on 401.
func (c *SpotifyClient) do(ctx context.Context, method, endpoint string, body string) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		var reader *strings.Reader
		if body != "" {
			reader = strings.NewReader(body)
		} else {
			reader = strings.NewReader("")
		}
		req, err := http.NewRequestWithContext(ctx, method, c.apiBaseURL+endpoint, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			resp.Body.Close()
			if err := c.refresh(ctx); err != nil {
				return nil, err
			}
			continue
		}
		return resp, nil
	}
}

func (c *SpotifyClient) ListActiveDevices(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/me/player/devices", "")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", ErrAuthExpired
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("spotify devices: status %d", resp.StatusCode)
	}

	var body struct {
		Devices []struct {
			ID       string `json:"id"`
			IsActive bool   `json:"is_active"`
		} `json:"devices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	for _, d := range body.Devices {
		if d.IsActive {
			return d.ID, nil
		}
	}
	if len(body.Devices) > 0 {
		return body.Devices[0].ID, nil
	}
	return "", nil
}

func (c *SpotifyClient) Play(ctx context.Context, deviceID, trackURI string, positionMS int) error {
	payload := map[string]any{"position_ms": positionMS}
	if trackURI != "" {
		payload["uris"] = []string{trackURI}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, http.MethodPut, "/me/player/play?device_id="+url.QueryEscape(deviceID), string(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.commandStatus("play", resp)
}

func (c *SpotifyClient) Pause(ctx context.Context, deviceID string) error {
	resp, err := c.do(ctx, http.MethodPut, "/me/player/pause?device_id="+url.QueryEscape(deviceID), "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.commandStatus("pause", resp)
}

func (c *SpotifyClient) SkipNext(ctx context.Context, deviceID string) error {
	resp, err := c.do(ctx, http.MethodPost, "/me/player/next?device_id="+url.QueryEscape(deviceID), "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.commandStatus("next", resp)
}

func (c *SpotifyClient) SkipPrevious(ctx context.Context, deviceID string) error {
	resp, err := c.do(ctx, http.MethodPost, "/me/player/previous?device_id="+url.QueryEscape(deviceID), "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.commandStatus("previous", resp)
}

func (c *SpotifyClient) commandStatus(cmd string, resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusAccepted:
		return nil
	case http.StatusUnauthorized:
		return ErrAuthExpired
	default:
		return fmt.Errorf("spotify %s: status %d", cmd, resp.StatusCode)
	}
}

func (c *SpotifyClient) GetPlaybackState(ctx context.Context) (*PlaybackState, error) {
	resp, err := c.do(ctx, http.MethodGet, "/me/player", "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		// Nothing playing on any device.
		return &PlaybackState{}, nil
	case http.StatusUnauthorized:
		return nil, ErrAuthExpired
	case http.StatusOK:
	default:
		return nil, fmt.Errorf("spotify player state: status %d", resp.StatusCode)
	}

	var body struct {
		ProgressMS int  `json:"progress_ms"`
		IsPlaying  bool `json:"is_playing"`
		Item       *struct {
			ID         string `json:"id"`
			DurationMS int    `json:"duration_ms"`
		} `json:"item"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}

	state := &PlaybackState{
		ProgressMS: body.ProgressMS,
		IsPlaying:  body.IsPlaying,
	}
	if body.Item != nil {
		state.DurationMS = body.Item.DurationMS
		state.CurrentTrackExternalID = body.Item.ID
	}
	return state, nil
}

func (c *SpotifyClient) GetTrack(ctx context.Context, externalID string) (*TrackDetails, error) {
	resp, err := c.do(ctx, http.MethodGet, "/tracks/"+url.PathEscape(externalID), "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return nil, ErrAuthExpired
	case http.StatusOK:
	default:
		return nil, fmt.Errorf("spotify track %s: status %d", externalID, resp.StatusCode)
	}

	var body struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		URI     string `json:"uri"`
		Artists []struct {
			Name string `json:"name"`
		} `json:"artists"`
		DurationMS int  `json:"duration_ms"`
		IsPlayable *bool `json:"is_playable"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}

	details := &TrackDetails{
		ExternalID: body.ID,
		Title:      body.Name,
		URI:        body.URI,
		DurationMS: body.DurationMS,
		IsPlayable: true,
	}
	if body.IsPlayable != nil {
		details.IsPlayable = *body.IsPlayable
	}
	for _, a := range body.Artists {
		details.Artists = append(details.Artists, a.Name)
	}
	return details, nil
}
