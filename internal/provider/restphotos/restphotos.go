// Package restphotos implements domain.Provider (and domain.DeltaProvider)
// against the generic shape shared by most consumer cloud-photo REST APIs:
// paginated media listing, a resumable changes cursor, OAuth2 bearer auth,
// byte-range download. Grounded on rclone's googlephotos backend
// (backend/googlephotos/googlephotos.go) for the listing/paging/auth shape,
// using golang.org/x/oauth2 directly instead of rclone's oauthutil wrapper
// since this Provider owns no interactive consent flow of its own.
package restphotos

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/oauth2"

	"photoframe-sync/internal/domain"
)

const (
	listPageSize  = 100
	deltaPageSize = 200
)

// TokenStore persists and loads the OAuth2 token across restarts. The
// interactive consent flow that produces the first token is out of scope
// for this Provider (an external collaborator, per spec §1); TokenStore
// just needs somewhere durable to read/write the refreshed token.
type TokenStore interface {
	Load() (*oauth2.Token, error)
	Save(*oauth2.Token) error
}

// Provider adapts a generic REST photo API: GET <baseURL>/media (paginated),
// GET <baseURL>/changes (cursor-based delta), GET <baseURL>/media/{id}/bytes
// (download).
type Provider struct {
	name       string
	baseURL    string
	oauthConf  *oauth2.Config
	tokens     TokenStore
	httpClient *http.Client // set by Init once the token source is live
}

// New builds a restphotos Provider. oauthConf carries the client
// credentials and token endpoint; tokens supplies the persisted refresh
// token.
func New(name, baseURL string, oauthConf *oauth2.Config, tokens TokenStore) *Provider {
	return &Provider{name: name, baseURL: baseURL, oauthConf: oauthConf, tokens: tokens}
}

func (p *Provider) Name() string { return p.name }

// Init loads the persisted token, wraps it in an auto-refreshing
// http.Client, and makes one lightweight call to verify reachability and
// that the credential hasn't been permanently revoked.
func (p *Provider) Init(ctx context.Context) error {
	tok, err := p.tokens.Load()
	if err != nil {
		return domain.Permanentf("restphotos: load token: %w", err)
	}

	src := &savingTokenSource{
		inner: p.oauthConf.TokenSource(ctx, tok),
		store: p.tokens,
	}
	p.httpClient = oauth2.NewClient(ctx, src)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/media?pageSize=1", nil)
	if err != nil {
		return domain.Permanentf("restphotos: build probe request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return domain.Transientf("restphotos: probe: %w", err)
	}
	defer resp.Body.Close()
	return classifyStatus(resp.StatusCode, "init probe")
}

// savingTokenSource persists a refreshed token the moment oauth2 mints one,
// so a process restart picks up the latest token rather than the stale one
// on disk.
type savingTokenSource struct {
	inner oauth2.TokenSource
	store TokenStore
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.inner.Token()
	if err != nil {
		return nil, domain.Transientf("restphotos: refresh token: %w", err)
	}
	if err := s.store.Save(tok); err != nil {
		return tok, nil // persistence failure shouldn't fail the call using the fresh token
	}
	return tok, nil
}

type mediaItem struct {
	ID           string   `json:"id"`
	Filename     string   `json:"filename"`
	ContainerKey string   `json:"containerKey"`
	CreationTime int64    `json:"creationTimeMs"`
	Width        *int     `json:"width,omitempty"`
	Height       *int     `json:"height,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	MimeType     string   `json:"mimeType"`
}

func (m mediaItem) isImage() bool {
	return len(m.MimeType) >= 6 && m.MimeType[:6] == "image/"
}

func (m mediaItem) toMeta() domain.PhotoMeta {
	return domain.PhotoMeta{
		ID:           m.ID,
		Filename:     m.Filename,
		ContainerKey: m.ContainerKey,
		CreationTime: m.CreationTime,
		Width:        m.Width,
		Height:       m.Height,
		Latitude:     m.Latitude,
		Longitude:    m.Longitude,
	}
}

type listPage struct {
	Items         []mediaItem `json:"items"`
	NextPageToken string      `json:"nextPageToken"`
}

// FullScan lists media under each configured container, paging until
// exhausted. containers' Depth is passed through as a query hint; servers
// that don't support server-side depth filtering may ignore it (the
// metadata shape doesn't expose sub-containers to filter further here).
func (p *Provider) FullScan(ctx context.Context, containers []domain.Container) ([]domain.PhotoMeta, error) {
	seen := map[string]bool{}
	var out []domain.PhotoMeta

	for _, c := range containers {
		pageToken := ""
		for {
			page, err := p.listPage(ctx, c.ID, c.Depth, pageToken)
			if err != nil {
				return nil, err
			}
			for _, item := range page.Items {
				if !item.isImage() || seen[item.ID] {
					continue
				}
				seen[item.ID] = true
				out = append(out, item.toMeta())
			}
			if page.NextPageToken == "" {
				break
			}
			pageToken = page.NextPageToken
		}
	}
	return out, nil
}

func (p *Provider) listPage(ctx context.Context, containerID string, depth int, pageToken string) (*listPage, error) {
	q := url.Values{}
	q.Set("containerId", containerID)
	q.Set("depth", strconv.Itoa(depth))
	q.Set("pageSize", strconv.Itoa(listPageSize))
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/media?"+q.Encode(), nil)
	if err != nil {
		return nil, domain.Permanentf("restphotos: build list request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, domain.Transientf("restphotos: list: %w", err)
	}
	defer resp.Body.Close()
	if err := classifyStatus(resp.StatusCode, "list"); err != nil {
		return nil, err
	}

	var page listPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, domain.Transientf("restphotos: decode list page: %w", err)
	}
	return &page, nil
}

// Download opens a byte stream for the photo's original bytes.
func (p *Provider) Download(ctx context.Context, photoID string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/media/"+url.PathEscape(photoID)+"/bytes", nil)
	if err != nil {
		return nil, domain.Permanentf("restphotos: build download request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, domain.Transientf("restphotos: download: %w", err)
	}
	if err := classifyStatus(resp.StatusCode, "download"); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

// changesResponse mirrors the generic delta shape from spec §4.2.
type changesResponse struct {
	AddedOrModified []mediaItem `json:"addedOrModified"`
	DeletedIDs      []string    `json:"deletedIds"`
	NextToken       string      `json:"nextToken"`
}

// DeltaStartToken produces a token meaning "now" — future Delta calls with
// it enumerate only subsequent changes.
func (p *Provider) DeltaStartToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/changes/start", nil)
	if err != nil {
		return "", domain.Permanentf("restphotos: build delta-start request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", domain.Transientf("restphotos: delta start: %w", err)
	}
	defer resp.Body.Close()
	if err := classifyStatus(resp.StatusCode, "delta start"); err != nil {
		return "", err
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", domain.Transientf("restphotos: decode delta-start: %w", err)
	}
	return body.Token, nil
}

// Delta fetches changes since token, paging through until the server
// reports no further page (distinguished from a fresh next_token by the
// server setting "more": false) and accumulating into one DeltaResult.
func (p *Provider) Delta(ctx context.Context, token string) (domain.DeltaResult, error) {
	var result domain.DeltaResult
	cursor := token

	for {
		q := url.Values{}
		q.Set("token", cursor)
		q.Set("pageSize", strconv.Itoa(deltaPageSize))

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/changes?"+q.Encode(), nil)
		if err != nil {
			return domain.DeltaResult{}, domain.Permanentf("restphotos: build delta request: %w", err)
		}
		resp, err := p.httpClient.Do(req)
		if err != nil {
			return domain.DeltaResult{}, domain.Transientf("restphotos: delta: %w", err)
		}

		var page struct {
			changesResponse
			More bool `json:"more"`
		}
		decodeErr := json.NewDecoder(resp.Body).Decode(&page)
		statusErr := classifyStatus(resp.StatusCode, "delta")
		resp.Body.Close()
		if statusErr != nil {
			return domain.DeltaResult{}, statusErr
		}
		if decodeErr != nil {
			return domain.DeltaResult{}, domain.Transientf("restphotos: decode delta page: %w", decodeErr)
		}

		for _, item := range page.AddedOrModified {
			if item.isImage() {
				result.AddedOrModified = append(result.AddedOrModified, item.toMeta())
			}
		}
		result.DeletedIDs = append(result.DeletedIDs, page.DeletedIDs...)
		result.NextToken = page.NextToken
		cursor = page.NextToken

		if !page.More {
			break
		}
	}
	return result, nil
}

// classifyStatus maps an HTTP status code to the permanent/transient
// taxonomy the SyncController needs (spec §4.2, §4.4.1).
func classifyStatus(code int, op string) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return domain.Permanentf("restphotos: %s: permission denied (HTTP %d)", op, code)
	case code == http.StatusNotFound:
		return domain.Permanentf("restphotos: %s: folder not found (HTTP %d)", op, code)
	case code == http.StatusTooManyRequests || code >= 500:
		return domain.Transientf("restphotos: %s: server busy (HTTP %d)", op, code)
	default:
		return domain.Transientf("restphotos: %s: unexpected status %d", op, code)
	}
}
