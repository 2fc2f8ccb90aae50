package restphotos

import (
	"encoding/json"
	"os"

	"golang.org/x/oauth2"
)

// FileTokenStore persists the OAuth2 token as JSON at path. The interactive
// consent flow that seeds the first token writes the same format.
type FileTokenStore struct {
	Path string
}

func (f FileTokenStore) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

func (f FileTokenStore) Save(tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.Path, data, 0o600)
}
