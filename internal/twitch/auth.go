package twitch

import (
	"encoding/json"
	"fmt"
	"os"
)

// Token is the persisted bearer credential.
type Token struct {
	AccessToken string `json:"access_token"`
}

// LoadToken reads the token file written by the platform's device login flow.
func LoadToken(path string) (Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Token{}, fmt.Errorf("read token file: %w", err)
	}
	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		return Token{}, fmt.Errorf("parse token file %s: %w", path, err)
	}
	if token.AccessToken == "" {
		return Token{}, fmt.Errorf("token file %s has no access_token", path)
	}
	return token, nil
}
