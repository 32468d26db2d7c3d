package uploader

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// ImgurTokenURL is the OAuth2 token endpoint used to refresh Imgur access tokens.
var ImgurTokenURL = imgurBaseURL + "/oauth2/token"

// RefreshImgurToken exchanges a refresh token for a new Imgur access token.
func RefreshImgurToken(ctx context.Context, clientID, clientSecret, refreshToken string) (*oauth2.Token, error) {
	if clientID == "" || clientSecret == "" || refreshToken == "" {
		return nil, errors.New("imgur client ID, client secret and refresh token are required")
	}

	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  ImgurTokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	// A token without an access token is always treated as expired, forcing a refresh.
	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh imgur token: %w", err)
	}
	return tok, nil
}
