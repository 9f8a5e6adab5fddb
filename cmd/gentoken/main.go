package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"

	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

type SignInResponse struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	LocalID      string `json:"localId"`
}

// gentoken prints an ID token for local calls against the Chat function:
//
//	go run ./cmd/gentoken -uid alice -email alice@example.com -apikey $FIREBASE_API_KEY
func main() {
	ctx := context.Background()
	uid := flag.String("uid", "", "user UID for token generation")
	email := flag.String("email", "", "email claim carried by the token")
	apiKey := flag.String("apikey", "", "Firebase API key for Identity Toolkit REST API")
	credentials := flag.String("credentials", "./service_account_key.json", "service account key file")
	flag.Parse()

	if *uid == "" || *email == "" {
		log.Fatalf("please provide -uid and -email")
	}

	absPath, err := filepath.Abs(*credentials)
	if err != nil {
		log.Fatalf("failed to get absolute path: %v", err)
	}
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(absPath))
	if err != nil {
		log.Fatalf("error initializing app: %v", err)
	}

	client, err := app.Auth(ctx)
	if err != nil {
		log.Fatalf("error getting Auth client: %v", err)
	}

	customToken, err := client.CustomTokenWithClaims(ctx, *uid, map[string]any{
		"email": *email,
	})
	if err != nil {
		log.Fatalf("error creating custom token: %v", err)
	}

	// exchange the custom token for an ID token
	url := fmt.Sprintf("https://identitytoolkit.googleapis.com/v1/accounts:signInWithCustomToken?key=%s", *apiKey)
	payload, err := json.Marshal(map[string]any{
		"token":             customToken,
		"returnSecureToken": true,
	})
	if err != nil {
		log.Fatalf("error marshaling payload: %v", err)
	}

	resp, err := http.Post(url, "application/json", bytes.NewBuffer(payload))
	if err != nil {
		log.Fatalf("error making POST request: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("error reading response body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("non-OK HTTP status: %d, response: %s", resp.StatusCode, string(body))
	}

	var signInResp SignInResponse
	if err := json.Unmarshal(body, &signInResp); err != nil {
		log.Fatalf("error unmarshalling response: %v", err)
	}

	fmt.Println(signInResp.IDToken)
}
