package identity

import (
	"context"
	"fmt"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/brightpath-hq/brightpath/domains/onboarding/be/service"
	"github.com/brightpath-hq/brightpath/platform/go/gcp"
)

// FirebaseProvider implements service.IdentityProvider on the Firebase Auth
// admin client.
type FirebaseProvider struct {
	auth *firebaseauth.Client

	// requireVerifiedEmail pauses the saga until the user confirms their
	// address: SignUp returns no session for an unverified identity.
	requireVerifiedEmail bool
}

// NewFirebaseProvider initializes the Firebase app and auth client.
// An empty credentialsPath uses application-default credentials.
func NewFirebaseProvider(ctx context.Context, credentialsPath string, requireVerifiedEmail bool) (*FirebaseProvider, error) {
	authClient, err := gcp.NewAuthClient(ctx, credentialsPath)
	if err != nil {
		return nil, err
	}
	return &FirebaseProvider{auth: authClient, requireVerifiedEmail: requireVerifiedEmail}, nil
}

// SignUp creates the identity, or resolves the existing one when the email
// already signed up, so a retried saga converges. A nil session means the
// identity exists but confirmation is still pending.
func (p *FirebaseProvider) SignUp(ctx context.Context, params service.SignUpParams) (*service.Session, error) {
	create := (&firebaseauth.UserToCreate{}).
		Email(params.Email).
		Password(params.Password).
		DisplayName(params.FullName)

	user, err := p.auth.CreateUser(ctx, create)
	if err != nil {
		if !firebaseauth.IsEmailAlreadyExists(err) {
			return nil, fmt.Errorf("firebase create user: %w", err)
		}
		user, err = p.auth.GetUserByEmail(ctx, params.Email)
		if err != nil {
			return nil, fmt.Errorf("firebase get user by email: %w", err)
		}
	}

	if p.requireVerifiedEmail && !user.EmailVerified {
		return nil, nil
	}

	return &service.Session{AuthID: user.UID}, nil
}

var _ service.IdentityProvider = (*FirebaseProvider)(nil)
