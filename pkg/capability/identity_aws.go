package capability

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// AWSIdentityProvider wraps the AWS SDK default credential chain, caching the
// resolved Token per scope until shortly before its expiry (§4.A "tokens are
// cached and refreshed ahead of expiry, never on every call").
type AWSIdentityProvider struct {
	provider aws.CredentialsProvider

	mu     sync.Mutex
	cached map[string]Token
}

// NewAWSIdentityProvider loads the default AWS config chain and returns a
// ready IdentityProvider.
func NewAWSIdentityProvider(ctx context.Context) (*AWSIdentityProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, NewError(KindPermanentOther, "NewAWSIdentityProvider", err)
	}
	return &AWSIdentityProvider{
		provider: cfg.Credentials,
		cached:   make(map[string]Token),
	}, nil
}

func (a *AWSIdentityProvider) Token(ctx context.Context, deadline time.Time, scope string) (Token, error) {
	a.mu.Lock()
	if t, ok := a.cached[scope]; ok && !t.Expired(time.Now().Add(1*time.Minute)) {
		a.mu.Unlock()
		return t, nil
	}
	a.mu.Unlock()

	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	creds, err := a.provider.Retrieve(ctx)
	if err != nil {
		return Token{}, NewError(KindAuth, "Token", err)
	}

	expiry := time.Now().Add(15 * time.Minute)
	if creds.CanExpire {
		expiry = creds.Expires
	}
	tok := Token{Value: creds.SessionToken, Expiry: expiry}
	if tok.Value == "" {
		tok.Value = creds.AccessKeyID
	}

	a.mu.Lock()
	a.cached[scope] = tok
	a.mu.Unlock()
	return tok, nil
}
