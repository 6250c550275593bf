package capability

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// SecretsManagerVault resolves "secretsmanager://<secret-id>" URIs against AWS
// Secrets Manager. It is the concrete SecretVault bound into the credential
// store (§4.B); the URI scheme lets the store stay agnostic of the backing
// vault product.
type SecretsManagerVault struct {
	client *secretsmanager.Client
}

// NewSecretsManagerVault loads the default AWS config chain (env, shared
// config, EC2/ECS role) and returns a ready vault.
func NewSecretsManagerVault(ctx context.Context) (*SecretsManagerVault, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, NewError(KindPermanentOther, "NewSecretsManagerVault", err)
	}
	return &SecretsManagerVault{client: secretsmanager.NewFromConfig(cfg)}, nil
}

const secretsManagerScheme = "secretsmanager://"

func (v *SecretsManagerVault) GetSecret(ctx context.Context, deadline time.Time, uri string) ([]byte, error) {
	id := strings.TrimPrefix(uri, secretsManagerScheme)
	if id == uri {
		return nil, NewError(KindPermanentOther, "GetSecret", errors.New("unsupported vault uri scheme: "+uri))
	}
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	out, err := v.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(id),
	})
	if err != nil {
		return nil, classifySecretsManagerError("GetSecret", err)
	}
	if out.SecretBinary != nil {
		return out.SecretBinary, nil
	}
	if out.SecretString != nil {
		return []byte(*out.SecretString), nil
	}
	return nil, NewError(KindIntegrity, "GetSecret", errors.New("secret has neither string nor binary payload"))
}

func classifySecretsManagerError(op string, err error) error {
	var notFound *smtypes.ResourceNotFoundException
	var invalidReq *smtypes.InvalidRequestException
	var throttle *smtypes.ThrottlingException
	var accessDenied *smtypes.InvalidParameterException
	switch {
	case errors.As(err, &notFound):
		return NewError(KindNotFound, op, err)
	case errors.As(err, &throttle):
		return NewError(KindTransient, op, err)
	case errors.As(err, &invalidReq):
		return NewError(KindPermanentOther, op, err)
	case errors.As(err, &accessDenied):
		return NewError(KindAuth, op, err)
	default:
		return NewError(KindTransient, op, err)
	}
}
