package proxy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// BedrockSigner signs outbound Bedrock requests with AWS SigV4 instead
// of injecting an API key header. Credentials come from the standard AWS
// chain (env, shared config, instance role).
type BedrockSigner struct {
	creds  aws.CredentialsProvider
	signer *v4.Signer
	region string
}

// NewBedrockSigner loads the AWS credential chain for the given region.
// Missing credentials are not an error here: the signer reports
// unconfigured and the injector denies requests to SigV4 providers.
func NewBedrockSigner(ctx context.Context, region string) (*BedrockSigner, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	s := &BedrockSigner{
		signer: v4.NewSigner(),
		region: region,
	}
	if _, err := cfg.Credentials.Retrieve(ctx); err == nil {
		s.creds = cfg.Credentials
	}
	return s, nil
}

// IsConfigured reports whether AWS credentials are available.
func (s *BedrockSigner) IsConfigured() bool {
	return s != nil && s.creds != nil
}

// SignRequest signs req for the bedrock service over the given body.
func (s *BedrockSigner) SignRequest(ctx context.Context, req *http.Request, body []byte) error {
	if !s.IsConfigured() {
		return fmt.Errorf("bedrock signer not configured")
	}
	creds, err := s.creds.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("retrieve aws credentials: %w", err)
	}
	sum := sha256.Sum256(body)
	return s.signer.SignHTTP(ctx, creds, req, hex.EncodeToString(sum[:]), "bedrock", s.region, time.Now())
}
