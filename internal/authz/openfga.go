package authz

import (
	"context"
	"fmt"

	fga "github.com/openfga/go-sdk/client"
	"github.com/openfga/go-sdk/credentials"
)

// OpenFGA answers permission checks against an OpenFGA store.
type OpenFGA struct {
	c       *fga.OpenFgaClient
	modelID string
}

type OpenFGAConfig struct {
	APIURL   string
	StoreID  string
	APIToken string // optional
	ModelID  string // optional but recommended in prod
}

func NewOpenFGA(cfg OpenFGAConfig) (*OpenFGA, error) {
	if cfg.APIURL == "" || cfg.StoreID == "" {
		return nil, &InvalidConfigurationError{Field: "openfga", Reason: "api url and store id are required"}
	}
	conf := &fga.ClientConfiguration{
		ApiUrl:  cfg.APIURL,
		StoreId: cfg.StoreID,
	}
	if cfg.ModelID != "" {
		conf.AuthorizationModelId = cfg.ModelID
	}
	if cfg.APIToken != "" {
		conf.Credentials = &credentials.Credentials{
			Method: credentials.CredentialsMethodApiToken,
			Config: &credentials.Config{ApiToken: cfg.APIToken},
		}
	}

	client, err := fga.NewSdkClient(conf)
	if err != nil {
		return nil, fmt.Errorf("openfga_client_init: %w", err)
	}
	return &OpenFGA{c: client, modelID: cfg.ModelID}, nil
}

func (o *OpenFGA) Check(ctx context.Context, req Request) (Decision, error) {
	checkReq := fga.ClientCheckRequest{
		User:     req.Subject,  // e.g. "user:alice"
		Relation: req.Relation, // e.g. "read"
		Object:   req.Object,   // e.g. "document:42"
	}
	if len(req.Context) > 0 {
		c := req.Context
		checkReq.Context = &c
	}

	resp, err := o.c.Check(ctx).Body(checkReq).Execute()
	if err != nil {
		return Decision{}, fmt.Errorf("fga_check_error: %w", err)
	}
	if resp.Allowed != nil && *resp.Allowed {
		return Grant(), nil
	}
	return Deny("policy_denied"), nil
}
