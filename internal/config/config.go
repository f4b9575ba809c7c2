// Package config loads the methodsec YAML file with env overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"

	"github.com/TwigBush/methodsec/internal/method"
)

const EnvPrefix = "METHODSEC"

type File struct {
	Listen         string         `mapstructure:"listen"`
	MethodSecurity MethodSecurity `mapstructure:"method_security"`
	Anonymous      Anonymous      `mapstructure:"anonymous"`
	Permissions    Permissions    `mapstructure:"permissions"`
	Events         Events         `mapstructure:"events"`
	Bearer         Bearer         `mapstructure:"bearer"`
	Methods        []Method       `mapstructure:"methods"`
}

type MethodSecurity struct {
	PrePostEnabled      bool   `mapstructure:"pre_post_enabled"`
	SecuredEnabled      bool   `mapstructure:"secured_enabled"`
	JSR250Enabled       bool   `mapstructure:"jsr250_enabled"`
	ExpressionHandler   string `mapstructure:"expression_handler"`
	HolderStrategy      string `mapstructure:"holder_strategy"`
	RolePrefix          string `mapstructure:"role_prefix"`
	JSR250BeforeSecured bool   `mapstructure:"jsr250_before_secured"`
	PublishGranted      bool   `mapstructure:"publish_granted"`
}

type Anonymous struct {
	Enabled bool   `mapstructure:"enabled"`
	Key     string `mapstructure:"key"`
	// Principal and Authorities fall back to the provider defaults when unset.
	Principal   string   `mapstructure:"principal"`
	Authorities []string `mapstructure:"authorities"`
	// AuthenticatedForAuthorization makes anonymous identities pass
	// isAuthenticated() and role-annotation checks.
	AuthenticatedForAuthorization bool `mapstructure:"authenticated_for_authorization"`
}

type Permissions struct {
	Backend string  `mapstructure:"backend"` // documents | deny | allow | openfga
	OpenFGA OpenFGA `mapstructure:"openfga"`
}

type OpenFGA struct {
	APIURL   string `mapstructure:"api_url"`
	StoreID  string `mapstructure:"store_id"`
	APIToken string `mapstructure:"api_token"`
	ModelID  string `mapstructure:"model_id"`
}

type Events struct {
	Sink string `mapstructure:"sink"` // slog | redis | both | none
	// Stream also serves decisions live on GET /events.
	Stream bool  `mapstructure:"stream"`
	Redis  Redis `mapstructure:"redis"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	MaxLen   int64  `mapstructure:"max_len"`
}

type Bearer struct {
	// Secret is the HS256 key for bearer tokens. Empty disables bearer auth.
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type Method struct {
	Name          string    `mapstructure:"name"`
	Params        []string  `mapstructure:"params"`
	PreFilter     string    `mapstructure:"pre_filter"`
	FilterTarget  string    `mapstructure:"filter_target"`
	PreAuthorize  string    `mapstructure:"pre_authorize"`
	PostAuthorize string    `mapstructure:"post_authorize"`
	PostFilter    string    `mapstructure:"post_filter"`
	Secured       []string  `mapstructure:"secured"`
	Roles         *RoleRule `mapstructure:"roles"`
}

type RoleRule struct {
	Mode        string   `mapstructure:"mode"`
	Authorities []string `mapstructure:"authorities"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8090")
	v.SetDefault("method_security.pre_post_enabled", true)
	v.SetDefault("method_security.secured_enabled", false)
	v.SetDefault("method_security.jsr250_enabled", false)
	v.SetDefault("method_security.expression_handler", "default")
	v.SetDefault("method_security.holder_strategy", "context")
	v.SetDefault("method_security.role_prefix", method.DefaultRolePrefix)
	v.SetDefault("anonymous.enabled", true)
	v.SetDefault("anonymous.key", "")
	v.SetDefault("permissions.backend", "documents")
	v.SetDefault("permissions.openfga.api_url", "http://localhost:8080")
	v.SetDefault("events.sink", "slog")
	v.SetDefault("events.stream", true)
	v.SetDefault("events.redis.addr", "localhost:6379")
	v.SetDefault("bearer.secret", "")
	v.SetDefault("bearer.issuer", "methodsec")
}

// Load reads path, applies METHODSEC_* env overrides and defaults. A missing
// file is not an error; an empty path loads defaults and env only.
func Load(path string) (*File, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	// METHODSEC_ANONYMOUS_KEY, METHODSEC_BEARER_SECRET, ...
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		// SetConfigFile reports a missing file as an fs error, not
		// ConfigFileNotFoundError.
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config_read: %w", err)
			}
		}
	}

	var f File
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("config_decode: %w", err)
	}
	return &f, nil
}

// MethodConfig maps the method_security section onto a pipeline config. The
// pluggable parts (handler, holders, permissions, events) are wired by di.
func (f *File) MethodConfig() method.Config {
	ms := f.MethodSecurity
	return method.Config{
		PrePostEnabled:      ms.PrePostEnabled,
		SecuredEnabled:      ms.SecuredEnabled,
		JSR250Enabled:       ms.JSR250Enabled,
		RolePrefix:          ms.RolePrefix,
		JSR250BeforeSecured: ms.JSR250BeforeSecured,
		PublishGranted:      ms.PublishGranted,
	}
}

// ProtectedMethods converts the methods section.
func (f *File) ProtectedMethods() []method.Method {
	out := make([]method.Method, 0, len(f.Methods))
	for _, m := range f.Methods {
		out = append(out, m.toMethod())
	}
	return out
}

func (m Method) toMethod() method.Method {
	a := method.Attributes{
		PreAuthorize:  m.PreAuthorize,
		PostAuthorize: m.PostAuthorize,
		PostFilter:    m.PostFilter,
		Secured:       m.Secured,
	}
	if m.PreFilter != "" {
		a.PreFilter = &method.Filter{Expr: m.PreFilter, Target: m.FilterTarget}
	}
	if m.Roles != nil {
		a.Roles = &method.RoleRule{
			Mode:        method.RoleMode(m.Roles.Mode),
			Authorities: m.Roles.Authorities,
		}
	}
	return method.Method{Name: m.Name, Params: m.Params, Attributes: a}
}
