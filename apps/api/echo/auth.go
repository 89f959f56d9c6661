package echoapi

import (
	"net/http"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/ukaguzi/core"
	"github.com/trezcool/ukaguzi/core/inspection"
)

const contextTokenKey = "inspectorToken"

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64    `json:"oriat,omitempty"`
	Username     string   `json:"username,omitempty"`
	Name         string   `json:"name,omitempty"`
	Email        string   `json:"email,omitempty"`
	OrgUnits     []string `json:"org_units,omitempty"`
}

func (c Claims) person() core.Person {
	return core.Person{ID: c.Subject, Username: c.Username, Email: c.Email}
}

type tokenizer struct {
	appName                string
	expirationDelta        time.Duration
	refreshExpirationDelta time.Duration
	jwtConfig              middleware.JWTConfig
}

func newTokenizer(conf *core.Config) *tokenizer {
	return &tokenizer{
		appName:                conf.AppName,
		expirationDelta:        conf.Server.JWTExpirationDelta,
		refreshExpirationDelta: conf.Server.JWTRefreshExpirationDelta,
		jwtConfig: middleware.JWTConfig{
			SigningKey:    []byte(conf.SecretKey),
			SigningMethod: middleware.AlgorithmHS256,
			ContextKey:    contextTokenKey,
			Claims:        new(Claims),
		},
	}
}

func (tk *tokenizer) claims(insp inspection.Inspector, origIat ...int64) *Claims {
	now := nowFunc()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    tk.appName,
			Subject:   insp.ID,
			Audience:  "Inspectors",
			ExpiresAt: now.Add(tk.expirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Username:     insp.Username,
		Name:         insp.Name,
		Email:        insp.Email,
		OrgUnits:     insp.OrgUnits,
	}
}

// generate generates a signed JWT token string representing the inspector Claims.
func (tk *tokenizer) generate(claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(tk.jwtConfig.SigningMethod)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(tk.jwtConfig.SigningKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// refresh re-issues the token of ctx as long as it was first issued within the refresh window.
func (tk *tokenizer) refresh(ctx echo.Context) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", err
	}

	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(tk.refreshExpirationDelta)
	if nowFunc().After(expTime) {
		return "", errRefreshExpired
	}

	insp := inspection.Inspector{
		ID:       claims.Subject,
		Username: claims.Username,
		Name:     claims.Name,
		Email:    claims.Email,
		OrgUnits: claims.OrgUnits,
	}
	return tk.generate(tk.claims(insp, claims.OrigIssuedAt))
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// contextPerson returns the inspector making the request, if authenticated.
func contextPerson(ctx echo.Context) core.Person {
	claims, _ := getContextClaims(ctx)
	return claims.person()
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	TokenResponse struct {
		Token     string                `json:"token"`
		Inspector *inspection.Inspector `json:"inspector,omitempty"`
	}

	authApi struct {
		svc      inspection.Service
		tokens   *tokenizer
		validate *validator.Validate
		logger   core.Logger
	}
)

func registerAuthAPI(g *echo.Group, jwt echo.MiddlewareFunc, tokens *tokenizer, deps ServerDeps) {
	api := authApi{
		svc:      deps.InspectionSvc,
		tokens:   tokens,
		validate: deps.Validate,
		logger:   deps.Logger,
	}

	ag := g.Group("/auth")
	ag.POST("/login", api.login)
	ag.POST("/token-refresh", api.refreshToken, jwt)
}

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	data.Username = core.CleanString(data.Username)
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	insp, err := api.svc.Authenticate(ctx.Request().Context(), data.Username, data.Password)
	if err != nil {
		if errors.Cause(err) == inspection.ErrInvalidCreds {
			return errAuthenticationFailed
		}
		return errors.Wrap(err, "authenticating")
	}
	token, err := api.tokens.generate(api.tokens.claims(insp))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}

	api.logger.Info("inspector logged in", core.Person{ID: insp.ID, Username: insp.Username, Email: insp.Email})
	return ctx.JSON(http.StatusOK, TokenResponse{Token: token, Inspector: &insp})
}

func (api *authApi) refreshToken(ctx echo.Context) error {
	token, err := api.tokens.refresh(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, TokenResponse{Token: token})
}
