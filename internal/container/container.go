// Package container is the composition root: it owns infrastructure (DB,
// Redis, file storage, model provider) and wires every bounded-context
// service together. Grounded on cmd/container.go's Container/NewContainer
// shape (infrastructure first, then modules, then lifecycle hooks),
// generalized from one iamcontainer sub-container into the flat set of
// services this tree wires directly — there is no per-bounded-context
// sub-container here, because every one of these packages already composes
// at the pkg/ level.
package container

import (
	"context"
	"fmt"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/getsentry/sentry-go"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/openai/openai-go/v3/option"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/flowctl/core/pkg/agentrouter"
	"github.com/flowctl/core/pkg/ai/llm"
	"github.com/flowctl/core/pkg/ai/providers/aianthropic"
	"github.com/flowctl/core/pkg/ai/providers/aibedrock"
	"github.com/flowctl/core/pkg/ai/providers/aiopenai"
	"github.com/flowctl/core/pkg/authsession"
	"github.com/flowctl/core/pkg/billing"
	"github.com/flowctl/core/pkg/cache"
	"github.com/flowctl/core/pkg/cache/cachemetrics"
	"github.com/flowctl/core/pkg/cache/cacheredis"
	"github.com/flowctl/core/pkg/chainexecutor"
	"github.com/flowctl/core/pkg/commandregistry"
	"github.com/flowctl/core/pkg/config"
	"github.com/flowctl/core/pkg/crypto"
	"github.com/flowctl/core/pkg/fsx"
	"github.com/flowctl/core/pkg/fsx/fsxlocal"
	"github.com/flowctl/core/pkg/fsx/fsxs3"
	"github.com/flowctl/core/pkg/invitations"
	"github.com/flowctl/core/pkg/jobx"
	"github.com/flowctl/core/pkg/jobx/jobxredis"
	"github.com/flowctl/core/pkg/kernel"
	"github.com/flowctl/core/pkg/logx"
	"github.com/flowctl/core/pkg/magiclink"
	"github.com/flowctl/core/pkg/metrics"
	"github.com/flowctl/core/pkg/notifx"
	"github.com/flowctl/core/pkg/notifx/notifxconsole"
	"github.com/flowctl/core/pkg/notifx/notifxses"
	"github.com/flowctl/core/pkg/oauthbroker"
	"github.com/flowctl/core/pkg/patmanager"
	"github.com/flowctl/core/pkg/promptagent"
	"github.com/flowctl/core/pkg/scopes"
	"github.com/flowctl/core/pkg/store"
	"github.com/flowctl/core/pkg/store/storepg"
	"github.com/flowctl/core/pkg/tenanttree"
)

// Container holds every wired infrastructure handle and service.
type Container struct {
	Config *config.Config
	Logger *logx.Logger

	// Infrastructure
	DB         *sqlx.DB
	Redis      *redis.Client
	FileSystem fsx.FileSystem
	S3Client   *s3.Client
	Cache      cache.Cache
	Store      store.Store
	Metrics    *prometheus.Registry

	// Domain primitives
	TenantTree     *tenanttree.Tree
	ScopeEngine    *scopes.Engine
	FieldCipher    *crypto.FieldCipher
	JWTService     *crypto.JWTService
	PasswordHasher *crypto.BcryptHasher
	PATHasher      *crypto.PATHasher
	TOTPService    *crypto.TOTPService
	BillingGate    *billing.Gate
	Notifier       notifx.Notifier
	Jobx           *jobx.Client
	ModelProvider  llm.Provider
	LLMClient      *llm.Client
	Commands       *commandregistry.Registry

	// Services (C7-C14)
	AuthSession   *authsession.Service
	MagicLink     *magiclink.Service
	OAuthBroker   *oauthbroker.Broker
	OAuthSweeper  *oauthbroker.Sweeper
	PATManager    *patmanager.Manager
	Invitations   *invitations.Service
	AgentRouter   *agentrouter.Router
	PromptAgent   *promptagent.Service
	ChainExecutor *chainexecutor.Executor

	jobxCancel context.CancelFunc
}

// New wires every component in dependency order: infrastructure, then
// domain primitives, then the services that depend on them.
func New(cfg *config.Config) *Container {
	logx.Info("initializing application container")

	c := &Container{Config: cfg, Logger: logx.NewLogger(nil)}

	c.initObservability()
	c.initInfrastructure()
	c.initPrimitives()
	c.initServices()

	logx.Info("application container initialized")
	return c
}

// ---------------------------------------------------------------------------
// Observability — Sentry capture, Prometheus registry
// ---------------------------------------------------------------------------

func (c *Container) initObservability() {
	if c.Config.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         c.Config.Sentry.DSN,
			Environment: c.Config.Sentry.Environment,
		}); err != nil {
			logx.Errorf("failed to initialize sentry: %v", err)
		} else {
			logx.Info("sentry error capture initialized")
		}
	}

	c.Metrics = prometheus.NewRegistry()
	for _, collector := range metrics.All() {
		c.Metrics.MustRegister(collector)
	}
}

// ---------------------------------------------------------------------------
// Infrastructure — DB, Redis, file storage, job queue, model provider
// ---------------------------------------------------------------------------

func (c *Container) initInfrastructure() {
	logx.Info("initializing infrastructure")

	db, err := sqlx.Connect("postgres", c.Config.Database.DSN())
	if err != nil {
		logx.Fatalf("failed to connect to database: %v", err)
	}
	db.SetMaxOpenConns(c.Config.Database.MaxOpenConns)
	db.SetMaxIdleConns(c.Config.Database.MaxIdleConns)
	db.SetConnMaxLifetime(c.Config.Database.ConnMaxLifetime)
	c.DB = db
	c.Store = storepg.New(db)
	logx.Info("database connected")

	c.Redis = redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Address(),
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
	})
	if _, err := c.Redis.Ping(context.Background()).Result(); err != nil {
		logx.Fatalf("failed to connect to redis: %v", err)
	}
	c.Cache = cachemetrics.Wrap(cacheredis.New(c.Redis), "redis")
	logx.Info("redis connected")

	c.initFileStorage()
	c.initJobx()
	c.initModelProvider()
	c.initNotifier()

	logx.Info("infrastructure initialized")
}

func (c *Container) initFileStorage() {
	mode := getEnv("STORAGE_MODE", "local")

	switch mode {
	case "s3":
		region := getEnv("AWS_REGION", c.Config.Email.AWSRegion)
		bucket := getEnv("AWS_BUCKET", "flowctl-uploads")

		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
		if err != nil {
			logx.Fatalf("failed to load AWS SDK config: %v", err)
		}
		c.S3Client = s3.NewFromConfig(awsCfg)
		c.FileSystem = fsxs3.NewS3FileSystem(c.S3Client, bucket, "")
		logx.Infof("s3 file system configured (bucket: %s, region: %s)", bucket, region)

	case "local":
		uploadDir := getEnv("UPLOAD_DIR", "./uploads")
		localFS, err := fsxlocal.NewLocalFileSystem(uploadDir)
		if err != nil {
			logx.Fatalf("failed to initialize local file system: %v", err)
		}
		c.FileSystem = localFS
		logx.Infof("local file system configured (path: %s)", uploadDir)

	default:
		logx.Fatalf("unknown STORAGE_MODE: %s (use 'local' or 's3')", mode)
	}
}

func (c *Container) initJobx() {
	queue := jobxredis.NewRedisQueue(c.Redis)
	c.Jobx = jobx.NewClient(
		queue,
		jobx.WithConcurrency(c.Config.Jobx.Concurrency),
		jobx.WithQueues(c.Config.Jobx.Queues...),
		jobx.WithPollInterval(c.Config.Jobx.PollInterval),
		jobx.WithShutdownTimeout(c.Config.Jobx.ShutdownTimeout),
		jobx.WithDequeueTimeout(c.Config.Jobx.DequeueTimeout),
		jobx.WithDefaultRetryDelay(c.Config.Jobx.DefaultRetryDelay),
	)
}

// initModelProvider picks a concrete llm.Provider off AI_PROVIDER. A
// misconfigured provider is a startup-time failure, not a lazily-discovered
// one, since C14 PromptAgent has no fallback path.
func (c *Container) initModelProvider() {
	switch c.Config.AI.Provider {
	case "anthropic":
		c.ModelProvider = aianthropic.NewAnthropicProvider(c.Config.AI.AnthropicAPIKey)
	case "bedrock":
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(c.Config.AI.BedrockRegion))
		if err != nil {
			logx.Fatalf("failed to load AWS SDK config for bedrock: %v", err)
		}
		c.ModelProvider = aibedrock.NewBedrockProvider(awsCfg)
	case "openai", "":
		var opts []option.RequestOption
		if c.Config.AI.OpenAIBaseURL != "" {
			opts = append(opts, option.WithBaseURL(c.Config.AI.OpenAIBaseURL))
		}
		c.ModelProvider = aiopenai.NewOpenAIProvider(c.Config.AI.OpenAIAPIKey, opts...)
	default:
		logx.Fatalf("unknown AI_PROVIDER: %s", c.Config.AI.Provider)
	}
	c.LLMClient = llm.NewClient(c.ModelProvider)
	logx.Infof("model provider configured (%s)", c.Config.AI.Provider)
}

func (c *Container) initNotifier() {
	switch c.Config.Notifx.Provider {
	case "ses":
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(c.Config.Notifx.AWSRegion))
		if err != nil {
			logx.Fatalf("failed to load AWS SDK config for ses: %v", err)
		}
		sesClient := ses.NewFromConfig(awsCfg)
		provider := notifxses.NewSESProvider(sesClient, c.Config.Notifx.FromAddress)
		c.Notifier = notifx.NewClient(provider)
	case "console", "":
		c.Notifier = notifx.NewClient(notifxconsole.NewConsoleProvider())
	default:
		logx.Fatalf("unknown NOTIFX_PROVIDER: %s", c.Config.Notifx.Provider)
	}
	logx.Infof("notifier configured (%s)", c.Config.Notifx.Provider)
}

// ---------------------------------------------------------------------------
// Domain primitives — crypto, cache-backed engines, billing
// ---------------------------------------------------------------------------

func (c *Container) initPrimitives() {
	c.TenantTree = tenanttree.New(c.Store.Tenants(), c.Store.Memberships())
	c.ScopeEngine = scopes.New(c.Store.Scopes(), c.Store.Memberships(), c.TenantTree, c.Cache)
	c.BillingGate = billing.New(c.Store, c.TenantTree, c.Config.Billing)

	cipher, err := crypto.NewFieldCipher(c.Config.Auth.Encryption.Keys, c.Config.Auth.Encryption.ActiveVersion)
	if err != nil {
		logx.Fatalf("failed to initialize field cipher: %v", err)
	}
	c.FieldCipher = cipher

	c.JWTService = crypto.NewJWTService(
		c.Config.Auth.JWT.Secret,
		c.Config.Auth.JWT.Issuer,
		c.Config.Auth.JWT.AccessTTL,
		c.Config.Auth.JWT.RefreshTTL,
		c.Config.Auth.JWT.LeewayJWT,
	)
	c.PasswordHasher = crypto.NewBcryptHasher(c.Config.Auth.Password.BcryptCost)
	c.PATHasher = crypto.NewPATHasher(c.Config.Auth.PAT.TokenPrefix, c.Config.MasterKey)
	c.TOTPService = crypto.NewTOTPService(c.Config.Auth.TOTP.Issuer, c.Config.Auth.TOTP.ValidWindow)

	c.Commands = commandregistry.New()
}

// ---------------------------------------------------------------------------
// Services — C7 through C14
// ---------------------------------------------------------------------------

func (c *Container) initServices() {
	c.PATManager = patmanager.New(c.Store.PATs(), c.ScopeEngine, c.PATHasher)

	c.AuthSession = authsession.New(
		c.Config.MasterKey,
		c.Config.SuperadminEmail,
		c.JWTService,
		c.PATManager,
		c.Store.Blacklist(),
		c.Store.Users(),
		c.Store.Memberships(),
		c.ScopeEngine,
		c.BillingGate,
		c.Cache,
		c.Jobx,
	)

	c.MagicLink = magiclink.New(
		c.TOTPService,
		c.JWTService,
		c.Store.Users(),
		c.Store.Memberships(),
		c.Notifier,
		c.Config.AppURI,
		c.Config.TZ,
	)

	providers := buildOAuthConfigs(c.Config.OAuth)
	c.OAuthBroker = oauthbroker.New(c.Store.OAuth(), providers, c.Logger)
	sweeper, err := oauthbroker.NewSweeper(c.OAuthBroker, c.Store.OAuth(), c.Config.TZ, c.Logger)
	if err != nil {
		logx.Fatalf("failed to initialize oauth sweeper: %v", err)
	}
	c.OAuthSweeper = sweeper

	c.Invitations = invitations.New(c.Store, c.TenantTree, c.ScopeEngine, c.BillingGate, c.Notifier, c.Config.AppURI)

	c.AgentRouter = agentrouter.New(c.Store.Tenants(), c.Store.Memberships(), c.Store.Conversations(), c.TenantTree, c.Logger)

	c.PromptAgent = promptagent.New(c.LLMClient, c.BillingGate, c.Store.Conversations(), c.Logger)

	c.ChainExecutor = chainexecutor.New(c.Store.Chains(), c.Store.Conversations(), c.PromptAgent, c.Commands, c.BillingGate, c.Logger)

	c.registerChainCommand()
}

// registerChainCommand registers a single "run_chain" command taking a
// chain_name argument, rather than one "Run Chain: <name>" command per
// existing chain the way original_source/agixt/commands/chain_commands.py
// does it. ChainRepository (pkg/store) deliberately only supports looking a
// chain up by name (FindByName), not enumerating every chain a tenant has,
// so a per-chain command set cannot be built at startup; a single
// parameterized command reaches every chain a caller names without needing
// that enumeration.
func (c *Container) registerChainCommand() {
	c.Commands.Register("run_chain", func(ctx context.Context, args map[string]string) (string, error) {
		chainName := args["chain_name"]
		if chainName == "" {
			return "", fmt.Errorf("run_chain: chain_name argument is required")
		}
		run, err := c.ChainExecutor.Run(ctx, kernel.NewTenantID(args["tenant_id"]), chainName, chainexecutor.RunOptions{
			Context: args["context"],
			UserID:  kernel.NewUserID(args["user_id"]),
		})
		if err != nil {
			return "", err
		}
		if run.Status != chainexecutor.StatusCompleted {
			return "", fmt.Errorf("chain %q did not complete: %s", chainName, run.FailureMessage)
		}
		if len(run.Steps) == 0 {
			return "Chain started successfully.", nil
		}
		return run.Steps[len(run.Steps)-1].Response, nil
	})
}

// buildOAuthConfigs joins the tenant-authored client credentials in Config
// with the well-known authorization/token endpoints for each supported
// provider. config.OAuthProviderConfig deliberately carries no endpoint
// fields of its own — those are fixed per provider, not per tenant — so
// this table, not the config file, is the single place a new OAuth
// provider's endpoints get added.
func buildOAuthConfigs(cfg config.OAuth) map[string]*oauth2.Config {
	knownEndpoints := map[string]oauth2.Endpoint{
		"google":    endpoints.Google,
		"github":    endpoints.GitHub,
		"microsoft": endpoints.AzureAD,
	}

	out := make(map[string]*oauth2.Config, len(cfg.Providers))
	for name, p := range cfg.Providers {
		endpoint, ok := knownEndpoints[name]
		if !ok {
			continue
		}
		out[name] = &oauth2.Config{
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			RedirectURL:  p.RedirectURL,
			Endpoint:     endpoint,
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// StartBackgroundServices starts every component with its own goroutine
// loop: the job worker pool and the OAuth token-refresh sweeper. jobx.Start
// blocks on its own context, so it runs on a derived, cancellable context
// Cleanup can tear down independently of the caller's ctx.
func (c *Container) StartBackgroundServices(ctx context.Context) {
	logx.Info("starting background services")

	jobxCtx, cancel := context.WithCancel(ctx)
	c.jobxCancel = cancel
	go func() {
		if err := c.Jobx.Start(jobxCtx); err != nil {
			logx.Errorf("job worker stopped: %v", err)
		}
	}()

	c.OAuthSweeper.Start()
}

// Cleanup releases infrastructure handles in reverse dependency order.
func (c *Container) Cleanup() {
	logx.Info("cleaning up resources")

	if c.Config.Sentry.DSN != "" {
		sentry.Flush(2 * time.Second)
	}
	if c.OAuthSweeper != nil {
		c.OAuthSweeper.Stop()
	}
	if c.jobxCancel != nil {
		c.jobxCancel()
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			logx.Errorf("error closing database: %v", err)
		} else {
			logx.Info("database connection closed")
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logx.Errorf("error closing redis: %v", err)
		} else {
			logx.Info("redis connection closed")
		}
	}

	logx.Info("cleanup complete")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
