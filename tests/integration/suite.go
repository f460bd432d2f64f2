package integration

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"gitlab.com/ucmsv2/idbroker"
	"gitlab.com/ucmsv2/idbroker/internal/domain/loginsession"
	postgrespkg "gitlab.com/ucmsv2/idbroker/pkg/postgres"
	"gitlab.com/ucmsv2/idbroker/tests/integration/builders"
	"gitlab.com/ucmsv2/idbroker/tests/integration/fixtures"
	"gitlab.com/ucmsv2/idbroker/tests/integration/framework/db"
	"gitlab.com/ucmsv2/idbroker/tests/integration/framework/event"
	frameworkhttp "gitlab.com/ucmsv2/idbroker/tests/integration/framework/http"
	frameworkredis "gitlab.com/ucmsv2/idbroker/tests/integration/framework/redis"
	"gitlab.com/ucmsv2/idbroker/tests/mocks"
)

// TestSuite runs the broker against real Redis and Postgres containers.
// The default client is registered before every test. Suites embedding it
// should skip under testing.Short().
type TestSuite struct {
	suite.Suite

	// Reusable turns off single-use sessions for the whole suite.
	Reusable bool

	redisContainer testcontainers.Container
	pgContainer    *tcpostgres.PostgresContainer
	redisClient    *redis.Client
	pgPool         *pgxpool.Pool
	app            *App

	HTTP           *frameworkhttp.Helper
	Redis          *frameworkredis.Helper
	DB             *db.Helper
	Event          *event.Helper
	MockMailSender *mocks.MockMailSender
	Builder        *builders.Factory
}

func (s *TestSuite) SetupSuite() {
	ctx := context.Background()

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	s.Require().NoError(err)
	s.redisContainer = redisContainer

	endpoint, err := redisContainer.Endpoint(ctx, "")
	s.Require().NoError(err)
	s.redisClient = redis.NewClient(&redis.Options{Addr: endpoint})
	s.Require().NoError(s.redisClient.Ping(ctx).Err())

	pgContainer, err := tcpostgres.Run(ctx, "postgres:17-alpine",
		tcpostgres.WithDatabase("idbroker_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		tcpostgres.BasicWaitStrategies(),
	)
	s.Require().NoError(err)
	s.pgContainer = pgContainer

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)

	s.T().Logf("Running migrations on database: %s", connStr)
	err = postgrespkg.Migrate(strings.Replace(connStr, "postgres://", "pgx://", 1), idbroker.Migrations, "migrations")
	s.Require().NoError(err)

	s.pgPool, err = pgxpool.New(ctx, connStr)
	s.Require().NoError(err)

	s.app, err = NewApp(AppArgs{Redis: s.redisClient, Pool: s.pgPool, SingleUse: !s.Reusable})
	s.Require().NoError(err)

	topic := (&loginsession.LoginCodeIssued{}).GetStreamName()
	s.Event, err = event.NewHelper(ctx, s.app.PubSub, topic)
	s.Require().NoError(err)

	s.HTTP = frameworkhttp.NewHelper(s.app.HTTPHandler)
	s.Redis = frameworkredis.NewHelper(s.redisClient)
	s.DB = db.NewHelper(s.pgPool)
	s.MockMailSender = s.app.MockMailSender
	s.Builder = builders.NewFactory()
}

func (s *TestSuite) TearDownSuite() {
	if s.app != nil {
		s.Require().NoError(s.app.Close())
	}
	if s.pgPool != nil {
		s.pgPool.Close()
	}
	if s.redisClient != nil {
		_ = s.redisClient.Close()
	}

	ctx := context.Background()
	if s.pgContainer != nil {
		s.Require().NoError(s.pgContainer.Terminate(ctx))
	}
	if s.redisContainer != nil {
		s.Require().NoError(s.redisContainer.Terminate(ctx))
	}
}

func (s *TestSuite) SetupTest() {
	s.DB.SeedClient(s.T(), s.Builder.Client.WithRedirects(fixtures.RedirectURI, fixtures.RedirectURI2).Build())
}

func (s *TestSuite) TearDownTest() {
	s.Redis.Flush(s.T())
	s.Require().NoError(s.DB.Truncate(context.Background()))
	s.MockMailSender.Reset()
	s.Event.Reset()
}

func (s *TestSuite) App() *App {
	return s.app
}
