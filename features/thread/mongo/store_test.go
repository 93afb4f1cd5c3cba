package mongo

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"goa.design/partview/features/thread/memory"
	clientsmongo "goa.design/partview/features/thread/mongo/clients/mongo"
	"goa.design/partview/runtime/thread"
	"goa.design/partview/runtime/thread/threadtest"
)

func TestNewStoreRequiresClient(t *testing.T) {
	_, err := NewStore(nil)
	require.EqualError(t, err, "client is required")
}

func TestStoreDelegates(t *testing.T) {
	threadtest.Run(t, func(t *testing.T) thread.Store {
		s, err := NewStore(stubClient{Store: memory.New()})
		require.NoError(t, err)
		return s
	})
}

func TestStoreAgainstMongo(t *testing.T) {
	mongoOnce.Do(setupMongoDB)
	if skipMongoTests {
		t.Skip("Docker not available, skipping MongoDB test")
	}
	n := 0
	threadtest.Run(t, func(t *testing.T) thread.Store {
		n++
		client, err := clientsmongo.New(clientsmongo.Options{
			Client:     testMongoClient,
			Database:   "partview_test",
			Collection: fmt.Sprintf("threads_%d", n),
		})
		require.NoError(t, err)
		require.NoError(t, client.Ping(context.Background()))
		s, err := NewStore(client)
		require.NoError(t, err)
		return s
	})
}

type stubClient struct {
	*memory.Store
}

func (stubClient) Name() string {
	return "thread-stub"
}

func (stubClient) Ping(context.Context) error {
	return nil
}

var (
	mongoOnce          sync.Once
	testMongoClient    *mongodriver.Client
	testMongoContainer testcontainers.Container
	skipMongoTests     bool
)

func setupMongoDB() {
	ctx := context.Background()

	var containerErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				containerErr = fmt.Errorf("docker not available: %v", r)
			}
		}()
		req := testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForLog("Waiting for connections"),
			Tmpfs:        map[string]string{"/data/db": "rw"},
		}
		testMongoContainer, containerErr = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
	}()
	if containerErr != nil {
		fmt.Printf("Docker not available, MongoDB tests will be skipped: %v\n", containerErr)
		skipMongoTests = true
		return
	}

	host, err := testMongoContainer.Host(ctx)
	if err != nil {
		skipMongoTests = true
		return
	}
	port, err := testMongoContainer.MappedPort(ctx, "27017")
	if err != nil {
		skipMongoTests = true
		return
	}
	uri := fmt.Sprintf("mongodb://%s:%s", host, port.Port())
	testMongoClient, err = mongodriver.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		fmt.Printf("Failed to connect to MongoDB: %v\n", err)
		skipMongoTests = true
		return
	}
	if err := testMongoClient.Ping(ctx, nil); err != nil {
		fmt.Printf("Failed to ping MongoDB: %v\n", err)
		skipMongoTests = true
	}
}
