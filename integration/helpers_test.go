//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/meigma/mappack/internal/testutil"
	"github.com/meigma/mappack/store/s3"
)

const (
	minioUser     = "mappack"
	minioPassword = "mappack-secret"
	minioRegion   = "us-east-1"
)

// service is a container started once and shared across tests.
type service struct {
	once sync.Once
	addr string
	err  error
}

var (
	registry service
	minio    service
	redisSvc service
)

// get returns the address of s, starting it with start on first use.
func (s *service) get(tb testing.TB, start func(context.Context) (string, error)) string {
	tb.Helper()

	if os.Getenv("SKIP_DOCKER_TESTS") == "1" {
		tb.Skip("SKIP_DOCKER_TESTS is set")
	}

	s.once.Do(func() {
		s.addr, s.err = start(context.Background())
	})
	if s.err != nil {
		tb.Fatalf("start container: %v", s.err)
	}
	return s.addr
}

// getRegistry returns the host:port of a shared registry:2 container.
func getRegistry(tb testing.TB) string {
	tb.Helper()
	return registry.get(tb, func(ctx context.Context) (string, error) {
		return startContainer(ctx, testcontainers.ContainerRequest{
			Image:        "registry:2",
			ExposedPorts: []string{"5000/tcp"},
			WaitingFor:   wait.ForHTTP("/v2/").WithPort("5000/tcp").WithStatusCodeMatcher(isOKStatus),
		}, "5000/tcp")
	})
}

// getMinio returns the host:port of a shared MinIO container.
func getMinio(tb testing.TB) string {
	tb.Helper()
	return minio.get(tb, func(ctx context.Context) (string, error) {
		return startContainer(ctx, testcontainers.ContainerRequest{
			Image:        "minio/minio:latest",
			ExposedPorts: []string{"9000/tcp"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     minioUser,
				"MINIO_ROOT_PASSWORD": minioPassword,
			},
			Cmd:        []string{"server", "/data"},
			WaitingFor: wait.ForHTTP("/minio/health/ready").WithPort("9000/tcp").WithStatusCodeMatcher(isOKStatus),
		}, "9000/tcp")
	})
}

// getRedis returns the host:port of a shared Redis container.
func getRedis(tb testing.TB) string {
	tb.Helper()
	return redisSvc.get(tb, func(ctx context.Context) (string, error) {
		return startContainer(ctx, testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		}, "6379/tcp")
	})
}

// startContainer starts req and returns the mapped host:port of port.
// Cleanup is handled by the testcontainers reaper.
func startContainer(ctx context.Context, req testcontainers.ContainerRequest, port string) (string, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", fmt.Errorf("start %s container: %w", req.Image, err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve %s host: %w", req.Image, err)
	}

	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		return "", fmt.Errorf("resolve %s port: %w", req.Image, err)
	}

	return fmt.Sprintf("%s:%s", host, mapped.Port()), nil
}

func isOKStatus(status int) bool {
	return status >= 200 && status < 300
}

// newBucket creates a uniquely named bucket on MinIO and returns a store
// config pointing at it.
func newBucket(tb testing.TB, name string) s3.Config {
	tb.Helper()
	addr := getMinio(tb)
	cfg := s3.Config{
		Bucket:          name,
		Region:          minioRegion,
		Endpoint:        "http://" + addr,
		AccessKeyID:     minioUser,
		SecretAccessKey: minioPassword,
	}

	client := awss3.New(awss3.Options{
		Region:       minioRegion,
		BaseEndpoint: aws.String(cfg.Endpoint),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider(minioUser, minioPassword, ""),
	})
	_, err := client.CreateBucket(context.Background(), &awss3.CreateBucketInput{Bucket: aws.String(name)})
	if err != nil {
		tb.Fatalf("create bucket %s: %v", name, err)
	}
	return cfg
}

// upstreams starts fake osu! and mirror servers serving three beatmaps.
func upstreams(tb testing.TB) (*testutil.OsuServer, *testutil.MirrorServer) {
	tb.Helper()
	osuSrv := testutil.NewOsuServer(tb)
	mirror := testutil.NewMirrorServer(tb)
	osuSrv.AddBeatmap(
		testutil.Beatmap{ID: "101", SetID: 11, Artist: "Camellia", Title: "Ghost", Version: "Expert"},
		testutil.Beatmap{ID: "202", SetID: 22, Artist: "xi", Title: "Blue Zenith", Version: "FOUR DIMENSIONS"},
		testutil.Beatmap{ID: "303", SetID: 33, Artist: "TUYU", Title: "Compared Child", Version: "Extra"},
	)
	mirror.AddArchive(11, []byte("set-11"))
	mirror.AddArchive(22, []byte("set-22"))
	mirror.AddArchive(33, []byte("set-33"))
	return osuSrv, mirror
}
