//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/docker/go-connections/nat"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const repoRootRel = ".."   // relative to ./e2e
const mainPkgRel = "./cmd" // main.go lives in cmd/

const (
	dynamoPort = nat.Port("8000/tcp")
	tableName  = "DHT"
)

// dhtItem mirrors what the sensor uploader writes. Temperature is text on
// purpose: the table holds both forms.
type dhtItem struct {
	Timestamp   int64   `dynamodbav:"Timestamp"`
	Temperature string  `dynamodbav:"Temperature"`
	Humidity    float64 `dynamodbav:"Humidity"`
	Sensor      string  `dynamodbav:"Sensor"`
}

type readingsView struct {
	Variant  string `json:"variant"`
	Loading  bool   `json:"loading"`
	Readings []struct {
		DisplayID      int    `json:"displayId"`
		Temperature    string `json:"temperature"`
		TimestampEpoch int64  `json:"timestampEpoch"`
	} `json:"readings"`
	Summary *struct {
		AverageTemperature *float64 `json:"averageTemperature"`
		AverageHumidity    *float64 `json:"averageHumidity"`
		Count              int      `json:"count"`
	} `json:"summary"`
}

func TestSmoke_DynamoDB(t *testing.T) {
	repoRoot := repoRootPath(t)
	endpoint := startDynamoDB(t)
	seedTable(t, endpoint, []dhtItem{
		{Timestamp: 1000, Temperature: "20", Humidity: 50, Sensor: "dht-1"},
		{Timestamp: 3000, Temperature: "22", Humidity: 55, Sensor: "dht-1"},
		{Timestamp: 2000, Temperature: "bad", Humidity: 60, Sensor: "dht-1"},
	})

	bin := buildBinary(t, repoRoot)
	addr := pickFreeAddr(t)

	cmd := exec.Command(bin, "serve")
	cmd.Env = append(os.Environ(),
		"APP_ENV=dev",
		"LOG_LEVEL=info",
		"HTTP_ADDR="+addr,
		"SOURCE_DRIVER=dynamodb",
		"AWS_REGION=us-east-1",
		"DYNAMODB_TABLE="+tableName,
		"DYNAMODB_ENDPOINT="+endpoint,
		"DYNAMODB_ACCESS_KEY_ID=local",
		"DYNAMODB_SECRET_ACCESS_KEY=local",
		"DISPLAY_TZ=UTC",
		"MQTT_BROKER=",
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	})

	client := &http.Client{Timeout: 2 * time.Second}
	base := "http://" + addr

	waitForOK(t, client, base+"/healthz", 10*time.Second)

	var health struct {
		Status   string `json:"status"`
		Variants map[string]struct {
			Loading bool `json:"loading"`
		} `json:"variants"`
	}
	getJSON(t, client, base+"/healthz", &health)
	if health.Status != "ok" {
		t.Fatalf("healthz status=%q want=ok", health.Status)
	}
	if _, ok := health.Variants["home"]; !ok {
		t.Fatalf("healthz has no home variant: %+v", health.Variants)
	}

	view := waitForReadings(t, client, base+"/api/v1/variants/home/readings?range=All&metric=Both", 10*time.Second)
	if len(view.Readings) != 3 {
		t.Fatalf("readings=%d want=3", len(view.Readings))
	}
	for i, want := range []int64{1000, 2000, 3000} {
		if got := view.Readings[i]; got.DisplayID != i+1 || got.TimestampEpoch != want {
			t.Errorf("readings[%d]=%+v want id %d ts %d", i, got, i+1, want)
		}
	}
	if view.Summary == nil || view.Summary.Count != 3 {
		t.Fatalf("summary=%+v", view.Summary)
	}
	if got := *view.Summary.AverageTemperature; got != 14 {
		t.Errorf("averageTemperature=%v want=14", got)
	}
	if got := *view.Summary.AverageHumidity; got != 55 {
		t.Errorf("averageHumidity=%v want=55", got)
	}

	resp, err := client.Get(base + "/v/home")
	if err != nil {
		t.Fatalf("GET /v/home: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /v/home status=%d", resp.StatusCode)
	}

	stopServer(t, cmd)
}

func startDynamoDB(t *testing.T) string {
	t.Helper()

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "amazon/dynamodb-local:latest",
		Cmd:          []string{"-jar", "DynamoDBLocal.jar", "-inMemory", "-sharedDb"},
		ExposedPorts: []string{string(dynamoPort)},
		WaitingFor:   wait.ForListeningPort(dynamoPort).WithStartupTimeout(60 * time.Second),
	}

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start dynamodb-local container: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Terminate(ctx)
	})

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := c.MappedPort(ctx, dynamoPort)
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}
	return fmt.Sprintf("http://%s:%s", host, port.Port())
}

func seedTable(t *testing.T, endpoint string, items []dhtItem) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := dynamodb.New(dynamodb.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(endpoint),
		Credentials:  credentials.NewStaticCredentialsProvider("local", "local", ""),
	})

	_, err := client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(tableName),
		AttributeDefinitions: []ddbtypes.AttributeDefinition{
			{AttributeName: aws.String("Timestamp"), AttributeType: ddbtypes.ScalarAttributeTypeN},
		},
		KeySchema: []ddbtypes.KeySchemaElement{
			{AttributeName: aws.String("Timestamp"), KeyType: ddbtypes.KeyTypeHash},
		},
		BillingMode: ddbtypes.BillingModePayPerRequest,
	})
	if err != nil {
		t.Fatalf("create table: %v", err)
	}

	for _, it := range items {
		av, err := attributevalue.MarshalMap(it)
		if err != nil {
			t.Fatalf("marshal item: %v", err)
		}
		if _, err := client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(tableName),
			Item:      av,
		}); err != nil {
			t.Fatalf("put item: %v", err)
		}
	}
}

func repoRootPath(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}

	repo := filepath.Clean(filepath.Join(wd, repoRootRel))
	if _, err := os.Stat(filepath.Join(repo, "go.mod")); err != nil {
		t.Fatalf("repo root %q does not contain go.mod: %v", repo, err)
	}

	return repo
}

func buildBinary(t *testing.T, repoRoot string) string {
	t.Helper()

	tmp := t.TempDir()
	out := filepath.Join(tmp, "bsf-dashboard")

	build := exec.Command("go", "build", "-o", out, mainPkgRel)
	build.Dir = repoRoot
	build.Env = os.Environ()

	b, err := build.CombinedOutput()
	if err != nil {
		t.Fatalf("go build failed: %v\n%s", err, string(b))
	}

	return out
}

func pickFreeAddr(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen :0: %v", err)
	}
	defer ln.Close()

	return ln.Addr().String()
}

func getJSON(t *testing.T, client *http.Client, url string, out any) {
	t.Helper()

	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s status=%d want=%d", url, resp.StatusCode, http.StatusOK)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func waitForOK(t *testing.T, client *http.Client, url string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server not healthy after %s: %s", timeout, url)
}

// waitForReadings polls until the first batch has been applied.
func waitForReadings(t *testing.T, client *http.Client, url string, timeout time.Duration) readingsView {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		var view readingsView
		getJSON(t, client, url, &view)
		if !view.Loading {
			return view
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("readings still loading after %s: %s", timeout, url)
	return readingsView{}
}

func stopServer(t *testing.T, cmd *exec.Cmd) {
	t.Helper()

	_ = cmd.Process.Signal(syscall.SIGTERM)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		t.Fatalf("server did not exit in time")
	case err := <-done:
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				t.Fatalf("server exited non-zero: %v", err)
			}
			t.Fatalf("server wait error: %v", err)
		}
	}
}
