//go:build integration

// Package test runs the gateway against Postgres and Kafka in containers.
package test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"time"

	"github.com/gorilla/mux"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/relabs-tech/tablegate/core/backend"
	"github.com/relabs-tech/tablegate/core/client"
	"github.com/relabs-tech/tablegate/core/csql"
	"github.com/relabs-tech/tablegate/core/notify"
	"github.com/relabs-tech/tablegate/core/schema"
)

const changesTopic = "table_changes"

const tablesJSON = `{
	"tables": [
		{
			"table": "customers",
			"columns": [
				{"name": "ID", "type": "integer"},
				{"name": "name", "type": "string"},
				{"name": "active", "type": "boolean"},
				{"name": "balance", "type": "float"}
			]
		}
	]
}`

const databaseSQL = `
CREATE TABLE oauth (
	client_secret TEXT NOT NULL,
	can_read BOOLEAN, can_create BOOLEAN, can_edit BOOLEAN, can_delete BOOLEAN);
INSERT INTO oauth VALUES ('all', true, true, true, true);
INSERT INTO oauth VALUES ('reader', true, false, false, false);
CREATE TABLE customers (
	ID SERIAL PRIMARY KEY,
	name TEXT,
	active BOOLEAN DEFAULT FALSE,
	balance DOUBLE PRECISION);
`

type IntegrationTestSuite struct {
	suite.Suite
	*backend.Backend

	db     *csql.DB
	router *mux.Router
	server *httptest.Server
	client client.Client

	network            testcontainers.Network
	postgresContainer  testcontainers.Container
	zookeeperContainer testcontainers.Container
	kafkaContainer     testcontainers.Container
	kafkaConn          *kafka.Conn
	kafkaAddr          string
}

func (s *IntegrationTestSuite) createTopic(topic string, numPartitions int) error {
	if s.kafkaConn == nil {
		return fmt.Errorf("kafka connection is not established")
	}

	err := s.kafkaConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     numPartitions,
		ReplicationFactor: 1,
	})
	if err != nil {
		return fmt.Errorf("failed to create topic %s: %w", topic, err)
	}
	return nil
}

func (s *IntegrationTestSuite) SetupSuite() {
	ctx := context.Background()

	networkName := "test-gateway-network_" + fmt.Sprintf("%d", time.Now().Unix())
	network, err := testcontainers.GenericNetwork(ctx, testcontainers.GenericNetworkRequest{
		NetworkRequest: testcontainers.NetworkRequest{
			Name:           networkName,
			CheckDuplicate: true,
		},
	})
	s.Require().NoError(err)
	s.network = network

	postgresUser := "testuser"
	postgresPassword := "testpass"
	postgresDB := "testdb"

	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:15",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     postgresUser,
				"POSTGRES_PASSWORD": postgresPassword,
				"POSTGRES_DB":       postgresDB,
			},
			Networks:       []string{networkName},
			NetworkAliases: map[string][]string{networkName: {"postgres"}},
			WaitingFor:     wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		},
		Started: true,
	})
	s.Require().NoError(err)
	s.postgresContainer = pgC

	pgHost, err := pgC.Host(ctx)
	s.Require().NoError(err)
	pgPort, err := pgC.MappedPort(ctx, "5432")
	s.Require().NoError(err)

	zkC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "confluentinc/cp-zookeeper:7.5.0",
			ExposedPorts: []string{"2181/tcp"},
			Env: map[string]string{
				"ZOOKEEPER_CLIENT_PORT": "2181",
				"ZOOKEEPER_TICK_TIME":   "2000",
			},
			WaitingFor:     wait.ForListeningPort("2181/tcp"),
			Networks:       []string{networkName},
			NetworkAliases: map[string][]string{networkName: {"zookeeper"}},
		},
		Started: true,
	})
	s.Require().NoError(err)
	s.zookeeperContainer = zkC

	kafkaC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "confluentinc/cp-kafka:7.5.0",
			ExposedPorts: []string{"9092:9092/tcp"},
			Env: map[string]string{
				"KAFKA_BROKER_ID":                        "1",
				"KAFKA_ZOOKEEPER_CONNECT":                "zookeeper:2181",
				"KAFKA_LISTENERS":                        "PLAINTEXT://0.0.0.0:9092,INTERNAL://0.0.0.0:9093",
				"KAFKA_ADVERTISED_LISTENERS":             "PLAINTEXT://localhost:9092,INTERNAL://kafka:9093",
				"KAFKA_LISTENER_SECURITY_PROTOCOL_MAP":   "PLAINTEXT:PLAINTEXT,INTERNAL:PLAINTEXT",
				"KAFKA_INTER_BROKER_LISTENER_NAME":       "INTERNAL",
				"KAFKA_OFFSETS_TOPIC_REPLICATION_FACTOR": "1",
			},
			WaitingFor:     wait.ForLog("started (kafka.server.KafkaServer)"),
			Networks:       []string{networkName},
			NetworkAliases: map[string][]string{networkName: {"kafka"}},
		},
		Started: true,
	})
	s.Require().NoError(err)
	s.kafkaContainer = kafkaC

	kafkaHost, err := kafkaC.Host(ctx)
	s.Require().NoError(err)
	kafkaPort, err := kafkaC.MappedPort(ctx, "9092")
	s.Require().NoError(err)
	s.kafkaAddr = fmt.Sprintf("%s:%s", kafkaHost, kafkaPort.Port())

	s.kafkaConn, err = kafka.Dial("tcp", s.kafkaAddr)
	s.Require().NoError(err)
	s.Require().NoError(s.createTopic(changesTopic, 1), "Failed to create %s topic", changesTopic)

	s.db, err = csql.Open(ctx, csql.Configuration{
		Driver:       csql.DriverPostgres,
		Server:       fmt.Sprintf("%s:%s", pgHost, pgPort.Port()),
		Database:     postgresDB,
		Username:     postgresUser,
		Password:     postgresPassword,
		MaxOpenConns: 4,
	})
	s.Require().NoError(err)
	_, err = s.db.ExecContext(ctx, databaseSQL)
	s.Require().NoError(err)

	registry, err := schema.Parse([]byte(tablesJSON))
	s.Require().NoError(err)

	s.router = mux.NewRouter()
	s.Backend = backend.New(&backend.Builder{
		DB:           s.db,
		Router:       s.router,
		Registry:     registry,
		Notifier:     notify.NewKafka([]string{s.kafkaAddr}, changesTopic),
		QueryTimeout: 10 * time.Second,
	})

	s.server = httptest.NewServer(s.router)
	s.client = client.NewWithURL(s.server.URL)
}

func (s *IntegrationTestSuite) TearDownSuite() {
	ctx := context.Background()
	if s.server != nil {
		s.server.Close()
	}
	if s.Backend != nil {
		s.Require().NoError(s.Close())
	}
	if s.db != nil {
		s.db.Close()
	}
	if s.kafkaConn != nil {
		s.kafkaConn.Close()
	}
	for _, c := range []testcontainers.Container{s.kafkaContainer, s.zookeeperContainer, s.postgresContainer} {
		if c != nil {
			s.Require().NoError(c.Terminate(ctx))
		}
	}
	if s.network != nil {
		s.Require().NoError(s.network.Remove(ctx))
	}
}
